// Package ingest turns chat messages into stored links.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"linkfeed/internal/domain"
	"linkfeed/internal/scraper"
	"linkfeed/internal/telemetry"
)

// unknownSender is used when a message carries no sender name.
const unknownSender = "Unknown"

// Message is an inbound chat message or edit.
type Message struct {
	ChatID    string
	MessageID int64
	Sender    string
	Text      string
	Caption   string
	Edited    bool
}

// body returns the message text, falling back to the media caption.
func (m Message) body() string {
	return lo.Ternary(m.Text != "", m.Text, m.Caption)
}

// LinkWriter is the part of the store the pipeline writes to.
type LinkWriter interface {
	PurgeMessage(ctx context.Context, chatID string, messageID int64) (int, error)
	AppendLink(ctx context.Context, chatID string, link domain.Link) (domain.Link, error)
}

// Pipeline extracts URLs from messages, enriches them and stores them.
type Pipeline struct {
	store   LinkWriter
	scraper scraper.Scraper
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewPipeline creates a pipeline writing to store.
func NewPipeline(store LinkWriter, s scraper.Scraper, logger logrus.FieldLogger) *Pipeline {
	telemetry.Init()
	return &Pipeline{
		store:   store,
		scraper: s,
		log:     logger.WithField("component", "ingest"),
		now:     time.Now,
	}
}

// Handle processes one message and returns the number of links stored.
// Links previously stored for the same message are replaced, so handling an
// edit is idempotent. URLs are processed one by one; a store error aborts the
// rest of the message and is returned.
func (p *Pipeline) Handle(ctx context.Context, msg Message) (int, error) {
	urls := ExtractURLs(msg.body())
	if len(urls) == 0 {
		return 0, nil
	}

	sender := lo.Ternary(msg.Sender != "", msg.Sender, unknownSender)
	log := p.log.WithFields(logrus.Fields{
		"chat_id":    msg.ChatID,
		"message_id": msg.MessageID,
		"edited":     msg.Edited,
	})
	telemetry.MessagesIngested.Inc()

	if _, err := p.store.PurgeMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
		telemetry.IngestFailures.Inc()
		return 0, fmt.Errorf("purge previous links: %w", err)
	}

	stored := 0
	for _, url := range urls {
		meta := p.fetch(ctx, log, url)
		link := domain.Link{
			URL:         url,
			Title:       lo.Ternary(meta.Title != "", meta.Title, url),
			Description: describe(sender, meta.Description),
			Image:       meta.Image,
			MessageID:   msg.MessageID,
			Date:        p.now(),
		}
		if _, err := p.store.AppendLink(ctx, msg.ChatID, link); err != nil {
			telemetry.IngestFailures.Inc()
			return stored, fmt.Errorf("store link %s: %w", url, err)
		}
		telemetry.LinksStored.Inc()
		stored++
	}

	log.WithFields(logrus.Fields{
		"links":  stored,
		"sender": sender,
	}).Info("Stored links from message")
	return stored, nil
}

// fetch returns page metadata, or empty metadata when the page is unavailable.
func (p *Pipeline) fetch(ctx context.Context, log logrus.FieldLogger, url string) scraper.Metadata {
	meta, err := p.scraper.ScrapeMetadata(ctx, url)
	if err == nil {
		return meta
	}
	telemetry.FetchFailures.Inc()
	log.WithError(err).WithField("url", url).Warn("Metadata fetch failed, using URL as title")
	return scraper.Metadata{}
}

// describe prefixes the page description with who shared the link.
func describe(sender, description string) string {
	attribution := "Shared by " + sender
	if description == "" {
		return attribution
	}
	return attribution + " - " + description
}
