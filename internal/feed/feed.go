// Package feed renders a group's links as an RSS 2.0 document.
package feed

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"github.com/samber/lo"

	"linkfeed/internal/domain"
)

const (
	// Limit is the number of most recent links a feed carries.
	Limit = 50

	Title       = "Telegram Group Links"
	Description = "Links shared in Telegram group"

	imageType = "image/jpeg"
)

// LinkReader is the part of the store the generator reads from.
type LinkReader interface {
	RecentLinks(ctx context.Context, chatID string, limit int) ([]domain.Link, error)
}

// Generator builds feeds for groups.
type Generator struct {
	store   LinkReader
	baseURL string
	now     func() time.Time
}

func NewGenerator(store LinkReader, baseURL string) *Generator {
	return &Generator{store: store, baseURL: baseURL, now: time.Now}
}

// FeedURL is the public address of the feed guarded by token.
func FeedURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/rss?token=" + url.QueryEscape(token)
}

// GUID identifies a link item. It only depends on stored data, so re-rendering is stable.
func GUID(link domain.Link) string {
	return fmt.Sprintf("%s_%d", link.URL, link.Date.UnixNano())
}

// Render returns the RSS document for group.
func (g *Generator) Render(ctx context.Context, group domain.Group) (string, error) {
	links, err := g.store.RecentLinks(ctx, group.ChatID, Limit)
	if err != nil {
		return "", fmt.Errorf("load links: %w", err)
	}

	f := &feeds.Feed{
		Title:       Title,
		Link:        &feeds.Link{Href: FeedURL(g.baseURL, group.Token)},
		Description: Description,
		Updated:     g.now().UTC(),
		Items:       lo.Map(links, func(l domain.Link, _ int) *feeds.Item { return item(l) }),
	}
	rss, err := f.ToRss()
	if err != nil {
		return "", fmt.Errorf("encode rss: %w", err)
	}
	return rss, nil
}

func item(l domain.Link) *feeds.Item {
	it := &feeds.Item{
		Title:       l.Title,
		Link:        &feeds.Link{Href: l.URL},
		Description: l.Description,
		Id:          GUID(l),
		Created:     l.Date,
	}
	if l.Image != "" {
		// gorilla/feeds drops enclosures without a length.
		it.Enclosure = &feeds.Enclosure{Url: l.Image, Type: imageType, Length: "0"}
	}
	return it
}
