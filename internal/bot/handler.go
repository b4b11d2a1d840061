package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"linkfeed/internal/feed"
	"linkfeed/internal/ingest"
)

const usageMessage = "Add me to a group and I will collect every link shared there.\n" +
	"Use /rssfeed to get the group's private RSS feed link."

// Ingester stores the links of a chat message.
type Ingester interface {
	Handle(ctx context.Context, msg ingest.Message) (int, error)
}

// TokenIssuer returns the feed token of a chat.
type TokenIssuer interface {
	Issue(ctx context.Context, chatID string) (string, error)
}

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot      *tgbot.Bot
	appURL   string
	pipeline Ingester
	tokens   TokenIssuer
	log      logrus.FieldLogger
}

// NewHandler creates a new bot handler instance.
// Updates are handled one at a time so a message and its edit never interleave.
func NewHandler(botToken, appURL string, pipeline Ingester, tokens TokenIssuer, logger logrus.FieldLogger, opts ...tgbot.Option) (*Handler, error) {
	log := logger.WithField("component", "bot_handler")

	h := &Handler{
		appURL:   appURL,
		pipeline: pipeline,
		tokens:   tokens,
		log:      log,
	}

	opts = append([]tgbot.Option{
		tgbot.WithDefaultHandler(h.defaultHandler),
		tgbot.WithNotAsyncHandlers(),
		tgbot.WithWorkers(1),
	}, opts...)
	b, err := tgbot.New(botToken, opts...)
	if err != nil {
		log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	h.bot = b
	h.registerHandlers()

	log.Info("Telegram bot handler initialized")
	return h, nil
}

// registerHandlers sets up the command handlers. Everything else reaches defaultHandler.
func (h *Handler) registerHandlers() {
	h.bot.RegisterHandlerMatchFunc(isCommand("rssfeed"), h.rssfeedHandler)
	h.bot.RegisterHandlerMatchFunc(isCommand("start"), h.startHandler)
}

// isCommand matches messages that start with the bot command /name or /name@botname.
func isCommand(name string) tgbot.MatchFunc {
	return func(update *models.Update) bool {
		m := update.Message
		if m == nil || len(m.Entities) == 0 {
			return false
		}
		e := m.Entities[0]
		if e.Type != models.MessageEntityTypeBotCommand || e.Offset != 0 || e.Length > len(m.Text) {
			return false
		}
		cmd, _, _ := strings.Cut(m.Text[:e.Length], "@")
		return cmd == "/"+name
	}
}

// Start begins polling for updates from Telegram.
// This function blocks until the context is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped.")
}

func (h *Handler) startHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	h.reply(ctx, b, update.Message, usageMessage)
}

func (h *Handler) rssfeedHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	chatID := chatKey(update.Message.Chat.ID)
	log := h.log.WithFields(logrus.Fields{
		"chat_id": chatID,
		"command": "/rssfeed",
	})
	log.Info("Received /rssfeed command")

	text, err := h.feedReply(ctx, chatID)
	if err != nil {
		log.WithError(err).Error("Failed to issue feed token")
		return
	}
	h.reply(ctx, b, update.Message, text)
}

// feedReply builds the command answer carrying the chat's feed URL.
func (h *Handler) feedReply(ctx context.Context, chatID string) (string, error) {
	token, err := h.tokens.Issue(ctx, chatID)
	if err != nil {
		return "", err
	}
	return "Your RSS feed link, use it in your RSS reader:\n" + feed.FeedURL(h.appURL, token), nil
}

func (h *Handler) reply(ctx context.Context, b *tgbot.Bot, msg *models.Message, text string) {
	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   text,
	})
	if err != nil {
		h.log.WithError(err).WithField("chat_id", msg.Chat.ID).Error("Failed to send reply")
	}
}

// defaultHandler feeds new and edited messages into the ingestion pipeline.
func (h *Handler) defaultHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	msg, ok := toMessage(update)
	if !ok {
		return
	}
	if _, err := h.pipeline.Handle(ctx, msg); err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"chat_id":    msg.ChatID,
			"message_id": msg.MessageID,
		}).Error("Failed to ingest message")
	}
}

// toMessage converts a Telegram update into a pipeline message.
// Updates without a message or edit are ignored.
func toMessage(update *models.Update) (ingest.Message, bool) {
	m, edited := update.Message, false
	if m == nil {
		m, edited = update.EditedMessage, true
	}
	if m == nil {
		return ingest.Message{}, false
	}

	msg := ingest.Message{
		ChatID:    chatKey(m.Chat.ID),
		MessageID: int64(m.ID),
		Text:      m.Text,
		Caption:   m.Caption,
		Edited:    edited,
	}
	if m.From != nil {
		msg.Sender = m.From.FirstName
	}
	return msg, true
}

func chatKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
