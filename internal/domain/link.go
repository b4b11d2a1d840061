package domain

import "time"

// Link represents one URL shared in a group chat, enriched with its preview metadata.
type Link struct {
	// ID is assigned by the store when the link is appended.
	ID uint64 `json:"id"`

	// ChatID is the Telegram chat the link was shared in.
	ChatID string `json:"chat_id"`

	// URL is the raw URL as it appeared in the message.
	URL string `json:"url"`

	// Title is the page title, or the URL itself when no title could be fetched.
	Title string `json:"title"`

	// Description carries the "Shared by" attribution, optionally followed by the page description.
	Description string `json:"description"`

	// Image is an optional preview image URL (Open Graph image).
	Image string `json:"image,omitempty"`

	// MessageID is the Telegram message the link came from. Edits replace all links of a message.
	MessageID int64 `json:"message_id"`

	// Date is when the link was stored.
	Date time.Time `json:"date"`
}

// Group is a chat that owns a feed. Token grants read access to the feed.
type Group struct {
	ChatID    string    `json:"chat_id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}
