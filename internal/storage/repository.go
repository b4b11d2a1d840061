package storage

import (
	"context"
	"errors"

	"linkfeed/internal/domain"
)

// ErrTokenNotFound is returned by ResolveToken when no group owns the token.
var ErrTokenNotFound = errors.New("token not found")

// Stats holds store-wide counters reported by the health endpoint.
type Stats struct {
	Links  int `json:"links_count"`
	Groups int `json:"groups_count"`
}

// Repository defines the interface for data storage operations.
// All links are partitioned by chat ID; nothing is shared between groups except the token namespace.
type Repository interface {
	// EnsureToken returns the token of a group, creating the group and its token on first use.
	// Concurrent callers for the same chat always get the same token.
	EnsureToken(ctx context.Context, chatID string) (string, error)

	// ResolveToken returns the group that owns token, or ErrTokenNotFound.
	ResolveToken(ctx context.Context, token string) (domain.Group, error)

	// AppendLink stores a new link for a chat and returns it with its assigned ID.
	// Duplicate URLs are stored as separate rows.
	AppendLink(ctx context.Context, chatID string, link domain.Link) (domain.Link, error)

	// RecentLinks returns up to limit links of a chat, newest first.
	RecentLinks(ctx context.Context, chatID string, limit int) ([]domain.Link, error)

	// PurgeMessage deletes every link of a chat that came from messageID and reports how many were removed.
	PurgeMessage(ctx context.Context, chatID string, messageID int64) (int, error)

	// Stats counts stored links and groups.
	Stats(ctx context.Context) (Stats, error)

	// Close gracefully shuts down the repository connection.
	Close() error
}
