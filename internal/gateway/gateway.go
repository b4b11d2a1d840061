// Package gateway maps feed tokens to groups.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"linkfeed/internal/domain"
	"linkfeed/internal/storage"
)

// ErrUnauthorized is returned for a missing or unknown token.
var ErrUnauthorized = errors.New("unauthorized: invalid token")

// TokenStore is the part of the store that owns tokens.
type TokenStore interface {
	EnsureToken(ctx context.Context, chatID string) (string, error)
	ResolveToken(ctx context.Context, token string) (domain.Group, error)
}

// Gateway resolves bearer tokens. A token grants read access to exactly one group's feed.
type Gateway struct {
	store TokenStore
}

func New(store TokenStore) *Gateway {
	return &Gateway{store: store}
}

// Resolve returns the group owning token, or ErrUnauthorized.
func (g *Gateway) Resolve(ctx context.Context, token string) (domain.Group, error) {
	if token == "" {
		return domain.Group{}, ErrUnauthorized
	}
	group, err := g.store.ResolveToken(ctx, token)
	if errors.Is(err, storage.ErrTokenNotFound) {
		return domain.Group{}, ErrUnauthorized
	}
	if err != nil {
		return domain.Group{}, fmt.Errorf("resolve token: %w", err)
	}
	return group, nil
}

// Issue returns the token of a chat, creating it on first use.
func (g *Gateway) Issue(ctx context.Context, chatID string) (string, error) {
	return g.store.EnsureToken(ctx, chatID)
}
