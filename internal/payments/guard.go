package payments

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// guardStore is the redis surface used to de-duplicate webhook deliveries.
type guardStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookKey(provider, eventID string) string
}

// WebhookGuard marks webhook deliveries as seen so provider retries are
// acknowledged without being processed again.
type WebhookGuard struct {
	store    guardStore
	ttl      time.Duration
	provider string
}

// NewWebhookGuard builds a guard scoped to one provider.
func NewWebhookGuard(store guardStore, ttl time.Duration, provider string) (*WebhookGuard, error) {
	if store == nil {
		return nil, errors.New("webhook store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if provider == "" {
		return nil, errors.New("provider is required")
	}
	return &WebhookGuard{store: store, ttl: ttl, provider: provider}, nil
}

// CheckAndMark reports whether eventKey was already seen, marking it if not.
// A nil guard never reports a duplicate.
func (g *WebhookGuard) CheckAndMark(ctx context.Context, eventKey string) (bool, error) {
	if g == nil {
		return false, nil
	}
	if eventKey == "" {
		return false, errors.New("event key is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookKey(g.provider, eventKey), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark webhook event: %w", err)
	}
	return !set, nil
}

// Delete releases the mark so a failed delivery can be retried.
func (g *WebhookGuard) Delete(ctx context.Context, eventKey string) error {
	if g == nil {
		return nil
	}
	if eventKey == "" {
		return errors.New("event key is required")
	}
	return g.store.Del(ctx, g.store.WebhookKey(g.provider, eventKey))
}
