package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	pkgredis "github.com/storelane/storelane-backend/pkg/redis"
)

const (
	guardProvider = "gateway"
	guardTTL      = 48 * time.Hour
)

// WebhookGuard dedupes gateway callback deliveries by event id so a retried
// delivery never reprocesses an event the winning delivery already handled.
// The database compare-and-set remains the correctness backstop; the guard
// just cuts redundant work.
type WebhookGuard struct {
	store pkgredis.DedupeStore
	ttl   time.Duration
}

// NewWebhookGuard builds the dedupe guard.
func NewWebhookGuard(store pkgredis.DedupeStore) (*WebhookGuard, error) {
	if store == nil {
		return nil, errors.New("redis store required for webhook guard")
	}
	return &WebhookGuard{store: store, ttl: guardTTL}, nil
}

// CheckAndMark returns true when the event was already seen; otherwise it
// marks the event as in-flight and returns false.
func (g *WebhookGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	key := g.store.WebhookEventKey(guardProvider, eventID)
	ok, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("marking webhook event: %w", err)
	}
	return !ok, nil
}

// Delete clears the mark so a failed processing attempt can be retried.
func (g *WebhookGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	return g.store.Del(ctx, g.store.WebhookEventKey(guardProvider, eventID))
}
