package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryDedupeStore struct {
	values map[string]string
	err    error
}

func newMemoryDedupeStore() *memoryDedupeStore {
	return &memoryDedupeStore{values: map[string]string{}}
}

func (s *memoryDedupeStore) Get(_ context.Context, key string) (string, error) {
	return s.values[key], s.err
}

func (s *memoryDedupeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if _, exists := s.values[key]; exists {
		return false, nil
	}
	s.values[key] = "1"
	return true, nil
}

func (s *memoryDedupeStore) WebhookEventKey(provider, eventID string) string {
	return "sl:webhook:" + provider + ":" + eventID
}

func (s *memoryDedupeStore) LockKey(name string) string {
	return "sl:lock:" + name
}

func (s *memoryDedupeStore) Del(_ context.Context, keys ...string) error {
	if s.err != nil {
		return s.err
	}
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

func TestWebhookGuardDedupes(t *testing.T) {
	store := newMemoryDedupeStore()
	guard, err := NewWebhookGuard(store)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = guard.CheckAndMark(ctx, "evt-2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestWebhookGuardDeleteAllowsRetry(t *testing.T) {
	store := newMemoryDedupeStore()
	guard, err := NewWebhookGuard(store)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = guard.CheckAndMark(ctx, "evt-retry")
	require.NoError(t, err)
	require.NoError(t, guard.Delete(ctx, "evt-retry"))

	seen, err := guard.CheckAndMark(ctx, "evt-retry")
	require.NoError(t, err)
	assert.False(t, seen, "a cleared mark must be claimable again")
}

func TestWebhookGuardEmptyEventID(t *testing.T) {
	guard, err := NewWebhookGuard(newMemoryDedupeStore())
	require.NoError(t, err)

	seen, err := guard.CheckAndMark(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.NoError(t, guard.Delete(context.Background(), ""))
}

func TestWebhookGuardPropagatesStoreErrors(t *testing.T) {
	store := newMemoryDedupeStore()
	store.err = errors.New("redis down")
	guard, err := NewWebhookGuard(store)
	require.NoError(t, err)

	_, err = guard.CheckAndMark(context.Background(), "evt-err")
	assert.Error(t, err)
}
