package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRedisStore struct {
	values map[string]string
}

func newMemoryRedisStore() *memoryRedisStore {
	return &memoryRedisStore{values: map[string]string{}}
}

func (s *memoryRedisStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, exists := s.values[key]; exists {
		return false, nil
	}
	s.values[key] = value.(string)
	return true, nil
}

func (s *memoryRedisStore) Get(_ context.Context, key string) (string, error) {
	value, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (s *memoryRedisStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

func TestRedisLockMutualExclusion(t *testing.T) {
	store := newMemoryRedisStore()
	ctx := context.Background()

	first, err := NewRedisLock(store, "sl:lock:sweep", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "sl:lock:sweep", 0)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "held lock must not be acquired twice")

	require.NoError(t, first.Release(ctx))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "released lock becomes available")
}

func TestRedisLockReleaseChecksOwner(t *testing.T) {
	store := newMemoryRedisStore()
	ctx := context.Background()

	holder, err := NewRedisLock(store, "sl:lock:sweep", 0)
	require.NoError(t, err)
	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate the key expiring and another instance taking the lock.
	require.NoError(t, store.Del(ctx, "sl:lock:sweep"))
	rival, err := NewRedisLock(store, "sl:lock:sweep", 0)
	require.NoError(t, err)
	ok, err = rival.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// The stale holder must not free the rival's lock.
	require.NoError(t, holder.Release(ctx))
	third, err := NewRedisLock(store, "sl:lock:sweep", 0)
	require.NoError(t, err)
	acquired, err := third.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestRedisLockValidation(t *testing.T) {
	_, err := NewRedisLock(nil, "key", 0)
	assert.Error(t, err)
	_, err = NewRedisLock(newMemoryRedisStore(), "", 0)
	assert.Error(t, err)
}

func TestRedisLockReleaseWithoutAcquire(t *testing.T) {
	lock, err := NewRedisLock(newMemoryRedisStore(), "sl:lock:sweep", 0)
	require.NoError(t, err)
	assert.NoError(t, lock.Release(context.Background()))
}
