package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenCache_GetEmpty(t *testing.T) {
	cache := NewTokenCache(time.Minute)
	require.Empty(t, cache.Get())
}

func TestTokenCache_GetValid(t *testing.T) {
	cache := NewTokenCache(time.Minute)
	cache.Put("tok-1", time.Now().Add(time.Hour))
	require.Equal(t, "tok-1", cache.Get())
}

func TestTokenCache_StaleInsideMargin(t *testing.T) {
	cache := NewTokenCache(time.Minute)
	cache.Put("tok-1", time.Now().Add(30*time.Second))
	require.Empty(t, cache.Get())
}

func TestTokenCache_LastWriterWins(t *testing.T) {
	cache := NewTokenCache(time.Minute)
	cache.Put("tok-1", time.Now().Add(time.Hour))
	cache.Put("tok-2", time.Now().Add(2*time.Hour))
	require.Equal(t, "tok-2", cache.Get())
}
