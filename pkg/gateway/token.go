package gateway

import (
	"sync"
	"time"
)

// TokenCache holds the current client-credentials bearer token. Reads and
// writes may race across in-flight checkouts; last writer wins, which is
// acceptable because every stored token is valid at write time.
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	margin    time.Duration

	now func() time.Time
}

// NewTokenCache builds a cache that treats tokens as stale once their expiry
// is closer than margin.
func NewTokenCache(margin time.Duration) *TokenCache {
	if margin <= 0 {
		margin = 60 * time.Second
	}
	return &TokenCache{margin: margin, now: time.Now}
}

// Get returns the cached token, or "" when absent or inside the safety margin.
func (c *TokenCache) Get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return ""
	}
	if c.now().Add(c.margin).After(c.expiresAt) {
		return ""
	}
	return c.token
}

// Put stores a freshly fetched token with its absolute expiry.
func (c *TokenCache) Put(token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiresAt = expiresAt
}
