package source

import (
	"sync"
	"time"
)

// tokenExpiryBuffer is how long before stated expiry a token is treated
// as stale, so requests never ride a token into its final seconds.
const tokenExpiryBuffer = 5 * time.Minute

type cachedToken struct {
	token string
	// expiresAt zero means the provider gave no expiry; treat as valid
	// until a request is rejected.
	expiresAt time.Time
}

// TokenCache holds per-library auth tokens. It is injected into the
// REST client rather than held as package state so tests construct a
// fresh one per case.
type TokenCache struct {
	mu     sync.Mutex
	tokens map[string]cachedToken
	now    func() time.Time
}

// NewTokenCache builds an empty cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{tokens: make(map[string]cachedToken), now: time.Now}
}

// Get returns the cached token for a library when it is still fresh.
func (c *TokenCache) Get(libraryID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.tokens[libraryID]
	if !ok {
		return "", false
	}
	if !cached.expiresAt.IsZero() && cached.expiresAt.Sub(c.now()) <= tokenExpiryBuffer {
		return "", false
	}
	return cached.token, true
}

// Put stores a token. A zero expiresAt records an unknown expiry.
func (c *TokenCache) Put(libraryID, token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[libraryID] = cachedToken{token: token, expiresAt: expiresAt}
}

// Invalidate drops a library's token, forcing the next call to refresh.
func (c *TokenCache) Invalidate(libraryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, libraryID)
}
