package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenCacheHitAndMiss(t *testing.T) {
	t.Parallel()

	cache := NewTokenCache()
	_, ok := cache.Get("lib-1")
	require.False(t, ok)

	cache.Put("lib-1", "tok-a", time.Now().Add(time.Hour))
	token, ok := cache.Get("lib-1")
	require.True(t, ok)
	require.Equal(t, "tok-a", token)

	_, ok = cache.Get("lib-2")
	require.False(t, ok)
}

func TestTokenCacheExpiryBuffer(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	cache := NewTokenCache()
	cache.now = func() time.Time { return now }

	// Inside the buffer window the token counts as stale.
	cache.Put("lib-1", "tok-a", now.Add(4*time.Minute))
	_, ok := cache.Get("lib-1")
	require.False(t, ok)

	cache.Put("lib-1", "tok-b", now.Add(6*time.Minute))
	token, ok := cache.Get("lib-1")
	require.True(t, ok)
	require.Equal(t, "tok-b", token)
}

func TestTokenCacheUnknownExpiryStaysValid(t *testing.T) {
	t.Parallel()

	cache := NewTokenCache()
	cache.Put("lib-1", "tok-a", time.Time{})
	token, ok := cache.Get("lib-1")
	require.True(t, ok)
	require.Equal(t, "tok-a", token)
}

func TestTokenCacheInvalidate(t *testing.T) {
	t.Parallel()

	cache := NewTokenCache()
	cache.Put("lib-1", "tok-a", time.Time{})
	cache.Invalidate("lib-1")
	_, ok := cache.Get("lib-1")
	require.False(t, ok)
}
