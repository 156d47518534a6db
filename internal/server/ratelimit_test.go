package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bluele/gcache"
	hr "github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_PerIP(t *testing.T) {
	rl := newRateLimiterWith(3, time.Minute, 16, gcache.NewFakeClock())

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow("198.51.100.1"), "request %d", i+1)
	}
	assert.False(t, rl.allow("198.51.100.1"))
	assert.True(t, rl.allow("198.51.100.2"))
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	clock := gcache.NewFakeClock()
	rl := newRateLimiterWith(2, time.Minute, 16, clock)

	require.True(t, rl.allow("198.51.100.1"))
	clock.Advance(30 * time.Second)
	require.True(t, rl.allow("198.51.100.1"))
	assert.False(t, rl.allow("198.51.100.1"))

	// The first request leaves the window, the second is still in it.
	clock.Advance(31 * time.Second)
	assert.True(t, rl.allow("198.51.100.1"))
	assert.False(t, rl.allow("198.51.100.1"))
}

func TestRateLimiter_ActiveVisitorOutlivesLoadExpiry(t *testing.T) {
	clock := gcache.NewFakeClock()
	rl := newRateLimiterWith(1, time.Minute, 16, clock)

	// Loaded at t0, so the cache would drop the entry at t0+2m unless each
	// request pushes its expiry forward.
	require.True(t, rl.allow("198.51.100.1"))
	clock.Advance(90 * time.Second)
	require.True(t, rl.allow("198.51.100.1"))
	clock.Advance(40 * time.Second)
	assert.False(t, rl.allow("198.51.100.1"), "visitor history was dropped while still active")
}

func TestRateLimiter_IdleVisitorExpires(t *testing.T) {
	clock := gcache.NewFakeClock()
	rl := newRateLimiterWith(1, time.Minute, 16, clock)

	require.True(t, rl.allow("198.51.100.1"))
	clock.Advance(2*time.Minute + time.Second)
	_, err := rl.visitors.GetIFPresent("198.51.100.1")
	assert.ErrorIs(t, err, gcache.KeyNotFoundError)
}

func TestRateLimiter_EvictsLeastRecentVisitor(t *testing.T) {
	rl := newRateLimiterWith(1, time.Minute, 2, gcache.NewFakeClock())

	require.True(t, rl.allow("198.51.100.1"))
	require.False(t, rl.allow("198.51.100.1"))

	require.True(t, rl.allow("198.51.100.2"))
	require.True(t, rl.allow("198.51.100.3"))

	assert.Equal(t, 2, rl.visitors.Len(false))
	// A fresh entry starts with an empty history.
	assert.True(t, rl.allow("198.51.100.1"))
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := newRateLimiterWith(2, time.Minute, 16, gcache.NewFakeClock())
	calls := 0
	h := rl.middleware(func(w http.ResponseWriter, _ *http.Request, _ hr.Params) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	})

	serve := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h(rec, req, nil)
		return rec
	}

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusNoContent, serve("192.0.2.10:4100").Code)
	}

	rec := serve("192.0.2.10:4200")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, statusError, body["status"])
	assert.Equal(t, "Rate limit exceeded. Please try again later.", body["message"])
	assert.Equal(t, 2, calls)

	assert.Equal(t, http.StatusNoContent, serve("192.0.2.11:4100").Code)
}
