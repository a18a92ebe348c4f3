package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := &RateLimiter{
		windows: make(map[string][]time.Time),
		limit:   3,
		window:  time.Minute,
	}
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, ok := rl.allow("u1")
		assert.True(t, ok)
	}

	retry, ok := rl.allow("u1")
	assert.False(t, ok)
	assert.Equal(t, 60, retry)

	// Another caller has an independent budget.
	_, ok = rl.allow("u2")
	assert.True(t, ok)

	// Once the first request ages out, capacity frees up.
	now = base.Add(61 * time.Second)
	_, ok = rl.allow("u1")
	assert.True(t, ok)

	rl.Reset()
	for i := 0; i < 3; i++ {
		_, ok := rl.allow("u1")
		assert.True(t, ok)
	}
}

func TestRateLimiterStop(t *testing.T) {
	before := runtime.NumGoroutine()

	rl := NewRateLimiter(1, time.Minute)
	rl.Stop()
	rl.Stop() // idempotent

	// The pruner goroutine exits once Stop is called.
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, time.Second, 10*time.Millisecond)

	// Limiting itself keeps working after Stop.
	_, ok := rl.allow("u1")
	assert.True(t, ok)
	_, ok = rl.allow("u1")
	assert.False(t, ok)
}

func TestRateLimiterResponse(t *testing.T) {
	rl := &RateLimiter{
		windows: make(map[string][]time.Time),
		limit:   1,
		window:  time.Minute,
		now:     time.Now,
	}
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limited")
	assert.Contains(t, rec.Body.String(), "retryAfter")
}
