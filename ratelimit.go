package auth

import (
	"context"
	"sync"
	"time"
)

// Fixed-window limiter defaults; callers override through the constructors.
const (
	DefaultRateLimitWindow = 15 * time.Minute
	DefaultRateLimitMax    = 5
)

type rateWindow struct {
	start time.Time
	count int
}

// MemoryRateLimiter is a fixed-window attempt counter keyed by client key
// (IP, or IP plus endpoint). The window boundary resets atomically once the
// elapsed time reaches the window length.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]rateWindow
	window  time.Duration
	max     int
	now     func() time.Time
}

var _ RateLimiter = (*MemoryRateLimiter)(nil)

// NewMemoryRateLimiter creates an in-process limiter. Zero values fall back
// to the package defaults.
func NewMemoryRateLimiter(window time.Duration, max int) *MemoryRateLimiter {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	if max <= 0 {
		max = DefaultRateLimitMax
	}
	return &MemoryRateLimiter{
		windows: make(map[string]rateWindow),
		window:  window,
		max:     max,
		now:     time.Now,
	}
}

// WithClock injects a custom clock (useful for tests).
func (l *MemoryRateLimiter) WithClock(clock func() time.Time) *MemoryRateLimiter {
	if clock != nil {
		l.now = clock
	}
	return l
}

// Allow increments the counter for key and reports whether the attempt is
// within the ceiling for the active window.
func (l *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		w = rateWindow{start: now}
	}

	w.count++
	l.windows[key] = w

	return w.count <= l.max, nil
}

// Reset clears the window for key.
func (l *MemoryRateLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}
