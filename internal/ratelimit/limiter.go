// Package ratelimit bounds request volume per client identity using a
// per-key sliding window. Counters live in process memory: restarts and
// horizontal scaling reset them, which matches the service's best-effort
// abuse protection. The method set is the contract; a shared counter store
// can replace the map without changing call sites.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

// Result reports a caller's standing against the limiter after a Check or
// Increment.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key within a fixed-length window that starts at
// the key's first request. All operations take the same lock, so
// check-then-increment is one critical section.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	limit  int
	length time.Duration
	now    func() time.Time
}

type Option func(*Limiter)

// WithClock replaces the limiter's time source. Used by tests to move the
// window boundary without sleeping.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func NewLimiter(length time.Duration, limit int, opts ...Option) *Limiter {
	l := &Limiter{
		windows: make(map[string]*window),
		limit:   limit,
		length:  length,
		now:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Check reports the key's standing without consuming a request. When no
// active window exists the reset time is the hypothetical reset of a window
// started now.
func (l *Limiter) Check(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		return Result{Allowed: true, Limit: l.limit, Remaining: l.limit, ResetAt: now.Add(l.length)}
	}

	remaining := l.limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: w.count < l.limit, Limit: l.limit, Remaining: remaining, ResetAt: w.resetAt}
}

// Increment consumes one request for the key. A missing or expired window is
// replaced by a fresh one counting this request; at the limit the count
// saturates and the request is denied.
func (l *Limiter) Increment(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(l.length)}
		l.windows[key] = w
		return Result{Allowed: true, Limit: l.limit, Remaining: l.limit - 1, ResetAt: w.resetAt}
	}

	if w.count >= l.limit {
		return Result{Allowed: false, Limit: l.limit, Remaining: 0, ResetAt: w.resetAt}
	}

	w.count++
	return Result{Allowed: true, Limit: l.limit, Remaining: l.limit - w.count, ResetAt: w.resetAt}
}

// Reset forgets the key's window. Operational/testing aid, not the hot path.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.windows, key)
}

// Len returns the number of tracked windows, expired ones included until the
// next sweep.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.windows)
}

// Sweep drops windows whose reset time has passed and returns how many were
// removed. Active windows are untouched.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Run sweeps expired windows on a jittered interval until the context is
// cancelled, keeping the window map from growing without bound.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: 500 * time.Millisecond, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.S().Named("ratelimit").Info("sweep loop stopped")
			return
		case <-ticker.C:
			if removed := l.Sweep(); removed > 0 {
				zap.S().Named("ratelimit").Debugf("swept %d expired windows", removed)
			}
		}
	}
}
