package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides if an action for key should be allowed.
// Allow returns (allowed, retryAfterSeconds). When allowed is false, retryAfterSeconds
// may be set for the Retry-After response header (0 = omit).
type Limiter interface {
	Allow(key string) (allowed bool, retryAfterSec int)
}

// Pruner is implemented by limiters that keep per-key state and can drop idle keys.
type Pruner interface {
	Prune() int
}

// RunPruner calls p.Prune every interval until ctx is done.
func RunPruner(ctx context.Context, p Pruner, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune()
		}
	}
}

// Noop allows everything.
type Noop struct{}

func (Noop) Allow(key string) (bool, int) { return true, 0 }

// SlidingWindow allows up to limit actions per key in any window-long span.
// It guards the control API's mutating routes, keyed by client IP.
type SlidingWindow struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	limit   int
	window  time.Duration
	nowFunc func() time.Time
}

// NewSlidingWindow allows up to limit actions per key per window.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		entries: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		nowFunc: time.Now,
	}
}

func (r *SlidingWindow) Allow(key string) (allowed bool, retryAfterSec int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowFunc()
	cutoff := now.Add(-r.window)
	times := r.entries[key]
	i := 0
	for _, t := range times {
		if t.After(cutoff) {
			times[i] = t
			i++
		}
	}
	times = times[:i]
	if len(times) >= r.limit {
		r.entries[key] = times
		return false, retryAfter(times[0].Add(r.window).Sub(now))
	}
	r.entries[key] = append(times, now)
	return true, 0
}

// Prune drops keys with no action inside the window.
func (r *SlidingWindow) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.nowFunc().Add(-r.window)
	removed := 0
	for key, times := range r.entries {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}

// TokenBucket is a per-key token bucket: each key refills at perSecond and
// holds at most burst tokens. It throttles outgoing room commands per target.
type TokenBucket struct {
	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	perSecond rate.Limit
	burst     int
	nowFunc   func() time.Time
}

// NewTokenBucket creates a TokenBucket. A non-positive perSecond disables limiting.
func NewTokenBucket(perSecond float64, burst int) *TokenBucket {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		buckets:   make(map[string]*rate.Limiter),
		perSecond: limit,
		burst:     burst,
		nowFunc:   time.Now,
	}
}

func (b *TokenBucket) limiter(key string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	lim, ok := b.buckets[key]
	if !ok {
		lim = rate.NewLimiter(b.perSecond, b.burst)
		b.buckets[key] = lim
	}
	return lim
}

func (b *TokenBucket) Allow(key string) (bool, int) {
	lim := b.limiter(key)
	now := b.nowFunc()
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, retryAfter(delay)
}

// Prune drops keys whose bucket has refilled completely; a new bucket starts full.
func (b *TokenBucket) Prune() int {
	now := b.nowFunc()
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for key, lim := range b.buckets {
		if lim.TokensAt(now) >= float64(b.burst) {
			delete(b.buckets, key)
			removed++
		}
	}
	return removed
}

func retryAfter(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	sec := int(math.Ceil(d.Seconds()))
	if sec < 1 {
		sec = 1
	}
	return sec
}
