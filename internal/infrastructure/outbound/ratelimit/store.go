// Package ratelimit keeps the token buckets behind per-stub rate limits.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sophialabs/stubkit/internal/infrastructure/outbound/clock"
	"github.com/sophialabs/stubkit/internal/infrastructure/ports"
)

const defaultTTL = 10 * time.Minute

var _ ports.RateLimiter = (*TokenBucketStore)(nil)

type bucket struct {
	limiter  *rate.Limiter
	rate     float64
	burst    int
	lastUsed time.Time
}

// TokenBucketStore holds one token bucket per key. A bucket is created full
// on first use and dropped once it has been idle for longer than the TTL.
type TokenBucketStore struct {
	clock ports.Clock
	ttl   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a TokenBucketStore.
type Option func(*TokenBucketStore)

// WithClock sets the time source used for refills and idle tracking.
func WithClock(c ports.Clock) Option {
	return func(s *TokenBucketStore) { s.clock = c }
}

// WithoutEviction disables the background eviction goroutine. Evict can
// still be called directly.
func WithoutEviction() Option {
	return func(s *TokenBucketStore) { s.ttl = -s.ttl }
}

// NewTokenBucketStore creates a store whose idle buckets expire after ttl
// (10 minutes when ttl <= 0). Call Stop to end background eviction.
func NewTokenBucketStore(ttl time.Duration, opts ...Option) *TokenBucketStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	s := &TokenBucketStore{
		clock:   clock.New(),
		ttl:     ttl,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl < 0 {
		s.ttl = -s.ttl
		return s
	}
	go s.evictLoop()
	return s
}

// Stop ends background eviction. It is safe to call more than once.
func (s *TokenBucketStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *TokenBucketStore) evictLoop() {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Evict()
		case <-s.stop:
			return
		}
	}
}

// Allow takes one token from the bucket of key. When a stub is reloaded
// with different limits the existing bucket is retuned in place.
func (s *TokenBucketStore) Allow(_ context.Context, key string, r float64, burst int) bool {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	switch {
	case !ok:
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(r), burst), rate: r, burst: burst}
		s.buckets[key] = b
	case b.rate != r || b.burst != burst:
		b.limiter.SetLimitAt(now, rate.Limit(r))
		b.limiter.SetBurstAt(now, burst)
		b.rate, b.burst = r, burst
	}

	b.lastUsed = now
	return b.limiter.AllowN(now, 1)
}

// Evict drops buckets idle for longer than the TTL and returns how many went.
func (s *TokenBucketStore) Evict() int {
	cutoff := s.clock.Now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, b := range s.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(s.buckets, key)
			n++
		}
	}
	return n
}

// Reset drops every bucket, so each key starts again with a full burst.
func (s *TokenBucketStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.buckets)
}

// Len returns the number of live buckets.
func (s *TokenBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
