package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sophialabs/stubkit/internal/infrastructure/outbound/ratelimit"
	"github.com/sophialabs/stubkit/internal/testutil"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newStore(t *testing.T, ttl time.Duration) (*ratelimit.TokenBucketStore, *testutil.ManualClock) {
	t.Helper()
	clk := testutil.NewManualClock(epoch)
	s := ratelimit.NewTokenBucketStore(ttl, ratelimit.WithClock(clk), ratelimit.WithoutEviction())
	t.Cleanup(s.Stop)
	return s, clk
}

// step is one Allow call, optionally after moving the clock.
type step struct {
	advance time.Duration
	key     string
	rate    float64
	burst   int
	want    bool
}

func TestTokenBucketStore_Allow(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
	}{
		{
			name: "burst then deny",
			steps: []step{
				{key: "k", rate: 1, burst: 2, want: true},
				{key: "k", rate: 1, burst: 2, want: true},
				{key: "k", rate: 1, burst: 2, want: false},
			},
		},
		{
			name: "refill after one interval",
			steps: []step{
				{key: "k", rate: 1, burst: 1, want: true},
				{key: "k", rate: 1, burst: 1, want: false},
				{advance: 500 * time.Millisecond, key: "k", rate: 1, burst: 1, want: false},
				{advance: 500 * time.Millisecond, key: "k", rate: 1, burst: 1, want: true},
			},
		},
		{
			name: "keys are isolated",
			steps: []step{
				{key: "stub:a", rate: 1, burst: 1, want: true},
				{key: "stub:a", rate: 1, burst: 1, want: false},
				{key: "stub:b", rate: 1, burst: 1, want: true},
			},
		},
		{
			name: "zero burst never allows",
			steps: []step{
				{key: "k", rate: 100, burst: 0, want: false},
				{advance: time.Second, key: "k", rate: 100, burst: 0, want: false},
			},
		},
		{
			name: "reloaded limits retune the bucket",
			steps: []step{
				{key: "k", rate: 1, burst: 2, want: true},
				{key: "k", rate: 1, burst: 2, want: true},
				{key: "k", rate: 1, burst: 2, want: false},
				{key: "k", rate: 10, burst: 20, want: false},
				// At 10/s, 200ms refills two tokens; at 1/s it would refill none.
				{advance: 200 * time.Millisecond, key: "k", rate: 10, burst: 20, want: true},
				{key: "k", rate: 10, burst: 20, want: true},
				{key: "k", rate: 10, burst: 20, want: false},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, clk := newStore(t, time.Minute)
			for i, s := range tt.steps {
				clk.Advance(s.advance)
				if got := store.Allow(context.Background(), s.key, s.rate, s.burst); got != s.want {
					t.Fatalf("step %d (%s): Allow = %v, want %v", i, s.key, got, s.want)
				}
			}
		})
	}
}

func TestTokenBucketStore_RetuneKeepsOneBucket(t *testing.T) {
	store, _ := newStore(t, time.Minute)
	ctx := context.Background()

	store.Allow(ctx, "k", 1, 2)
	store.Allow(ctx, "k", 10, 20)
	store.Allow(ctx, "other", 1, 1)

	if got := store.Len(); got != 2 {
		t.Errorf("expected 2 buckets, got %d", got)
	}
}

func TestTokenBucketStore_Evict(t *testing.T) {
	store, clk := newStore(t, time.Minute)
	ctx := context.Background()

	store.Allow(ctx, "idle", 1, 1)
	clk.Advance(45 * time.Second)
	store.Allow(ctx, "active", 1, 1)
	clk.Advance(30 * time.Second)

	if n := store.Evict(); n != 1 {
		t.Errorf("expected 1 bucket evicted, got %d", n)
	}
	if store.Len() != 1 {
		t.Fatalf("expected the active bucket to remain, got %d", store.Len())
	}

	// An evicted key comes back with a full burst.
	if !store.Allow(ctx, "idle", 1, 1) {
		t.Error("expected a fresh bucket for an evicted key")
	}
}

func TestTokenBucketStore_Reset(t *testing.T) {
	store, _ := newStore(t, time.Minute)
	ctx := context.Background()

	store.Allow(ctx, "k", 1, 1)
	if store.Allow(ctx, "k", 1, 1) {
		t.Fatal("expected bucket to be exhausted")
	}

	store.Reset()
	if store.Len() != 0 {
		t.Errorf("expected no buckets after reset, got %d", store.Len())
	}
	if !store.Allow(ctx, "k", 1, 1) {
		t.Error("expected a full bucket after reset")
	}
}

func TestTokenBucketStore_ConcurrentCallersShareBurst(t *testing.T) {
	store, _ := newStore(t, time.Minute)
	ctx := context.Background()

	const callers, burst = 50, 10
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Allow(ctx, "shared", 1, burst) {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != burst {
		t.Errorf("expected exactly %d allowed, got %d", burst, got)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 bucket, got %d", store.Len())
	}
}

func TestTokenBucketStore_BackgroundEviction(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(5 * time.Millisecond)
	defer store.Stop()

	store.Allow(context.Background(), "k", 1, 1)

	deadline := time.Now().Add(time.Second)
	for store.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected idle bucket to be evicted in the background")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTokenBucketStore_StopTwice(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Minute)
	store.Stop()
	store.Stop()
}
