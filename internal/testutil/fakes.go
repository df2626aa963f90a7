package testutil

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sophialabs/stubkit/internal/domain/match"
	"github.com/sophialabs/stubkit/internal/infrastructure/ports"
)

var _ ports.Logger = (*NoopLogger)(nil)

// NoopLogger discards all log output.
type NoopLogger struct{}

func (l *NoopLogger) Info(string, ...any)  {}
func (l *NoopLogger) Warn(string, ...any)  {}
func (l *NoopLogger) Error(string, ...any) {}
func (l *NoopLogger) Debug(string, ...any) {}

var _ ports.Clock = (*FixedClock)(nil)

// FixedClock returns a fixed time and never sleeps.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }
func (c *FixedClock) SleepContext(context.Context, time.Duration) error {
	return nil
}

var _ ports.Clock = (*RecordingClock)(nil)

// RecordingClock returns a fixed time and records requested sleeps instead of sleeping.
type RecordingClock struct {
	T      time.Time
	mu     sync.Mutex
	sleeps []time.Duration
}

func (c *RecordingClock) Now() time.Time { return c.T }

func (c *RecordingClock) SleepContext(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

// Sleeps returns the durations passed to SleepContext so far.
func (c *RecordingClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

var _ ports.Clock = (*ManualClock)(nil)

// ManualClock only moves when Advance is called. SleepContext advances it by d.
type ManualClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewManualClock returns a clock stopped at t.
func NewManualClock(t time.Time) *ManualClock { return &ManualClock{t: t} }

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *ManualClock) SleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var _ ports.RateLimiter = (*StubRateLimiter)(nil)

// StubRateLimiter returns a configurable Allow result and records the keys it saw.
type StubRateLimiter struct {
	AllowAll bool

	mu     sync.Mutex
	keys   []string
	resets int
}

func (r *StubRateLimiter) Allow(_ context.Context, key string, _ float64, _ int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return r.AllowAll
}

func (r *StubRateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
}

// Keys returns the keys passed to Allow, in call order.
func (r *StubRateLimiter) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

// Resets returns how many times Reset was called.
func (r *StubRateLimiter) Resets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resets
}

var _ match.BodyRenderer = (*StubBodyRenderer)(nil)

// StubBodyRenderer returns a configurable render result.
type StubBodyRenderer struct {
	Result []byte
	Err    error
}

func (r *StubBodyRenderer) Render(match.RenderContext) ([]byte, error) {
	return r.Result, r.Err
}

var _ match.RequestHandle = (*FakeRequest)(nil)

// FakeRequest is an in-memory request handle with a read-once body.
type FakeRequest struct {
	method  string
	target  *url.URL
	headers map[string][]string
	body    []byte
	bodyErr error

	reads atomic.Int32
}

// NewFakeRequest builds a request for target, which may carry a query string.
func NewFakeRequest(method, target string, body string) *FakeRequest {
	u, err := url.Parse(target)
	if err != nil {
		u = &url.URL{Path: target}
	}
	r := &FakeRequest{
		method:  method,
		target:  u,
		headers: map[string][]string{},
	}
	if body != "" {
		r.body = []byte(body)
	}
	return r
}

// WithHeader adds a header value and returns the request.
func (r *FakeRequest) WithHeader(name, value string) *FakeRequest {
	r.headers[name] = append(r.headers[name], value)
	return r
}

// WithBodyError makes ReadBody fail with err.
func (r *FakeRequest) WithBodyError(err error) *FakeRequest {
	r.bodyErr = err
	return r
}

// Reads returns how many times ReadBody was called.
func (r *FakeRequest) Reads() int { return int(r.reads.Load()) }

func (r *FakeRequest) Method() string { return r.method }
func (r *FakeRequest) Path() string   { return r.target.Path }

func (r *FakeRequest) Query() map[string][]string { return r.target.Query() }

func (r *FakeRequest) Header() map[string][]string {
	out := make(map[string][]string, len(r.headers))
	for k, v := range r.headers {
		out[k] = v
	}
	return out
}

func (r *FakeRequest) ReadBody() ([]byte, error) {
	if r.reads.Add(1) > 1 {
		return nil, match.ErrBodyConsumed
	}
	if r.bodyErr != nil {
		return nil, r.bodyErr
	}
	return r.body, nil
}

// ErrBrokenBody is a convenience error for body read failures in tests.
var ErrBrokenBody = errors.New("broken body stream")

var _ ports.Metrics = (*NoopMetrics)(nil)

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (m *NoopMetrics) ObserveRequest(string, string, string, int, time.Duration) {}
