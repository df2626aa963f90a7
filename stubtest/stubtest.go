// Package stubtest runs a stub server inside Go tests.
//
// A server starts empty unless WithRootDir points it at a stub directory.
// Stubs added with AddStub or AddStubJSON are matched after every stub
// registered before them; the first matching stub answers.
//
//	srv := stubtest.New(t)
//	srv.AddStub(t, stubtest.Stub{
//		Request:  stubtest.Request{Method: "GET", Path: "/users"},
//		Response: &stubtest.Response{Status: 200, Body: []any{}},
//	})
//	// ... exercise the code under test against srv.URL() ...
//	srv.AssertCallCount(t, "GET", "/users", 1)
package stubtest

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sophialabs/stubkit/internal/infrastructure/ports"
	"github.com/sophialabs/stubkit/internal/infrastructure/wiring"
)

// Stub is the programmatic form of a stub definition. Exactly one of
// Response and Responses must be set; a non-nil empty Responses is invalid.
type Stub struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name,omitempty"`
	Request   Request    `json:"request"`
	Response  *Response  `json:"response,omitempty"`
	Responses []Response `json:"responses,omitzero"`
	RateLimit *RateLimit `json:"rateLimit,omitempty"`
}

// Request describes which requests a stub matches. Empty fields match anything.
type Request struct {
	Method       string            `json:"method,omitempty"`
	Path         string            `json:"path,omitempty"`
	PathPattern  string            `json:"pathPattern,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	QueryParams  map[string]string `json:"queryParams,omitempty"`
	Body         any               `json:"body,omitempty"`
	BodyContains string            `json:"bodyContains,omitempty"`
	JSONPath     map[string]string `json:"jsonPath,omitempty"`
	XPath        map[string]string `json:"xPath,omitempty"`
}

// Response is one canned response. A string Body is written verbatim; any
// other value is JSON-encoded.
type Response struct {
	Status   int               `json:"status,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     any               `json:"body,omitempty"`
	BodyFile string            `json:"bodyFile,omitempty"`
	DelayMs  int               `json:"delayMs,omitempty"`
	Engine   string            `json:"engine,omitempty"`
}

// RateLimit caps how often a stub answers normally.
type RateLimit struct {
	Rate  float64 `json:"rate"`
	Burst int     `json:"burst"`
	Key   string  `json:"key,omitempty"`
}

type options struct {
	rootDir       string
	defaultEngine string
	traceSize     int
	logger        ports.Logger
}

// Option configures a Server.
type Option func(*options)

// WithRootDir loads the stubs found under dir when the server starts.
func WithRootDir(dir string) Option {
	return func(o *options) { o.rootDir = dir }
}

// WithDefaultEngine renders text bodies that declare no engine with engine.
func WithDefaultEngine(engine string) Option {
	return func(o *options) { o.defaultEngine = engine }
}

// WithTraceSize sets how many match traces are kept.
func WithTraceSize(n int) Option {
	return func(o *options) { o.traceSize = n }
}

// WithLogf sends server logs to logf, typically t.Logf.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(o *options) { o.logger = logfLogger(logf) }
}

// Server is a running stub server bound to a loopback address.
type Server struct {
	container *wiring.Container
	http      *httptest.Server
}

// New starts a server and registers its shutdown with t.Cleanup. Setup
// failures end the test through t.Fatalf.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	o := options{traceSize: 100, logger: discardLogger{}}
	for _, opt := range opts {
		opt(&o)
	}

	c, err := wiring.New(wiring.Params{
		RootDir:        o.rootDir,
		TraceSize:      o.traceSize,
		RateLimiterTTL: 10 * time.Minute,
		Logger:         o.logger,
		DefaultEngine:  o.defaultEngine,
	})
	if err != nil {
		t.Fatalf("stubtest: %v", err)
	}

	if loadUC := c.LoadStubsUseCase(); loadUC != nil {
		if _, err := loadUC.Execute(context.Background()); err != nil {
			c.Close()
			t.Fatalf("stubtest: %v", err)
		}
	}

	s := &Server{
		container: c,
		http:      httptest.NewServer(c.Server()),
	}
	t.Cleanup(s.Close)
	return s
}

// URL returns the base URL of the server, without a trailing slash.
func (s *Server) URL() string {
	return s.http.URL
}

// Close stops the server. It is safe to call more than once.
func (s *Server) Close() {
	s.http.Close()
	s.container.Close()
}

// AddStub registers st after every existing stub and returns its ID, which
// is generated when st.ID is empty. Invalid stubs end the test.
func (s *Server) AddStub(t testing.TB, st Stub) string {
	t.Helper()
	data, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("stubtest: failed to encode stub: %v", err)
	}
	ids := s.AddStubJSON(t, string(data))
	return ids[0]
}

// AddStubJSON registers the stubs in doc, which holds one stub object or an
// array of them, and returns their IDs. YAML documents are accepted too.
// Nothing is registered when any stub is invalid; the test ends instead.
func (s *Server) AddStubJSON(t testing.TB, doc string) []string {
	t.Helper()
	entries, err := s.container.ManageStubsUseCase().Add([]byte(doc))
	if err != nil {
		t.Fatalf("stubtest: %v", err)
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID()
	}
	return ids
}

// ClearStubs removes every stub. Their call counts are discarded with them.
func (s *Server) ClearStubs() {
	s.container.ManageStubsUseCase().Clear()
}

// ResetCounters sets every call count back to zero and restarts every
// response sequence. Stubs stay registered.
func (s *Server) ResetCounters() {
	s.container.ManageStubsUseCase().Reset()
}

// CallCount returns how many requests matched the stub declared with method
// and exact path. Stubs declared with a path pattern are not counted; use
// CallCountByID for those.
func (s *Server) CallCount(method, path string) int64 {
	return s.container.ManageStubsUseCase().CallCount(method, path)
}

// CallCountByID returns how many requests matched the stub with id.
func (s *Server) CallCountByID(id string) int64 {
	n, _ := s.container.ManageStubsUseCase().CallCountByID(id)
	return n
}

// AssertCallCount reports a test error unless CallCount(method, path) equals want.
func (s *Server) AssertCallCount(t testing.TB, method, path string, want int64) bool {
	t.Helper()
	if err := s.container.ManageStubsUseCase().AssertCallCount(method, path, want); err != nil {
		t.Errorf("stubtest: %v", err)
		return false
	}
	return true
}
