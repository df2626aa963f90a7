package wiring_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sophialabs/stubkit/internal/infrastructure/wiring"
	"github.com/sophialabs/stubkit/internal/testutil"
)

func validParams(t *testing.T) wiring.Params {
	t.Helper()
	dir := t.TempDir()
	stubDir := filepath.Join(dir, "health")
	if err := os.MkdirAll(stubDir, 0o755); err != nil {
		t.Fatalf("failed to create stub dir: %v", err)
	}
	yaml := `id: test-health
name: Test Health
request:
  method: GET
  path: /api/health
response:
  status: 200
  body:
    status: ok
`
	if err := os.WriteFile(filepath.Join(stubDir, "health.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write stub file: %v", err)
	}

	return wiring.Params{
		RootDir:        dir,
		TraceSize:      50,
		RateLimiterTTL: 5 * time.Minute,
		Logger:         &testutil.NoopLogger{},
	}
}

func TestNew_Success(t *testing.T) {
	p := validParams(t)
	c, err := wiring.New(p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if c.Logger() == nil {
		t.Error("Logger() returned nil")
	}
	if c.Server() == nil {
		t.Error("Server() returned nil")
	}
	if c.LoadStubsUseCase() == nil {
		t.Error("LoadStubsUseCase() returned nil")
	}
	if c.ManageStubsUseCase() == nil {
		t.Error("ManageStubsUseCase() returned nil")
	}
	if c.RateLimiterStore() == nil {
		t.Error("RateLimiterStore() returned nil")
	}
	if c.Metrics() == nil {
		t.Error("Metrics() returned nil")
	}
	if c.TraceBuf() == nil {
		t.Error("TraceBuf() returned nil")
	}
	if c.RootDir() != p.RootDir {
		t.Errorf("RootDir() = %q, want %q", c.RootDir(), p.RootDir)
	}
}

func TestNew_InvalidRootDir(t *testing.T) {
	p := wiring.Params{
		RootDir:        "/nonexistent/path/that/does/not/exist",
		TraceSize:      50,
		RateLimiterTTL: 5 * time.Minute,
		Logger:         &testutil.NoopLogger{},
	}

	c, err := wiring.New(p)
	if err == nil {
		c.Close()
		t.Fatal("expected error for invalid root dir")
	}
	if c != nil {
		t.Error("expected nil container on error")
	}
}

func TestNew_WithoutRootDir(t *testing.T) {
	c, err := wiring.New(wiring.Params{TraceSize: 10, RateLimiterTTL: time.Minute, Logger: &testutil.NoopLogger{}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if c.LoadStubsUseCase() != nil {
		t.Error("expected no loader without a root directory")
	}

	req := httptest.NewRequest("POST", "/__admin/reload", nil)
	w := httptest.NewRecorder()
	c.Server().ServeHTTP(w, req)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected reload to be unavailable, got %d", w.Code)
	}
}

func TestNew_ComponentsAreWiredCorrectly(t *testing.T) {
	p := validParams(t)
	c, err := wiring.New(p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	n, err := c.LoadStubsUseCase().Execute(context.Background())
	if err != nil {
		t.Fatalf("LoadStubsUseCase().Execute() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 stub, got %d", n)
	}

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	c.Server().ServeHTTP(w, req)
	if w.Code != 200 || w.Body.String() != `{"status":"ok"}` {
		t.Errorf("unexpected response %d %s", w.Code, w.Body.String())
	}
	if got := c.Registry().CallCount("GET", "/api/health"); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}

	req = httptest.NewRequest("GET", "/__admin/metrics", nil)
	w = httptest.NewRecorder()
	c.Server().ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `stubkit_stub_hits_total{stub_id="test-health"} 1`) {
		t.Errorf("expected stub hit in metrics output")
	}
}

func TestNew_LoggerIsPassedThrough(t *testing.T) {
	p := validParams(t)
	logger := &testutil.NoopLogger{}
	p.Logger = logger

	c, err := wiring.New(p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if c.Logger() != logger {
		t.Error("Logger() does not return the same logger instance passed in Params")
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	p := validParams(t)
	c, err := wiring.New(p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Double close must not panic.
	c.Close()
	c.Close()
}
