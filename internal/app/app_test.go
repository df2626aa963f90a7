package app_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sophialabs/stubkit/internal/app"
)

func writeTestStub(t *testing.T, dir string) {
	t.Helper()
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
  body: '{"status":"ok"}'
`
	if err := os.WriteFile(filepath.Join(stubDir, "health.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write stub file: %v", err)
	}
}

func testConfig(t *testing.T, dir string) app.Config {
	t.Helper()
	cfg := app.DefaultConfig()
	cfg.RootDir = dir
	cfg.Port = freePort(t)
	cfg.LogLevel = "error"
	cfg.Watch = false
	return cfg
}

func TestNew_Success(t *testing.T) {
	dir := t.TempDir()
	writeTestStub(t, dir)

	a, err := app.New(testConfig(t, dir))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a == nil {
		t.Fatal("expected non-nil App")
	}
}

func TestNew_InvalidRootDir(t *testing.T) {
	cfg := app.DefaultConfig()
	cfg.RootDir = "/nonexistent/path/that/does/not/exist"

	if _, err := app.New(cfg); err == nil {
		t.Error("expected error for invalid root directory")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := app.DefaultConfig()
	cfg.RootDir = t.TempDir()
	cfg.DefaultEngine = "mustache"

	if _, err := app.New(cfg); err == nil {
		t.Error("expected error for unknown engine")
	}
}

func TestNew_WithAllLogLevels(t *testing.T) {
	levels := []string{"debug", "info", "warn", "error", "unknown"}

	for _, level := range levels {
		t.Run(level, func(t *testing.T) {
			dir := t.TempDir()
			writeTestStub(t, dir)

			cfg := testConfig(t, dir)
			cfg.LogLevel = level

			a, err := app.New(cfg)
			if err != nil {
				t.Fatalf("New failed for log level %q: %v", level, err)
			}
			if a == nil {
				t.Fatalf("expected non-nil App for log level %q", level)
			}
		})
	}
}

func TestRun_ServesAndShutsDownGracefully(t *testing.T) {
	dir := t.TempDir()
	writeTestStub(t, dir)
	cfg := testConfig(t, dir)

	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	addr := fmt.Sprintf("http://localhost:%d", cfg.Port)
	waitForServer(t, addr+"/__admin/health", 3*time.Second)

	resp, err := http.Get(addr + "/api/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || string(body) != `{"status":"ok"}` {
		t.Errorf("unexpected response %d %s", resp.StatusCode, body)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRun_FailsOnDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	yaml := `- id: dup
  request:
    method: GET
    path: /a
  response:
    status: 200
- id: dup
  request:
    method: GET
    path: /b
  response:
    status: 200
`
	if err := os.WriteFile(filepath.Join(dir, "dups.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write stub file: %v", err)
	}

	a, err := app.New(testConfig(t, dir))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.Run(ctx); err == nil {
		t.Error("expected error for duplicate stub IDs")
	}
}

func TestRun_HotReload(t *testing.T) {
	dir := t.TempDir()
	writeTestStub(t, dir)
	cfg := testConfig(t, dir)
	cfg.Watch = true
	cfg.WatcherDebounce = 50 * time.Millisecond

	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	addr := fmt.Sprintf("http://localhost:%d", cfg.Port)
	waitForServer(t, addr+"/__admin/health", 3*time.Second)

	added := `{"id": "late", "request": {"path": "/late"}, "response": {"status": 202}}`
	if err := os.WriteFile(filepath.Join(dir, "late.json"), []byte(added), 0o644); err != nil {
		t.Fatalf("failed to write stub file: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, err := http.Get(addr + "/late")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusAccepted {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("new stub was not picked up by the watcher")
		}
		time.Sleep(25 * time.Millisecond)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server not ready at %s after %v", url, timeout)
}
