package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sophialabs/stubkit/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/stubkit/internal/infrastructure/outbound/logging"
	"github.com/sophialabs/stubkit/internal/infrastructure/wiring"
)

// App is the thin lifecycle manager that delegates dependency construction to wiring.Container.
type App struct {
	cfg        Config
	logger     *logging.SlogLogger
	container  *wiring.Container
	httpServer *http.Server
}

// New constructs the application by creating a logger, wiring infrastructure
// components via the container, and setting up the HTTP server.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, ok := logging.ParseLevel(cfg.LogLevel)
	logger := logging.NewText(os.Stdout, level)
	if !ok {
		logger.Warn("unknown log level, using info", "level", cfg.LogLevel)
	}

	container, err := wiring.New(wiring.Params{
		RootDir:        cfg.RootDir,
		TraceSize:      cfg.TraceSize,
		RateLimiterTTL: cfg.RateLimiterTTL,
		Logger:         logger,
		DefaultEngine:  cfg.DefaultEngine,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wire infrastructure: %w", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      container.Server(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		container:  container,
		httpServer: httpServer,
	}, nil
}

// Run executes the full application lifecycle: load stubs, start watcher,
// serve HTTP, and handle graceful shutdown on SIGINT/SIGTERM or context cancellation.
func (a *App) Run(ctx context.Context) error {
	defer a.container.Close()

	logger := a.container.Logger()

	n, err := a.container.LoadStubsUseCase().Execute(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stubs: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.Watch {
		if watcher := a.setupWatcher(); watcher != nil {
			defer watcher.Stop()
		}
	}

	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.httpServer.Addr, err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting stub server", "addr", ln.Addr().String(), "root", a.cfg.RootDir, "stubs", n)
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func (a *App) setupWatcher() *filesystem.Watcher {
	logger := a.logger.With("component", "watcher")
	loadUC := a.container.LoadStubsUseCase()

	watcher, err := filesystem.NewWatcher(a.cfg.RootDir, a.cfg.WatcherDebounce, logger, func(changed []string) {
		n, err := loadUC.Execute(context.Background())
		if err != nil {
			logger.Error("hot reload failed, keeping previous stubs", "changed", changed, "error", err)
			return
		}
		logger.Info("hot reload complete", "stubs", n, "changed", len(changed))
	})
	if err != nil {
		logger.Warn("file watcher not available", "error", err)
		return nil
	}

	watcher.Start()
	logger.Info("file watcher started", "root", a.cfg.RootDir)
	return watcher
}
