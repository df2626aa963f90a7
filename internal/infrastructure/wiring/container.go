package wiring

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sophialabs/stubkit/internal/domain/registry"
	"github.com/sophialabs/stubkit/internal/domain/trace"
	inboundhttp "github.com/sophialabs/stubkit/internal/infrastructure/inbound/http"
	"github.com/sophialabs/stubkit/internal/infrastructure/outbound/clock"
	"github.com/sophialabs/stubkit/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/stubkit/internal/infrastructure/outbound/metrics"
	"github.com/sophialabs/stubkit/internal/infrastructure/outbound/ratelimit"
	"github.com/sophialabs/stubkit/internal/infrastructure/outbound/template"
	"github.com/sophialabs/stubkit/internal/infrastructure/ports"
	"github.com/sophialabs/stubkit/internal/infrastructure/services"
	"github.com/sophialabs/stubkit/internal/infrastructure/usecases"
)

// Params holds the subset of configuration needed to construct infrastructure components.
type Params struct {
	// RootDir is the stub directory. Empty means stubs are only added at runtime.
	RootDir        string
	TraceSize      int
	RateLimiterTTL time.Duration
	Logger         ports.Logger
	DefaultEngine  string // "" = static, "expr", "jinja2"
}

// Container owns the construction and lifecycle of all infrastructure components.
type Container struct {
	logger           ports.Logger
	rootDir          string
	server           *inboundhttp.Server
	registry         *registry.Registry
	loadUC           *usecases.LoadStubsUseCase
	manageUC         *usecases.ManageStubsUseCase
	rateLimiterStore *ratelimit.TokenBucketStore
	metrics          *metrics.Prometheus
	traceBuf         *trace.RingBuffer
	closeOnce        sync.Once
}

// New constructs all infrastructure components. Fallible operations (repository,
// compiler) run before goroutine-starting operations (rate limiter store) to
// avoid goroutine leaks on early failure.
func New(p Params) (*Container, error) {
	var repo *filesystem.Repository
	if p.RootDir != "" {
		if _, err := os.Stat(p.RootDir); err != nil {
			return nil, fmt.Errorf("failed to access root directory: %w", err)
		}
		var err error
		repo, err = filesystem.NewRepository(p.RootDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create repository: %w", err)
		}
	}

	var compilerOpts []services.CompilerOption
	if p.DefaultEngine != "" {
		compilerOpts = append(compilerOpts, services.WithDefaultEngine(p.DefaultEngine))
	}
	compiler, err := services.NewCompiler(p.RootDir, template.NewRegistry(), compilerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create compiler: %w", err)
	}

	clk := clock.New()
	// Start background goroutine only after all fallible ops succeed.
	rateLimiterStore := ratelimit.NewTokenBucketStore(p.RateLimiterTTL, ratelimit.WithClock(clk))

	reg := registry.New(compiler.Compile)
	traceBuf := trace.NewRingBuffer(p.TraceSize)
	prom := metrics.New()

	handleReqUC := usecases.NewHandleRequestUseCase(reg, clk, rateLimiterStore, prom, p.Logger, traceBuf)
	manageUC := usecases.NewManageStubsUseCase(reg, rateLimiterStore, traceBuf, p.Logger)

	opts := []inboundhttp.Option{inboundhttp.WithMetricsHandler(prom.Handler())}
	var loadUC *usecases.LoadStubsUseCase
	if repo != nil {
		loadUC = usecases.NewLoadStubsUseCase(repo, reg, p.Logger)
		opts = append(opts, inboundhttp.WithReloader(loadUC))
	}

	server := inboundhttp.NewServer(handleReqUC, manageUC, traceBuf, p.Logger, opts...)

	return &Container{
		logger:           p.Logger,
		rootDir:          p.RootDir,
		server:           server,
		registry:         reg,
		loadUC:           loadUC,
		manageUC:         manageUC,
		rateLimiterStore: rateLimiterStore,
		metrics:          prom,
		traceBuf:         traceBuf,
	}, nil
}

// Close releases resources held by the container. It is idempotent.
func (c *Container) Close() {
	c.closeOnce.Do(func() {
		c.rateLimiterStore.Stop()
	})
}

// Logger returns the logger passed at construction time.
func (c *Container) Logger() ports.Logger {
	return c.logger
}

// RootDir returns the stub directory, or "" when none is configured.
func (c *Container) RootDir() string {
	return c.rootDir
}

// Server returns the HTTP stub server.
func (c *Container) Server() *inboundhttp.Server {
	return c.server
}

// Registry returns the stub registry.
func (c *Container) Registry() *registry.Registry {
	return c.registry
}

// LoadStubsUseCase returns the directory loader, or nil when no root directory is configured.
func (c *Container) LoadStubsUseCase() *usecases.LoadStubsUseCase {
	return c.loadUC
}

// ManageStubsUseCase returns the runtime administration use case.
func (c *Container) ManageStubsUseCase() *usecases.ManageStubsUseCase {
	return c.manageUC
}

// RateLimiterStore returns the token bucket store for rate limiting.
func (c *Container) RateLimiterStore() *ratelimit.TokenBucketStore {
	return c.rateLimiterStore
}

// Metrics returns the Prometheus collector set.
func (c *Container) Metrics() *metrics.Prometheus {
	return c.metrics
}

// TraceBuf returns the trace ring buffer.
func (c *Container) TraceBuf() *trace.RingBuffer {
	return c.traceBuf
}
