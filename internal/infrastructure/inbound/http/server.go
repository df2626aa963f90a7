// Package http is the HTTP shell of the stub server: it adapts inbound
// requests for matching, writes the selected responses and serves the
// /__admin API.
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sophialabs/stubkit/internal/domain/trace"
	"github.com/sophialabs/stubkit/internal/infrastructure/ports"
	"github.com/sophialabs/stubkit/internal/infrastructure/services"
	"github.com/sophialabs/stubkit/internal/infrastructure/usecases"
)

const maxBodySize = 10 << 20 // 10 MB

// AdminPrefix is the path prefix reserved for the administrative API.
const AdminPrefix = "/__admin"

// Reloader reloads the stubs from their source and reports how many were loaded.
type Reloader interface {
	Execute(ctx context.Context) (int, error)
}

// Server is the main HTTP server of the stub runtime.
type Server struct {
	router         *chi.Mux
	handleReqUC    *usecases.HandleRequestUseCase
	manageUC       *usecases.ManageStubsUseCase
	reloader       Reloader
	metricsHandler http.Handler
	traceBuf       *trace.RingBuffer
	logger         ports.Logger
}

// Option configures optional server dependencies.
type Option func(*Server)

// WithReloader enables POST /__admin/reload.
func WithReloader(r Reloader) Option {
	return func(s *Server) { s.reloader = r }
}

// WithMetricsHandler serves h at GET /__admin/metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// NewServer creates a new Server.
func NewServer(
	handleReqUC *usecases.HandleRequestUseCase,
	manageUC *usecases.ManageStubsUseCase,
	traceBuf *trace.RingBuffer,
	logger ports.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		handleReqUC: handleReqUC,
		manageUC:    manageUC,
		traceBuf:    traceBuf,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route(AdminPrefix, func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stubs", s.handleListStubs)
		r.Post("/stubs", s.handleAddStubs)
		r.Delete("/stubs", s.handleClearStubs)
		r.Get("/stubs/{stubID}", s.handleGetStub)
		r.Get("/stubs/{stubID}/responses", s.handleStubResponses)
		r.Post("/reset", s.handleReset)
		r.Get("/calls", s.handleCalls)
		r.Get("/trace", s.handleGetTrace)
		r.Post("/reload", s.handleReload)
		r.Get("/metrics", s.handleMetrics)
	})

	// Every other method and path is a stubbed request.
	r.HandleFunc("/*", s.mockHandler)
	r.NotFound(s.mockHandler)
	r.MethodNotAllowed(s.mockHandler)

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) mockHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("request received", "method", r.Method, "path", r.URL.Path, "query", r.URL.RawQuery, "remote", r.RemoteAddr)

	h := newRequestHandle(w, r)
	defer h.close()

	result := s.handleReqUC.Execute(r.Context(), h)

	switch {
	case result.Aborted:
		return
	case !result.Matched:
		writeJSON(w, http.StatusNotFound, notFoundBody(h.method(), r.URL.Path))
		return
	case result.RateLimited:
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error":   "rate_limited",
			"message": "Too many requests",
		})
		return
	case result.RenderErr != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "render_failed",
			"message": "response template could not be rendered",
		})
		return
	}

	resp := result.Response
	for k, v := range resp.Spec.Headers {
		w.Header().Set(k, v)
	}
	if len(result.Body) > 0 && w.Header().Get("Content-Type") == "" {
		ct := resp.ContentType
		if ct == "" {
			ct = services.DefaultContentType
		}
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.Spec.Status)
	if _, err := w.Write(result.Body); err != nil {
		s.logger.Debug("failed to write response body", "error", err)
	}
}

// notFoundBody is the envelope returned when no stub matches.
func notFoundBody(method, path string) map[string]string {
	return map[string]string{"error": "No stub for " + method + " " + path}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", services.DefaultContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
