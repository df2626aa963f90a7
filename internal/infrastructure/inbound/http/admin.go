package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sophialabs/stubkit/internal/domain/match"
	"github.com/sophialabs/stubkit/internal/domain/stub"
	"github.com/sophialabs/stubkit/internal/domain/trace"
	"github.com/sophialabs/stubkit/internal/infrastructure/services"
)

// stubView is the admin representation of a registered stub.
type stubView struct {
	ID          string          `json:"id"`
	Name        string          `json:"name,omitempty"`
	Method      string          `json:"method"`
	Path        string          `json:"path,omitempty"`
	PathPattern string          `json:"path_pattern,omitempty"`
	Calls       int64           `json:"calls"`
	Stub        json.RawMessage `json:"stub,omitempty"`
}

func newStubView(e *match.Entry) stubView {
	def := e.Definition()
	v := stubView{
		ID:          def.ID,
		Name:        def.Name,
		Method:      def.Request.Method,
		Path:        def.Request.Path,
		PathPattern: def.Request.PathPattern,
		Calls:       e.CallCount(),
	}
	if data, err := services.EncodeStub(def); err == nil {
		v.Stub = data
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stubs":  len(s.manageUC.List()),
	})
}

func (s *Server) handleListStubs(w http.ResponseWriter, _ *http.Request) {
	entries := s.manageUC.List()
	out := make([]stubView, 0, len(entries))
	for _, e := range entries {
		out = append(out, newStubView(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetStub(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "stubID")
	e, ok := s.manageUC.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "stub not found: " + id})
		return
	}
	writeJSON(w, http.StatusOK, newStubView(e))
}

// handleStubResponses lists the resolved responses of a stub and the index
// the next matching request will be served.
func (s *Server) handleStubResponses(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "stubID")
	e, ok := s.manageUC.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "stub not found: " + id})
		return
	}
	data, err := services.EncodeResponses(e.Definition())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "encode_failed", "message": err.Error()})
		return
	}
	next := min(e.CallCount(), int64(len(e.Responses())-1))
	writeJSON(w, http.StatusOK, struct {
		Calls     int64           `json:"calls"`
		Next      int64           `json:"next"`
		Responses json.RawMessage `json:"responses"`
	}{e.CallCount(), next, data})
}

func (s *Server) handleAddStubs(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "failed to read request body"})
		return
	}

	entries, err := s.manageUC.Add(data)
	if err != nil {
		code := "bad_request"
		if errors.Is(err, stub.ErrConfiguration) {
			code = "invalid_stub"
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": code, "message": err.Error()})
		return
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID())
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ids": ids})
}

func (s *Server) handleClearStubs(w http.ResponseWriter, _ *http.Request) {
	s.manageUC.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.manageUC.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if id := q.Get("id"); id != "" {
		n, ok := s.manageUC.CallCountByID(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "stub not found: " + id})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "count": n})
		return
	}

	method, path := q.Get("method"), q.Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "path or id is required"})
		return
	}
	if method == "" {
		method = stub.DefaultMethod
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"method": method,
		"path":   path,
		"count":  s.manageUC.CallCount(method, path),
	})
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	n := 10
	if lastParam := r.URL.Query().Get("last"); lastParam != "" {
		if parsed, err := strconv.Atoi(lastParam); err == nil && parsed > 0 {
			n = parsed
		}
	}

	var entries []trace.Entry
	if id := r.URL.Query().Get("stub"); id != "" {
		entries = s.traceBuf.LastFor(id, n)
	} else {
		entries = s.traceBuf.Last(n)
	}
	if entries == nil {
		entries = []trace.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.reloader == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{
			"error":   "reload_unavailable",
			"message": "no stub directory configured",
		})
		return
	}

	n, err := s.reloader.Execute(r.Context())
	if err != nil {
		s.logger.Error("reload failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "reload_failed",
			"message": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stubs":  n,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metricsHandler == nil {
		http.NotFound(w, r)
		return
	}
	s.metricsHandler.ServeHTTP(w, r)
}
