package http

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/sophialabs/stubkit/internal/domain/match"
)

var _ match.RequestHandle = (*requestHandle)(nil)

// requestHandle adapts an *http.Request for matching. The body is read at
// most once and capped at maxBodySize.
type requestHandle struct {
	r    *http.Request
	body io.ReadCloser

	once sync.Once
}

func newRequestHandle(w http.ResponseWriter, r *http.Request) *requestHandle {
	return &requestHandle{
		r:    r,
		body: http.MaxBytesReader(w, r.Body, maxBodySize),
	}
}

func (h *requestHandle) method() string { return strings.ToUpper(h.r.Method) }

func (h *requestHandle) Method() string             { return h.r.Method }
func (h *requestHandle) Path() string               { return h.r.URL.Path }
func (h *requestHandle) Query() map[string][]string { return h.r.URL.Query() }

// Header returns the request headers. net/http moves Host out of the header
// map, so it is added back for header matching.
func (h *requestHandle) Header() map[string][]string {
	if h.r.Host == "" || h.r.Header.Get("Host") != "" {
		return h.r.Header
	}
	hdr := h.r.Header.Clone()
	if hdr == nil {
		hdr = make(http.Header, 1)
	}
	hdr.Set("Host", h.r.Host)
	return hdr
}

func (h *requestHandle) ReadBody() ([]byte, error) {
	first := false
	h.once.Do(func() { first = true })
	if !first {
		return nil, match.ErrBodyConsumed
	}
	return io.ReadAll(h.body)
}

func (h *requestHandle) close() {
	_ = h.body.Close()
}
