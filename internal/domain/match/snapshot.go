package match

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrBodyConsumed is returned by RequestHandle.ReadBody on every call after the first.
var ErrBodyConsumed = errors.New("request body already consumed")

// RequestHandle is the transport view of one inbound request.
// ReadBody yields the body only the first time it is called.
type RequestHandle interface {
	Method() string
	Path() string
	Query() map[string][]string
	Header() map[string][]string
	ReadBody() ([]byte, error)
}

// Snapshot is an immutable capture of an inbound request, built once per
// request. Fields must not be modified after NewSnapshot returns.
type Snapshot struct {
	Method string
	// Path excludes the query string.
	Path string
	// Query holds the first value of each query key.
	Query map[string]string
	// Headers is keyed by lower-cased header name and holds the first value.
	Headers map[string]string

	// RawBody is nil when the body was not needed or could not be read.
	RawBody []byte
	// ParsedBody is set when RawBody is valid JSON.
	ParsedBody any
	HasParsed  bool
	// BodyErr records why the body could not be read or parsed.
	BodyErr error
}

// NewSnapshot captures h. The body is read, at most once, only when needsBody
// is true. Read and parse failures leave the body absent and are recorded in
// BodyErr instead of being returned.
func NewSnapshot(h RequestHandle, needsBody bool) *Snapshot {
	s := &Snapshot{
		Method:  strings.ToUpper(h.Method()),
		Path:    stripQuery(h.Path()),
		Query:   firstValues(h.Query(), false),
		Headers: firstValues(h.Header(), true),
	}
	if !needsBody {
		return s
	}

	raw, err := h.ReadBody()
	if err != nil {
		s.BodyErr = err
		return s
	}
	if raw == nil {
		raw = []byte{}
	}
	s.RawBody = raw

	if len(raw) == 0 {
		return s
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		s.BodyErr = err
		return s
	}
	s.ParsedBody = parsed
	s.HasParsed = true
	return s
}

// Header returns the first value of the named header, ignoring name case.
func (s *Snapshot) Header(name string) (string, bool) {
	v, ok := s.Headers[strings.ToLower(name)]
	return v, ok
}

// HeaderMap returns a copy of the headers for rendering contexts.
func (s *Snapshot) HeaderMap() map[string]string {
	out := make(map[string]string, len(s.Headers))
	for k, v := range s.Headers {
		out[k] = v
	}
	return out
}

func stripQuery(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		return p[:i]
	}
	return p
}

func firstValues(in map[string][]string, lowerKeys bool) map[string]string {
	out := make(map[string]string, len(in))
	for k, vs := range in {
		if len(vs) == 0 {
			continue
		}
		if lowerKeys {
			k = strings.ToLower(k)
		}
		if _, seen := out[k]; seen {
			continue
		}
		out[k] = vs[0]
	}
	return out
}
