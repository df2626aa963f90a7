package match

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/sophialabs/stubkit/internal/domain/stub"
)

// Response is one resolved response of an entry, ready to serve.
type Response struct {
	// Index is the position of the response in the stub's resolved list.
	Index int
	// Call is the 1-based counter value that selected this response.
	Call int64
	Spec stub.ResponseSpec
	// Body holds the static body; nil when the response has none.
	Body     []byte
	Renderer BodyRenderer // non-nil for dynamic bodies
	// ContentType is used when the response declares no Content-Type header.
	ContentType string
}

// Entry wraps one stub definition with its compiled matcher and a call
// counter. Entries are owned by a registry and safe for concurrent use.
type Entry struct {
	def        *stub.Definition
	method     string
	pathRe     *regexp.Regexp
	headers    map[string]string
	predicates []FieldPredicate
	responses  []Response
	needsBody  bool

	calls atomic.Int64
}

// EntryOption customizes an entry at construction time.
type EntryOption func(*Entry) error

// WithPredicates appends body predicates evaluated after the built-in checks.
func WithPredicates(preds ...FieldPredicate) EntryOption {
	return func(e *Entry) error {
		e.predicates = append(e.predicates, preds...)
		if len(preds) > 0 {
			e.needsBody = true
		}
		return nil
	}
}

// WithResponseBody replaces the static body of response i.
func WithResponseBody(i int, body []byte) EntryOption {
	return func(e *Entry) error {
		if i < 0 || i >= len(e.responses) {
			return fmt.Errorf("response index %d out of range", i)
		}
		e.responses[i].Body = body
		return nil
	}
}

// WithRenderer makes response i dynamic.
func WithRenderer(i int, r BodyRenderer) EntryOption {
	return func(e *Entry) error {
		if i < 0 || i >= len(e.responses) {
			return fmt.Errorf("response index %d out of range", i)
		}
		e.responses[i].Renderer = r
		e.responses[i].Body = nil
		e.needsBody = true
		return nil
	}
}

// WithContentType sets the fallback content type of response i.
func WithContentType(i int, contentType string) EntryOption {
	return func(e *Entry) error {
		if i < 0 || i >= len(e.responses) {
			return fmt.Errorf("response index %d out of range", i)
		}
		e.responses[i].ContentType = contentType
		return nil
	}
}

// NewEntry compiles def into an entry with its counter at zero.
func NewEntry(def *stub.Definition, opts ...EntryOption) (*Entry, error) {
	e := &Entry{
		def:       def,
		method:    strings.ToUpper(def.Request.Method),
		needsBody: def.Request.NeedsBody(),
	}

	if p := def.Request.PathPattern; p != "" {
		re, err := regexp.Compile(`^(?:` + p + `)$`)
		if err != nil {
			return nil, &stub.ConfigurationError{StubID: def.ID, Reason: fmt.Sprintf("invalid pathPattern %q: %v", p, err)}
		}
		e.pathRe = re
	}

	if len(def.Request.Headers) > 0 {
		e.headers = make(map[string]string, len(def.Request.Headers))
		for k, v := range def.Request.Headers {
			e.headers[strings.ToLower(k)] = v
		}
	}

	resolved := def.ResolvedResponses()
	e.responses = make([]Response, len(resolved))
	for i, spec := range resolved {
		body, err := staticBody(spec.Body)
		if err != nil {
			return nil, &stub.ConfigurationError{StubID: def.ID, Reason: fmt.Sprintf("response %d body: %v", i, err)}
		}
		e.responses[i] = Response{Index: i, Spec: spec, Body: body}
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to build entry %q: %w", def.ID, err)
		}
	}
	return e, nil
}

// staticBody serializes a structured body for the wire. Strings are written verbatim.
func staticBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	default:
		return json.Marshal(b)
	}
}

// Definition returns the wrapped stub definition.
func (e *Entry) Definition() *stub.Definition { return e.def }

// ID returns the stub ID.
func (e *Entry) ID() string { return e.def.ID }

// NeedsBody reports whether matching or rendering this entry reads the body.
func (e *Entry) NeedsBody() bool { return e.needsBody }

// Matches reports whether the snapshot satisfies every condition of the stub.
func (e *Entry) Matches(s *Snapshot) bool {
	_, _, ok := e.check(s)
	return ok
}

// check evaluates the conditions cheapest first and reports the first failure.
func (e *Entry) check(s *Snapshot) (field, reason string, ok bool) {
	req := &e.def.Request

	if !strings.EqualFold(s.Method, e.method) {
		return "method", "expected " + e.method + ", got " + s.Method, false
	}

	switch {
	case e.pathRe != nil:
		if !e.pathRe.MatchString(s.Path) {
			return "path", "pattern " + req.PathPattern + " did not match " + s.Path, false
		}
	case req.Path != "":
		if s.Path != req.Path {
			return "path", "expected " + req.Path + ", got " + s.Path, false
		}
	}

	for name, want := range e.headers {
		got, present := s.Headers[name]
		if !present {
			return "header:" + name, "missing", false
		}
		if got != want {
			return "header:" + name, "value did not match: " + got, false
		}
	}

	for key, want := range req.QueryParams {
		got, present := s.Query[key]
		if !present {
			return "query:" + key, "missing", false
		}
		if got != want {
			return "query:" + key, "value did not match: " + got, false
		}
	}

	if req.Body != nil {
		if !s.HasParsed || !reflect.DeepEqual(s.ParsedBody, req.Body) {
			return "body", "body did not match", false
		}
	}

	if req.BodyContains != "" {
		if s.RawBody == nil || !strings.Contains(string(s.RawBody), req.BodyContains) {
			return "bodyContains", "body does not contain " + req.BodyContains, false
		}
	}

	if len(e.predicates) > 0 {
		if s.RawBody == nil {
			return e.predicates[0].Field, "body unavailable", false
		}
		raw := string(s.RawBody)
		for _, fp := range e.predicates {
			if !fp.Predicate(raw) {
				return fp.Field, "value did not match", false
			}
		}
	}

	return "", "", true
}

// PathParams returns the named capture groups of the path pattern for path.
func (e *Entry) PathParams(path string) map[string]string {
	if e.pathRe == nil {
		return nil
	}
	m := e.pathRe.FindStringSubmatch(path)
	if m == nil {
		return nil
	}
	params := make(map[string]string)
	for i, name := range e.pathRe.SubexpNames() {
		if name != "" && i < len(m) {
			params[name] = m[i]
		}
	}
	return params
}

// NextResponse advances the call counter and returns the response for the
// call. Calls 1..N return responses 0..N-1; later calls repeat the last one.
// Concurrent callers always observe distinct counter values.
func (e *Entry) NextResponse() Response {
	call := e.calls.Add(1)
	n := call - 1
	last := int64(len(e.responses) - 1)
	if n > last {
		n = last
	}
	if n < 0 {
		n = 0
	}
	r := e.responses[n]
	r.Call = call
	return r
}

// ResetCounter sets the call counter back to zero. The stub stays registered.
func (e *Entry) ResetCounter() {
	e.calls.Store(0)
}

// CallCount returns the number of matched requests since creation or the last reset.
func (e *Entry) CallCount() int64 {
	return e.calls.Load()
}

// Responses returns a copy of the resolved responses.
func (e *Entry) Responses() []Response {
	out := make([]Response, len(e.responses))
	copy(out, e.responses)
	return out
}
