package match

// BodyRenderer renders a response body per request. Nil means the body is static.
type BodyRenderer interface {
	Render(ctx RenderContext) ([]byte, error)
}

// RenderContext is the request data visible to response templates.
type RenderContext struct {
	StubID string
	// Call is the 1-based number of the matched request for this stub.
	Call        int64
	Method      string
	Path        string
	Headers     map[string]string // lowercased names
	QueryParams map[string]string
	PathParams  map[string]string
	Body        []byte
	Now         string // RFC 3339
}

// NewRenderContext builds the rendering view of a matched request.
func NewRenderContext(s *Snapshot, r EvalResult, now string) RenderContext {
	ctx := RenderContext{
		Call:        r.Response.Call,
		Method:      s.Method,
		Path:        s.Path,
		Headers:     s.HeaderMap(),
		QueryParams: s.Query,
		PathParams:  r.PathParams,
		Body:        s.RawBody,
		Now:         now,
	}
	if r.Matched != nil {
		ctx.StubID = r.Matched.ID()
	}
	return ctx
}
