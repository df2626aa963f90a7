package stub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// DefaultMethod is applied when a matcher declares no method.
const DefaultMethod = http.MethodGet

// DefaultStatus is applied when a response declares no status.
const DefaultStatus = http.StatusOK

// RequestMatcher describes which requests a stub answers.
// Empty fields are unconstrained.
type RequestMatcher struct {
	Method       string
	Path         string
	PathPattern  string
	Headers      map[string]string
	QueryParams  map[string]string
	Body         any
	BodyContains string

	// JSONPath maps a JSONPath expression to the string its result must equal.
	JSONPath map[string]string
	// XPath maps an XPath expression to the inner text the first node must equal.
	XPath map[string]string
}

// NeedsBody reports whether evaluating the matcher requires the request body.
func (m RequestMatcher) NeedsBody() bool {
	return m.Body != nil || m.BodyContains != "" || len(m.JSONPath) > 0 || len(m.XPath) > 0
}

// ResponseSpec is one candidate response of a stub.
type ResponseSpec struct {
	Status   int
	Headers  map[string]string
	Body     any
	BodyFile string
	DelayMs  int
	Engine   string // "" = static, "expr", "jinja2"
}

// HasBody reports whether the response carries a body.
func (r ResponseSpec) HasBody() bool {
	return r.Body != nil || r.BodyFile != ""
}

// RateLimit configures token-bucket rate limiting for a stub.
type RateLimit struct {
	Rate  float64
	Burst int
	Key   string
}

// Responses is either a Single response or a Sequence of responses.
type Responses interface {
	resolve() []ResponseSpec
}

// Single answers every matching request with the same response.
type Single struct {
	Response ResponseSpec
}

func (s Single) resolve() []ResponseSpec { return []ResponseSpec{s.Response} }

// Sequence answers successive matching requests with successive responses,
// repeating the last one once exhausted.
type Sequence struct {
	Responses []ResponseSpec
}

func (s Sequence) resolve() []ResponseSpec { return s.Responses }

// ChooseResponses builds Responses from the two optional wire fields.
// A non-nil empty sequence counts as present and is rejected.
func ChooseResponses(single *ResponseSpec, sequence []ResponseSpec) (Responses, error) {
	switch {
	case single != nil && sequence != nil:
		return nil, &ConfigurationError{Reason: "response and responses are mutually exclusive"}
	case single != nil:
		return Single{Response: *single}, nil
	case sequence == nil:
		return nil, &ConfigurationError{Reason: "one of response or responses is required"}
	case len(sequence) == 0:
		return nil, &ConfigurationError{Reason: "responses must not be empty"}
	default:
		return Sequence{Responses: sequence}, nil
	}
}

// Definition is the unit of registration: a matcher plus its responses.
// A Definition is immutable once built by NewDefinition.
type Definition struct {
	ID        string
	Name      string
	Request   RequestMatcher
	Responses Responses
	RateLimit *RateLimit

	resolved []ResponseSpec
}

// NewDefinition validates the parts of a stub, applies defaults and returns
// the immutable definition. Invalid combinations yield a *ConfigurationError.
func NewDefinition(id, name string, req RequestMatcher, responses Responses, rl *RateLimit) (*Definition, error) {
	if responses == nil {
		return nil, &ConfigurationError{StubID: id, Reason: "one of response or responses is required"}
	}
	list := responses.resolve()
	if len(list) == 0 {
		return nil, &ConfigurationError{StubID: id, Reason: "responses must not be empty"}
	}
	if req.Path != "" && req.PathPattern != "" {
		return nil, &ConfigurationError{StubID: id, Reason: "path and pathPattern are mutually exclusive"}
	}
	if rl != nil && (rl.Rate <= 0 || rl.Burst <= 0) {
		return nil, &ConfigurationError{StubID: id, Reason: "rateLimit requires positive rate and burst"}
	}

	req.Method = strings.ToUpper(strings.TrimSpace(req.Method))
	if req.Method == "" {
		req.Method = DefaultMethod
	}
	if req.Body != nil {
		normalized, err := NormalizeValue(req.Body)
		if err != nil {
			return nil, &ConfigurationError{StubID: id, Reason: fmt.Sprintf("request body: %v", err)}
		}
		req.Body = normalized
	}

	resolved := make([]ResponseSpec, len(list))
	for i, r := range list {
		if r.DelayMs < 0 {
			return nil, &ConfigurationError{StubID: id, Reason: fmt.Sprintf("response %d: delayMs must not be negative", i)}
		}
		if r.Body != nil && r.BodyFile != "" {
			return nil, &ConfigurationError{StubID: id, Reason: fmt.Sprintf("response %d: body and bodyFile are mutually exclusive", i)}
		}
		if r.Status == 0 {
			r.Status = DefaultStatus
		}
		if r.Status < 100 || r.Status > 999 {
			return nil, &ConfigurationError{StubID: id, Reason: fmt.Sprintf("response %d: invalid status %d", i, r.Status)}
		}
		resolved[i] = r
	}

	// Keep the variant the caller chose, with defaults applied.
	if _, ok := responses.(Single); ok {
		responses = Single{Response: resolved[0]}
	} else {
		responses = Sequence{Responses: resolved}
	}

	return &Definition{
		ID:        id,
		Name:      name,
		Request:   req,
		Responses: responses,
		RateLimit: rl,
		resolved:  resolved,
	}, nil
}

// ResolvedResponses returns the response list: the sequence, or a one-element
// list holding the single response. The slice must not be modified.
func (d *Definition) ResolvedResponses() []ResponseSpec {
	return d.resolved
}

// IsSequence reports whether the stub was declared with a response sequence.
func (d *Definition) IsSequence() bool {
	_, ok := d.Responses.(Sequence)
	return ok
}

// NormalizeValue converts a structured value into the shape encoding/json
// produces when decoding into any, so values from different decoders compare
// structurally.
func NormalizeValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
