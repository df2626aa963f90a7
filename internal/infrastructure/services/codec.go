package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sophialabs/stubkit/internal/domain/stub"
)

// wireStub is the textual form of a stub definition.
type wireStub struct {
	ID        string          `yaml:"id,omitempty" json:"id,omitempty"`
	Name      string          `yaml:"name,omitempty" json:"name,omitempty"`
	Request   wireRequest     `yaml:"request" json:"request"`
	Response  *wireResponse   `yaml:"response,omitempty" json:"response,omitempty"`
	Responses *[]wireResponse `yaml:"responses,omitempty" json:"responses,omitempty"`
	RateLimit *wireRateLimit  `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`
}

type wireRequest struct {
	Method       string            `yaml:"method,omitempty" json:"method,omitempty"`
	Path         string            `yaml:"path,omitempty" json:"path,omitempty"`
	PathPattern  string            `yaml:"pathPattern,omitempty" json:"pathPattern,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	QueryParams  map[string]string `yaml:"queryParams,omitempty" json:"queryParams,omitempty"`
	Body         any               `yaml:"body,omitempty" json:"body,omitempty"`
	BodyContains string            `yaml:"bodyContains,omitempty" json:"bodyContains,omitempty"`
	JSONPath     map[string]string `yaml:"jsonPath,omitempty" json:"jsonPath,omitempty"`
	XPath        map[string]string `yaml:"xPath,omitempty" json:"xPath,omitempty"`
}

type wireResponse struct {
	Status   int               `yaml:"status,omitempty" json:"status"`
	Headers  map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body     any               `yaml:"body,omitempty" json:"body,omitempty"`
	BodyFile string            `yaml:"bodyFile,omitempty" json:"bodyFile,omitempty"`
	DelayMs  *int              `yaml:"delayMs,omitempty" json:"delayMs,omitempty"`
	Engine   string            `yaml:"engine,omitempty" json:"engine,omitempty"`
}

type wireRateLimit struct {
	Rate  float64 `yaml:"rate" json:"rate"`
	Burst int     `yaml:"burst" json:"burst"`
	Key   string  `yaml:"key,omitempty" json:"key,omitempty"`
}

// DecodeStubs parses a document holding either one stub object or an array
// of them. JSON and YAML are accepted; the shape is decided from the parsed
// value, not from the text.
func DecodeStubs(data []byte) ([]*stub.Definition, error) {
	if json.Valid(data) {
		return decodeJSONStubs(data)
	}
	return decodeYAMLStubs(data)
}

func decodeJSONStubs(data []byte) ([]*stub.Definition, error) {
	var probe any
	if err := decodeJSON(bytes.NewReader(data), &probe); err != nil {
		return nil, fmt.Errorf("failed to parse stub document: %w", err)
	}

	switch probe.(type) {
	case []any:
		var list []wireStub
		if err := decodeJSON(bytes.NewReader(data), &list); err != nil {
			return nil, fmt.Errorf("failed to decode stubs: %w", err)
		}
		defs := make([]*stub.Definition, 0, len(list))
		for i, w := range list {
			d, err := w.toDefinition()
			if err != nil {
				return nil, fmt.Errorf("stub %d: %w", i, err)
			}
			defs = append(defs, d)
		}
		return defs, nil
	case map[string]any:
		var w wireStub
		if err := decodeJSON(bytes.NewReader(data), &w); err != nil {
			return nil, fmt.Errorf("failed to decode stub: %w", err)
		}
		d, err := w.toDefinition()
		if err != nil {
			return nil, err
		}
		return []*stub.Definition{d}, nil
	default:
		return nil, errors.New("stub document must be an object or an array")
	}
}

func decodeYAMLStubs(data []byte) ([]*stub.Definition, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse stub document: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, errors.New("empty stub document")
	}

	content := root.Content[0]
	switch content.Kind {
	case yaml.SequenceNode:
		defs := make([]*stub.Definition, 0, len(content.Content))
		for i, item := range content.Content {
			d, err := decodeStubNode(item)
			if err != nil {
				return nil, fmt.Errorf("stub %d: %w", i, err)
			}
			defs = append(defs, d)
		}
		return defs, nil
	case yaml.MappingNode:
		d, err := decodeStubNode(content)
		if err != nil {
			return nil, err
		}
		return []*stub.Definition{d}, nil
	default:
		return nil, fmt.Errorf("stub document must be an object or an array, line %d", content.Line)
	}
}

func decodeStubNode(node *yaml.Node) (*stub.Definition, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("stub must be an object, line %d", node.Line)
	}
	var w wireStub
	if err := node.Decode(&w); err != nil {
		return nil, fmt.Errorf("failed to decode stub at line %d: %w", node.Line, err)
	}
	return w.toDefinition()
}

func (w wireStub) toDefinition() (*stub.Definition, error) {
	id := w.ID
	if id == "" {
		id = uuid.NewString()
	}

	var single *stub.ResponseSpec
	if w.Response != nil {
		r := w.Response.toSpec()
		single = &r
	}
	var sequence []stub.ResponseSpec
	if w.Responses != nil {
		sequence = make([]stub.ResponseSpec, 0, len(*w.Responses))
		for _, r := range *w.Responses {
			sequence = append(sequence, r.toSpec())
		}
	}

	responses, err := stub.ChooseResponses(single, sequence)
	if err != nil {
		var cfgErr *stub.ConfigurationError
		if errors.As(err, &cfgErr) {
			cfgErr.StubID = id
		}
		return nil, err
	}

	var rl *stub.RateLimit
	if w.RateLimit != nil {
		rl = &stub.RateLimit{Rate: w.RateLimit.Rate, Burst: w.RateLimit.Burst, Key: w.RateLimit.Key}
	}

	req := stub.RequestMatcher{
		Method:       w.Request.Method,
		Path:         w.Request.Path,
		PathPattern:  w.Request.PathPattern,
		Headers:      w.Request.Headers,
		QueryParams:  w.Request.QueryParams,
		Body:         w.Request.Body,
		BodyContains: w.Request.BodyContains,
		JSONPath:     w.Request.JSONPath,
		XPath:        w.Request.XPath,
	}
	return stub.NewDefinition(id, w.Name, req, responses, rl)
}

func (w wireResponse) toSpec() stub.ResponseSpec {
	spec := stub.ResponseSpec{
		Status:   w.Status,
		Headers:  w.Headers,
		Body:     w.Body,
		BodyFile: w.BodyFile,
		Engine:   w.Engine,
	}
	if w.DelayMs != nil {
		spec.DelayMs = *w.DelayMs
	}
	return spec
}

func fromSpec(r stub.ResponseSpec) wireResponse {
	w := wireResponse{
		Status:   r.Status,
		Headers:  r.Headers,
		Body:     r.Body,
		BodyFile: r.BodyFile,
		Engine:   r.Engine,
	}
	if r.DelayMs > 0 {
		d := r.DelayMs
		w.DelayMs = &d
	}
	return w
}

// EncodeResponses serializes the resolved response list of def as a JSON array.
func EncodeResponses(def *stub.Definition) ([]byte, error) {
	resolved := def.ResolvedResponses()
	out := make([]wireResponse, 0, len(resolved))
	for _, r := range resolved {
		out = append(out, fromSpec(r))
	}
	return json.Marshal(out)
}

// EncodeStub serializes def back into its textual JSON form.
func EncodeStub(def *stub.Definition) ([]byte, error) {
	req := def.Request
	w := wireStub{
		ID:   def.ID,
		Name: def.Name,
		Request: wireRequest{
			Method:       req.Method,
			Path:         req.Path,
			PathPattern:  req.PathPattern,
			Headers:      req.Headers,
			QueryParams:  req.QueryParams,
			Body:         req.Body,
			BodyContains: req.BodyContains,
			JSONPath:     req.JSONPath,
			XPath:        req.XPath,
		},
	}
	if def.IsSequence() {
		list := make([]wireResponse, 0, len(def.ResolvedResponses()))
		for _, r := range def.ResolvedResponses() {
			list = append(list, fromSpec(r))
		}
		w.Responses = &list
	} else {
		single := fromSpec(def.ResolvedResponses()[0])
		w.Response = &single
	}
	if def.RateLimit != nil {
		w.RateLimit = &wireRateLimit{Rate: def.RateLimit.Rate, Burst: def.RateLimit.Burst, Key: def.RateLimit.Key}
	}
	return json.Marshal(w)
}
