package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/sophialabs/stubkit/internal/domain/match"
	"github.com/sophialabs/stubkit/internal/domain/stub"
)

// TemplateRegistry compiles template sources into body renderers by engine name.
type TemplateRegistry interface {
	Compile(engine, name, source string) (match.BodyRenderer, error)
}

// Compiler turns stub definitions into registry entries. It resolves body
// files, compiles templated bodies and builds the extractor predicates.
type Compiler struct {
	rootDir       string
	registry      TemplateRegistry // nil means no template support
	defaultEngine string
}

// CompilerOption customizes a Compiler.
type CompilerOption func(*Compiler)

// WithDefaultEngine applies engine to text and file bodies that declare none.
func WithDefaultEngine(engine string) CompilerOption {
	return func(c *Compiler) { c.defaultEngine = engine }
}

// NewCompiler creates a Compiler bound to rootDir for bodyFile resolution.
// registry may be nil, in which case responses with an engine fail to compile.
func NewCompiler(rootDir string, registry TemplateRegistry, opts ...CompilerOption) (*Compiler, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	c := &Compiler{rootDir: absRoot, registry: registry}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Compile builds the entry for def. Its signature matches registry.EntryFactory.
func (c *Compiler) Compile(def *stub.Definition) (*match.Entry, error) {
	predicates, err := compileExtractors(&def.Request)
	if err != nil {
		return nil, &stub.ConfigurationError{StubID: def.ID, Reason: err.Error()}
	}

	opts := []match.EntryOption{match.WithPredicates(predicates...)}
	for i, r := range def.ResolvedResponses() {
		ropts, err := c.compileResponse(i, r)
		if err != nil {
			return nil, &stub.ConfigurationError{StubID: def.ID, Reason: fmt.Sprintf("response %d: %v", i, err)}
		}
		opts = append(opts, ropts...)
	}

	return match.NewEntry(def, opts...)
}

// compileExtractors builds the jsonPath and xPath predicates in sorted
// expression order so failures are reported deterministically.
func compileExtractors(req *stub.RequestMatcher) ([]match.FieldPredicate, error) {
	var predicates []match.FieldPredicate

	for _, expr := range sortedKeys(req.JSONPath) {
		p, err := jsonPathPredicate(expr, exactPredicate(req.JSONPath[expr]))
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, match.FieldPredicate{Field: "jsonPath:" + expr, Predicate: p})
	}

	for _, expr := range sortedKeys(req.XPath) {
		p, err := xpathPredicate(expr, exactPredicate(req.XPath[expr]))
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, match.FieldPredicate{Field: "xPath:" + expr, Predicate: p})
	}

	return predicates, nil
}

func exactPredicate(expected string) match.Predicate {
	return func(s string) bool {
		return s == expected
	}
}

// jsonPathPredicate extracts a value via JSONPath and matches its string form.
func jsonPathPredicate(expr string, valueMatcher match.Predicate) (match.Predicate, error) {
	eval, err := jsonpath.New(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonPath %q: %w", expr, err)
	}
	return func(body string) bool {
		var data any
		if err := decodeJSON(strings.NewReader(body), &data); err != nil {
			return false
		}
		result, err := eval(context.Background(), data)
		if err != nil {
			return false
		}
		return valueMatcher(scalarString(result))
	}, nil
}

// xpathPredicate extracts the first node selected by expr and matches its text.
func xpathPredicate(expr string, valueMatcher match.Predicate) (match.Predicate, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xPath %q: %w", expr, err)
	}
	return func(body string) bool {
		doc, err := xmlquery.Parse(strings.NewReader(body))
		if err != nil {
			return false
		}
		node := xmlquery.QuerySelector(doc, compiled)
		if node == nil {
			return false
		}
		return valueMatcher(node.InnerText())
	}, nil
}

// scalarString renders an extracted JSON value for comparison with a
// declared string. Scalars use their literal form; composites use JSON.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

func (c *Compiler) compileResponse(i int, r stub.ResponseSpec) ([]match.EntryOption, error) {
	var opts []match.EntryOption

	var source string
	hasSource := false
	switch {
	case r.BodyFile != "":
		resolved, err := c.resolveBodyFilePath(r.BodyFile)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("failed to read bodyFile %q: %w", r.BodyFile, err)
		}
		source, hasSource = string(data), true
		opts = append(opts, match.WithContentType(i, ContentTypeForFile(r.BodyFile)))
	case r.Body != nil:
		if s, ok := r.Body.(string); ok {
			source, hasSource = s, true
		}
	}

	engine := r.Engine
	if engine == "" && hasSource {
		engine = c.defaultEngine
	}

	if engine == "" {
		if r.BodyFile != "" {
			opts = append(opts, match.WithResponseBody(i, []byte(source)))
		}
		return opts, nil
	}

	if c.registry == nil {
		return nil, fmt.Errorf("template engine %q requested but no registry configured", engine)
	}
	if !hasSource && r.Body != nil {
		// Structured bodies are templated through their JSON text.
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode body for template: %w", err)
		}
		source = string(b)
	}

	name := r.BodyFile
	if name == "" {
		name = "inline"
	}
	renderer, err := c.registry.Compile(engine, name, source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile template (engine=%s): %w", engine, err)
	}
	return append(opts, match.WithRenderer(i, renderer)), nil
}

// resolveBodyFilePath resolves and validates bodyFile paths to prevent directory traversal.
func (c *Compiler) resolveBodyFilePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed in bodyFile: %s", path)
	}

	resolved := filepath.Join(c.rootDir, path)

	realPath, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		realPath = filepath.Clean(resolved)
	}
	absRoot, err := filepath.EvalSymlinks(c.rootDir)
	if err != nil {
		absRoot = c.rootDir
	}

	rel, err := filepath.Rel(absRoot, realPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("bodyFile path %q escapes root directory", path)
	}

	return resolved, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
