package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/sophialabs/stubkit/internal/domain/match"
)

const (
	exprOpen    = "${"
	exprEscaped = "$${"
)

// ExprCompiler compiles bodies with ${ } segments holding Expr expressions.
// A literal "${" is written as "$${".
type ExprCompiler struct{}

// Compile splits source into literal text and expressions and compiles each
// expression against the render environment.
func (c *ExprCompiler) Compile(name, source string) (match.BodyRenderer, error) {
	segments, err := splitExprTemplate(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expr template %q: %w", name, err)
	}

	dynamic := false
	for _, seg := range segments {
		dynamic = dynamic || seg.program != nil
	}
	if !dynamic {
		var buf strings.Builder
		for _, seg := range segments {
			buf.WriteString(seg.literal)
		}
		return &staticRenderer{body: []byte(buf.String())}, nil
	}
	return &exprRenderer{segments: segments}, nil
}

// exprSegment is either literal text or a compiled expression.
type exprSegment struct {
	literal string
	program *vm.Program
}

func splitExprTemplate(source string) ([]exprSegment, error) {
	var (
		segments []exprSegment
		literal  strings.Builder
	)
	flush := func() {
		if literal.Len() > 0 {
			segments = append(segments, exprSegment{literal: literal.String()})
			literal.Reset()
		}
	}

	for pos := 0; pos < len(source); {
		rest := source[pos:]
		switch {
		case strings.HasPrefix(rest, exprEscaped):
			literal.WriteString(exprOpen)
			pos += len(exprEscaped)
		case strings.HasPrefix(rest, exprOpen):
			body := rest[len(exprOpen):]
			end := closingBrace(body)
			if end < 0 {
				return nil, fmt.Errorf("unclosed ${ at offset %d", pos)
			}
			src := strings.TrimSpace(body[:end])
			if src == "" {
				return nil, fmt.Errorf("empty expression at offset %d", pos)
			}
			program, err := expr.Compile(src, expr.Env(exprEnv{}))
			if err != nil {
				return nil, fmt.Errorf("failed to compile expression %q: %w", src, err)
			}
			flush()
			segments = append(segments, exprSegment{program: program})
			pos += len(exprOpen) + end + 1
		default:
			next := strings.Index(rest[1:], "$")
			if next < 0 {
				literal.WriteString(rest)
				pos = len(source)
			} else {
				literal.WriteString(rest[:next+1])
				pos += next + 1
			}
		}
	}
	flush()
	return segments, nil
}

// closingBrace returns the offset of the "}" closing an expression that
// starts at s[0], skipping nested braces and quoted strings.
func closingBrace(s string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			switch ch {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"', '`':
			quote = ch
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

// exprEnv is the environment visible to ${ } expressions.
type exprEnv struct {
	StubID     string               `expr:"stubId"`
	Call       int64                `expr:"call"`
	Method     string               `expr:"method"`
	Path       string               `expr:"path"`
	PathParam  func(string) string  `expr:"pathParam"`
	QueryParam func(string) string  `expr:"queryParam"`
	Header     func(string) string  `expr:"header"`
	Body       func() string        `expr:"body"`
	Now        func() string        `expr:"now"`
	NowFormat  func(string) string  `expr:"nowFormat"`
	UUID       func() string        `expr:"uuid"`
	RandomInt  func(int, int) int   `expr:"randomInt"`
	Seq        func(int, int) []int `expr:"seq"`
	ToJSON     func(any) string     `expr:"toJSON"`
	JSONPath   func(string) string  `expr:"jsonPath"`
}

func newExprEnv(ctx match.RenderContext) exprEnv {
	h := helpers{ctx: ctx}
	return exprEnv{
		StubID:     ctx.StubID,
		Call:       ctx.Call,
		Method:     ctx.Method,
		Path:       ctx.Path,
		PathParam:  h.pathParam,
		QueryParam: h.queryParam,
		Header:     h.header,
		Body:       h.body,
		Now:        h.now,
		NowFormat:  h.nowFormat,
		UUID:       newUUID,
		RandomInt:  randomInt,
		Seq:        seqInts,
		ToJSON:     toJSONString,
		JSONPath:   h.jsonPath,
	}
}

type exprRenderer struct {
	segments []exprSegment
}

func (r *exprRenderer) Render(ctx match.RenderContext) ([]byte, error) {
	env := newExprEnv(ctx)

	var buf bytes.Buffer
	for _, seg := range r.segments {
		if seg.program == nil {
			buf.WriteString(seg.literal)
			continue
		}
		result, err := expr.Run(seg.program, env)
		if err != nil {
			return nil, fmt.Errorf("expression evaluation failed: %w", err)
		}
		if err := writeExprValue(&buf, result); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// writeExprValue writes scalars as text and maps or slices as JSON.
func writeExprValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		buf.WriteString(val)
		return nil
	case []byte:
		buf.Write(val)
		return nil
	case fmt.Stringer:
		buf.WriteString(val.String())
		return nil
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode expression result: %w", err)
		}
		buf.Write(b)
	default:
		fmt.Fprint(buf, v)
	}
	return nil
}

// staticRenderer serves a template without any ${ } segment.
type staticRenderer struct {
	body []byte
}

func (r *staticRenderer) Render(match.RenderContext) ([]byte, error) {
	return r.body, nil
}
