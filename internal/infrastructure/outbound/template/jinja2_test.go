package template

import (
	"testing"

	"github.com/google/uuid"

	"github.com/sophialabs/stubkit/internal/domain/match"
)

func TestJinja2Compiler_Render(t *testing.T) {
	tests := []struct {
		name   string
		source string
		ctx    match.RenderContext
		want   string
	}{
		{
			name:   "path param",
			source: `Hello {{ pathParam("name") }}!`,
			ctx:    match.RenderContext{PathParams: map[string]string{"name": "World"}},
			want:   "Hello World!",
		},
		{
			name:   "conditional",
			source: `{% if header("X-Mode") == "debug" %}verbose{% else %}brief{% endif %}`,
			ctx:    match.RenderContext{Headers: map[string]string{"x-mode": "debug"}},
			want:   "verbose",
		},
		{
			name:   "conditional else",
			source: `{% if header("X-Mode") == "debug" %}verbose{% else %}brief{% endif %}`,
			ctx:    match.RenderContext{Headers: map[string]string{"x-mode": "prod"}},
			want:   "brief",
		},
		{
			name:   "loop",
			source: `{% for i in seq(1, 3) %}{{ i }}{% endfor %}`,
			want:   "123",
		},
		{
			name:   "static body",
			source: `plain text with no templates`,
			want:   "plain text with no templates",
		},
		{
			name:   "request variables",
			source: `{{ method }} {{ path }}`,
			ctx:    match.RenderContext{Method: "POST", Path: "/api/items"},
			want:   "POST /api/items",
		},
		{
			name:   "stub and call",
			source: `{{ stubId }}#{{ call }}`,
			ctx:    match.RenderContext{StubID: "orders", Call: 2},
			want:   "orders#2",
		},
		{
			name:   "missing header",
			source: `[{{ header("X-Missing") }}]`,
			want:   "[]",
		},
		{
			name:   "query param",
			source: `page={{ queryParam("page") }}`,
			ctx:    match.RenderContext{QueryParams: map[string]string{"page": "5"}},
			want:   "page=5",
		},
		{
			name:   "echo body",
			source: `echo: {{ body }}`,
			ctx:    match.RenderContext{Body: []byte("hello")},
			want:   "echo: hello",
		},
		{
			name:   "now format",
			source: `{{ nowFormat("2006-01-02") }}`,
			ctx:    match.RenderContext{Now: "2025-01-15T10:30:00Z"},
			want:   "2025-01-15",
		},
		{
			name:   "now format with bad timestamp",
			source: `{{ nowFormat("2006-01-02") }}`,
			ctx:    match.RenderContext{Now: "not-a-time"},
			want:   "not-a-time",
		},
		{
			name:   "fixed random",
			source: `{{ randomInt(5, 5) }}`,
			want:   "5",
		},
		{
			name:   "empty seq",
			source: `{{ toJSON(seq(5, 3)) }}`,
			want:   "null",
		},
		{
			name:   "json path",
			source: `name={{ jsonPath("$.name") }}`,
			ctx:    match.RenderContext{Body: []byte(`{"name":"Bob"}`)},
			want:   "name=Bob",
		},
		{
			name:   "json path on invalid body",
			source: `[{{ jsonPath("$.name") }}]`,
			ctx:    match.RenderContext{Body: []byte("not json")},
			want:   "[]",
		},
	}

	c := &Jinja2Compiler{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renderer, err := c.Compile("test", tt.source)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}
			result, err := renderer.Render(tt.ctx)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if string(result) != tt.want {
				t.Errorf("expected %q, got %q", tt.want, result)
			}
		})
	}
}

func TestJinja2Compiler_InvalidSyntax(t *testing.T) {
	if _, err := (&Jinja2Compiler{}).Compile("test", `{% if %}broken{% endif %}`); err == nil {
		t.Error("expected compile error for invalid syntax")
	}
}

func TestJinja2Compiler_UUID(t *testing.T) {
	renderer, err := (&Jinja2Compiler{}).Compile("test", `{{ uuid() }}`)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	result, err := renderer.Render(match.RenderContext{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if _, err := uuid.Parse(string(result)); err != nil {
		t.Errorf("expected a UUID, got %q: %v", result, err)
	}
}
