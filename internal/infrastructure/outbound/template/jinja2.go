package template

import (
	"fmt"

	"github.com/flosch/pongo2/v6"

	"github.com/sophialabs/stubkit/internal/domain/match"
)

// Jinja2Compiler compiles body templates using Pongo2 (Django/Jinja2-style).
type Jinja2Compiler struct{}

// Compile parses the source as a Pongo2 template.
func (c *Jinja2Compiler) Compile(name, source string) (match.BodyRenderer, error) {
	tpl, err := pongo2.FromString(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jinja2 template %q: %w", name, err)
	}
	return &jinja2Renderer{tpl: tpl}, nil
}

type jinja2Renderer struct {
	tpl *pongo2.Template
}

func (r *jinja2Renderer) Render(ctx match.RenderContext) ([]byte, error) {
	h := helpers{ctx: ctx}
	out, err := r.tpl.Execute(pongo2.Context{
		"stubId":      ctx.StubID,
		"call":        ctx.Call,
		"method":      ctx.Method,
		"path":        ctx.Path,
		"headers":     ctx.Headers,
		"queryParams": ctx.QueryParams,
		"pathParams":  ctx.PathParams,
		"body":        h.body(),
		"now":         ctx.Now,

		"pathParam":  h.pathParam,
		"queryParam": h.queryParam,
		"header":     h.header,
		"jsonPath":   h.jsonPath,
		"nowFormat":  h.nowFormat,
		"uuid":       newUUID,
		"randomInt":  randomInt,
		"seq":        seqInts,
		"toJSON":     toJSONString,
	})
	if err != nil {
		return nil, fmt.Errorf("jinja2 template render failed: %w", err)
	}
	return []byte(out), nil
}
