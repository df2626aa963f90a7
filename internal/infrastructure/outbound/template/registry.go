// Package template compiles templated response bodies. Two engines are
// built in: "expr" interpolates ${ } expressions and "jinja2" runs a
// Pongo2 template.
package template

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sophialabs/stubkit/internal/domain/match"
)

// Engine names understood by NewRegistry.
const (
	EngineExpr   = "expr"
	EngineJinja2 = "jinja2"
)

// EngineCompiler compiles a template source string into a BodyRenderer.
type EngineCompiler interface {
	Compile(name, source string) (match.BodyRenderer, error)
}

// Registry maps engine names to their compilers.
type Registry struct {
	engines map[string]EngineCompiler
}

// NewRegistry creates a registry with the built-in engines.
func NewRegistry() *Registry {
	return &Registry{
		engines: map[string]EngineCompiler{
			EngineExpr:   &ExprCompiler{},
			EngineJinja2: &Jinja2Compiler{},
		},
	}
}

// Register adds or replaces the compiler for engine.
func (r *Registry) Register(engine string, c EngineCompiler) {
	r.engines[strings.ToLower(engine)] = c
}

// Supports reports whether engine has a compiler.
func (r *Registry) Supports(engine string) bool {
	_, ok := r.engines[strings.ToLower(engine)]
	return ok
}

// Engines returns the registered engine names in sorted order.
func (r *Registry) Engines() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile resolves the engine by name and compiles the source.
func (r *Registry) Compile(engine, name, source string) (match.BodyRenderer, error) {
	ec, ok := r.engines[strings.ToLower(engine)]
	if !ok {
		return nil, fmt.Errorf("unknown template engine %q (supported: %s)", engine, strings.Join(r.Engines(), ", "))
	}
	return ec.Compile(name, source)
}
