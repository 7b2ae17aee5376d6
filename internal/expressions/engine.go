package expressions

import (
	"context"
	"slices"
	"sync"

	"github.com/rendis/timeline/pkg/schema"
)

// Engine evaluates an expression against a data map.
// CEL and Expr filter nodes; jq queries whole snapshots.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Registry holds the available engines by name.
type Registry struct {
	engines map[string]Engine
}

// NewRegistry creates a registry with the cel, expr and jq engines.
func NewRegistry() (*Registry, error) {
	c, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	r := &Registry{engines: make(map[string]Engine, 3)}
	for _, e := range []Engine{c, NewExprEngine(), NewGoJQEngine()} {
		r.engines[e.Name()] = e
	}
	return r, nil
}

// Get returns the engine registered under name.
func (r *Registry) Get(name string) (Engine, error) {
	e, ok := r.engines[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown expression language %q (want one of %v)", name, r.Names())
	}
	return e, nil
}

// Names lists the registered engines in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for n := range r.engines {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// programCache memoizes compiled expressions. Concurrent misses on the same
// expression may compile twice; the first stored program wins.
type programCache[P any] struct {
	mu      sync.RWMutex
	progs   map[string]P
	compile func(string) (P, error)
}

func newProgramCache[P any](compile func(string) (P, error)) *programCache[P] {
	return &programCache[P]{progs: make(map[string]P), compile: compile}
}

func (c *programCache[P]) get(expression string) (P, error) {
	c.mu.RLock()
	p, ok := c.progs[expression]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}
	p, err := c.compile(expression)
	if err != nil {
		return p, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.progs[expression]; ok {
		return existing, nil
	}
	c.progs[expression] = p
	return p, nil
}

func (c *programCache[P]) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.progs)
}

func emptyExpression(lang string) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "empty %s expression", lang)
}

// compileError reports an expression that can never run.
func compileError(lang, expression string, err error) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "%s: cannot compile %q: %v", lang, expression, err).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression, "language": lang})
}

// evalError reports an expression that compiled but failed on this input.
func evalError(lang, expression string, err error) error {
	return schema.NewErrorf(schema.ErrCodeExecution, "%s: evaluating %q: %v", lang, expression, err).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression, "language": lang})
}
