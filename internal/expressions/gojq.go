package expressions

import (
	"context"

	"github.com/itchyny/gojq"
)

// GoJQEngine runs jq queries over a serialized timeline, for example
// `[.actions[] | select(.status == "completed") | .name]`. Queries cannot
// read the process environment.
type GoJQEngine struct {
	programs *programCache[*gojq.Code]
}

func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{programs: newProgramCache(func(expression string) (*gojq.Code, error) {
		query, err := gojq.Parse(expression)
		if err != nil {
			return nil, compileError("jq", expression, err)
		}
		code, err := gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
		if err != nil {
			return nil, compileError("jq", expression, err)
		}
		return code, nil
	})}
}

func (e *GoJQEngine) Name() string { return "jq" }

// Evaluate returns a single output as is, several as []any and none as nil.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	results, err := e.EvaluateAll(ctx, expression, data)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

// EvaluateAll returns every output of the query.
func (e *GoJQEngine) EvaluateAll(ctx context.Context, expression string, data map[string]any) ([]any, error) {
	if expression == "" {
		return nil, emptyExpression("jq")
	}
	code, err := e.programs.get(expression)
	if err != nil {
		return nil, err
	}
	var input any = map[string]any{}
	if data != nil {
		input = jqValue(data)
	}

	var results []any
	iter := code.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			return results, nil
		}
		if err, isErr := v.(error); isErr {
			return nil, evalError("jq", expression, err)
		}
		results = append(results, v)
	}
}

// jqValue rewrites the Go types gojq rejects (sized ints, float32,
// []string) into ones it accepts.
func jqValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = jqValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = jqValue(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case int64:
		return int(t)
	case int32:
		return int(t)
	case float32:
		return float64(t)
	}
	return v
}

var _ Engine = (*GoJQEngine)(nil)
