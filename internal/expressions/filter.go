package expressions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rendis/timeline/internal/graph"
	"github.com/rendis/timeline/pkg/schema"
)

// Match evaluates a boolean filter for one node. The expression sees the
// node under "node" and timeline metadata under "timeline". A non-boolean
// result is a validation error.
func Match(ctx context.Context, eng Engine, expression string, node graph.Node, timeline map[string]any) (bool, error) {
	out, err := eng.Evaluate(ctx, expression, map[string]any{
		"node":     node.Map(),
		"timeline": timeline,
	})
	if err != nil {
		return false, err
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"filter %q returned %T, want bool", expression, out).
			WithNode(node.ID()).
			WithDetails(map[string]any{"expression": expression, "engine": eng.Name()})
	}
	return ok, nil
}

// Filter returns the nodes matching expression, in input order. An empty
// expression matches everything.
func Filter(ctx context.Context, eng Engine, expression string, nodes []graph.Node, timeline map[string]any) ([]graph.Node, error) {
	if expression == "" {
		return nodes, nil
	}
	var out []graph.Node
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := Match(ctx, eng, expression, n, timeline)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// ToData converts v to the generic map form engines evaluate against by
// round-tripping it through JSON.
func ToData(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("expressions: encode input: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "query input must be a JSON object: %v", err).WithCause(err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// Query runs a jq expression over v, typically an engine snapshot.
func Query(ctx context.Context, jq *GoJQEngine, expression string, v any) (any, error) {
	data, err := ToData(v)
	if err != nil {
		return nil, err
	}
	return jq.Evaluate(ctx, expression, data)
}
