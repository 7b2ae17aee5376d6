package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// celVariables are the names a filter may reference: node (graph.Node.Map)
// and timeline (id, state, currentNodeId, ...).
var celVariables = []string{"node", "timeline"}

// CELEngine evaluates Common Expression Language filters such as
// `node.kind == "action" && node.duration >= 60000`. It is the default
// filter language.
type CELEngine struct {
	env      *cel.Env
	programs *programCache[cel.Program]
}

// NewCELEngine creates a CEL engine. JSON numbers arrive as doubles, so
// cross-type numeric comparison lets `node.duration > 1000` compile.
func NewCELEngine() (*CELEngine, error) {
	opts := []cel.EnvOption{cel.CrossTypeNumericComparisons(true)}
	for _, name := range celVariables {
		opts = append(opts, cel.Variable(name, cel.MapType(cel.StringType, cel.DynType)))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	e := &CELEngine{env: env}
	e.programs = newProgramCache(e.compile)
	return e, nil
}

func (e *CELEngine) Name() string { return "cel" }

func (e *CELEngine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if err := issues.Err(); err != nil {
		return nil, compileError("cel", expression, err)
	}
	prg, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, compileError("cel", expression, err)
	}
	return prg, nil
}

// Evaluate runs expression against data. A missing variable is bound to an
// empty map.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, emptyExpression("cel")
	}
	prg, err := e.programs.get(expression)
	if err != nil {
		return nil, err
	}
	vars := make(map[string]any, len(celVariables))
	for _, name := range celVariables {
		if v := data[name]; v != nil {
			vars[name] = v
		} else {
			vars[name] = map[string]any{}
		}
	}
	out, _, err := prg.ContextEval(ctx, vars)
	if err != nil {
		return nil, evalError("cel", expression, err)
	}
	return out.Value(), nil
}

var _ Engine = (*CELEngine)(nil)
