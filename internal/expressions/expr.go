package expressions

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEngine evaluates expr-lang filters. It suits filters that need let
// bindings, array builtins or nil coalescing, for example
// `len(node.connections ?? []) > 1`.
type ExprEngine struct {
	programs *programCache[*vm.Program]
}

// NewExprEngine creates an Expr engine. Programs compile without a typed
// environment so one program serves every node kind; undefined variables
// evaluate to nil.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{programs: newProgramCache(func(expression string) (*vm.Program, error) {
		prg, err := expr.Compile(expression, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, compileError("expr", expression, err)
		}
		return prg, nil
	})}
}

func (e *ExprEngine) Name() string { return "expr" }

func (e *ExprEngine) Evaluate(_ context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, emptyExpression("expr")
	}
	prg, err := e.programs.get(expression)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	out, err := vm.Run(prg, data)
	if err != nil {
		return nil, evalError("expr", expression, err)
	}
	return out, nil
}

var _ Engine = (*ExprEngine)(nil)
