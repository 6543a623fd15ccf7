package filter

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/gscoppino/STEM/pkg/directory"
)

// exprMatcher evaluates an expr-lang expression with the record's fields as
// top-level variables. The record is also reachable as "record".
type exprMatcher struct {
	program *vm.Program
}

func newExprMatcher(expression string) (Matcher, error) {
	if isBlank(expression) {
		return nil, nil
	}
	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return &exprMatcher{program: program}, nil
}

func (m *exprMatcher) Match(ctx context.Context, record directory.Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	env := make(map[string]interface{}, len(record)+1)
	for k, v := range record {
		env[k] = v
	}
	env["record"] = map[string]interface{}(record)

	output, err := expr.Run(m.program, env)
	if err != nil {
		return false, err
	}
	return toBool(output), nil
}
