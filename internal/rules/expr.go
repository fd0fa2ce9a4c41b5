package rules

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/roach88/rapture/internal/engine"
	"github.com/roach88/rapture/internal/ir"
)

// maxExprNodes bounds expression complexity.
const maxExprNodes = 100

// Expr fails the node when the boolean expression code evaluates to false.
// The environment holds "value" (the node's raw value), "data" (the rule
// context data) and every resolved parameter by name. An empty message
// reports the expression itself. Null nodes pass.
//
// The program is compiled once when the rule is built. Operand types are
// checked when it runs.
func Expr(code, message string, params map[string]any) (*engine.Logic, error) {
	program, err := expr.Compile(code,
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
		expr.MaxNodes(maxExprNodes),
	)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", code, err)
	}

	if message == "" {
		message = fmt.Sprintf("Must satisfy %q.", code)
	}

	names := make([]string, 0, len(params))
	declared := make(map[string]engine.Param, len(params))
	for name, v := range params {
		if name == "value" || name == "data" {
			return nil, fmt.Errorf("expression parameter %q shadows a builtin", name)
		}
		names = append(names, name)
		declared[name] = param(v)
	}
	sort.Strings(names)

	return &engine.Logic{
		Name:   "expr",
		Params: declared,
		Callbacks: engine.Callbacks{
			OnRun: func(c *engine.Control, content any, p engine.Params) {
				if content == nil {
					report(c)
					return
				}

				env := map[string]any{
					"value": content,
					"data":  c.Data(),
				}
				for _, name := range names {
					env[name] = p[name]
				}

				ok, err := evalBool(program, env)
				switch {
				case err != nil:
					report(c, ir.NewIssue(ir.IssueTypeExpr, "", nil, fmt.Sprintf("Expression failed: %v", err), ir.SeverityError))
				case !ok:
					report(c, ir.NewIssue(ir.IssueTypeExpr, "", nil, message, ir.SeverityError))
				default:
					report(c)
				}
			},
		},
	}, nil
}

func evalBool(program *vm.Program, env map[string]any) (bool, error) {
	output, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}

	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return boolean: %v", output)
	}
	return result, nil
}
