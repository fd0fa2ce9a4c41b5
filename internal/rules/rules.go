package rules

import (
	"log/slog"
	"strconv"

	"github.com/roach88/rapture/internal/engine"
	"github.com/roach88/rapture/internal/ir"
	"github.com/roach88/rapture/internal/scope"
	"github.com/roach88/rapture/internal/token"
)

// Chain applies steps to one node in order. Each step's context is the
// previous of the next one.
func Chain(steps ...*engine.Logic) engine.Rule {
	return chain(steps)
}

type chain []*engine.Logic

func (c chain) ApplyLogic(rc *engine.RuleContext) error {
	var previous *engine.LogicContext
	for _, step := range c {
		lc, err := rc.AddLogic(step, previous)
		if err != nil {
			return err
		}
		previous = lc
	}
	return nil
}

// param turns a DSL argument into a parameter declaration.
func param(v any) engine.Param {
	switch p := v.(type) {
	case engine.Param:
		return p
	case *engine.Logic:
		return engine.From(p)
	default:
		return engine.Static(v)
	}
}

// report replaces the unit's issues. No issues clears them. A rejected
// raise leaves the previous issues in place.
func report(c *engine.Control, issues ...ir.Issue) {
	if err := c.Raise(issues...); err != nil {
		slog.Debug("issues not reported", "id", c.ID(), "issues", len(issues), "error", err)
	}
}

func schemaIssue(message string) ir.Issue {
	return ir.NewIssue(ir.IssueTypeSchema, "", nil, message, ir.SeverityError)
}

func ruleIssue(message string) ir.Issue {
	return ir.NewIssue(ir.IssueTypeRule, "", nil, message, ir.SeverityError)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// RootScope is the id of the scope Apply creates.
const RootScope = "root"

// Apply builds a started RuleContext for doc in a fresh root scope. The
// caller disposes it.
func Apply(doc *token.Token, rule engine.Rule, opts ...engine.RuleContextOption) (*engine.RuleContext, error) {
	rc, err := engine.NewRuleContext(doc, rule, scope.New(RootScope, nil), opts...)
	if err != nil {
		return nil, err
	}
	rc.Start()
	return rc, nil
}
