package engine

import (
	"log/slog"

	"github.com/roach88/rapture/internal/ir"
	"github.com/roach88/rapture/internal/scope"
	"github.com/roach88/rapture/internal/token"
)

// Control is the surface a unit's callbacks use to act on their context.
type Control struct {
	lc   *LogicContext
	full *FullControl
}

// FullControl extends Control with scope registration and dynamic
// creation of nested contexts. Only units built with full control get
// one.
type FullControl struct {
	*Control
}

func newControl(lc *LogicContext, full bool) *Control {
	c := &Control{lc: lc}
	if full {
		c.full = &FullControl{Control: c}
	}
	return c
}

// ID returns the owning context id.
func (c *Control) ID() string { return c.lc.id }

// Data returns the node-private data bag of the owning rule context.
func (c *Control) Data() map[string]any { return c.lc.ruleContext.Data() }

// Token returns the node the unit is bound to.
func (c *Control) Token() *token.Token { return c.lc.token }

// Value returns the unit's current value.
func (c *Control) Value() any { return c.lc.currentValue }

// State returns the full validation state.
func (c *Control) State() ValidationState { return c.lc.State() }

// ParamState reports whether parameters are resolved and valid.
func (c *Control) ParamState() ValidationState { return c.lc.ParamState() }

// Set replaces the unit's output. It returns false when the value is
// unchanged.
func (c *Control) Set(value any) bool {
	c.lc.checkDisposed()
	return c.lc.set(value)
}

// Raise replaces the unit's living issues. Raising nothing clears them.
//
// A raise from a run invoked with failing parameters is rejected with
// ErrCodeDegradedRaise; the parameter issues stand.
func (c *Control) Raise(issues ...ir.Issue) error {
	c.lc.checkDisposed()

	if c.lc.degraded {
		slog.Warn("raise rejected in degraded run", "id", c.lc.id, "issues", len(issues))
		return &Error{
			Code:    ErrCodeDegradedRaise,
			Message: "raise during a run with failing parameters",
			Context: c.lc.id,
		}
	}

	c.lc.raise(issues)
	return nil
}

// Report raises a single issue.
func (c *Control) Report(typ, message string, severity ir.Severity, from string, loc *ir.Location) error {
	return c.Raise(ir.NewIssue(typ, from, loc, message, severity))
}

// Clear removes all living issues.
func (c *Control) Clear() error {
	return c.Raise()
}

// Full returns the privileged surface, or nil.
func (c *Control) Full() *FullControl { return c.full }

// Scope returns the scope of the owning rule context.
func (fc *FullControl) Scope() *scope.Scope { return fc.lc.ruleContext.Scope() }

// Register publishes value under id in the scope named targetScope (the
// nearest ancestor with that id; empty means the current scope). The
// unit is the owner of the registration.
func (fc *FullControl) Register(targetScope, id string, value any, ready, force bool) error {
	fc.lc.checkDisposed()
	return fc.Scope().Set(targetScope, id, value, ready, fc.lc, force)
}

// Unregister removes the unit's registration of id in targetScope.
func (fc *FullControl) Unregister(targetScope, id string) error {
	fc.lc.checkDisposed()
	return fc.Scope().Remove(targetScope, id, fc.lc)
}

// CreateRuleContext applies rule to content as a nested rule context of
// the owning rule context. A nil content reuses the unit's node.
func (fc *FullControl) CreateRuleContext(rule Rule, content *token.Token) (*RuleContext, error) {
	fc.lc.checkDisposed()
	if content == nil {
		content = fc.lc.token
	}
	return fc.lc.ruleContext.CreateRuleContext(content, rule, nil)
}

// CreateRuleContextInScope applies rule to the unit's node inside a new
// child scope. The scope is disposed with the nested rule context.
func (fc *FullControl) CreateRuleContextInScope(scopeID string, rule Rule) (*RuleContext, error) {
	fc.lc.checkDisposed()

	parent := fc.lc.ruleContext
	sc := scope.New(scopeID, parent.Scope())

	rc, err := parent.CreateRuleContext(fc.lc.token, rule, sc)
	if err != nil {
		sc.Dispose()
		return nil, err
	}
	rc.OnDisposed(sc.Dispose)
	return rc, nil
}

// BuildLogicContext materializes l with full control and adds it to the
// owning rule context.
func (fc *FullControl) BuildLogicContext(l *Logic) (*LogicContext, error) {
	fc.lc.checkDisposed()

	rc := fc.lc.ruleContext
	ctx, err := l.BuildContext(rc, true, nil)
	if err != nil {
		return nil, err
	}
	rc.AddLogicContext(ctx)
	return ctx, nil
}
