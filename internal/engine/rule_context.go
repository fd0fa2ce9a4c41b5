package engine

import (
	"log/slog"
	"slices"

	"github.com/roach88/rapture/internal/ir"
	"github.com/roach88/rapture/internal/scope"
	"github.com/roach88/rapture/internal/token"
)

// Rule attaches logic to a rule context. ApplyLogic is called once, at
// construction, and may add logic contexts and nested rule contexts.
type Rule interface {
	ApplyLogic(rc *RuleContext) error
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc func(rc *RuleContext) error

// ApplyLogic calls f(rc).
func (f RuleFunc) ApplyLogic(rc *RuleContext) error { return f(rc) }

// RuleContextOption configures a RuleContext.
type RuleContextOption func(*RuleContext)

// WithData sets the node-private data bag.
func WithData(data map[string]any) RuleContextOption {
	return func(rc *RuleContext) {
		rc.data = data
	}
}

// WithIDGenerator sets the generator for context id suffixes.
// Nested rule contexts inherit it.
func WithIDGenerator(gen IDGenerator) RuleContextOption {
	return func(rc *RuleContext) {
		rc.ids = gen
	}
}

type childSubs struct {
	raise    Subscription
	disposed Subscription
}

func (c childSubs) release() {
	c.raise()
	c.disposed()
}

// RuleContext groups the logic contexts and nested rule contexts applied
// to one node, and publishes the union of their issues.
//
// INVARIANTS:
//   - compacted holds own logic context issues first, then nested rule
//     context issues, each in attachment order
//   - a raise is never published when both the new and the previous
//     union are empty
type RuleContext struct {
	id      string
	content *token.Token
	rule    Rule
	scope   *scope.Scope
	data    map[string]any
	ids     IDGenerator

	status     RuleStatus
	emitNeeded bool

	logicContexts []*LogicContext
	ruleContexts  []*RuleContext
	subs          map[any]childSubs
	compacted     []ir.Issue

	raiseEv    emitter[[]ir.Issue]
	disposedEv emitter[struct{}]
}

// NewRuleContext builds a rule context for content and applies rule to
// it. A rule that fails to apply leaves nothing behind.
func NewRuleContext(content *token.Token, rule Rule, sc *scope.Scope, opts ...RuleContextOption) (*RuleContext, error) {
	if content == nil {
		return nil, newInvalidArgument("content is required")
	}
	if rule == nil {
		return nil, newInvalidArgument("rule is required")
	}
	if sc == nil {
		return nil, newInvalidArgument("scope is required")
	}

	rc := &RuleContext{
		content: content,
		rule:    rule,
		scope:   sc,
		ids:     UUIDv7Generator{},
		status:  RuleStopped,
		subs:    make(map[any]childSubs),
	}
	for _, opt := range opts {
		opt(rc)
	}
	if rc.data == nil {
		rc.data = make(map[string]any)
	}
	rc.id = "rule-" + rc.ids.Generate()

	content.AddRuleContext(rc)

	if err := rule.ApplyLogic(rc); err != nil {
		rc.Dispose()()
		return nil, err
	}

	slog.Debug("rule context created", "id", rc.id, "path", content.Path(), "logic", len(rc.logicContexts))

	return rc, nil
}

func (rc *RuleContext) checkDisposed() {
	if rc.status == RuleDisposed {
		panic(newDisposedError(rc.id))
	}
}

// AddLogicContext attaches lc. Its raises feed the aggregated issue set.
func (rc *RuleContext) AddLogicContext(lc *LogicContext) {
	rc.checkDisposed()

	rc.logicContexts = append(rc.logicContexts, lc)
	rc.subs[lc] = childSubs{
		raise: lc.OnRaise(rc.onRaise),
		disposed: lc.OnDisposed(func() {
			rc.removeLogicContext(lc)
		}),
	}
}

// AddLogic builds l against this rule context, chained after previous,
// and attaches it.
func (rc *RuleContext) AddLogic(l *Logic, previous *LogicContext) (*LogicContext, error) {
	rc.checkDisposed()

	lc, err := l.BuildContext(rc, false, previous)
	if err != nil {
		return nil, err
	}
	rc.AddLogicContext(lc)
	return lc, nil
}

// CreateRuleContext applies rule to content as an owned nested rule
// context. A nil scope shares this context's scope. The caller starts it.
func (rc *RuleContext) CreateRuleContext(content *token.Token, rule Rule, sc *scope.Scope) (*RuleContext, error) {
	rc.checkDisposed()

	if sc == nil {
		sc = rc.scope
	}

	child, err := NewRuleContext(content, rule, sc, WithIDGenerator(rc.ids))
	if err != nil {
		return nil, err
	}

	rc.ruleContexts = append(rc.ruleContexts, child)
	rc.subs[child] = childSubs{
		raise: child.OnRaise(func([]ir.Issue) { rc.onRaise() }),
		disposed: child.OnDisposed(func() {
			rc.removeRuleContext(child)
		}),
	}

	return child, nil
}

func (rc *RuleContext) releaseChild(key any) {
	if s, ok := rc.subs[key]; ok {
		s.release()
		delete(rc.subs, key)
	}
}

func (rc *RuleContext) removeLogicContext(lc *LogicContext) {
	rc.releaseChild(lc)
	rc.logicContexts = slices.DeleteFunc(rc.logicContexts, func(x *LogicContext) bool { return x == lc })
	if rc.status != RuleDisposing && rc.status != RuleDisposed {
		rc.onRaise()
	}
}

func (rc *RuleContext) removeRuleContext(child *RuleContext) {
	rc.releaseChild(child)
	rc.ruleContexts = slices.DeleteFunc(rc.ruleContexts, func(x *RuleContext) bool { return x == child })
	if rc.status != RuleDisposing && rc.status != RuleDisposed {
		rc.onRaise()
	}
}

func (rc *RuleContext) onRaise() {
	var issues []ir.Issue
	for _, lc := range rc.logicContexts {
		if lc.RunState() == RunDisposed {
			continue
		}
		issues = append(issues, lc.Issues()...)
	}
	for _, child := range rc.ruleContexts {
		issues = append(issues, child.Issues()...)
	}

	if len(issues) == 0 && len(rc.compacted) == 0 {
		return
	}

	rc.compacted = issues
	rc.emitRaise(false)
}

func (rc *RuleContext) emitRaise(force bool) {
	if rc.status == RuleStarted || force {
		rc.emitNeeded = false
		rc.raiseEv.emit(slices.Clone(rc.compacted))
		return
	}

	rc.emitNeeded = true
}

// Start starts the attached logic contexts in attachment order, then
// flushes a deferred raise.
func (rc *RuleContext) Start() {
	rc.checkDisposed()

	switch rc.status {
	case RuleStarted, RuleStarting, RuleDisposing:
		return
	}

	rc.transition(RuleStarting)

	for _, lc := range slices.Clone(rc.logicContexts) {
		lc.Start()
	}

	if rc.emitNeeded {
		rc.emitRaise(true)
	}

	rc.transition(RuleStarted)
}

// Stop stops the attached logic contexts in attachment order, then
// flushes a deferred raise.
func (rc *RuleContext) Stop() {
	switch rc.status {
	case RuleStopped, RuleStopping, RuleDisposing, RuleDisposed:
		return
	}

	rc.transition(RuleStopping)

	for _, lc := range slices.Clone(rc.logicContexts) {
		lc.Stop()
	}

	if rc.emitNeeded {
		rc.emitRaise(true)
	}

	rc.transition(RuleStopped)
}

// Dispose prepares every owned logic context, then every nested rule
// context, and returns the commit that finishes them all. No teardown
// runs before the commit. A second Dispose returns a no-op commit.
func (rc *RuleContext) Dispose() Commit {
	switch rc.status {
	case RuleDisposing, RuleDisposed:
		return noopCommit
	}

	rc.transition(RuleDisposing)

	for key, s := range rc.subs {
		s.release()
		delete(rc.subs, key)
	}

	var commits []Commit
	for _, lc := range rc.logicContexts {
		commits = append(commits, lc.Dispose())
	}
	for _, child := range rc.ruleContexts {
		commits = append(commits, child.Dispose())
	}

	committed := false
	return func() {
		if committed {
			return
		}
		committed = true

		for _, commit := range commits {
			commit()
		}

		rc.logicContexts = nil
		rc.ruleContexts = nil
		rc.content.RemoveRuleContext(rc)

		rc.transition(RuleDisposed)
		rc.disposedEv.emit(struct{}{})

		rc.raiseEv.reset()
		rc.disposedEv.reset()
	}
}

func (rc *RuleContext) transition(to RuleStatus) {
	slog.Debug("rule context transition", "id", rc.id, "from", rc.status, "to", to)
	rc.status = to
}

// Status returns the lifecycle state. RuleEmitNeeded is reported while a
// raise is deferred.
func (rc *RuleContext) Status() RuleStatus {
	if rc.emitNeeded && rc.status != RuleStarted && rc.status != RuleDisposed {
		return RuleEmitNeeded
	}
	return rc.status
}

// ID returns the rule context id.
func (rc *RuleContext) ID() string { return rc.id }

// Issues returns the last published union of descendant issues.
func (rc *RuleContext) Issues() []ir.Issue { return slices.Clone(rc.compacted) }

// Token returns the node the rule is applied to.
func (rc *RuleContext) Token() *token.Token { return rc.content }

// Scope returns the scope shared with attached logic.
func (rc *RuleContext) Scope() *scope.Scope { return rc.scope }

// Data returns the node-private data bag.
func (rc *RuleContext) Data() map[string]any { return rc.data }

// Rule returns the applied rule.
func (rc *RuleContext) Rule() Rule { return rc.rule }

// LogicContexts returns the attached logic contexts in attachment order.
func (rc *RuleContext) LogicContexts() []*LogicContext { return slices.Clone(rc.logicContexts) }

// RuleContexts returns the owned nested rule contexts.
func (rc *RuleContext) RuleContexts() []*RuleContext { return slices.Clone(rc.ruleContexts) }

// OnRaise subscribes to aggregated issue-set changes.
func (rc *RuleContext) OnRaise(fn func([]ir.Issue)) Subscription {
	rc.checkDisposed()
	return rc.raiseEv.subscribe(fn)
}

// OnDisposed subscribes to the end of disposal.
func (rc *RuleContext) OnDisposed(fn func()) Subscription {
	rc.checkDisposed()
	return rc.disposedEv.subscribe(func(struct{}) { fn() })
}
