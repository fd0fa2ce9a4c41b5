package engine

import "github.com/roach88/rapture/internal/scope"

// RunState is the lifecycle state of a LogicContext.
type RunState string

const (
	RunStopped   RunState = "stopped"
	RunStarting  RunState = "starting"
	RunStarted   RunState = "started"
	RunStopping  RunState = "stopping"
	RunDisposing RunState = "disposing"
	RunDisposed  RunState = "disposed"
)

// ValueState describes the output of a LogicContext, and the resolution
// status of a parameter.
type ValueState string

const (
	ValueUndefined ValueState = "undefined"
	ValueDefined   ValueState = "defined"
	ValueFailing   ValueState = "failing"
)

// ValidationState is the pass/fail outcome of a unit.
type ValidationState string

const (
	Passing ValidationState = "passing"
	Failing ValidationState = "failing"
)

// RuleStatus is the lifecycle state of a RuleContext. RuleEmitNeeded is
// reported while an aggregated raise is deferred because the context is
// not started.
type RuleStatus string

const (
	RuleStopped    RuleStatus = "stopped"
	RuleStarting   RuleStatus = "starting"
	RuleStarted    RuleStatus = "started"
	RuleStopping   RuleStatus = "stopping"
	RuleEmitNeeded RuleStatus = "emitNeeded"
	RuleDisposing  RuleStatus = "disposing"
	RuleDisposed   RuleStatus = "disposed"
)

func valueStateOf(s scope.Status) ValueState {
	switch s {
	case scope.StatusDefined:
		return ValueDefined
	case scope.StatusFailing:
		return ValueFailing
	default:
		return ValueUndefined
	}
}
