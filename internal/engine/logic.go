package engine

import (
	"fmt"
	"sort"
)

// Callbacks is the contract a unit implements. Every callback is
// optional, except OnRun when parameters are declared.
type Callbacks struct {
	// OnSetup runs once at construction. A non-nil return value becomes
	// the initial current value.
	OnSetup func(c *Control, content any) any

	// OnRun runs on every evaluation with parameters resolved.
	OnRun func(c *Control, content any, params Params)

	// OnPause runs once per stop with the last value.
	OnPause func(c *Control, content any, value any)

	// OnTeardown runs once, inside the dispose commit.
	OnTeardown func(c *Control, content any, value any)
}

// Options tune how a unit is evaluated.
type Options struct {
	// OnStateChange re-runs the unit when the previous unit in its chain
	// changes state.
	OnStateChange bool

	// OnFaultChange is reserved for fault-sensitive re-runs. It is carried
	// through but not acted on.
	OnFaultChange bool

	// UseToken passes the *token.Token to callbacks instead of its raw
	// value.
	UseToken bool

	// RunOnFailure still invokes OnRun when parameters are not ready.
	// Raises from that degraded run are rejected.
	RunOnFailure bool
}

// Param declares one named parameter.
//
// Four shapes exist:
//   - Static(v): optional, fixed value, always defined
//   - From(l): optional, bound to the output of a nested unit
//   - Watch(id): required, bound to scope entry id
//   - WatchFrom(l): required, bound to the scope entry whose id is the
//     output of a nested unit; re-bound when that output changes
type Param struct {
	Required bool
	Value    any
	Logic    *Logic
}

// Static declares an optional parameter with a fixed value.
func Static(value any) Param {
	return Param{Value: value}
}

// From declares an optional parameter bound to a nested unit's output.
func From(l *Logic) Param {
	return Param{Logic: l}
}

// Watch declares a required parameter bound to a scope id.
func Watch(id string) Param {
	return Param{Required: true, Value: id}
}

// WatchFrom declares a required parameter bound to the scope id produced
// by a nested unit.
func WatchFrom(l *Logic) Param {
	return Param{Required: true, Logic: l}
}

// Params holds resolved parameter values passed to OnRun. Only defined
// parameters are present.
type Params map[string]any

// Get returns the value of a defined parameter.
func (p Params) Get(name string) (any, bool) {
	v, ok := p[name]
	return v, ok
}

// String returns a string parameter.
func (p Params) String(name string) (string, bool) {
	s, ok := p[name].(string)
	return s, ok
}

// Number returns a numeric parameter as float64.
func (p Params) Number(name string) (float64, bool) {
	return ToNumber(p[name])
}

// ToNumber converts the numeric types produced by document decoding to
// float64.
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Logic is the declarative definition of a unit, materialized into one
// LogicContext per application site.
type Logic struct {
	Name      string
	Callbacks Callbacks
	Params    map[string]Param
	Options   Options

	// Full grants the privileged control surface wherever the logic is
	// built.
	Full bool
}

// BuildContext materializes the logic against rc. previous links the new
// context into the chain of units applied to the same node.
func (l *Logic) BuildContext(rc *RuleContext, fullControl bool, previous *LogicContext) (*LogicContext, error) {
	if l == nil {
		return nil, newInvalidArgument("logic is required")
	}
	return NewLogicContext(Properties{
		Name:        l.Name,
		Parent:      rc,
		Previous:    previous,
		FullControl: fullControl || l.Full,
	}, l.Callbacks, l.Params, l.Options)
}

// ApplyLogic attaches l alone to rc, so a single logic is itself a Rule.
func (l *Logic) ApplyLogic(rc *RuleContext) error {
	_, err := rc.AddLogic(l, nil)
	return err
}

func (l *Logic) String() string {
	if l == nil {
		return "<nil logic>"
	}
	return fmt.Sprintf("logic(%s)", l.Name)
}

func sortedParamNames(params map[string]Param) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
