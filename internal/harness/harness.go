package harness

import (
	"fmt"
	"log/slog"

	"github.com/roach88/rapture/internal/compiler"
	"github.com/roach88/rapture/internal/engine"
	"github.com/roach88/rapture/internal/ir"
	"github.com/roach88/rapture/internal/rules"
	"github.com/roach88/rapture/internal/scope"
	"github.com/roach88/rapture/internal/testutil"
	"github.com/roach88/rapture/internal/token"
)

// Owner is the registration owner of scope entries set by scenario steps.
const Owner = "harness"

// Harness drives one scenario. Context ids come from a sequential
// generator and events are stamped by a logical clock, so a scenario
// always yields the same trace.
type Harness struct {
	clock  *testutil.DeterministicClock
	ids    *testutil.SequentialIDs
	result *Result

	root     *engine.RuleContext
	scope    *scope.Scope
	disposed bool
	closed   bool
}

// Run compiles the scenario's rules, applies them to its document, runs
// the steps and evaluates the assertions.
func Run(scenario *Scenario) (*Result, error) {
	rule, err := compiler.Load(scenario.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}
	return RunRule(scenario, rule)
}

// RunRule is Run with an already built rule; scenario.Rules is ignored.
func RunRule(scenario *Scenario, rule engine.Rule) (*Result, error) {
	doc, err := token.Parse([]byte(scenario.Document))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	h := &Harness{
		clock:  testutil.NewDeterministicClock(),
		ids:    testutil.NewSequentialIDs(""),
		result: NewResult(),
		scope:  scope.New(rules.RootScope, nil),
	}

	root, err := engine.NewRuleContext(doc, rule, h.scope, engine.WithIDGenerator(h.ids))
	if err != nil {
		return nil, fmt.Errorf("failed to build rule context: %w", err)
	}
	h.root = root
	defer h.close()

	root.OnRaise(h.onRaise)
	root.OnDisposed(h.onDisposed)

	slog.Debug("scenario started", "name", scenario.Name, "steps", len(scenario.Steps))

	h.step(Step{Op: OpStart})
	for _, step := range scenario.Steps {
		if err := h.step(step); err != nil {
			return nil, err
		}
	}

	if !h.disposed {
		h.result.Issues = root.Issues()
	}
	if h.result.Issues == nil {
		h.result.Issues = []ir.Issue{}
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}

	slog.Debug("scenario finished", "name", scenario.Name, "events", len(h.result.Trace), "pass", h.result.Pass)

	return h.result, nil
}

func (h *Harness) onRaise(issues []ir.Issue) {
	if h.closed {
		return
	}
	h.result.AddRaiseTrace(issues, h.clock.Next())
}

func (h *Harness) onDisposed() {
	h.disposed = true
	if h.closed {
		return
	}
	h.result.AddDisposedTrace(h.clock.Next())
}

// step records the step, then performs it.
func (h *Harness) step(s Step) error {
	h.result.AddStepTrace(s.Op, s.ID, h.clock.Next())

	switch s.Op {
	case OpStart:
		h.root.Start()
	case OpStop:
		h.root.Stop()
	case OpDispose:
		h.root.Dispose()()
	case OpSet:
		if err := h.scope.Set(s.Scope, s.ID, s.Value, s.ready(), Owner, s.Force); err != nil {
			return fmt.Errorf("step %s %q: %w", s.Op, s.ID, err)
		}
	case OpRemove:
		if err := h.scope.Remove(s.Scope, s.ID, Owner); err != nil {
			return fmt.Errorf("step %s %q: %w", s.Op, s.ID, err)
		}
	default:
		return fmt.Errorf("unknown step op %q", s.Op)
	}
	return nil
}

// close disposes whatever the scenario left running without recording it.
func (h *Harness) close() {
	h.closed = true
	if !h.disposed {
		h.root.Dispose()()
	}
	h.scope.Dispose()
}
