package harness

import "github.com/roach88/rapture/internal/ir"

// Trace event types.
const (
	EventStep     = "step"
	EventRaise    = "raise"
	EventDisposed = "disposed"
)

// TraceEvent is one recorded observation of the root rule context.
type TraceEvent struct {
	Seq    int64      `json:"seq"`
	Type   string     `json:"type"`
	Op     string     `json:"op,omitempty"`
	ID     string     `json:"id,omitempty"`
	Issues []ir.Issue `json:"issues,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds step markers and root raises in clock order.
	Trace []TraceEvent `json:"trace"`

	// Issues is the root issue set after the last step. Empty once the
	// root has been disposed.
	Issues []ir.Issue `json:"issues"`

	// Errors contains assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStepTrace records that a step is about to run.
func (r *Result) AddStepTrace(op, id string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{Seq: seq, Type: EventStep, Op: op, ID: id})
}

// AddRaiseTrace records a published issue set.
func (r *Result) AddRaiseTrace(issues []ir.Issue, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{Seq: seq, Type: EventRaise, Issues: issues})
}

// AddDisposedTrace records the end of the root's disposal.
func (r *Result) AddDisposedTrace(seq int64) {
	r.Trace = append(r.Trace, TraceEvent{Seq: seq, Type: EventDisposed})
}

// canonical converts the event for ir.MarshalCanonical. Raise events
// always carry their issue list, empty or not.
func (e TraceEvent) canonical() map[string]any {
	m := map[string]any{
		"seq":  e.Seq,
		"type": e.Type,
	}
	if e.Op != "" {
		m["op"] = e.Op
	}
	if e.ID != "" {
		m["id"] = e.ID
	}
	if e.Type == EventRaise {
		m["issues"] = ir.CanonicalIssues(e.Issues)
	}
	return m
}
