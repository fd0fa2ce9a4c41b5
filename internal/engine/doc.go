// Package engine implements the reactive validation core.
//
// A Logic is the declarative definition of one evaluable unit: callbacks
// plus a parameter table. Applying a Rule to a document node builds a
// RuleContext, and the rule attaches one LogicContext per Logic to it.
// LogicContexts resolve their parameters (static values, the live output
// of other LogicContexts, or ids watched in a Scope), run, and raise
// issues and values that the RuleContext aggregates.
//
// ARCHITECTURE:
//
// Single-Threaded, Synchronous:
// There is no goroutine inside the engine. A parameter update or a run is
// a plain call stack; callbacks run to completion before control returns.
// Re-entrant calls (Control.Set and Control.Raise from inside OnRun) are
// expected and safe.
//
// Coalesced Emission:
// Every mutation recomputes state first and marks dirty bits
// (raise, update, state). A single flush routine emits at most one event
// of each kind per externally triggered operation, and only while the
// context is started unless the flush is forced by a lifecycle transition.
//
// Lifecycle Ordering:
//   - Start brings parameter contexts up before running the dependent
//   - Stop stops parameter contexts before pausing the dependent
//   - Dispose is two-phase: Dispose() prepares the subtree and returns a
//     Commit; the commit runs child commits first, then the parent's
//     teardown. Nothing teardown-visible happens before the outer commit.
//
// ERRORS:
//
// Programmer errors (bad construction arguments, use after dispose,
// unreachable parameter states) are fail-fast: constructors return an
// *Error, everything else panics with one. Data problems are never errors;
// they are ir.Issue values raised through the context.
package engine
