// Package harness runs rule scenarios against the engine and records what
// the root rule context publishes.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: limit_ref
//	description: "A registered limit constrains another key"
//	rules: rules/limits.cue
//	document: |
//	  max: 3
//	  name: abcd
//	steps:
//	  - op: set
//	    id: limit
//	    value: 5
//	  - op: stop
//	  - op: dispose
//	assertions:
//	  - type: issues
//	    messages: []
//	  - type: trace_count
//	    event: raise
//	    count: 2
//
// The root rule context is started before the first step. Steps are set,
// remove (scope entries owned by the harness), stop, start and dispose.
//
// # Assertion Types
//
//   - issues: final issue messages, in order
//   - trace_contains: a raise carrying an issue with the given message
//   - trace_count: how many times an event appears
//   - trace_order: events appear in the given order
//
// # Deterministic Testing
//
// Context ids come from testutil.SequentialIDs and every event is stamped
// by testutil.DeterministicClock, so traces are byte-identical across runs
// and can be compared against golden files.
package harness
