// Package ir provides the value types shared by every layer of the
// validation engine: issues, severities and source locations.
//
// ir imports nothing internal. The engine, rules, token tree and CLI all
// speak in terms of ir.Issue so that aggregation and display never depend
// on which rule produced a finding.
//
// Key design constraints:
//   - Issues are immutable values compared structurally
//   - All JSON tags use snake_case
//   - MarshalCanonical is the only serialization used for golden traces
package ir
