// Package compiler turns CUE rule definitions into engine rules.
//
// A rule file declares a top-level "rule" node. Each node may carry:
//
//	required:  bool
//	type:      "any" | "string" | "number" | "integer" | "boolean" | "object" | "array"
//	minLength: number | {ref: string}
//	maxLength: number | {ref: string}
//	minItems:  number | {ref: string}
//	maxItems:  number | {ref: string}
//	without:   {key: string, others: [...string]} | [...{key, others}]
//	expr:      {code: string, message?: string, params?: {...}} | [...{...}]
//	keys:      {<name>: node}
//	items:     node
//	register:  string | {id: string | {ref: string}, scope?: string}
//
// Steps are chained in the order listed, so register reflects the state of
// every check before it on the same node.
package compiler
