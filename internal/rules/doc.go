// Package rules is the rule-construction DSL: concrete validators built on
// the engine's callback contract.
//
// Every validator is an *engine.Logic. Chain applies a sequence of them to
// one node, linking each LogicContext as the previous of the next so an
// earlier failure survives through later passing steps:
//
//	rule := rules.Chain(
//	    rules.Required(),
//	    rules.Type(rules.KindString),
//	    rules.StringMax(20),
//	    rules.Register("username", ""),
//	)
//
// Structural validators (Keys, Items) create one nested RuleContext per
// child node, so issues aggregate up the document tree.
//
// Numeric limits accept a number, an engine.Param, or an *engine.Logic
// whose output is the limit (for example Ref, which reads a value another
// rule registered in scope).
package rules
