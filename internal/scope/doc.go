// Package scope implements the hierarchical named-value registry that
// logic units use to talk across the document tree.
//
// A unit registers a value under an id in some scope; any unit in that
// scope or a descendant scope can watch the id and is notified every time
// the resolved value or its status changes. Lookups walk the parent chain
// so the nearest definition wins.
//
// Registrations are owned. Two owners registering the same id without
// force put the entry into the failing status until one of them removes
// its registration; a forced registration shadows every other owner.
//
// The registry is not safe for concurrent use. The engine that drives it
// is single-threaded and relies on mutation order: callers remove a stale
// id before registering a new one.
package scope
