package engine

import "slices"

// Subscription releases a listener. Calling it more than once is a no-op.
type Subscription func()

// Commit finishes a disposal prepared by Dispose.
type Commit func()

func noopCommit() {}

type listener[T any] struct {
	fn     func(T)
	active bool
}

// emitter is a synchronous, ordered event source. Listeners added or
// removed while emitting take effect for the next emit.
type emitter[T any] struct {
	listeners []*listener[T]
}

func (e *emitter[T]) subscribe(fn func(T)) Subscription {
	l := &listener[T]{fn: fn, active: true}
	e.listeners = append(e.listeners, l)
	return func() {
		if !l.active {
			return
		}
		l.active = false
		e.listeners = slices.DeleteFunc(e.listeners, func(x *listener[T]) bool { return x == l })
	}
}

func (e *emitter[T]) emit(v T) {
	for _, l := range slices.Clone(e.listeners) {
		if l.active {
			l.fn(v)
		}
	}
}

func (e *emitter[T]) reset() {
	for _, l := range e.listeners {
		l.active = false
	}
	e.listeners = nil
}

// Update is the payload of a LogicContext update event.
type Update struct {
	State ValueState
	Value any
}
