package scope

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
)

// Status is the resolution state of a watched id.
type Status string

const (
	StatusUndefined Status = "undefined"
	StatusDefined   Status = "defined"
	StatusFailing   Status = "failing"
)

// WatchFunc receives the resolved status and value of a watched id.
type WatchFunc func(status Status, value any)

// Unsubscribe releases a watch. Calling it more than once is a no-op.
type Unsubscribe func()

// ErrDisposed is returned when mutating a disposed scope.
var ErrDisposed = errors.New("scope is disposed")

// NotFoundError reports a target scope id that is not in the ancestor chain.
type NotFoundError struct {
	ScopeID string
	From    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("scope %q not found from scope %q", e.ScopeID, e.From)
}

type registration struct {
	owner  any
	value  any
	ready  bool
	forced bool
	seq    int64
}

type entry struct {
	regs []*registration
}

type watcher struct {
	fn         WatchFunc
	active     bool
	delivered  bool
	lastStatus Status
	lastValue  any
}

// Scope is one level of the registry.
type Scope struct {
	id       string
	parent   *Scope
	children []*Scope
	entries  map[string]*entry
	watchers map[string][]*watcher
	seq      int64
	disposed bool
}

// New creates a scope. A nil parent creates a root scope.
func New(id string, parent *Scope) *Scope {
	s := &Scope{
		id:       id,
		parent:   parent,
		entries:  make(map[string]*entry),
		watchers: make(map[string][]*watcher),
	}
	if parent != nil {
		parent.children = append(parent.children, s)
	}
	return s
}

// ID returns the scope id.
func (s *Scope) ID() string {
	return s.id
}

// Parent returns the parent scope or nil for a root.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Child creates a nested scope with s as parent.
func (s *Scope) Child(id string) *Scope {
	return New(id, s)
}

// Disposed reports whether Dispose has been called.
func (s *Scope) Disposed() bool {
	return s.disposed
}

// target finds the nearest scope in the ancestor chain with the given id.
// An empty id targets s itself.
func (s *Scope) target(scopeID string) (*Scope, error) {
	if s.disposed {
		return nil, ErrDisposed
	}
	if scopeID == "" {
		return s, nil
	}
	for cur := s; cur != nil; cur = cur.parent {
		if cur.id == scopeID {
			return cur, nil
		}
	}
	return nil, &NotFoundError{ScopeID: scopeID, From: s.id}
}

// Set registers value under id in the scope named scopeID, on behalf of
// owner. ready=false registers the id in the failing status.
func (s *Scope) Set(scopeID, id string, value any, ready bool, owner any, force bool) error {
	t, err := s.target(scopeID)
	if err != nil {
		return err
	}

	e := t.entries[id]
	if e == nil {
		e = &entry{}
		t.entries[id] = e
	}

	t.seq++
	idx := slices.IndexFunc(e.regs, func(r *registration) bool { return r.owner == owner })
	if idx >= 0 {
		r := e.regs[idx]
		r.value = value
		r.ready = ready
		if force {
			r.forced = true
			r.seq = t.seq
		}
	} else {
		e.regs = append(e.regs, &registration{
			owner:  owner,
			value:  value,
			ready:  ready,
			forced: force,
			seq:    t.seq,
		})
	}

	slog.Debug("scope set", "scope", t.id, "id", id, "ready", ready, "force", force, "owners", len(e.regs))

	t.notify(id)
	return nil
}

// Remove drops owner's registration of id in the scope named scopeID.
// Removing an id the owner never registered is a no-op.
func (s *Scope) Remove(scopeID, id string, owner any) error {
	t, err := s.target(scopeID)
	if err != nil {
		return err
	}

	e := t.entries[id]
	if e == nil {
		return nil
	}

	before := len(e.regs)
	e.regs = slices.DeleteFunc(e.regs, func(r *registration) bool { return r.owner == owner })
	if len(e.regs) == before {
		return nil
	}
	if len(e.regs) == 0 {
		delete(t.entries, id)
	}

	slog.Debug("scope remove", "scope", t.id, "id", id, "owners", len(e.regs))

	t.notify(id)
	return nil
}

// resolveLocal resolves id in this scope only. ok is false when the scope
// has no registration for it.
func (s *Scope) resolveLocal(id string) (status Status, value any, ok bool) {
	e := s.entries[id]
	if e == nil || len(e.regs) == 0 {
		return StatusUndefined, nil, false
	}

	var winner *registration
	for _, r := range e.regs {
		if r.forced && (winner == nil || r.seq > winner.seq) {
			winner = r
		}
	}
	if winner == nil {
		if len(e.regs) > 1 {
			return StatusFailing, nil, true
		}
		winner = e.regs[0]
	}

	if !winner.ready {
		return StatusFailing, winner.value, true
	}
	return StatusDefined, winner.value, true
}

// Lookup resolves id through the ancestor chain.
func (s *Scope) Lookup(id string) (Status, any) {
	for cur := s; cur != nil; cur = cur.parent {
		if status, value, ok := cur.resolveLocal(id); ok {
			return status, value
		}
	}
	return StatusUndefined, nil
}

// Watch calls fn with the current resolution of id and again every time
// it changes. The returned func stops the watch.
func (s *Scope) Watch(id string, fn WatchFunc) Unsubscribe {
	w := &watcher{fn: fn, active: true}
	s.watchers[id] = append(s.watchers[id], w)

	s.deliver(id, w)

	return func() {
		if !w.active {
			return
		}
		w.active = false
		s.watchers[id] = slices.DeleteFunc(s.watchers[id], func(x *watcher) bool { return x == w })
		if len(s.watchers[id]) == 0 {
			delete(s.watchers, id)
		}
	}
}

// deliver sends the current resolution to w unless it already saw it.
func (s *Scope) deliver(id string, w *watcher) {
	if !w.active {
		return
	}
	status, value := s.Lookup(id)
	if w.delivered && w.lastStatus == status && reflect.DeepEqual(w.lastValue, value) {
		return
	}
	w.delivered = true
	w.lastStatus = status
	w.lastValue = value
	w.fn(status, value)
}

// notify re-delivers id to watchers in s and every descendant scope.
func (s *Scope) notify(id string) {
	for _, w := range slices.Clone(s.watchers[id]) {
		s.deliver(id, w)
	}
	for _, child := range slices.Clone(s.children) {
		if child.disposed {
			continue
		}
		child.notify(id)
	}
}

// Dispose detaches the scope from its parent and drops all registrations
// and watchers. Disposing twice is a no-op.
func (s *Scope) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true

	if s.parent != nil {
		s.parent.children = slices.DeleteFunc(s.parent.children, func(c *Scope) bool { return c == s })
	}
	for _, ws := range s.watchers {
		for _, w := range ws {
			w.active = false
		}
	}
	s.watchers = make(map[string][]*watcher)
	s.entries = make(map[string]*entry)

	slog.Debug("scope disposed", "scope", s.id)
}
