package rules

import (
	"fmt"
	"log/slog"

	"github.com/roach88/rapture/internal/engine"
	"github.com/roach88/rapture/internal/token"
)

const registerIDParam = "registerID"

// registration is the current value of a Register unit.
type registration struct {
	scope string
	id    string
}

func (r *registration) drop(fc *engine.FullControl) {
	if r.id == "" {
		return
	}
	if err := fc.Unregister(r.scope, r.id); err != nil {
		slog.Debug("unregister failed", "scope", r.scope, "id", r.id, "error", err)
	}
	r.id = ""
}

// Register publishes the node's value under id in the scope named
// targetScope (empty means the rule context's own scope). id is a string
// or an *engine.Logic producing one; a changed id unregisters the old one
// first.
//
// The entry is ready only while the chain up to this step passes, and is
// re-published whenever that changes. Registration is withdrawn on pause
// and teardown.
func Register(id any, targetScope string) *engine.Logic {
	return &engine.Logic{
		Name:   "register",
		Full:   true,
		Params: map[string]engine.Param{registerIDParam: param(id)},
		Options: engine.Options{
			UseToken:      true,
			OnStateChange: true,
			OnFaultChange: true,
			RunOnFailure:  true,
		},
		Callbacks: engine.Callbacks{
			OnSetup: func(*engine.Control, any) any {
				return &registration{scope: targetScope}
			},
			OnRun: func(c *engine.Control, content any, p engine.Params) {
				reg := c.Value().(*registration)
				fc := c.Full()

				next, _ := p.String(registerIDParam)
				if reg.id != "" && reg.id != next {
					reg.drop(fc)
				}
				if next == "" {
					return
				}

				ready := c.State() == engine.Passing
				if err := fc.Register(targetScope, next, content.(*token.Token).Raw(), ready, true); err != nil {
					slog.Warn("register failed", "scope", targetScope, "id", next, "error", err)
					report(c, ruleIssue(fmt.Sprintf("Cannot register %q: %v", next, err)))
					return
				}
				reg.id = next
			},
			OnPause: func(c *engine.Control, _ any, value any) {
				value.(*registration).drop(c.Full())
			},
			OnTeardown: func(c *engine.Control, _ any, value any) {
				value.(*registration).drop(c.Full())
			},
		},
	}
}

const refParam = "value"

// Ref outputs the scope entry id. Used as a parameter it makes a rule
// depend on a value registered elsewhere in the document.
func Ref(id string) *engine.Logic {
	return &engine.Logic{
		Name:   "ref-" + id,
		Params: map[string]engine.Param{refParam: engine.Watch(id)},
		Callbacks: engine.Callbacks{
			OnRun: func(c *engine.Control, _ any, p engine.Params) {
				v, _ := p.Get(refParam)
				c.Set(v)
			},
		},
	}
}
