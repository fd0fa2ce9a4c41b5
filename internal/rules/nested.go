package rules

import (
	"log/slog"
	"sort"

	"github.com/roach88/rapture/internal/engine"
	"github.com/roach88/rapture/internal/token"
)

// children is the current value of a structural validator: the nested
// rule contexts it owns.
type children struct {
	contexts []*engine.RuleContext
}

func newChildren(*engine.Control, any) any {
	return &children{}
}

// release disposes every nested context, preparing all of them before
// committing any.
func (ch *children) release() {
	commits := make([]engine.Commit, 0, len(ch.contexts))
	for _, rc := range ch.contexts {
		commits = append(commits, rc.Dispose())
	}
	for _, commit := range commits {
		commit()
	}
	ch.contexts = nil
}

func releaseChildren(_ *engine.Control, _ any, value any) {
	if ch, ok := value.(*children); ok {
		ch.release()
	}
}

func (ch *children) spawn(c *engine.Control, rule engine.Rule, content *token.Token, data map[string]any) {
	rc, err := c.Full().CreateRuleContext(rule, content)
	if err != nil {
		slog.Warn("nested rule failed to apply", "path", content.Path(), "error", err)
		report(c, ruleIssue("Rule could not be applied: " + err.Error()))
		return
	}
	for k, v := range data {
		rc.Data()[k] = v
	}
	ch.contexts = append(ch.contexts, rc)
	rc.Start()
}

// Items applies rule to every element of an array node. Each element gets
// its own RuleContext with "$index" in its data.
func Items(rule engine.Rule) *engine.Logic {
	return &engine.Logic{
		Name:    "array-items",
		Full:    true,
		Options: engine.Options{UseToken: true},
		Callbacks: engine.Callbacks{
			OnSetup: newChildren,
			OnRun: func(c *engine.Control, content any, _ engine.Params) {
				ch := c.Value().(*children)
				ch.release()

				tok := content.(*token.Token)
				if tok.Kind() != token.KindSeq {
					return
				}
				for i, item := range tok.Items() {
					ch.spawn(c, rule, item, map[string]any{"$index": i})
				}
			},
			OnPause:    releaseChildren,
			OnTeardown: releaseChildren,
		},
	}
}

// Keys applies a rule to each declared property of an object node. An
// absent property is validated as a null node at its would-be path, so
// Required can report it. Each property RuleContext has "$key" in its
// data.
func Keys(props map[string]engine.Rule) *engine.Logic {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	return &engine.Logic{
		Name:    "object-keys",
		Full:    true,
		Options: engine.Options{UseToken: true},
		Callbacks: engine.Callbacks{
			OnSetup: newChildren,
			OnRun: func(c *engine.Control, content any, _ engine.Params) {
				ch := c.Value().(*children)
				ch.release()

				tok := content.(*token.Token)
				if tok.Kind() != token.KindMap {
					return
				}
				for _, name := range names {
					ch.spawn(c, props[name], tok.FieldOrMissing(name), map[string]any{"$key": name})
				}
			},
			OnPause:    releaseChildren,
			OnTeardown: releaseChildren,
		},
	}
}
