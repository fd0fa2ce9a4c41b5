package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rapture/internal/ir"
	"github.com/roach88/rapture/internal/scope"
	"github.com/roach88/rapture/internal/token"
)

func raising(name, message string) *Logic {
	return &Logic{
		Name: name,
		Callbacks: Callbacks{OnRun: func(c *Control, _ any, _ Params) {
			c.Raise(issue(message))
		}},
	}
}

func recordRule(rc *RuleContext) *[][]ir.Issue {
	var raises [][]ir.Issue
	rc.OnRaise(func(issues []ir.Issue) {
		raises = append(raises, issues)
	})
	return &raises
}

func messages(issues []ir.Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Message
	}
	return out
}

func TestNewRuleContext_Validation(t *testing.T) {
	rule := RuleFunc(func(*RuleContext) error { return nil })
	tok := token.FromValue("x")
	sc := scope.New("root", nil)

	_, err := NewRuleContext(nil, rule, sc)
	assert.True(t, IsInvalidArgumentError(err))

	_, err = NewRuleContext(tok, nil, sc)
	assert.True(t, IsInvalidArgumentError(err))

	_, err = NewRuleContext(tok, rule, nil)
	assert.True(t, IsInvalidArgumentError(err))
}

func TestNewRuleContext_ApplyLogicError(t *testing.T) {
	teardowns := 0
	tok := token.FromValue("x")
	boom := errors.New("boom")

	rc, err := NewRuleContext(tok, RuleFunc(func(rc *RuleContext) error {
		_, err := rc.AddLogic(&Logic{
			Name:      "partial",
			Callbacks: Callbacks{OnTeardown: func(*Control, any, any) { teardowns++ }},
		}, nil)
		require.NoError(t, err)
		return boom
	}), scope.New("root", nil))

	require.ErrorIs(t, err, boom)
	assert.Nil(t, rc)
	assert.Equal(t, 1, teardowns, "attached logic is disposed")
	assert.Empty(t, tok.RuleContexts(), "nothing stays attached to the token")
}

func TestLogic_AppliesAsRule(t *testing.T) {
	rc, err := NewRuleContext(token.FromValue("x"), raising("solo", "bad"), scope.New("root", nil))
	require.NoError(t, err)
	rc.Start()

	require.Len(t, rc.LogicContexts(), 1)
	assert.Equal(t, "solo", rc.LogicContexts()[0].Name())
	assert.Equal(t, []string{"bad"}, messages(rc.Issues()))
	rc.Dispose()()
}

func TestRuleContext_DataAndToken(t *testing.T) {
	tok := token.FromValue("x")
	data := map[string]any{"$index": 2}

	rc, err := NewRuleContext(tok, RuleFunc(func(*RuleContext) error { return nil }), scope.New("root", nil), WithData(data))
	require.NoError(t, err)

	assert.Equal(t, data, rc.Data())
	assert.Same(t, tok, rc.Token())
	assert.Len(t, tok.RuleContexts(), 1)
	assert.NotNil(t, rc.Rule())
	assert.Equal(t, RuleStopped, rc.Status())
}

func TestRuleContext_AggregatesInAttachmentOrder(t *testing.T) {
	rc := newTestRule(t, "x", func(rc *RuleContext) error {
		for _, l := range []*Logic{raising("a", "first"), {Name: "quiet"}, raising("c", "third")} {
			if _, err := rc.AddLogic(l, nil); err != nil {
				return err
			}
		}
		return nil
	})
	raises := recordRule(rc)

	rc.Start()

	require.Len(t, *raises, 1, "raises during start are deferred and flushed once")
	assert.Equal(t, []string{"first", "third"}, messages((*raises)[0]))
	assert.Equal(t, []string{"first", "third"}, messages(rc.Issues()))
	assert.Equal(t, RuleStarted, rc.Status())
}

func TestRuleContext_EmptyRaiseSuppressed(t *testing.T) {
	rc := newTestRule(t, "x", func(rc *RuleContext) error {
		_, err := rc.AddLogic(&Logic{
			Name: "quiet",
			Callbacks: Callbacks{OnRun: func(c *Control, _ any, _ Params) {
				c.Raise()
			}},
		}, nil)
		return err
	})
	raises := recordRule(rc)

	rc.Start()
	rc.Stop()
	rc.Start()

	assert.Empty(t, *raises)
}

func TestRuleContext_EmitNeededWhileStopped(t *testing.T) {
	var lc *LogicContext
	rc := newTestRule(t, "x", func(rc *RuleContext) error {
		var err error
		lc, err = rc.AddLogic(raising("a", "bad"), nil)
		return err
	})
	raises := recordRule(rc)

	lc.Start()

	assert.Empty(t, *raises, "no emission while the rule context is stopped")
	assert.Equal(t, RuleEmitNeeded, rc.Status())
	assert.Equal(t, []string{"bad"}, messages(rc.Issues()))

	rc.Start()

	require.Len(t, *raises, 1)
	assert.Equal(t, RuleStarted, rc.Status())
}

func TestRuleContext_StopPublishesCleared(t *testing.T) {
	rc := newTestRule(t, "x", func(rc *RuleContext) error {
		_, err := rc.AddLogic(raising("a", "bad"), nil)
		return err
	})
	rc.Start()
	raises := recordRule(rc)

	rc.Stop()

	require.Len(t, *raises, 1)
	assert.Empty(t, (*raises)[0])
	assert.Empty(t, rc.Issues())
	assert.Equal(t, RuleStopped, rc.Status())
}

func TestRuleContext_StartStopIdempotent(t *testing.T) {
	runs := 0
	rc := newTestRule(t, "x", func(rc *RuleContext) error {
		_, err := rc.AddLogic(&Logic{
			Name:      "count",
			Callbacks: Callbacks{OnRun: func(*Control, any, Params) { runs++ }},
		}, nil)
		return err
	})

	rc.Start()
	rc.Start()
	assert.Equal(t, 1, runs)

	rc.Stop()
	rc.Stop()
	assert.Equal(t, RuleStopped, rc.Status())
}

func TestRuleContext_LiveRaiseWhileStarted(t *testing.T) {
	var ctrl *Control
	rc := newTestRule(t, "x", func(rc *RuleContext) error {
		_, err := rc.AddLogic(&Logic{
			Name:      "live",
			Callbacks: Callbacks{OnSetup: captureControl(&ctrl)},
		}, nil)
		return err
	})
	rc.Start()
	raises := recordRule(rc)

	require.NoError(t, ctrl.Raise(issue("one")))
	require.NoError(t, ctrl.Raise(issue("two")))
	require.NoError(t, ctrl.Clear())

	require.Len(t, *raises, 3)
	assert.Equal(t, []string{"one"}, messages((*raises)[0]))
	assert.Equal(t, []string{"two"}, messages((*raises)[1]))
	assert.Empty(t, (*raises)[2])
}

func TestRuleContext_NestedIssuesFollowOwn(t *testing.T) {
	child := RuleFunc(func(rc *RuleContext) error {
		_, err := rc.AddLogic(raising("child", "nested"), nil)
		return err
	})

	var nested *RuleContext
	rc := newTestRule(t, map[string]any{"a": 1}, func(rc *RuleContext) error {
		if _, err := rc.AddLogic(raising("own", "own"), nil); err != nil {
			return err
		}
		field, _ := rc.Token().Field("a")
		var err error
		nested, err = rc.CreateRuleContext(field, child, nil)
		return err
	})
	rc.Start()
	nested.Start()

	assert.Equal(t, []string{"own", "nested"}, messages(rc.Issues()))
	assert.Same(t, rc.Scope(), nested.Scope(), "nil scope shares the parent's")
	assert.Len(t, rc.RuleContexts(), 1)
	assert.Equal(t, "a", nested.Token().Path())
}

func TestRuleContext_NestedDisposeDetaches(t *testing.T) {
	child := RuleFunc(func(rc *RuleContext) error {
		_, err := rc.AddLogic(raising("child", "nested"), nil)
		return err
	})

	var nested *RuleContext
	rc := newTestRule(t, "x", func(rc *RuleContext) error {
		var err error
		nested, err = rc.CreateRuleContext(rc.Token(), child, nil)
		return err
	})
	rc.Start()
	nested.Start()
	require.Len(t, rc.Issues(), 1)

	nested.Dispose()()

	assert.Empty(t, rc.RuleContexts())
	assert.Empty(t, rc.Issues())
}

func TestRuleContext_LogicDisposeDetaches(t *testing.T) {
	var lc *LogicContext
	rc := newTestRule(t, "x", func(rc *RuleContext) error {
		var err error
		lc, err = rc.AddLogic(raising("a", "bad"), nil)
		return err
	})
	rc.Start()
	require.Len(t, rc.Issues(), 1)

	lc.Dispose()()

	assert.Empty(t, rc.LogicContexts())
	assert.Empty(t, rc.Issues())
}

func TestRuleContext_DisposeIsTwoPhase(t *testing.T) {
	var teardowns []string
	var lcs []*LogicContext
	rc := newTestRule(t, "x", func(rc *RuleContext) error {
		for _, name := range []string{"a", "b", "c"} {
			lc, err := rc.AddLogic(&Logic{
				Name: name,
				Callbacks: Callbacks{
					OnTeardown: func(*Control, any, any) { teardowns = append(teardowns, name) },
				},
			}, nil)
			if err != nil {
				return err
			}
			lcs = append(lcs, lc)
		}
		return nil
	})
	rc.Start()
	disposed := 0
	rc.OnDisposed(func() { disposed++ })

	commit := rc.Dispose()

	assert.Empty(t, teardowns, "no teardown before the commit")
	for _, lc := range lcs {
		assert.Equal(t, RunDisposing, lc.RunState(), "every logic context is prepared")
	}
	assert.Equal(t, 0, disposed)

	commit()

	assert.Equal(t, []string{"a", "b", "c"}, teardowns)
	for _, lc := range lcs {
		assert.Equal(t, RunDisposed, lc.RunState())
	}
	assert.Equal(t, 1, disposed)
	assert.Equal(t, RuleDisposed, rc.Status())
	assert.Empty(t, rc.Token().RuleContexts())
}

func TestRuleContext_DisposeChainedPassing(t *testing.T) {
	var teardowns []string
	var lcs []*LogicContext
	rc := newTestRule(t, "x", func(rc *RuleContext) error {
		var previous *LogicContext
		for _, name := range []string{"a", "b", "c"} {
			lc, err := rc.AddLogic(&Logic{
				Name: name,
				Callbacks: Callbacks{
					OnRun:      func(c *Control, _ any, _ Params) { c.Set(name) },
					OnTeardown: func(*Control, any, any) { teardowns = append(teardowns, name) },
				},
			}, previous)
			if err != nil {
				return err
			}
			lcs = append(lcs, lc)
			previous = lc
		}
		return nil
	})
	rc.Start()
	for _, lc := range lcs {
		require.Equal(t, Passing, lc.State())
	}

	commit := rc.Dispose()
	assert.Empty(t, teardowns)

	assert.NotPanics(t, assert.PanicTestFunc(commit))
	assert.Equal(t, []string{"a", "b", "c"}, teardowns)
	for _, lc := range lcs {
		assert.Equal(t, RunDisposed, lc.RunState())
	}
	assert.Equal(t, RuleDisposed, rc.Status())
}

func TestRuleContext_StopThenDisposeChain(t *testing.T) {
	rc := newTestRule(t, "x", func(rc *RuleContext) error {
		a, err := rc.AddLogic(&Logic{
			Name:      "a",
			Callbacks: Callbacks{OnRun: func(c *Control, _ any, _ Params) { c.Set(1) }},
		}, nil)
		if err != nil {
			return err
		}
		_, err = rc.AddLogic(raising("b", "bad"), a)
		return err
	})

	rc.Start()
	require.Equal(t, []string{"bad"}, messages(rc.Issues()))

	assert.NotPanics(t, rc.Stop)
	assert.Empty(t, rc.Issues())
	assert.NotPanics(t, func() { rc.Dispose()() })
	assert.Equal(t, RuleDisposed, rc.Status())
}

func TestRuleContext_DisposeIsIdempotent(t *testing.T) {
	teardowns := 0
	rc := newTestRule(t, "x", func(rc *RuleContext) error {
		_, err := rc.AddLogic(&Logic{
			Name:      "once",
			Callbacks: Callbacks{OnTeardown: func(*Control, any, any) { teardowns++ }},
		}, nil)
		return err
	})

	commit := rc.Dispose()
	rc.Dispose()()
	commit()
	commit()
	rc.Dispose()()

	assert.Equal(t, 1, teardowns)
}

func TestRuleContext_DisposeCommitsNestedBeforeOwnDisposed(t *testing.T) {
	var order []string
	child := RuleFunc(func(rc *RuleContext) error {
		_, err := rc.AddLogic(&Logic{
			Name:      "child",
			Callbacks: Callbacks{OnTeardown: func(*Control, any, any) { order = append(order, "child teardown") }},
		}, nil)
		return err
	})

	rc := newTestRule(t, "x", func(rc *RuleContext) error {
		if _, err := rc.AddLogic(&Logic{
			Name:      "own",
			Callbacks: Callbacks{OnTeardown: func(*Control, any, any) { order = append(order, "own teardown") }},
		}, nil); err != nil {
			return err
		}
		nested, err := rc.CreateRuleContext(rc.Token(), child, nil)
		if err != nil {
			return err
		}
		nested.OnDisposed(func() { order = append(order, "child disposed") })
		return nil
	})
	rc.OnDisposed(func() { order = append(order, "parent disposed") })

	rc.Dispose()()

	assert.Equal(t, []string{"own teardown", "child teardown", "child disposed", "parent disposed"}, order)
}

func TestRuleContext_UseAfterDisposePanics(t *testing.T) {
	rc := newTestRule(t, "x", nil)
	rc.Dispose()()

	assertPanicsWithCode(t, ErrCodeDisposed, func() { rc.Start() })
	assertPanicsWithCode(t, ErrCodeDisposed, func() { rc.AddLogicContext(nil) })
	assertPanicsWithCode(t, ErrCodeDisposed, func() { rc.OnRaise(func([]ir.Issue) {}) })

	// Stop after dispose is a no-op.
	rc.Stop()
	assert.Equal(t, RuleDisposed, rc.Status())
}

func TestRuleContext_CreateInScope(t *testing.T) {
	var nested *RuleContext
	var got Params
	root := scope.New("root", nil)

	inner := RuleFunc(func(rc *RuleContext) error {
		_, err := rc.AddLogic(&Logic{
			Name:      "reader",
			Params:    map[string]Param{"v": Watch("local")},
			Callbacks: Callbacks{OnRun: func(_ *Control, _ any, p Params) { got = p }},
		}, nil)
		return err
	})

	rc := newTestRuleInScope(t, "x", root, func(rc *RuleContext) error {
		_, err := rc.AddLogic(&Logic{
			Name: "spawner",
			Full: true,
			Callbacks: Callbacks{OnSetup: func(c *Control, _ any) any {
				var err error
				nested, err = c.Full().CreateRuleContextInScope("inner", inner)
				require.NoError(t, err)
				return nil
			}},
		}, nil)
		return err
	})

	require.NotNil(t, nested)
	assert.Equal(t, "inner", nested.Scope().ID())
	assert.Same(t, root, nested.Scope().Parent())

	require.NoError(t, nested.Scope().Set("", "local", 7, true, "owner", false))
	nested.Start()
	assert.Equal(t, Params{"v": 7}, got)

	status, _ := root.Lookup("local")
	assert.Equal(t, scope.StatusUndefined, status, "inner registrations stay inner")

	innerScope := nested.Scope()
	rc.Dispose()()
	assert.True(t, innerScope.Disposed(), "the child scope is disposed with its rule context")
}

func TestRuleContext_CreateRuleContextFromControl(t *testing.T) {
	var nested *RuleContext
	rc := newTestRule(t, map[string]any{"a": "v"}, func(rc *RuleContext) error {
		_, err := rc.AddLogic(&Logic{
			Name: "spawner",
			Full: true,
			Callbacks: Callbacks{OnSetup: func(c *Control, _ any) any {
				var err error
				nested, err = c.Full().CreateRuleContext(raisingRule("inner"), nil)
				require.NoError(t, err)
				return nil
			}},
		}, nil)
		return err
	})

	require.NotNil(t, nested)
	assert.Same(t, rc.Token(), nested.Token(), "nil content reuses the unit's node")
	assert.Len(t, rc.RuleContexts(), 1)
}

func TestRuleContext_TokenIssues(t *testing.T) {
	tok := token.FromValue("x")
	rc, err := NewRuleContext(tok, raisingRule("bad"), scope.New("root", nil))
	require.NoError(t, err)
	rc.Start()

	assert.Equal(t, []string{"bad"}, messages(tok.Issues()))
}

func raisingRule(message string) Rule {
	return RuleFunc(func(rc *RuleContext) error {
		_, err := rc.AddLogic(raising("raise", message), nil)
		return err
	})
}
