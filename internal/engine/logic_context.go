package engine

import (
	"fmt"
	"log/slog"
	"maps"
	"reflect"

	"github.com/roach88/rapture/internal/ir"
	"github.com/roach88/rapture/internal/scope"
	"github.com/roach88/rapture/internal/token"
)

// Properties identify a LogicContext and place it in the tree.
type Properties struct {
	// Name must be non-empty; the id is derived from it.
	Name string

	// Parent is the owning RuleContext.
	Parent *RuleContext

	// Previous is the prior unit applied to the same node, if any. It is
	// not owned; only its state is read.
	Previous *LogicContext

	// FullControl grants the privileged control surface.
	FullControl bool
}

type paramMeta struct {
	required bool
	status   ValueState
	watchID  string
}

type parameters struct {
	names     []string
	meta      map[string]*paramMeta
	values    map[string]any
	contexts  map[string]*LogicContext
	listeners map[string]scope.Unsubscribe
}

type status struct {
	runState            RunState
	valueState          ValueState
	paramState          ValidationState
	validationState     ValidationState
	fullValidationState ValidationState

	raiseEmitPending bool
	valueEmitPending bool
	stateEmitPending bool
}

// LogicContext is a live, stateful instance of a Logic bound to one node.
//
// INVARIANTS:
//   - valueState is undefined whenever runState is stopped or stopping
//   - fullValidationState is validationState unless that is passing, in
//     which case it is the previous unit's state (passing without one)
//   - a state event is queued only when fullValidationState changes
//   - nothing mutates a disposed context
type LogicContext struct {
	id          string
	name        string
	ruleContext *RuleContext
	previous    *LogicContext
	options     Options
	callbacks   Callbacks
	token       *token.Token
	content     any
	control     *Control

	status       status
	livingIssues []ir.Issue
	currentValue any
	params       parameters
	disposables  []Subscription

	// running is set while run executes; emission waits for the flush
	// at the end of the triggering operation.
	running bool
	// degraded is set while OnRun executes with failing parameters.
	degraded bool

	raiseEv     emitter[struct{}]
	updateEv    emitter[Update]
	stateEv     emitter[ValidationState]
	disposingEv emitter[struct{}]
	disposedEv  emitter[struct{}]
}

// NewLogicContext builds a context. It fails when the name is empty, the
// parent is missing, a parameter is malformed, or parameters are declared
// without OnRun.
func NewLogicContext(props Properties, callbacks Callbacks, params map[string]Param, opts Options) (*LogicContext, error) {
	if props.Parent == nil {
		return nil, newInvalidArgument("parent rule context is required")
	}
	if props.Name == "" {
		return nil, newInvalidArgument("name must be a non-empty string")
	}
	if callbacks.OnRun == nil && len(params) > 0 {
		return nil, &Error{
			Code:    ErrCodeMissingRun,
			Message: "OnRun is required when parameters are declared",
			Context: props.Name,
		}
	}
	props.Parent.checkDisposed()

	rc := props.Parent
	lc := &LogicContext{
		id:          props.Name + "-" + rc.ids.Generate(),
		name:        props.Name,
		ruleContext: rc,
		options:     opts,
		callbacks:   callbacks,
		token:       rc.Token(),
		status: status{
			runState:            RunStopped,
			valueState:          ValueUndefined,
			paramState:          Passing,
			validationState:     Passing,
			fullValidationState: Passing,
		},
	}
	if opts.UseToken {
		lc.content = lc.token
	} else {
		lc.content = lc.token.Raw()
	}
	lc.control = newControl(lc, props.FullControl)

	if err := lc.processParameters(params); err != nil {
		lc.release()
		return nil, err
	}

	if props.Previous != nil {
		lc.previous = props.Previous
		lc.disposables = append(lc.disposables,
			props.Previous.OnState(lc.onStateUpdate),
			props.Previous.OnDisposed(func() { lc.previous = nil }),
		)
	}

	if callbacks.OnSetup != nil {
		if v := callbacks.OnSetup(lc.control, lc.content); v != nil {
			lc.currentValue = v
		}
	}

	lc.calculateFullValidationState()

	// Nobody can be listening yet.
	lc.status.raiseEmitPending = false
	lc.status.valueEmitPending = false
	lc.status.stateEmitPending = false

	slog.Debug("logic context created", "id", lc.id, "params", len(lc.params.names), "previous", props.Previous != nil)

	return lc, nil
}

// release undoes a partially constructed context.
func (lc *LogicContext) release() {
	for _, d := range lc.disposables {
		d()
	}
	lc.disposables = nil
	for _, name := range lc.params.names {
		if ctx := lc.params.contexts[name]; ctx != nil {
			ctx.Dispose()()
		}
	}
}

func (lc *LogicContext) processParameters(params map[string]Param) error {
	lc.params = parameters{
		meta:      make(map[string]*paramMeta, len(params)),
		values:    make(map[string]any, len(params)),
		contexts:  make(map[string]*LogicContext),
		listeners: make(map[string]scope.Unsubscribe),
	}

	lc.disposables = append(lc.disposables, func() {
		for _, name := range lc.params.names {
			lc.stopWatch(name)
		}
	})

	for _, name := range sortedParamNames(params) {
		p := params[name]
		if p.Logic != nil && p.Value != nil {
			return newInvalidArgument("parameter %q sets both a value and a logic", name)
		}

		lc.params.names = append(lc.params.names, name)

		var err error
		if p.Required {
			err = lc.processRequired(name, p)
		} else {
			err = lc.processDefinition(name, p)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func (lc *LogicContext) buildParamContext(name string, l *Logic) (*LogicContext, error) {
	ctx, err := l.BuildContext(lc.ruleContext, false, nil)
	if err != nil {
		return nil, fmt.Errorf("parameter %q: %w", name, err)
	}
	lc.params.contexts[name] = ctx
	return ctx, nil
}

func (lc *LogicContext) processRequired(name string, p Param) error {
	meta := &paramMeta{required: true, status: ValueUndefined}
	lc.params.meta[name] = meta

	if p.Logic != nil {
		ctx, err := lc.buildParamContext(name, p.Logic)
		if err != nil {
			return err
		}

		lc.updateParameter(name, ValueUndefined, nil)

		lc.disposables = append(lc.disposables, ctx.OnUpdate(func(vs ValueState, v any) {
			lc.onWatchUpdate(name, vs, v)
		}))
		lc.onWatchUpdate(name, ctx.ValueState(), ctx.Value())
		return nil
	}

	id, ok := p.Value.(string)
	if !ok || id == "" {
		return newInvalidArgument("required parameter %q must name a scope id", name)
	}

	meta.watchID = id
	lc.params.listeners[name] = lc.ruleContext.Scope().Watch(id, lc.watchHandler(name))
	return nil
}

func (lc *LogicContext) processDefinition(name string, p Param) error {
	meta := &paramMeta{}
	lc.params.meta[name] = meta

	if p.Logic != nil {
		ctx, err := lc.buildParamContext(name, p.Logic)
		if err != nil {
			return err
		}

		lc.updateParameter(name, ctx.ValueState(), ctx.Value())

		lc.disposables = append(lc.disposables, ctx.OnUpdate(func(vs ValueState, v any) {
			lc.onParameterUpdate(name, vs, v)
		}))
		return nil
	}

	lc.params.values[name] = p.Value
	meta.status = ValueDefined
	return nil
}

func (lc *LogicContext) watchHandler(name string) scope.WatchFunc {
	return func(s scope.Status, v any) {
		lc.onParameterUpdate(name, valueStateOf(s), v)
	}
}

func (lc *LogicContext) stopWatch(name string) {
	if unsub := lc.params.listeners[name]; unsub != nil {
		unsub()
		delete(lc.params.listeners, name)
	}
}

// onWatchUpdate re-binds a required parameter whose scope id is the
// output of a nested unit.
func (lc *LogicContext) onWatchUpdate(name string, vs ValueState, v any) {
	meta := lc.params.meta[name]

	id, isID := v.(string)
	if vs != ValueDefined || !isID || id == "" {
		meta.watchID = ""
		lc.stopWatch(name)
		if vs == ValueDefined {
			vs = ValueFailing
		}
		lc.onParameterUpdate(name, vs, nil)
		return
	}

	if id == meta.watchID {
		return
	}

	lc.stopWatch(name)
	meta.watchID = id
	lc.params.listeners[name] = lc.ruleContext.Scope().Watch(id, lc.watchHandler(name))
}

func (lc *LogicContext) updateParameter(name string, vs ValueState, v any) {
	lc.params.meta[name].status = vs

	if vs == ValueDefined {
		lc.params.values[name] = v
	} else {
		delete(lc.params.values, name)
	}
}

// onParameterUpdate re-runs a started unit immediately. Parameter changes
// are the trigger for recomputation, so the flush is forced.
func (lc *LogicContext) onParameterUpdate(name string, vs ValueState, v any) {
	lc.updateParameter(name, vs, v)

	if lc.status.runState == RunStarted && !lc.running {
		lc.run()
		lc.runEmits(true)
	}
}

func (lc *LogicContext) onStateUpdate(ValidationState) {
	if lc.options.OnStateChange && lc.status.runState == RunStarted && !lc.running {
		lc.run()
	}

	lc.calculateFullValidationState()
	lc.runEmits(false)
}

// checkParameters reports whether the unit may run. Failing parameters
// block without a new issue since their source already reports one. A
// required parameter that was never defined yields a warning.
func (lc *LogicContext) checkParameters() (bool, []ir.Issue) {
	ready := true
	var issues []ir.Issue

	for _, name := range lc.params.names {
		meta := lc.params.meta[name]
		switch meta.status {
		case ValueDefined:
		case ValueUndefined:
			ready = false
			if meta.required {
				issues = append(issues, ir.NewIssue(ir.IssueTypeRule, "", nil,
					fmt.Sprintf("Required rule value %q is not defined.", name), ir.SeverityWarning))
			}
		case ValueFailing:
			ready = false
		default:
			panic(&Error{
				Code:    ErrCodeUnreachable,
				Message: fmt.Sprintf("parameter %q has unknown status %q", name, meta.status),
				Context: lc.id,
			})
		}
	}

	for _, name := range lc.params.names {
		if ctx := lc.params.contexts[name]; ctx != nil {
			issues = append(issues, ctx.Issues()...)
		}
	}

	if len(issues) > 0 {
		ready = false
	}

	return ready, issues
}

func (lc *LogicContext) run() {
	wasRunning := lc.running
	lc.running = true
	defer func() { lc.running = wasRunning }()

	ready, issues := lc.checkParameters()

	if !ready {
		lc.status.paramState = Failing

		if lc.options.RunOnFailure && lc.callbacks.OnRun != nil {
			lc.runDegraded()
		}

		// Parameter issues go in after the run so they are what remains.
		lc.raise(issues)
		return
	}

	lc.status.paramState = Passing
	lc.raise(nil)

	if lc.callbacks.OnRun != nil {
		lc.callbacks.OnRun(lc.control, lc.content, lc.resolvedParams())
	}
}

func (lc *LogicContext) runDegraded() {
	lc.degraded = true
	defer func() { lc.degraded = false }()

	lc.callbacks.OnRun(lc.control, lc.content, lc.resolvedParams())
}

func (lc *LogicContext) resolvedParams() Params {
	return Params(maps.Clone(lc.params.values))
}

func (lc *LogicContext) raise(issues []ir.Issue) {
	if len(issues) > 0 || len(lc.livingIssues) > 0 {
		next := make([]ir.Issue, len(issues))
		loc := lc.token.Location()
		for i, issue := range issues {
			next[i] = issue.WithDefaults(lc.name, loc)
		}
		lc.livingIssues = next
		lc.status.raiseEmitPending = true
	}

	lc.calculateValueState()
	lc.calculateValidationState()

	lc.runEmits(false)
}

func (lc *LogicContext) set(value any) bool {
	if reflect.DeepEqual(value, lc.currentValue) {
		return false
	}

	lc.currentValue = value

	lc.calculateValueState()
	lc.calculateValidationState()

	lc.status.valueEmitPending = true

	lc.runEmits(false)

	return true
}

func (lc *LogicContext) calculateValueState() {
	next := ValueFailing

	switch {
	case lc.status.runState == RunStopped || lc.status.runState == RunStopping:
		next = ValueUndefined
	case len(lc.livingIssues) == 0 && lc.status.paramState == Passing:
		if lc.currentValue == nil {
			next = ValueUndefined
		} else {
			next = ValueDefined
		}
	}

	if lc.status.valueState != next {
		lc.status.valueState = next
		lc.status.valueEmitPending = true
	}
}

func (lc *LogicContext) calculateValidationState() {
	if len(lc.livingIssues) == 0 && lc.status.paramState == Passing {
		lc.status.validationState = Passing
	} else {
		lc.status.validationState = Failing
	}

	lc.calculateFullValidationState()
}

func (lc *LogicContext) previousState() ValidationState {
	if lc.previous != nil {
		return lc.previous.State()
	}
	return Passing
}

func (lc *LogicContext) calculateFullValidationState() {
	final := lc.status.validationState
	if final == Passing {
		// Anything from the previous unit overrides a pass.
		final = lc.previousState()
	}

	if lc.status.fullValidationState != final {
		lc.status.fullValidationState = final
		lc.status.stateEmitPending = true
	}
}

// runEmits flushes pending events in order raise, update, state. Without
// force it only emits while started and outside a run.
func (lc *LogicContext) runEmits(force bool) {
	if !force && (lc.status.runState != RunStarted || lc.running) {
		return
	}

	if lc.status.raiseEmitPending {
		lc.status.raiseEmitPending = false
		lc.raiseEv.emit(struct{}{})
	}

	if lc.status.valueEmitPending {
		lc.status.valueEmitPending = false
		lc.updateEv.emit(Update{State: lc.status.valueState, Value: lc.currentValue})
	}

	if lc.status.stateEmitPending {
		lc.status.stateEmitPending = false
		lc.stateEv.emit(lc.status.fullValidationState)
	}
}

func (lc *LogicContext) transition(to RunState) {
	slog.Debug("logic context transition", "id", lc.id, "from", lc.status.runState, "to", to)
	lc.status.runState = to
}

func (lc *LogicContext) checkDisposed() {
	if lc.status.runState == RunDisposed {
		panic(newDisposedError(lc.id))
	}
}

// Start brings parameter contexts up, runs the unit and flushes its
// events. Starting a started or starting context is a no-op.
func (lc *LogicContext) Start() {
	lc.checkDisposed()

	switch lc.status.runState {
	case RunStarted, RunStarting, RunDisposing:
		return
	}

	lc.transition(RunStarting)

	for _, name := range lc.params.names {
		if ctx := lc.params.contexts[name]; ctx != nil {
			ctx.Start()
		}
	}

	lc.run()

	lc.calculateFullValidationState()
	lc.calculateValueState()

	lc.runEmits(true)

	lc.transition(RunStarted)
}

// Stop stops parameter contexts, pauses the unit, clears its issues and
// flushes. Stopping a stopped or stopping context is a no-op.
func (lc *LogicContext) Stop() {
	lc.checkDisposed()

	switch lc.status.runState {
	case RunStopped, RunStopping, RunDisposing:
		return
	}

	lc.transition(RunStopping)

	for _, name := range lc.params.names {
		if ctx := lc.params.contexts[name]; ctx != nil {
			ctx.Stop()
		}
	}

	if lc.callbacks.OnPause != nil {
		lc.callbacks.OnPause(lc.control, lc.content, lc.currentValue)
	}

	lc.raise(nil)
	lc.forceUndefined()

	lc.runEmits(true)

	lc.transition(RunStopped)
}

func (lc *LogicContext) forceUndefined() {
	if lc.status.valueState != ValueUndefined {
		lc.status.valueState = ValueUndefined
		lc.status.valueEmitPending = true
	}
}

// Dispose prepares disposal of the context and its parameter contexts and
// returns the commit that finishes it. Subscriptions are released now;
// teardown runs only inside the commit, after every child commit. A
// second Dispose returns a no-op commit.
func (lc *LogicContext) Dispose() Commit {
	switch lc.status.runState {
	case RunDisposed, RunDisposing:
		return noopCommit
	}

	lc.transition(RunDisposing)
	lc.disposingEv.emit(struct{}{})

	for _, d := range lc.disposables {
		d()
	}
	lc.disposables = nil
	// The previous unit may commit first; its state no longer applies.
	lc.previous = nil

	var commits []Commit
	for _, name := range lc.params.names {
		if ctx := lc.params.contexts[name]; ctx != nil {
			commits = append(commits, ctx.Dispose())
		}
	}

	committed := false
	return func() {
		if committed {
			return
		}
		committed = true

		for _, commit := range commits {
			commit()
		}

		if lc.callbacks.OnTeardown != nil {
			lc.callbacks.OnTeardown(lc.control, lc.content, lc.currentValue)
		}

		lc.raise(nil)
		lc.forceUndefined()

		lc.runEmits(true)

		lc.transition(RunDisposed)
		lc.disposedEv.emit(struct{}{})

		lc.raiseEv.reset()
		lc.updateEv.reset()
		lc.stateEv.reset()
		lc.disposingEv.reset()
		lc.disposedEv.reset()
	}
}

// ID returns the unique id of the context. Readable after disposal.
func (lc *LogicContext) ID() string { return lc.id }

// Name returns the logic name. Readable after disposal.
func (lc *LogicContext) Name() string { return lc.name }

// RunState returns the lifecycle state. Readable after disposal.
func (lc *LogicContext) RunState() RunState { return lc.status.runState }

// State returns the full validation state.
func (lc *LogicContext) State() ValidationState {
	lc.checkDisposed()
	return lc.status.fullValidationState
}

// ValidationState returns the unit's own validation state, without
// inheritance from the previous unit.
func (lc *LogicContext) ValidationState() ValidationState {
	lc.checkDisposed()
	return lc.status.validationState
}

// ParamState reports whether all parameters are resolved and valid.
func (lc *LogicContext) ParamState() ValidationState {
	lc.checkDisposed()
	return lc.status.paramState
}

// ValueState returns the value state.
func (lc *LogicContext) ValueState() ValueState {
	lc.checkDisposed()
	return lc.status.valueState
}

// Value returns the current value; nil means absent.
func (lc *LogicContext) Value() any {
	lc.checkDisposed()
	return lc.currentValue
}

// Issues returns the living issues.
func (lc *LogicContext) Issues() []ir.Issue {
	lc.checkDisposed()
	return lc.livingIssues
}

// OnRaise subscribes to issue-set changes.
func (lc *LogicContext) OnRaise(fn func()) Subscription {
	lc.checkDisposed()
	return lc.raiseEv.subscribe(func(struct{}) { fn() })
}

// OnUpdate subscribes to value and value-state changes.
func (lc *LogicContext) OnUpdate(fn func(ValueState, any)) Subscription {
	lc.checkDisposed()
	return lc.updateEv.subscribe(func(u Update) { fn(u.State, u.Value) })
}

// OnState subscribes to full validation state changes.
func (lc *LogicContext) OnState(fn func(ValidationState)) Subscription {
	lc.checkDisposed()
	return lc.stateEv.subscribe(fn)
}

// OnDisposing subscribes to the start of disposal.
func (lc *LogicContext) OnDisposing(fn func()) Subscription {
	lc.checkDisposed()
	return lc.disposingEv.subscribe(func(struct{}) { fn() })
}

// OnDisposed subscribes to the end of disposal.
func (lc *LogicContext) OnDisposed(fn func()) Subscription {
	lc.checkDisposed()
	return lc.disposedEv.subscribe(func(struct{}) { fn() })
}
