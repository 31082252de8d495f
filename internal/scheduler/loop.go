package scheduler

import (
	"time"

	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/store"
)

const entryExecute = "loop_execute"

// Owner is the hub a loop belongs to.
type Owner interface {
	ID() ir.HubID
	Address() ir.Address
}

// Readiness is the hub-specific dispatch predicate. It returns nil when the
// hub has work, or a KindPrecondition error explaining why not (for example
// CodeNothingQueued). Any other error is a failure, not a "no".
type Readiness interface {
	Ready(call *engine.Call) error
}

// ReadinessFunc adapts a function to Readiness.
type ReadinessFunc func(call *engine.Call) error

// Ready calls f.
func (f ReadinessFunc) Ready(call *engine.Call) error { return f(call) }

// Dispatcher performs the hub's deferred work.
type Dispatcher interface {
	Dispatch(call *engine.Call) error
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(call *engine.Call) error

// Dispatch calls f.
func (f DispatchFunc) Dispatch(call *engine.Call) error { return f(call) }

// Loop is the scheduler handshake of one hub.
//
// Probe and Execute may be called by different drivers with no coordination
// between them. The generation in the token is what keeps a dispatch from
// running twice: Execute only succeeds against the generation the token
// names, and every success advances it.
type Loop struct {
	owner    Owner
	interval time.Duration
	ready    Readiness
	dispatch Dispatcher
}

// NewLoop binds a loop to owner and records its interval in the ledger. An
// existing loop keeps its generation.
func NewLoop(call *engine.Call, owner Owner, interval time.Duration, ready Readiness, dispatch Dispatcher) (*Loop, error) {
	if interval < 0 {
		return nil, engine.Errorf(engine.CodeInvalidArgument, "negative loop interval %s", interval)
	}
	if err := call.Tx().InitLoopState(owner.ID(), interval); err != nil {
		return nil, engine.Ledger(err)
	}
	return &Loop{owner: owner, interval: interval, ready: ready, dispatch: dispatch}, nil
}

// Hub returns the id of the hub the loop drives.
func (l *Loop) Hub() ir.HubID { return l.owner.ID() }

// Interval returns the minimum time between dispatches.
func (l *Loop) Interval() time.Duration { return l.interval }

// State returns the stored loop state.
func (l *Loop) State(call *engine.Call) (store.LoopState, error) {
	st, ok, err := call.Tx().LoopStateOf(l.owner.ID())
	if err != nil {
		return store.LoopState{}, engine.Ledger(err)
	}
	if !ok {
		return store.LoopState{}, engine.Errorf(engine.CodeNotScheduled, "hub %d has no loop", l.owner.ID())
	}
	return st, nil
}

// elapsed reports whether the interval has passed since the last dispatch.
// A loop that has never dispatched is not held back.
func (l *Loop) elapsed(call *engine.Call, st store.LoopState) bool {
	if st.LastDispatch.IsZero() {
		return true
	}
	return call.Now().Sub(st.LastDispatch) >= l.interval
}

// Probe reports whether a dispatch would succeed now and returns the token
// to execute it with. It changes nothing.
func (l *Loop) Probe(call *engine.Call) (bool, string, error) {
	st, err := l.State(call)
	if err != nil {
		return false, "", err
	}
	token, err := Token{Hub: l.owner.ID(), Generation: st.Generation}.Encode()
	if err != nil {
		return false, "", engine.Errorf(engine.CodeLedgerFailure, "encode continuation").Wrap(err)
	}
	if !l.elapsed(call, st) {
		return false, token, nil
	}
	if err := l.ready.Ready(call); err != nil {
		if engine.IsKind(err, engine.KindPrecondition) {
			return false, token, nil
		}
		return false, "", err
	}
	return true, token, nil
}

// Execute dispatches against the generation named by token. Non-reentrant.
//
// Checks run in order: the token must decode, name this hub and the current
// generation; then the interval and the readiness predicate are checked
// again because state may have moved since the probe.
func (l *Loop) Execute(call *engine.Call, token string) error {
	release, err := call.Guard(l.owner.Address(), entryExecute)
	if err != nil {
		return err
	}
	defer release()

	t, err := DecodeToken(token)
	if err != nil {
		return engine.Errorf(engine.CodeMalformedContinuation, "unreadable continuation").Wrap(err)
	}
	if t.Hub != l.owner.ID() {
		return engine.Errorf(engine.CodeStaleContinuation, "continuation is for hub %d, not %d", t.Hub, l.owner.ID())
	}
	st, err := l.State(call)
	if err != nil {
		return err
	}
	if t.Generation != st.Generation {
		return engine.Errorf(engine.CodeStaleContinuation, "continuation generation %d, current %d", t.Generation, st.Generation)
	}
	if !l.elapsed(call, st) {
		wait := l.interval - call.Now().Sub(st.LastDispatch)
		return engine.Errorf(engine.CodeIntervalNotElapsed, "next dispatch in %s", wait)
	}
	if err := l.ready.Ready(call); err != nil {
		return err
	}

	advanced, err := call.Tx().AdvanceLoop(l.owner.ID(), t.Generation, call.Now())
	if err != nil {
		return engine.Ledger(err)
	}
	if !advanced {
		return engine.Errorf(engine.CodeStaleContinuation, "generation %d already advanced", t.Generation)
	}
	if err := l.dispatch.Dispatch(call); err != nil {
		return err
	}
	return call.Emit(ir.KindDispatched, l.owner.Address(), ir.Attrs{
		"hub":        l.owner.ID(),
		"generation": t.Generation + 1,
	})
}
