package modules

import (
	"github.com/roach88/railyard/internal/directory"
	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/hub"
	"github.com/roach88/railyard/internal/ir"
)

const entryLaunch = "launch"

// RelayConfig configures a Relay.
type RelayConfig struct {
	Hub hub.Config

	// Next is where arrivals are forwarded. Zero means the first output.
	Next ir.Target

	// Terminal relays end the chain for whatever enters them.
	Terminal bool

	// LaunchFee is the minimum payment for Launch.
	LaunchFee uint64
}

// Relay forwards every participant and railcar it receives to the next hub,
// or keeps it if terminal. It is also the usual origin of a chain: Launch
// sends participants into the graph on behalf of an external caller.
type Relay struct {
	*hub.Hub
	next      ir.Target
	terminal  bool
	launchFee uint64
}

// NewRelay constructs and registers a Relay.
func NewRelay(call *engine.Call, dir *directory.Directory, cfg RelayConfig) (*Relay, error) {
	r := &Relay{next: cfg.Next, terminal: cfg.Terminal, launchFee: cfg.LaunchFee}
	h, err := hub.New(call, dir, cfg.Hub, r)
	if err != nil {
		return nil, err
	}
	r.Hub = h
	return r, nil
}

// Terminal reports whether the relay ends chains.
func (r *Relay) Terminal() bool { return r.terminal }

// Launch routes each participant to the next hub in one chain. It is
// payable and non-reentrant; the payment is kept by the relay.
func (r *Relay) Launch(call *engine.Call, participants ...ir.Address) error {
	release, err := call.Guard(r.Address(), entryLaunch)
	if err != nil {
		return err
	}
	defer release()

	if call.Value() < r.launchFee {
		return engine.PaymentTooLow(r.launchFee, call.Value())
	}
	if len(participants) == 0 {
		return engine.Errorf(engine.CodeInvalidArgument, "launch needs at least one participant")
	}
	next, err := r.route(call)
	if err != nil {
		return err
	}
	if err := engine.Ledger(call.Tx().Credit(r.Address(), call.Value())); err != nil {
		return err
	}
	for _, p := range participants {
		if err := r.RouteSingle(call, p, next); err != nil {
			return err
		}
	}
	return nil
}

// DidEnterSingle forwards the participant unless the relay is terminal.
func (r *Relay) DidEnterSingle(call *engine.Call, participant ir.Address) error {
	if r.terminal {
		return nil
	}
	next, err := r.route(call)
	if err != nil {
		return err
	}
	return r.RouteSingle(call, participant, next)
}

// DidEnterGroup forwards the railcar unless the relay is terminal.
func (r *Relay) DidEnterGroup(call *engine.Call, group ir.GroupID) error {
	if r.terminal {
		return nil
	}
	next, err := r.route(call)
	if err != nil {
		return err
	}
	return r.RouteGroup(call, group, next)
}

func (r *Relay) route(call *engine.Call) (ir.Target, error) {
	next, ok, err := r.NextTarget(call, r.next)
	if err != nil {
		return ir.Target{}, err
	}
	if !ok {
		return ir.Target{}, engine.Errorf(engine.CodeNotFound, "relay %s has no next hop", r.Address())
	}
	return next, nil
}
