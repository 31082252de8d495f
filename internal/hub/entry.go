package hub

import (
	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/ir"
)

// admit runs the checks shared by both entry points and counts the hop.
func (h *Hub) admit(call *engine.Call) (ir.HubID, error) {
	from, err := h.authorize(call)
	if err != nil {
		return 0, err
	}
	active, err := call.Tx().InputActive(h.id, from)
	if err != nil {
		return 0, engine.Ledger(err)
	}
	if !active {
		return 0, engine.Errorf(engine.CodeInputInactive, "hub %d is not an active input of hub %d", from, h.id)
	}
	if err := call.Hop(); err != nil {
		return 0, err
	}
	return from, nil
}

// EnterSingle delivers a participant into the hub from the calling hub.
//
// Entry points take no reentrancy guard: chains legitimately cycle back
// through hubs they have already visited. The hop quota bounds them.
func (h *Hub) EnterSingle(call *engine.Call, participant ir.Address) error {
	from, err := h.admit(call)
	if err != nil {
		return err
	}
	if err := h.hooks.willEnterSingle(call, participant); err != nil {
		return err
	}
	if err := h.hooks.didEnterSingle(call, participant); err != nil {
		return err
	}
	return call.Emit(ir.KindEntered, h.address, ir.Attrs{
		"participant": string(participant),
		"from":        from,
	})
}

// EnterGroup delivers a railcar into the hub from the calling hub.
func (h *Hub) EnterGroup(call *engine.Call, group ir.GroupID) error {
	from, err := h.admit(call)
	if err != nil {
		return err
	}
	if err := h.hooks.willEnterGroup(call, group); err != nil {
		return err
	}
	if err := h.hooks.didEnterGroup(call, group); err != nil {
		return err
	}
	return call.Emit(ir.KindEntered, h.address, ir.Attrs{
		"group": group,
		"from":  from,
	})
}

// RouteSingle hands a participant to target within the same chain and
// returns once the downstream hub, and everything it routes to, is done.
func (h *Hub) RouteSingle(call *engine.Call, participant ir.Address, target ir.Target) error {
	r, dst, err := h.resolve(call, target)
	if err != nil {
		return err
	}
	if err := h.hooks.willExitSingle(call, participant); err != nil {
		return err
	}
	if err := call.Emit(ir.KindExited, h.address, ir.Attrs{
		"participant": string(participant),
		"to":          r.ID,
	}); err != nil {
		return err
	}
	if err := dst.EnterSingle(call.Forward(h.address, 0), participant); err != nil {
		return err
	}
	return h.hooks.didExitSingle(call, participant)
}

// RouteGroup hands a railcar to target within the same chain.
func (h *Hub) RouteGroup(call *engine.Call, group ir.GroupID, target ir.Target) error {
	r, dst, err := h.resolve(call, target)
	if err != nil {
		return err
	}
	if err := h.hooks.willExitGroup(call, group); err != nil {
		return err
	}
	if err := call.Emit(ir.KindExited, h.address, ir.Attrs{
		"group": group,
		"to":    r.ID,
	}); err != nil {
		return err
	}
	if err := dst.EnterGroup(call.Forward(h.address, 0), group); err != nil {
		return err
	}
	return h.hooks.didExitGroup(call, group)
}

// NextTarget returns next when set, else the hub's first output. ok is
// false when the hub has nowhere to route.
func (h *Hub) NextTarget(call *engine.Call, next ir.Target) (ir.Target, bool, error) {
	if !next.IsZero() {
		return next, true, nil
	}
	outs, err := h.Outputs(call)
	if err != nil {
		return ir.Target{}, false, err
	}
	if len(outs) == 0 {
		return ir.Target{}, false, nil
	}
	return ir.ToID(outs[0]), true, nil
}
