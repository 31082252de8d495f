package hub

import (
	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/ir"
)

// SetAllowAll switches blanket authorization. Admin only.
func (h *Hub) SetAllowAll(call *engine.Call, allow bool) error {
	if err := h.requireAdmin(call); err != nil {
		return err
	}
	if err := call.Tx().SetAllowAll(h.id, allow); err != nil {
		return engine.Ledger(err)
	}
	return call.Emit(ir.KindPolicyChanged, h.address, ir.Attrs{"allow_all": allow})
}

// SetAllowedInput adds id to, or removes it from, the allow-set. Admin only.
// Revoking an id does not remove an existing edge, but deliveries over it
// are refused from then on.
func (h *Hub) SetAllowedInput(call *engine.Call, id ir.HubID, allowed bool) error {
	if err := h.requireAdmin(call); err != nil {
		return err
	}
	if err := call.Tx().SetAllowedInput(h.id, id, allowed); err != nil {
		return engine.Ledger(err)
	}
	return call.Emit(ir.KindPolicyChanged, h.address, ir.Attrs{"input": id, "allowed": allowed})
}

// SetInputActive pauses or resumes deliveries over an existing input edge.
// Admin only.
func (h *Hub) SetInputActive(call *engine.Call, id ir.HubID, active bool) error {
	if err := h.requireAdmin(call); err != nil {
		return err
	}
	ok, err := call.Tx().SetInputActive(h.id, id, active)
	if err != nil {
		return engine.Ledger(err)
	}
	if !ok {
		return engine.Errorf(engine.CodeNotAnInput, "hub %d is not an input of hub %d", id, h.id)
	}
	return call.Emit(ir.KindPolicyChanged, h.address, ir.Attrs{"input": id, "active": active})
}

// WithdrawFees moves the hub's collected payments to to. Admin only and
// non-reentrant.
func (h *Hub) WithdrawFees(call *engine.Call, to ir.Address) (uint64, error) {
	release, err := call.Guard(h.address, entryWithdraw)
	if err != nil {
		return 0, err
	}
	defer release()

	if err := h.requireAdmin(call); err != nil {
		return 0, err
	}
	amount, err := call.Tx().TakeBalance(h.address)
	if err != nil {
		return 0, engine.Ledger(err)
	}
	if err := call.MoveFunds(h.address, to, amount, h.dir.ReceiverOf(call, to)); err != nil {
		return 0, err
	}
	return amount, nil
}
