package hub

import (
	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/ir"
)

// AddOutputs connects this hub to each of ids. Admin only.
//
// Every id must resolve to a live hub before any edge is touched. Each
// target then authorizes the new input itself, so an edge is only recorded
// once both sides hold it.
func (h *Hub) AddOutputs(call *engine.Call, ids []ir.HubID) error {
	if err := h.requireAdmin(call); err != nil {
		return err
	}

	targets := make([]Routable, len(ids))
	for i, id := range ids {
		_, dst, err := h.resolve(call, ir.ToID(id))
		if err != nil {
			if engine.HasCode(err, engine.CodeNotFound) {
				return engine.Errorf(engine.CodeInvalidTarget, "output %d does not resolve to a hub", id).Wrap(err)
			}
			return err
		}
		targets[i] = dst
	}

	tx := call.Tx()
	for i, id := range ids {
		if err := targets[i].AddInput(call.Forward(h.address, 0)); err != nil {
			return err
		}
		if err := tx.AppendOutput(h.id, id); err != nil {
			return engine.Ledger(err)
		}
		if err := call.Emit(ir.KindEdgeAdded, h.address, ir.Attrs{"from": h.id, "to": id}); err != nil {
			return err
		}
	}
	return nil
}

// RemoveOutputs disconnects this hub from each of ids. Admin only. The
// target forgets the input before this hub forgets the output.
func (h *Hub) RemoveOutputs(call *engine.Call, ids []ir.HubID) error {
	if err := h.requireAdmin(call); err != nil {
		return err
	}

	tx := call.Tx()
	for _, id := range ids {
		has, err := tx.HasOutput(h.id, id)
		if err != nil {
			return engine.Ledger(err)
		}
		if !has {
			return engine.Errorf(engine.CodeNotAnOutput, "hub %d is not an output of hub %d", id, h.id)
		}
		_, dst, err := h.resolve(call, ir.ToID(id))
		if err != nil {
			return err
		}
		if err := dst.RemoveInput(call.Forward(h.address, 0)); err != nil {
			return err
		}
		if _, err := tx.RemoveOutput(h.id, id); err != nil {
			return engine.Ledger(err)
		}
		if err := call.Emit(ir.KindEdgeRemoved, h.address, ir.Attrs{"from": h.id, "to": id}); err != nil {
			return err
		}
	}
	return nil
}

// AddInput records the calling hub as an active input. It is invoked by the
// upstream hub's AddOutputs and applies this hub's authorization policy.
func (h *Hub) AddInput(call *engine.Call) error {
	from, err := h.authorize(call)
	if err != nil {
		return err
	}
	tx := call.Tx()
	exists, err := tx.HasInput(h.id, from)
	if err != nil {
		return engine.Ledger(err)
	}
	if exists {
		return engine.Errorf(engine.CodeEdgeExists, "hub %d is already an input of hub %d", from, h.id)
	}
	return engine.Ledger(tx.AppendInput(h.id, from))
}

// RemoveInput forgets the calling hub as an input. It is invoked by the
// upstream hub's RemoveOutputs.
func (h *Hub) RemoveInput(call *engine.Call) error {
	from, err := h.callerID(call)
	if err != nil {
		return err
	}
	removed, err := call.Tx().RemoveInput(h.id, from)
	if err != nil {
		return engine.Ledger(err)
	}
	if !removed {
		return engine.Errorf(engine.CodeNotAnInput, "%s is not an input of hub %d", call.Caller(), h.id)
	}
	return nil
}
