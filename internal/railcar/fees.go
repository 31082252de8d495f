package railcar

import (
	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/ir"
)

// CreationFee returns the current creation fee.
func (r *Registry) CreationFee(call *engine.Call) (uint64, error) {
	v, err := call.Tx().Setting(settingsScope, keyCreationFee, r.cfg.CreationFee)
	return v, engine.Ledger(err)
}

// SetCreationFee changes the creation fee. Admin only.
func (r *Registry) SetCreationFee(call *engine.Call, fee uint64) error {
	if err := r.requireAdmin(call); err != nil {
		return err
	}
	if err := call.Tx().PutSetting(settingsScope, keyCreationFee, fee); err != nil {
		return engine.Ledger(err)
	}
	return call.Emit(ir.KindFeeSet, r.cfg.Address, ir.Attrs{
		"fee":    keyCreationFee,
		"amount": fee,
	})
}

// Balance returns the fees collected and not yet withdrawn.
func (r *Registry) Balance(call *engine.Call) (uint64, error) {
	v, err := call.Tx().Balance(r.cfg.Address)
	return v, engine.Ledger(err)
}

// WithdrawFees moves every collected fee to to. Admin only and
// non-reentrant.
func (r *Registry) WithdrawFees(call *engine.Call, to ir.Address) (uint64, error) {
	release, err := call.Guard(r.cfg.Address, entryWithdraw)
	if err != nil {
		return 0, err
	}
	defer release()

	if err := r.requireAdmin(call); err != nil {
		return 0, err
	}
	amount, err := call.Tx().TakeBalance(r.cfg.Address)
	if err != nil {
		return 0, engine.Ledger(err)
	}
	var recv engine.Receiver
	if r.dir != nil {
		recv = r.dir.ReceiverOf(call, to)
	}
	if err := call.MoveFunds(r.cfg.Address, to, amount, recv); err != nil {
		return 0, err
	}
	return amount, nil
}

// charge checks the call's payment against the creation fee and collects it.
func (r *Registry) charge(call *engine.Call) error {
	fee, err := r.CreationFee(call)
	if err != nil {
		return err
	}
	if call.Value() < fee {
		return engine.PaymentTooLow(fee, call.Value())
	}
	return engine.Ledger(call.Tx().Credit(r.cfg.Address, call.Value()))
}

func (r *Registry) requireAdmin(call *engine.Call) error {
	if r.cfg.Admin.IsZero() || call.Caller() != r.cfg.Admin {
		return engine.Errorf(engine.CodeNotAuthorized, "%s is not the railcar administrator", call.Caller())
	}
	return nil
}
