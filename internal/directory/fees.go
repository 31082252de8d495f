package directory

import (
	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/store"
)

func (d *Directory) fee(tx *store.Tx, key string) (uint64, error) {
	def := d.cfg.RegistrationFee
	if key == keyNamingFee {
		def = d.cfg.NamingFee
	}
	v, err := tx.Setting(settingsScope, key, def)
	if err != nil {
		return 0, engine.Ledger(err)
	}
	return v, nil
}

// RegistrationFee returns the current registration fee.
func (d *Directory) RegistrationFee(call *engine.Call) (uint64, error) {
	return d.fee(call.Tx(), keyRegistrationFee)
}

// NamingFee returns the current name reservation fee.
func (d *Directory) NamingFee(call *engine.Call) (uint64, error) {
	return d.fee(call.Tx(), keyNamingFee)
}

// SetRegistrationFee changes the registration fee. Admin only.
func (d *Directory) SetRegistrationFee(call *engine.Call, fee uint64) error {
	return d.setFee(call, keyRegistrationFee, fee)
}

// SetNamingFee changes the name reservation fee. Admin only.
func (d *Directory) SetNamingFee(call *engine.Call, fee uint64) error {
	return d.setFee(call, keyNamingFee, fee)
}

func (d *Directory) setFee(call *engine.Call, key string, fee uint64) error {
	if err := d.requireAdmin(call); err != nil {
		return err
	}
	if err := call.Tx().PutSetting(settingsScope, key, fee); err != nil {
		return engine.Ledger(err)
	}
	return call.Emit(ir.KindFeeSet, d.cfg.Address, ir.Attrs{
		"fee":    key,
		"amount": fee,
	})
}

// Balance returns the fees collected and not yet withdrawn.
func (d *Directory) Balance(call *engine.Call) (uint64, error) {
	v, err := call.Tx().Balance(d.cfg.Address)
	return v, engine.Ledger(err)
}

// WithdrawFees moves every collected fee to to and returns the amount.
// Admin only and non-reentrant. A funds.moved fact is emitted even when
// nothing was collected.
func (d *Directory) WithdrawFees(call *engine.Call, to ir.Address) (uint64, error) {
	release, err := call.Guard(d.cfg.Address, entryWithdraw)
	if err != nil {
		return 0, err
	}
	defer release()

	if err := d.requireAdmin(call); err != nil {
		return 0, err
	}
	amount, err := call.Tx().TakeBalance(d.cfg.Address)
	if err != nil {
		return 0, engine.Ledger(err)
	}
	if err := call.MoveFunds(d.cfg.Address, to, amount, d.ReceiverOf(call, to)); err != nil {
		return 0, err
	}
	return amount, nil
}

// ReceiverOf returns the module bound to address, as seen from call's chain,
// when it accepts transfers, or nil.
func (d *Directory) ReceiverOf(call *engine.Call, address ir.Address) engine.Receiver {
	m, ok := d.moduleIn(call, address)
	if !ok {
		return nil
	}
	r, _ := m.(engine.Receiver)
	return r
}

func (d *Directory) requireAdmin(call *engine.Call) error {
	if d.cfg.Admin.IsZero() || call.Caller() != d.cfg.Admin {
		return engine.Errorf(engine.CodeNotAuthorized, "%s is not the directory administrator", call.Caller())
	}
	return nil
}
