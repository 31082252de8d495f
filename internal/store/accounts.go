package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/railyard/internal/ir"
)

// Setting returns the value stored under (scope, key), or def when unset.
func (t *Tx) Setting(scope, key string, def uint64) (uint64, error) {
	var v int64
	err := t.queryRow(`SELECT value FROM settings WHERE scope = ? AND key = ?`, scope, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read setting %s/%s: %w", scope, key, err)
	}
	return uint64(v), nil
}

// PutSetting stores value under (scope, key).
func (t *Tx) PutSetting(scope, key string, value uint64) error {
	v, err := amount(value)
	if err != nil {
		return fmt.Errorf("put setting %s/%s: %w", scope, key, err)
	}
	_, err = t.exec(`
		INSERT INTO settings (scope, key, value) VALUES (?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET value = excluded.value
	`, scope, key, v)
	if err != nil {
		return fmt.Errorf("put setting %s/%s: %w", scope, key, err)
	}
	return nil
}

// GrantCapability records that address holds c. Granting twice is a no-op.
func (t *Tx) GrantCapability(address ir.Address, c ir.Capability) error {
	_, err := t.exec(`INSERT OR IGNORE INTO capabilities (address, capability) VALUES (?, ?)`, string(address), string(c))
	if err != nil {
		return fmt.Errorf("grant capability: %w", err)
	}
	return nil
}

// HasCapability reports whether address holds c.
func (t *Tx) HasCapability(address ir.Address, c ir.Capability) (bool, error) {
	var n int
	err := t.queryRow(`SELECT COUNT(*) FROM capabilities WHERE address = ? AND capability = ?`, string(address), string(c)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has capability: %w", err)
	}
	return n > 0, nil
}

// Credit adds delta to account's collected balance.
func (t *Tx) Credit(account ir.Address, delta uint64) error {
	if delta == 0 {
		return nil
	}
	d, err := amount(delta)
	if err != nil {
		return fmt.Errorf("credit %s: %w", account, err)
	}
	_, err = t.exec(`
		INSERT INTO balances (account, amount) VALUES (?, ?)
		ON CONFLICT(account) DO UPDATE SET amount = amount + excluded.amount
	`, string(account), d)
	if err != nil {
		return fmt.Errorf("credit %s: %w", account, err)
	}
	return nil
}

// ErrInsufficientFunds is returned by Debit when the account holds less than
// the requested amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Debit subtracts delta from account's balance.
func (t *Tx) Debit(account ir.Address, delta uint64) error {
	if delta == 0 {
		return nil
	}
	held, err := t.Balance(account)
	if err != nil {
		return err
	}
	if held < delta {
		return fmt.Errorf("debit %s: %d of %d: %w", account, delta, held, ErrInsufficientFunds)
	}
	if _, err := t.exec(`UPDATE balances SET amount = amount - ? WHERE account = ?`, int64(delta), string(account)); err != nil {
		return fmt.Errorf("debit %s: %w", account, err)
	}
	return nil
}

// Balance returns account's collected balance.
func (t *Tx) Balance(account ir.Address) (uint64, error) {
	var v int64
	err := t.queryRow(`SELECT amount FROM balances WHERE account = ?`, string(account)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance %s: %w", account, err)
	}
	return uint64(v), nil
}

// TakeBalance zeroes account's balance and returns what it held.
func (t *Tx) TakeBalance(account ir.Address) (uint64, error) {
	held, err := t.Balance(account)
	if err != nil {
		return 0, err
	}
	if held == 0 {
		return 0, nil
	}
	if _, err := t.exec(`UPDATE balances SET amount = 0 WHERE account = ?`, string(account)); err != nil {
		return 0, fmt.Errorf("take balance %s: %w", account, err)
	}
	return held, nil
}
