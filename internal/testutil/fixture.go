package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/store"
)

// Fixture bundles a temp-dir ledger, an engine over it with deterministic
// flow tokens, and the fake clock the engine reads.
type Fixture struct {
	T      testing.TB
	Store  *store.Store
	Engine *engine.Engine
	Clock  *FakeClock
}

// NewFixture creates a Fixture. Flow tokens are "flow-1", "flow-2", ...
func NewFixture(t testing.TB, opts ...engine.EngineOption) *Fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := NewFakeClock()
	opts = append([]engine.EngineOption{engine.WithTimeSource(clock)}, opts...)
	e := engine.New(s, engine.NewSequenceGenerator("flow"), opts...)
	return &Fixture{T: t, Store: s, Engine: e, Clock: clock}
}

// Exec runs fn as a chain triggered by caller with the given payment.
func (f *Fixture) Exec(caller ir.Address, value uint64, fn engine.ChainFunc) (engine.Result, error) {
	return f.Engine.Exec(context.Background(), engine.Request{Caller: caller, Value: value}, fn)
}

// MustExec is Exec that fails the test on error.
func (f *Fixture) MustExec(caller ir.Address, value uint64, fn engine.ChainFunc) engine.Result {
	f.T.Helper()
	res, err := f.Exec(caller, value, fn)
	require.NoError(f.T, err)
	return res
}

// View runs fn against a read-only transaction.
func (f *Fixture) View(fn func(tx *store.Tx)) {
	f.T.Helper()
	err := f.Store.View(context.Background(), func(tx *store.Tx) error {
		fn(tx)
		return nil
	})
	require.NoError(f.T, err)
}

// Facts returns the committed facts matching filter.
func (f *Fixture) Facts(filter store.FactFilter) []ir.Fact {
	f.T.Helper()
	var facts []ir.Fact
	f.View(func(tx *store.Tx) {
		var err error
		facts, err = tx.Facts(filter)
		require.NoError(f.T, err)
	})
	return facts
}

// FactCount returns the number of committed facts matching filter.
func (f *Fixture) FactCount(filter store.FactFilter) int {
	f.T.Helper()
	return len(f.Facts(filter))
}

// Module is a bare engine.Module for tests that only need an identity.
type Module ir.Address

// Address returns m as an address.
func (m Module) Address() ir.Address { return ir.Address(m) }
