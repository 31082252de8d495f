package directory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/store"
	"github.com/roach88/railyard/internal/testutil"
)

const admin ir.Address = "admin"

func newTestDirectory(t *testing.T, cfg Config) (*Directory, *testutil.Fixture) {
	t.Helper()
	if cfg.Admin == "" {
		cfg.Admin = admin
	}
	return New(cfg), testutil.NewFixture(t)
}

// register self-registers addr, paying value.
func register(f *testutil.Fixture, d *Directory, addr ir.Address, value uint64) (ir.HubID, error) {
	var id ir.HubID
	_, err := f.Exec(addr, value, func(call *engine.Call) error {
		var err error
		id, err = d.Register(call, testutil.Module(addr))
		return err
	})
	return id, err
}

func TestRegister_SequentialIDs(t *testing.T) {
	d, f := newTestDirectory(t, Config{})

	for i, addr := range []ir.Address{"a", "b", "c"} {
		id, err := register(f, d, addr, 0)
		require.NoError(t, err)
		assert.Equal(t, ir.HubID(i+1), id)
	}

	facts := f.Facts(store.FactFilter{Kind: ir.KindRegistered})
	assert.Len(t, facts, 3)

	f.View(func(tx *store.Tx) {
		ok, err := tx.HasCapability("b", ir.CapabilityHub)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestRegister_Idempotent(t *testing.T) {
	d, f := newTestDirectory(t, Config{RegistrationFee: 5})

	first, err := register(f, d, "a", 5)
	require.NoError(t, err)
	again, err := register(f, d, "a", 0)
	require.NoError(t, err, "re-registration charges no fee")
	assert.Equal(t, first, again)

	f.MustExec("anyone", 0, func(call *engine.Call) error {
		n, err := d.TotalRegistrations(call)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), n)
		return nil
	})
	assert.Equal(t, 1, f.FactCount(store.FactFilter{Kind: ir.KindRegistered}))
}

func TestRegister_Failures(t *testing.T) {
	d, f := newTestDirectory(t, Config{
		RegistrationFee: 10,
		Policy:          PolicyFunc(func(a ir.Address) bool { return a != "banned" }),
	})

	_, err := f.Exec("mallory", 10, func(call *engine.Call) error {
		_, err := d.Register(call, testutil.Module("victim"))
		return err
	})
	assert.True(t, engine.HasCode(err, engine.CodeCallerMismatch))

	_, err = register(f, d, "banned", 10)
	assert.True(t, engine.HasCode(err, engine.CodeNotEligible))

	_, err = register(f, d, "", 10)
	assert.True(t, engine.HasCode(err, engine.CodeNotEligible), "default policy still applies")
	assert.False(t, d.CanRegister(""))
	assert.True(t, d.CanRegister("a"))
	f.MustExec("reader", 0, func(call *engine.Call) error {
		ok, err := d.IsHub(call, "")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})

	_, err = register(f, d, "cheap", 3)
	re, ok := engine.AsError(err)
	require.True(t, ok)
	assert.Equal(t, engine.KindPayment, re.Kind)
	assert.Equal(t, &engine.Bounds{Required: 10, Supplied: 3}, re.Bounds)

	assert.Zero(t, f.FactCount(store.FactFilter{}))
}

func TestReserveName_ErrorOrder(t *testing.T) {
	d, f := newTestDirectory(t, Config{NamingFee: 2})
	idA, err := register(f, d, "a", 0)
	require.NoError(t, err)
	idB, err := register(f, d, "b", 0)
	require.NoError(t, err)

	reserve := func(caller ir.Address, value uint64, name string, id ir.HubID) error {
		_, err := f.Exec(caller, value, func(call *engine.Call) error {
			return d.ReserveName(call, name, id)
		})
		return err
	}

	// Grammar is checked before payment and ownership.
	assert.True(t, engine.HasCode(reserve("b", 0, "Bad Name", idA), engine.CodeNameInvalid))
	// Payment before ownership.
	assert.True(t, engine.HasCode(reserve("b", 0, "alpha", idA), engine.CodePaymentTooLow))
	assert.True(t, engine.HasCode(reserve("b", 2, "alpha", idA), engine.CodeCallerMismatch))
	assert.True(t, engine.HasCode(reserve("a", 2, "alpha", 99), engine.CodeCallerMismatch))

	require.NoError(t, reserve("a", 2, "alpha", idA))
	assert.True(t, engine.HasCode(reserve("b", 2, "alpha", idB), engine.CodeNameTaken))
	assert.True(t, engine.HasCode(reserve("a", 2, "beta", idA), engine.CodeNameAlreadySet))

	f.MustExec("anyone", 0, func(call *engine.Call) error {
		name, ok, err := d.NameOf(call, idA)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "alpha", name)

		avail, err := d.NameAvailable(call, "alpha")
		require.NoError(t, err)
		assert.False(t, avail)
		avail, err = d.NameAvailable(call, "beta")
		require.NoError(t, err)
		assert.True(t, avail)
		avail, err = d.NameAvailable(call, "Beta")
		require.NoError(t, err)
		assert.False(t, avail, "ungrammatical names are never available")

		bal, err := d.Balance(call)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), bal, "only the successful reservation paid")
		return nil
	})
}

func TestAddressRange(t *testing.T) {
	d, f := newTestDirectory(t, Config{})
	for _, addr := range []ir.Address{"a", "b", "c"} {
		_, err := register(f, d, addr, 0)
		require.NoError(t, err)
	}

	f.MustExec("anyone", 0, func(call *engine.Call) error {
		got, err := d.AddressRange(call, 2, 100)
		require.NoError(t, err)
		assert.Equal(t, []ir.Address{"b", "c"}, got)

		got, err = d.AddressRange(call, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, []ir.Address{"a"}, got)

		got, err = d.AddressRange(call, 3, 3)
		require.NoError(t, err)
		assert.Equal(t, []ir.Address{"c"}, got)
		return nil
	})

	for _, tc := range []struct {
		name       string
		start, end uint64
	}{
		{"start past count", 4, 10},
		{"zero start", 0, 2},
		{"inverted", 3, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.Exec("anyone", 0, func(call *engine.Call) error {
				_, err := d.AddressRange(call, tc.start, tc.end)
				return err
			})
			assert.True(t, engine.IsKind(err, engine.KindRange))
		})
	}
}

func TestResolve(t *testing.T) {
	d, f := newTestDirectory(t, Config{})
	id, err := register(f, d, "a", 0)
	require.NoError(t, err)
	f.MustExec("a", 0, func(call *engine.Call) error {
		return d.ReserveName(call, "alpha", id)
	})

	f.MustExec("anyone", 0, func(call *engine.Call) error {
		byID, err := d.Resolve(call, ir.ToID(id))
		require.NoError(t, err)
		byName, err := d.Resolve(call, ir.ToName("alpha"))
		require.NoError(t, err)
		assert.Equal(t, byID, byName)
		assert.Equal(t, ir.Address("a"), byID.Address)
		assert.Equal(t, testutil.Module("a"), byID.Module)

		_, err = d.Resolve(call, ir.ToName("nobody"))
		assert.True(t, engine.IsKind(err, engine.KindNotFound))
		_, err = d.Resolve(call, ir.ToID(42))
		assert.True(t, engine.IsKind(err, engine.KindNotFound))
		_, err = d.Resolve(call, ir.Target{})
		assert.True(t, engine.IsKind(err, engine.KindNotFound))
		return nil
	})
}

func TestFees_AdminOnly(t *testing.T) {
	d, f := newTestDirectory(t, Config{RegistrationFee: 1})

	_, err := f.Exec("mallory", 0, func(call *engine.Call) error {
		return d.SetRegistrationFee(call, 100)
	})
	assert.True(t, engine.HasCode(err, engine.CodeNotAuthorized))

	f.MustExec(admin, 0, func(call *engine.Call) error {
		require.NoError(t, d.SetRegistrationFee(call, 100))
		require.NoError(t, d.SetNamingFee(call, 7))
		fee, err := d.RegistrationFee(call)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), fee)
		fee, err = d.NamingFee(call)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), fee)
		return nil
	})
	assert.Equal(t, 2, f.FactCount(store.FactFilter{Kind: ir.KindFeeSet}))

	_, err = register(f, d, "a", 1)
	assert.True(t, engine.HasCode(err, engine.CodePaymentTooLow))
}

func TestWithdrawFees(t *testing.T) {
	d, f := newTestDirectory(t, Config{RegistrationFee: 3})
	for _, addr := range []ir.Address{"a", "b"} {
		_, err := register(f, d, addr, 4)
		require.NoError(t, err)
	}

	_, err := f.Exec("mallory", 0, func(call *engine.Call) error {
		_, err := d.WithdrawFees(call, "mallory")
		return err
	})
	assert.True(t, engine.HasCode(err, engine.CodeNotAuthorized))

	var amount uint64
	res := f.MustExec(admin, 0, func(call *engine.Call) error {
		var err error
		amount, err = d.WithdrawFees(call, "treasury")
		return err
	})
	assert.Equal(t, uint64(8), amount, "full payments are collected, not just the fee")
	require.Len(t, res.Facts, 1)
	assert.Equal(t, ir.KindFundsMoved, res.Facts[0].Kind)
	assert.Equal(t, uint64(8), res.Facts[0].Attrs["amount"])

	res = f.MustExec(admin, 0, func(call *engine.Call) error {
		amount, err = d.WithdrawFees(call, "treasury")
		return err
	})
	assert.Zero(t, amount)
	require.Len(t, res.Facts, 1)
	assert.Equal(t, uint64(0), res.Facts[0].Attrs["amount"], "zero withdrawals emit a fact")

	f.View(func(tx *store.Tx) {
		bal, err := tx.Balance("treasury")
		require.NoError(t, err)
		assert.Equal(t, uint64(8), bal)
	})
}

// reentrantPayee tries to withdraw again when it receives funds.
type reentrantPayee struct {
	addr ir.Address
	dir  *Directory
}

func (p *reentrantPayee) Address() ir.Address { return p.addr }

func (p *reentrantPayee) Receive(call *engine.Call, amount uint64) error {
	_, err := p.dir.WithdrawFees(call.Forward(admin, 0), p.addr)
	return err
}

type refusingPayee struct{ addr ir.Address }

func (p refusingPayee) Address() ir.Address { return p.addr }

func (p refusingPayee) Receive(*engine.Call, uint64) error { return errors.New("refused") }

func TestWithdrawFees_ReentrantPayee(t *testing.T) {
	d, f := newTestDirectory(t, Config{RegistrationFee: 5})
	payee := &reentrantPayee{addr: "payee", dir: d}

	f.MustExec("payee", 5, func(call *engine.Call) error {
		_, err := d.Register(call, payee)
		return err
	})

	_, err := f.Exec(admin, 0, func(call *engine.Call) error {
		_, err := d.WithdrawFees(call, "payee")
		return err
	})
	require.Error(t, err)
	assert.True(t, engine.IsKind(err, engine.KindReentrancy))

	f.MustExec("anyone", 0, func(call *engine.Call) error {
		bal, err := d.Balance(call)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), bal, "no funds left the directory")
		return nil
	})
	assert.Zero(t, f.FactCount(store.FactFilter{Kind: ir.KindFundsMoved}))
}

func TestWithdrawFees_RefusingPayee(t *testing.T) {
	d, f := newTestDirectory(t, Config{})
	f.MustExec("payee", 0, func(call *engine.Call) error {
		_, err := d.Register(call, refusingPayee{addr: "payee"})
		return err
	})

	_, err := f.Exec(admin, 0, func(call *engine.Call) error {
		_, err := d.WithdrawFees(call, "payee")
		return err
	})
	assert.True(t, engine.IsKind(err, engine.KindTransfer))
}
