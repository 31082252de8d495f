package directory

import (
	"sync"

	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/store"
)

// settings scope and keys in the ledger.
const (
	settingsScope      = "directory"
	keyRegistrationFee = "registration_fee"
	keyNamingFee       = "naming_fee"
)

// Guarded entry points.
const (
	entryReserveName = "reserve_name"
	entryWithdraw    = "withdraw_fees"
)

// Policy decides which identities may register. The empty address is never
// eligible, whatever the policy says; the default admits everything else.
type Policy interface {
	CanRegister(address ir.Address) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(address ir.Address) bool

// CanRegister calls f.
func (f PolicyFunc) CanRegister(address ir.Address) bool { return f(address) }

type defaultPolicy struct{}

func (defaultPolicy) CanRegister(ir.Address) bool { return true }

// Config configures a Directory.
type Config struct {
	// Address is the directory's own identity; collected fees accrue to it.
	Address ir.Address

	// Admin may change fees and withdraw them.
	Admin ir.Address

	// RegistrationFee and NamingFee apply until an administrator stores a
	// different value in the ledger.
	RegistrationFee uint64
	NamingFee       uint64

	// Policy narrows the registration eligibility check.
	Policy Policy
}

// Directory is the registrar of hubs: it assigns ids, owns the name
// namespace, and collects registration and naming fees.
//
// Records live in the ledger. The Directory additionally keeps the live Go
// module bound to each registered address so that hubs can route to one
// another by id or name.
type Directory struct {
	cfg    Config
	policy Policy

	mu      sync.RWMutex
	modules map[ir.Address]engine.Module
}

// New creates a Directory.
func New(cfg Config) *Directory {
	if cfg.Address.IsZero() {
		cfg.Address = "directory"
	}
	policy := cfg.Policy
	if policy == nil {
		policy = defaultPolicy{}
	}
	return &Directory{
		cfg:     cfg,
		policy:  policy,
		modules: make(map[ir.Address]engine.Module),
	}
}

// Address returns the directory's identity.
func (d *Directory) Address() ir.Address {
	return d.cfg.Address
}

// Admin returns the directory administrator.
func (d *Directory) Admin() ir.Address {
	return d.cfg.Admin
}

// CanRegister reports whether address is eligible for registration.
func (d *Directory) CanRegister(address ir.Address) bool {
	return !address.IsZero() && d.policy.CanRegister(address)
}

// Register self-registers m. The caller must be m's own address.
//
// Registering an already registered address is a no-op that returns the
// existing id: no fee is charged and no fact is emitted, but the live module
// binding is refreshed. Bindings made by a chain are visible to that chain
// at once and to everyone else only once it commits.
func (d *Directory) Register(call *engine.Call, m engine.Module) (ir.HubID, error) {
	addr := m.Address()
	if call.Caller() != addr {
		return 0, engine.Errorf(engine.CodeCallerMismatch, "%s cannot register %s", call.Caller(), addr)
	}
	if !d.CanRegister(addr) {
		return 0, engine.Errorf(engine.CodeNotEligible, "%q is not eligible for registration", addr)
	}

	tx := call.Tx()
	id, ok, err := tx.EntryByAddress(addr)
	if err != nil {
		return 0, engine.Ledger(err)
	}
	if ok {
		d.bind(call, addr, m)
		return id, nil
	}

	fee, err := d.fee(tx, keyRegistrationFee)
	if err != nil {
		return 0, err
	}
	if call.Value() < fee {
		return 0, engine.PaymentTooLow(fee, call.Value())
	}

	id, err = tx.InsertEntry(addr)
	if err != nil {
		return 0, engine.Ledger(err)
	}
	if err := tx.GrantCapability(addr, ir.CapabilityHub); err != nil {
		return 0, engine.Ledger(err)
	}
	if err := tx.Credit(d.cfg.Address, call.Value()); err != nil {
		return 0, engine.Ledger(err)
	}
	d.bind(call, addr, m)

	call.Logger().Debug("hub registered", "hub_id", id, "address", addr)
	err = call.Emit(ir.KindRegistered, d.cfg.Address, ir.Attrs{
		"hub_id":  id,
		"address": string(addr),
	})
	return id, err
}

// NameAvailable reports whether name is grammatical and unclaimed.
func (d *Directory) NameAvailable(call *engine.Call, name string) (bool, error) {
	if !ValidName(name) {
		return false, nil
	}
	_, taken, err := call.Tx().NameOwner(name)
	if err != nil {
		return false, engine.Ledger(err)
	}
	return !taken, nil
}

// ReserveName binds name to id. The caller must be the address registered
// under id. Each id may hold at most one name and names are never released.
func (d *Directory) ReserveName(call *engine.Call, name string, id ir.HubID) error {
	release, err := call.Guard(d.cfg.Address, entryReserveName)
	if err != nil {
		return err
	}
	defer release()

	if !ValidName(name) {
		return engine.Errorf(engine.CodeNameInvalid, "name %q does not match [a-z0-9._-]+", name)
	}

	tx := call.Tx()
	fee, err := d.fee(tx, keyNamingFee)
	if err != nil {
		return err
	}
	if call.Value() < fee {
		return engine.PaymentTooLow(fee, call.Value())
	}

	owner, ok, err := tx.EntryByID(id)
	if err != nil {
		return engine.Ledger(err)
	}
	if !ok || owner != call.Caller() {
		return engine.Errorf(engine.CodeCallerMismatch, "%s is not the owner of hub %d", call.Caller(), id)
	}

	if holder, taken, err := tx.NameOwner(name); err != nil {
		return engine.Ledger(err)
	} else if taken {
		return engine.Errorf(engine.CodeNameTaken, "name %q is held by hub %d", name, holder)
	}
	if existing, named, err := tx.NameOf(id); err != nil {
		return engine.Ledger(err)
	} else if named {
		return engine.Errorf(engine.CodeNameAlreadySet, "hub %d is already named %q", id, existing)
	}

	if err := tx.InsertName(name, id); err != nil {
		return engine.Ledger(err)
	}
	if err := tx.Credit(d.cfg.Address, call.Value()); err != nil {
		return engine.Ledger(err)
	}
	return call.Emit(ir.KindNameReserved, d.cfg.Address, ir.Attrs{
		"name":   name,
		"hub_id": id,
	})
}

// TotalRegistrations returns the number of registered hubs.
func (d *Directory) TotalRegistrations(call *engine.Call) (uint64, error) {
	n, err := call.Tx().CountEntries()
	return n, engine.Ledger(err)
}

// AddressRange returns the addresses of ids start..end inclusive. end is
// clamped to the registration count; element k is the address of id
// start+k.
func (d *Directory) AddressRange(call *engine.Call, start, end uint64) ([]ir.Address, error) {
	entries, err := d.Entries(call, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]ir.Address, len(entries))
	for k, e := range entries {
		out[k] = e.Address
	}
	return out, nil
}

// Entries is AddressRange returning full directory records.
func (d *Directory) Entries(call *engine.Call, start, end uint64) ([]store.Entry, error) {
	count, err := d.TotalRegistrations(call)
	if err != nil {
		return nil, err
	}
	if start == 0 || start > count || end < start {
		return nil, engine.OutOfBounds(start, end, count)
	}
	if end > count {
		end = count
	}
	entries, err := call.Tx().EntriesRange(ir.HubID(start), ir.HubID(end))
	if err != nil {
		return nil, engine.Ledger(err)
	}
	return entries, nil
}

// IDOf returns the id registered for address.
func (d *Directory) IDOf(call *engine.Call, address ir.Address) (ir.HubID, bool, error) {
	id, ok, err := call.Tx().EntryByAddress(address)
	return id, ok, engine.Ledger(err)
}

// AddressOf returns the address registered under id.
func (d *Directory) AddressOf(call *engine.Call, id ir.HubID) (ir.Address, bool, error) {
	addr, ok, err := call.Tx().EntryByID(id)
	return addr, ok, engine.Ledger(err)
}

// NameOf returns the name reserved for id.
func (d *Directory) NameOf(call *engine.Call, id ir.HubID) (string, bool, error) {
	name, ok, err := call.Tx().NameOf(id)
	return name, ok, engine.Ledger(err)
}

// IsHub reports whether address holds the hub capability.
func (d *Directory) IsHub(call *engine.Call, address ir.Address) (bool, error) {
	ok, err := call.Tx().HasCapability(address, ir.CapabilityHub)
	return ok, engine.Ledger(err)
}

// ModuleOf returns the live module bound to address, if any. Only bindings
// of committed chains are visible.
func (d *Directory) ModuleOf(address ir.Address) (engine.Module, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.modules[address]
	return m, ok
}

// moduleIn is ModuleOf as seen from inside call's chain.
func (d *Directory) moduleIn(call *engine.Call, address ir.Address) (engine.Module, bool) {
	if pending, _ := call.Local(pendingKey{d}).(map[ir.Address]engine.Module); pending != nil {
		if m, ok := pending[address]; ok {
			return m, true
		}
	}
	return d.ModuleOf(address)
}

// pendingKey holds a chain's uncommitted bindings for one directory.
type pendingKey struct{ d *Directory }

func (d *Directory) bind(call *engine.Call, address ir.Address, m engine.Module) {
	key := pendingKey{d}
	pending, _ := call.Local(key).(map[ir.Address]engine.Module)
	if pending == nil {
		pending = make(map[ir.Address]engine.Module)
		call.SetLocal(key, pending)
		call.OnCommit(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for a, m := range pending {
				d.modules[a] = m
			}
		})
	}
	pending[address] = m
}

// Resolved is a routing target looked up in the directory. Module is nil
// when the address is registered but no live module is bound in this
// process.
type Resolved struct {
	ID      ir.HubID
	Address ir.Address
	Module  engine.Module
}

// Resolve looks up a target by id or by reserved name.
func (d *Directory) Resolve(call *engine.Call, target ir.Target) (Resolved, error) {
	tx := call.Tx()
	id := target.ID
	if target.Name != "" {
		owner, ok, err := tx.NameOwner(target.Name)
		if err != nil {
			return Resolved{}, engine.Ledger(err)
		}
		if !ok {
			return Resolved{}, engine.Errorf(engine.CodeNotFound, "no hub named %q", target.Name)
		}
		id = owner
	}
	if id == 0 {
		return Resolved{}, engine.Errorf(engine.CodeNotFound, "empty target")
	}

	addr, ok, err := tx.EntryByID(id)
	if err != nil {
		return Resolved{}, engine.Ledger(err)
	}
	if !ok {
		return Resolved{}, engine.Errorf(engine.CodeNotFound, "no hub with id %d", id)
	}
	m, _ := d.moduleIn(call, addr)
	return Resolved{ID: id, Address: addr, Module: m}, nil
}
