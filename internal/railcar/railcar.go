// Package railcar implements the group registry: capped, append-only rosters
// that travel through the hub graph as one payload.
package railcar

import (
	"github.com/roach88/railyard/internal/directory"
	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/store"
)

const (
	settingsScope  = "railcar"
	keyCreationFee = "creation_fee"
)

// Guarded entry points.
const (
	entryCreate   = "create"
	entryWithdraw = "withdraw_fees"
)

// Policy decides who may create a railcar with Create.
type Policy interface {
	CanCreate(address ir.Address) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(address ir.Address) bool

// CanCreate calls f.
func (f PolicyFunc) CanCreate(address ir.Address) bool { return f(address) }

type defaultPolicy struct{}

func (defaultPolicy) CanCreate(ir.Address) bool { return true }

// Config configures a Registry.
type Config struct {
	// Address is the registry's identity; creation fees accrue to it.
	Address ir.Address

	// Admin may change the creation fee and withdraw fees.
	Admin ir.Address

	// CreationFee applies until an administrator stores a different value.
	CreationFee uint64

	Policy Policy
}

// Registry is the railcar registry. All state lives in the ledger.
type Registry struct {
	cfg    Config
	policy Policy
	dir    *directory.Directory
}

// New creates a Registry. dir resolves fee withdrawal recipients and may be
// nil, in which case recipients are credited without notification.
func New(dir *directory.Directory, cfg Config) *Registry {
	if cfg.Address.IsZero() {
		cfg.Address = "railcars"
	}
	policy := cfg.Policy
	if policy == nil {
		policy = defaultPolicy{}
	}
	return &Registry{cfg: cfg, policy: policy, dir: dir}
}

// Address returns the registry's identity.
func (r *Registry) Address() ir.Address { return r.cfg.Address }

// CanCreate reports whether address may create railcars.
func (r *Registry) CanCreate(address ir.Address) bool {
	return !address.IsZero() && r.policy.CanCreate(address)
}

// Create allocates a railcar owned by the caller with room for limit
// members. Non-reentrant.
func (r *Registry) Create(call *engine.Call, limit uint64) (ir.GroupID, error) {
	release, err := call.Guard(r.cfg.Address, entryCreate)
	if err != nil {
		return 0, err
	}
	defer release()

	if !r.CanCreate(call.Caller()) {
		return 0, engine.Errorf(engine.CodeNotQualified, "%q may not create railcars", call.Caller())
	}
	if err := r.charge(call); err != nil {
		return 0, err
	}
	if limit == 0 {
		return 0, engine.Errorf(engine.CodeInvalidLimit, "railcar limit must be positive")
	}
	return r.insert(call, call.Caller(), limit)
}

// CreateWithMembers allocates a railcar owned by the calling hub and seats
// members in order. Only hubs may call it. A zero limit sizes the railcar to
// the member list.
//
// Seating is best-effort: duplicates and members beyond the limit are
// skipped, not rejected.
func (r *Registry) CreateWithMembers(call *engine.Call, limit uint64, members []ir.Address) (ir.GroupID, error) {
	tx := call.Tx()
	ok, err := tx.HasCapability(call.Caller(), ir.CapabilityHub)
	if err != nil {
		return 0, engine.Ledger(err)
	}
	if !ok {
		return 0, engine.Errorf(engine.CodeNotAuthorized, "%s does not hold the hub capability", call.Caller())
	}
	if err := r.charge(call); err != nil {
		return 0, err
	}
	if limit == 0 {
		limit = uint64(len(members))
	}
	if limit == 0 {
		return 0, engine.Errorf(engine.CodeInvalidLimit, "railcar needs a limit or at least one member")
	}

	id, err := r.insert(call, call.Caller(), limit)
	if err != nil {
		return 0, err
	}
	var seated uint64
	for _, m := range members {
		if seated == limit {
			break
		}
		dup, err := tx.IsMember(id, m)
		if err != nil {
			return 0, engine.Ledger(err)
		}
		if dup {
			continue
		}
		if err := r.seat(call, id, m); err != nil {
			return 0, err
		}
		seated++
	}
	if skipped := len(members) - int(seated); skipped > 0 {
		call.Logger().Debug("railcar members skipped", "railcar", id, "skipped", skipped)
	}
	return id, nil
}

// Join adds the caller to railcar id.
func (r *Registry) Join(call *engine.Call, id ir.GroupID) error {
	car, err := r.lookup(call, id)
	if err != nil {
		return err
	}
	member := call.Caller()
	dup, err := call.Tx().IsMember(id, member)
	if err != nil {
		return engine.Ledger(err)
	}
	if dup {
		return engine.Errorf(engine.CodeAlreadyMember, "%s is already aboard railcar %d", member, id)
	}
	if car.Size >= car.Limit {
		return engine.Errorf(engine.CodeFull, "railcar %d is full (%d/%d)", id, car.Size, car.Limit)
	}
	return r.seat(call, id, member)
}

// Members returns railcar id's roster in join order.
func (r *Registry) Members(call *engine.Call, id ir.GroupID) ([]ir.Address, error) {
	if _, err := r.lookup(call, id); err != nil {
		return nil, err
	}
	members, err := call.Tx().Members(id)
	return members, engine.Ledger(err)
}

// Railcar returns the record for id.
func (r *Registry) Railcar(call *engine.Call, id ir.GroupID) (store.Railcar, error) {
	return r.lookup(call, id)
}

// Limit returns railcar id's capacity.
func (r *Registry) Limit(call *engine.Call, id ir.GroupID) (uint64, error) {
	car, err := r.lookup(call, id)
	return car.Limit, err
}

// Owner returns railcar id's creator.
func (r *Registry) Owner(call *engine.Call, id ir.GroupID) (ir.Address, error) {
	car, err := r.lookup(call, id)
	return car.Owner, err
}

// Total returns the number of railcars created.
func (r *Registry) Total(call *engine.Call) (uint64, error) {
	n, err := call.Tx().CountRailcars()
	return n, engine.Ledger(err)
}

// CreatedByOwner returns the railcars owner created, oldest first.
func (r *Registry) CreatedByOwner(call *engine.Call, owner ir.Address) ([]ir.GroupID, error) {
	ids, err := call.Tx().RailcarsByOwner(owner)
	return ids, engine.Ledger(err)
}

// MemberOf returns the railcars member has joined, oldest first.
func (r *Registry) MemberOf(call *engine.Call, member ir.Address) ([]ir.GroupID, error) {
	ids, err := call.Tx().RailcarsByMember(member)
	return ids, engine.Ledger(err)
}

func (r *Registry) lookup(call *engine.Call, id ir.GroupID) (store.Railcar, error) {
	if id == 0 {
		return store.Railcar{}, engine.Errorf(engine.CodeInvalidID, "railcar ids start at 1")
	}
	car, ok, err := call.Tx().RailcarByID(id)
	if err != nil {
		return store.Railcar{}, engine.Ledger(err)
	}
	if !ok {
		return store.Railcar{}, engine.Errorf(engine.CodeInvalidID, "no railcar %d", id)
	}
	return car, nil
}

func (r *Registry) insert(call *engine.Call, owner ir.Address, limit uint64) (ir.GroupID, error) {
	id, err := call.Tx().InsertRailcar(owner, limit)
	if err != nil {
		return 0, engine.Ledger(err)
	}
	err = call.Emit(ir.KindRailcarNew, r.cfg.Address, ir.Attrs{
		"railcar": id,
		"owner":   string(owner),
		"limit":   limit,
	})
	return id, err
}

func (r *Registry) seat(call *engine.Call, id ir.GroupID, member ir.Address) error {
	if err := call.Tx().AppendMember(id, member); err != nil {
		return engine.Ledger(err)
	}
	return call.Emit(ir.KindRailcarJoined, r.cfg.Address, ir.Attrs{
		"railcar": id,
		"member":  string(member),
	})
}
