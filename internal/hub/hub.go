package hub

import (
	"github.com/roach88/railyard/internal/directory"
	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/store"
)

// Guarded entry points.
const entryWithdraw = "withdraw_fees"

// Routable is the surface one hub calls on another. *Hub implements it, and
// so does every module that embeds a *Hub.
type Routable interface {
	engine.Module
	EnterSingle(call *engine.Call, participant ir.Address) error
	EnterGroup(call *engine.Call, group ir.GroupID) error
	AddInput(call *engine.Call) error
	RemoveInput(call *engine.Call) error
}

// Config configures a hub at construction.
type Config struct {
	// Address is the hub's identity. Required.
	Address ir.Address

	// Admin may change the policy, edit edges and withdraw fees. Defaults to
	// the caller constructing the hub.
	Admin ir.Address

	// AllowAll admits deliveries from any registered hub.
	AllowAll bool

	// AllowedInputs seeds the explicit allow-set.
	AllowedInputs []ir.HubID
}

// Hub is the routing base of a module: its directory identity, its
// authorization policy and its input and output edges. Edge and policy state
// lives in the ledger; a Hub only holds what never changes after
// registration.
type Hub struct {
	dir     *directory.Directory
	id      ir.HubID
	address ir.Address
	hooks   hookSet
}

// New self-registers a hub with dir and stores its initial policy. The
// call's value pays the registration fee. module supplies the lifecycle
// hooks; it may be nil.
//
// Constructing a hub whose address is already registered rebinds it to the
// existing id and keeps the stored policy, including the allow-set. Only the
// stored administrator or the hub's own address may do that.
func New(call *engine.Call, dir *directory.Directory, cfg Config, module any) (*Hub, error) {
	if cfg.Address.IsZero() {
		return nil, engine.Errorf(engine.CodeInvalidArgument, "hub address is required")
	}
	admin := cfg.Admin
	if admin.IsZero() {
		admin = call.Caller()
	}

	tx := call.Tx()
	existing, registered, err := dir.IDOf(call, cfg.Address)
	if err != nil {
		return nil, err
	}
	seeded := false
	if registered {
		p, ok, err := tx.HubPolicy(existing)
		if err != nil {
			return nil, engine.Ledger(err)
		}
		seeded = ok
		if call.Caller() != cfg.Address && (!ok || call.Caller() != p.Admin) {
			return nil, engine.Errorf(engine.CodeNotAuthorized, "%s cannot rebind hub %d (%s)", call.Caller(), existing, cfg.Address)
		}
	}

	h := &Hub{dir: dir, address: cfg.Address, hooks: resolveHooks(module)}
	id, err := dir.Register(call.Forward(cfg.Address, call.Value()), h)
	if err != nil {
		return nil, err
	}
	h.id = id

	if !seeded {
		if err := tx.InitHubPolicy(id, store.Policy{Admin: admin, AllowAll: cfg.AllowAll}); err != nil {
			return nil, engine.Ledger(err)
		}
		for _, in := range cfg.AllowedInputs {
			if err := tx.SetAllowedInput(id, in, true); err != nil {
				return nil, engine.Ledger(err)
			}
		}
	}
	call.Logger().Debug("hub ready", "hub_id", id, "address", cfg.Address, "rebound", registered)
	return h, nil
}

// ID returns the hub's directory id.
func (h *Hub) ID() ir.HubID { return h.id }

// Address returns the hub's identity.
func (h *Hub) Address() ir.Address { return h.address }

// Directory returns the directory the hub is registered with.
func (h *Hub) Directory() *directory.Directory { return h.dir }

// Policy returns the hub's stored authorization policy.
func (h *Hub) Policy(call *engine.Call) (store.Policy, error) {
	p, ok, err := call.Tx().HubPolicy(h.id)
	if err != nil {
		return store.Policy{}, engine.Ledger(err)
	}
	if !ok {
		return store.Policy{}, engine.Errorf(engine.CodeNotFound, "hub %d has no policy", h.id)
	}
	return p, nil
}

// Admin returns the hub administrator.
func (h *Hub) Admin(call *engine.Call) (ir.Address, error) {
	p, err := h.Policy(call)
	return p.Admin, err
}

// AllowAll reports whether the hub admits any registered hub.
func (h *Hub) AllowAll(call *engine.Call) (bool, error) {
	p, err := h.Policy(call)
	return p.AllowAll, err
}

// Inputs returns the ids of hubs routing into this one.
func (h *Hub) Inputs(call *engine.Call) ([]ir.HubID, error) {
	ids, err := call.Tx().Inputs(h.id)
	return ids, engine.Ledger(err)
}

// Outputs returns the ids of hubs this one routes to.
func (h *Hub) Outputs(call *engine.Call) ([]ir.HubID, error) {
	ids, err := call.Tx().Outputs(h.id)
	return ids, engine.Ledger(err)
}

// Balance returns the payments collected by the hub.
func (h *Hub) Balance(call *engine.Call) (uint64, error) {
	v, err := call.Tx().Balance(h.address)
	return v, engine.Ledger(err)
}

// callerID resolves the caller to a directory id, or 0 when it is not
// registered.
func (h *Hub) callerID(call *engine.Call) (ir.HubID, error) {
	id, _, err := h.dir.IDOf(call, call.Caller())
	return id, err
}

// authorize applies the hub's policy to the caller and returns its id.
func (h *Hub) authorize(call *engine.Call) (ir.HubID, error) {
	from, err := h.callerID(call)
	if err != nil {
		return 0, err
	}
	if from == 0 {
		return 0, engine.Errorf(engine.CodeNotAuthorized, "%s is not a registered hub", call.Caller())
	}
	p, err := h.Policy(call)
	if err != nil {
		return 0, err
	}
	if p.AllowAll {
		return from, nil
	}
	ok, err := call.Tx().InputAllowed(h.id, from)
	if err != nil {
		return 0, engine.Ledger(err)
	}
	if !ok {
		return 0, engine.Errorf(engine.CodeNotAuthorized, "hub %d does not accept deliveries from hub %d", h.id, from)
	}
	return from, nil
}

func (h *Hub) requireAdmin(call *engine.Call) error {
	admin, err := h.Admin(call)
	if err != nil {
		return err
	}
	if call.Caller() != admin {
		return engine.Errorf(engine.CodeNotAuthorized, "%s is not the administrator of hub %d", call.Caller(), h.id)
	}
	return nil
}

// resolve looks up a live routable hub.
func (h *Hub) resolve(call *engine.Call, target ir.Target) (directory.Resolved, Routable, error) {
	r, err := h.dir.Resolve(call, target)
	if err != nil {
		return directory.Resolved{}, nil, err
	}
	dst, ok := r.Module.(Routable)
	if !ok {
		return r, nil, engine.Errorf(engine.CodeInvalidTarget, "hub %d (%s) is not routable in this process", r.ID, r.Address)
	}
	return r, dst, nil
}
