package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/railyard/internal/directory"
	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/hub"
	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/modules"
	"github.com/roach88/railyard/internal/railcar"
	"github.com/roach88/railyard/internal/scheduler"
	"github.com/roach88/railyard/internal/store"
	"github.com/roach88/railyard/internal/testutil"
)

// Deployer is the external identity that builds the yard and, unless a
// step names another caller, drives it. It administers the directory, the
// railcar registry and every hub without an explicit admin.
const Deployer ir.Address = "deployer"

// keeperPrefix names the callers of dispatch drivers: keeper-1, keeper-2...
const keeperPrefix = "keeper-"

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	store    *store.Store
	logger   *slog.Logger
	defaults Defaults
}

// Defaults supplies the module settings a scenario leaves unset.
type Defaults struct {
	// Directory and Railcar configure the yard's registrars. An empty admin
	// means the Deployer. Their fees apply wherever the scenario's fee is
	// zero.
	Directory directory.Config
	Railcar   railcar.Config

	// Interval applies to queue hubs that do not set one.
	Interval time.Duration
}

// WithStore runs the scenario against s instead of a fresh temporary
// ledger. Hubs already present in s are rebound rather than re-registered.
func WithStore(s *store.Store) Option {
	return func(c *runConfig) { c.store = s }
}

// WithLogger sets the logger for the engine and drivers. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// WithDefaults sets the module settings a scenario falls back on.
func WithDefaults(d Defaults) Option {
	return func(c *runConfig) { c.defaults = d }
}

// yard is the live state of one scenario run.
type yard struct {
	store  *store.Store
	engine *engine.Engine
	clock  *testutil.FakeClock
	logger *slog.Logger

	dir      *directory.Directory
	cars     *railcar.Registry
	carAdmin ir.Address
	defaults Defaults

	specs  map[string]HubSpec
	hubs   map[string]*hub.Hub
	relays map[string]*modules.Relay
	queues map[string]*modules.Queue
}

// Run executes a scenario against the real engine and returns the result.
//
// Each scenario gets its own ledger, clock and deterministic flow tokens
// ("flow-1", "flow-2", ...) unless WithStore supplies a ledger. Setup
// failures and malformed steps are returned as errors; unmet expectations
// and failed assertions are reported in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	st := cfg.store
	if st == nil {
		tmp, err := os.MkdirTemp("", "railyard-scenario-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create scenario dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		st, err = store.Open(filepath.Join(tmp, "ledger.db"))
		if err != nil {
			return nil, fmt.Errorf("failed to create scenario ledger: %w", err)
		}
		defer st.Close()
	}

	clock := testutil.NewFakeClock()
	engineOpts := []engine.EngineOption{
		engine.WithTimeSource(clock),
		engine.WithLogger(cfg.logger),
	}
	if scenario.MaxHops > 0 {
		engineOpts = append(engineOpts, engine.WithMaxHops(scenario.MaxHops))
	}

	y := &yard{
		store:  st,
		engine: engine.New(st, engine.NewSequenceGenerator("flow"), engineOpts...),
		clock:  clock,
		logger: cfg.logger,
		specs:  make(map[string]HubSpec, len(scenario.Hubs)),
		hubs:   make(map[string]*hub.Hub, len(scenario.Hubs)),
		relays: make(map[string]*modules.Relay),
		queues: make(map[string]*modules.Queue),
	}
	dirCfg, carCfg := cfg.defaults.Directory, cfg.defaults.Railcar
	if dirCfg.Admin.IsZero() {
		dirCfg.Admin = Deployer
	}
	if carCfg.Admin.IsZero() {
		carCfg.Admin = Deployer
	}
	y.dir = directory.New(dirCfg)
	y.cars = railcar.New(y.dir, carCfg)
	y.carAdmin = carCfg.Admin
	y.defaults = cfg.defaults

	// Setup and steps are submitted to the engine's writer loop; drivers
	// dispatch alongside it through Exec.
	loopCtx, cancel := context.WithCancel(ctx)
	loopDone := make(chan error, 1)
	go func() { loopDone <- y.engine.Run(loopCtx) }()
	defer func() {
		y.engine.Stop()
		cancel()
		<-loopDone
	}()

	if err := y.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	mark, err := y.lastSeq(ctx)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		outcome, stepErr, err := y.runStep(ctx, i+1, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
		result.Steps = append(result.Steps, outcome)
		if msg := checkExpect(step, outcome, stepErr); msg != "" {
			result.AddError(msg)
		}

		facts, err := y.factsAfter(ctx, mark)
		if err != nil {
			return nil, err
		}
		result.addFacts(i+1, facts)
		if n := len(facts); n > 0 {
			mark = facts[n-1].Seq
		}
		y.logger.Info("step completed", "step", i+1, "action", step.Action, "code", outcome.Code, "facts", len(facts))
	}

	actx := &AssertionContext{Ctx: ctx, Store: st, yard: y}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (y *yard) exec(ctx context.Context, caller ir.Address, value uint64, fn engine.ChainFunc) error {
	done, ok := y.engine.Submit(ctx, engine.Request{Caller: caller, Value: value}, fn)
	if !ok {
		return engine.ErrStopped
	}
	return (<-done).Err
}

func callerOr(s string, def ir.Address) ir.Address {
	if s == "" {
		return def
	}
	return ir.Address(s)
}

// setup sets fees, builds and names every hub, then adds the edges.
func (y *yard) setup(ctx context.Context, s *Scenario) error {
	fees := []struct {
		amount uint64
		admin  ir.Address
		set    func(*engine.Call, uint64) error
	}{
		{s.Fees.Registration, y.dir.Admin(), y.dir.SetRegistrationFee},
		{s.Fees.Naming, y.dir.Admin(), y.dir.SetNamingFee},
		{s.Fees.Creation, y.carAdmin, y.cars.SetCreationFee},
	}
	for _, f := range fees {
		if f.amount == 0 {
			continue
		}
		if err := y.exec(ctx, f.admin, 0, func(call *engine.Call) error { return f.set(call, f.amount) }); err != nil {
			return fmt.Errorf("set fee: %w", err)
		}
	}

	paid := y.effectiveFees(s.Fees)
	for _, spec := range s.Hubs {
		if err := y.build(ctx, spec, paid); err != nil {
			return fmt.Errorf("hub %q: %w", spec.Name, err)
		}
	}

	for _, e := range s.Edges {
		from := y.hubs[e.From]
		err := y.exec(ctx, y.adminOf(e.From), 0, func(call *engine.Call) error {
			var ids []ir.HubID
			for _, name := range e.To {
				id := y.hubs[name].ID()
				has, err := call.Tx().HasOutput(from.ID(), id)
				if err != nil {
					return engine.Ledger(err)
				}
				if !has {
					ids = append(ids, id)
				}
			}
			if len(ids) == 0 {
				return nil
			}
			return from.AddOutputs(call, ids)
		})
		if err != nil {
			return fmt.Errorf("edge %s -> %s: %w", e.From, strings.Join(e.To, ","), err)
		}
	}
	return nil
}

// effectiveFees fills the zero directory fees a hub pays at build time from
// the defaults.
func (y *yard) effectiveFees(f Fees) Fees {
	if f.Registration == 0 {
		f.Registration = y.defaults.Directory.RegistrationFee
	}
	if f.Naming == 0 {
		f.Naming = y.defaults.Directory.NamingFee
	}
	return f
}

func (y *yard) adminOf(name string) ir.Address {
	return callerOr(y.specs[name].Admin, Deployer)
}

// build constructs one hub and reserves its name, in a single chain. The
// hub's admin makes the call so that a rerun against the same ledger may
// rebind it.
func (y *yard) build(ctx context.Context, spec HubSpec, fees Fees) error {
	cfg := hub.Config{
		Address:  ir.Address(spec.address()),
		Admin:    ir.Address(spec.Admin),
		AllowAll: spec.AllowAll,
	}
	for _, a := range spec.Allowed {
		cfg.AllowedInputs = append(cfg.AllowedInputs, y.hubs[a].ID())
	}
	var next ir.Target
	if spec.Next != "" {
		next = ir.ToName(spec.Next)
	}

	return y.exec(ctx, callerOr(spec.Admin, Deployer), fees.Registration, func(call *engine.Call) error {
		var h *hub.Hub
		switch spec.Kind {
		case KindRelay:
			r, err := modules.NewRelay(call, y.dir, modules.RelayConfig{
				Hub:       cfg,
				Next:      next,
				Terminal:  spec.Terminal,
				LaunchFee: spec.LaunchFee,
			})
			if err != nil {
				return err
			}
			y.relays[spec.Name] = r
			h = r.Hub
		case KindQueue:
			interval := y.defaults.Interval
			if spec.Interval != "" {
				interval, _ = time.ParseDuration(spec.Interval)
			}
			q, err := modules.NewQueue(call, y.dir, y.cars, modules.QueueConfig{
				Hub:      cfg,
				Next:     next,
				Interval: interval,
				JoinFee:  spec.JoinFee,
				Batch:    spec.Batch,
			})
			if err != nil {
				return err
			}
			y.queues[spec.Name] = q
			h = q.Hub
		default:
			return fmt.Errorf("unknown kind %q", spec.Kind)
		}
		y.specs[spec.Name] = spec
		y.hubs[spec.Name] = h

		if _, named, err := y.dir.NameOf(call, h.ID()); err != nil || named {
			return err
		}
		return y.dir.ReserveName(call.Forward(h.Address(), fees.Naming), spec.Name, h.ID())
	})
}

// runStep performs one step. stepErr is the chain's error, which the
// scenario may expect; err is a harness failure.
func (y *yard) runStep(ctx context.Context, index int, step Step) (outcome StepOutcome, stepErr, err error) {
	outcome = StepOutcome{Index: index, Action: step.Action, Hub: step.Hub}
	caller := callerOr(step.Caller, Deployer)
	switch step.Action {
	case ActionConnect, ActionDisconnect, ActionAllowAll, ActionSetInput, ActionWithdraw:
		caller = callerOr(step.Caller, y.adminOf(step.Hub))
	}

	switch step.Action {
	case ActionLaunch:
		r := y.relays[step.Hub]
		participants := make([]ir.Address, len(step.Participants))
		for i, p := range step.Participants {
			participants[i] = ir.Address(p)
		}
		stepErr = y.exec(ctx, caller, step.Value, func(call *engine.Call) error {
			return r.Launch(call, participants...)
		})

	case ActionJoin:
		q := y.queues[step.Hub]
		stepErr = y.exec(ctx, caller, step.Value, q.Join)

	case ActionDispatch:
		n := step.Drivers
		if n == 0 {
			n = 1
		}
		q := y.queues[step.Hub]
		drivers := make([]*scheduler.Driver, n)
		for i := range drivers {
			keeper := ir.Address(fmt.Sprintf("%s%d", keeperPrefix, i+1))
			drivers[i] = scheduler.NewDriver(y.engine, q.Loop(), keeper, scheduler.WithDriverLogger(y.logger))
		}
		outcome.Dispatched, stepErr = scheduler.NewFleet(drivers...).StepAll(ctx)

	case ActionAdvance:
		d, perr := time.ParseDuration(step.Duration)
		if perr != nil {
			return outcome, nil, perr
		}
		y.clock.Advance(d)

	case ActionConnect, ActionDisconnect:
		h := y.hubs[step.Hub]
		ids := y.ids(step.Targets)
		stepErr = y.exec(ctx, caller, step.Value, func(call *engine.Call) error {
			if step.Action == ActionConnect {
				return h.AddOutputs(call, ids)
			}
			return h.RemoveOutputs(call, ids)
		})

	case ActionAllowAll:
		h := y.hubs[step.Hub]
		stepErr = y.exec(ctx, caller, step.Value, func(call *engine.Call) error {
			return h.SetAllowAll(call, step.Allow)
		})

	case ActionSetInput:
		h := y.hubs[step.Hub]
		ids := y.ids(step.Targets)
		stepErr = y.exec(ctx, caller, step.Value, func(call *engine.Call) error {
			for _, id := range ids {
				if err := h.SetInputActive(call, id, step.Allow); err != nil {
					return err
				}
			}
			return nil
		})

	case ActionCreateRailcar:
		stepErr = y.exec(ctx, caller, step.Value, func(call *engine.Call) error {
			_, err := y.cars.Create(call, step.Limit)
			return err
		})

	case ActionJoinRailcar:
		stepErr = y.exec(ctx, caller, step.Value, func(call *engine.Call) error {
			return y.cars.Join(call, ir.GroupID(step.Railcar))
		})

	case ActionWithdraw:
		h := y.hubs[step.Hub]
		to := y.address(step.To)
		if to.IsZero() {
			to = caller
		}
		stepErr = y.exec(ctx, caller, step.Value, func(call *engine.Call) error {
			_, err := h.WithdrawFees(call, to)
			return err
		})

	default:
		return outcome, nil, fmt.Errorf("unknown action %q", step.Action)
	}

	if e, ok := engine.AsError(stepErr); ok {
		outcome.Code = string(e.Code)
	} else if stepErr != nil {
		outcome.Code = "ERROR"
	}
	return outcome, stepErr, nil
}

func (y *yard) ids(names []string) []ir.HubID {
	ids := make([]ir.HubID, len(names))
	for i, n := range names {
		ids[i] = y.hubs[n].ID()
	}
	return ids
}

// address maps a hub name to its address; anything else is taken as a
// literal address.
func (y *yard) address(name string) ir.Address {
	if h, ok := y.hubs[name]; ok {
		return h.Address()
	}
	return ir.Address(name)
}

// checkExpect compares a step's outcome against its expect clause and
// returns a failure message, or "" if it matched.
func checkExpect(step Step, outcome StepOutcome, err error) string {
	prefix := fmt.Sprintf("steps[%d] %s", outcome.Index, step.Action)
	exp := step.Expect

	if !exp.failure() {
		if err != nil {
			return fmt.Sprintf("%s: unexpected error: %v", prefix, err)
		}
	} else {
		if err == nil {
			return fmt.Sprintf("%s: expected error %s, got success", prefix, strings.TrimSpace(exp.Error+" "+exp.Kind))
		}
		if exp.Error != "" && !engine.HasCode(err, engine.Code(exp.Error)) {
			return fmt.Sprintf("%s: expected error %s, got %v", prefix, exp.Error, err)
		}
		if exp.Kind != "" && !engine.IsKind(err, engine.Kind(exp.Kind)) {
			return fmt.Sprintf("%s: expected error kind %s, got %v", prefix, exp.Kind, err)
		}
	}

	if exp != nil && exp.Dispatched != nil && *exp.Dispatched != outcome.Dispatched {
		return fmt.Sprintf("%s: expected %d dispatches, got %d", prefix, *exp.Dispatched, outcome.Dispatched)
	}
	return ""
}

func (y *yard) lastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := y.store.View(ctx, func(tx *store.Tx) error {
		var err error
		seq, err = tx.LastSeq()
		return err
	})
	return seq, err
}

func (y *yard) factsAfter(ctx context.Context, seq int64) ([]ir.Fact, error) {
	var facts []ir.Fact
	err := y.store.View(ctx, func(tx *store.Tx) error {
		var err error
		facts, err = tx.Facts(store.FactFilter{AfterSeq: seq})
		return err
	})
	return facts, err
}
