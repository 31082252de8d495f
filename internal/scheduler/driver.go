package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/ir"
)

// DefaultTick is how often a Driver probes when no tick is configured.
const DefaultTick = time.Second

// Driver is an external recurring caller of one loop. Each step probes in
// one chain and, when ready, executes in a second chain, the way an
// independent keeper would.
type Driver struct {
	engine *engine.Engine
	loop   *Loop
	caller ir.Address
	tick   time.Duration
	logger *slog.Logger
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithTick sets the interval between steps of Run.
func WithTick(d time.Duration) DriverOption {
	return func(dr *Driver) {
		dr.tick = d
	}
}

// WithDriverLogger sets the driver logger. Default: the engine logger.
func WithDriverLogger(l *slog.Logger) DriverOption {
	return func(dr *Driver) {
		dr.logger = l
	}
}

// NewDriver creates a driver that calls loop as caller.
func NewDriver(e *engine.Engine, loop *Loop, caller ir.Address, opts ...DriverOption) *Driver {
	d := &Driver{
		engine: e,
		loop:   loop,
		caller: caller,
		tick:   DefaultTick,
		logger: e.Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("driver", string(caller), "hub", loop.Hub())
	return d
}

// Step runs one probe and, if the loop is ready, one execute. It reports
// whether this driver dispatched. Losing a race to another driver is not an
// error: stale continuations and failed predicates are logged and reported
// as no dispatch.
func (d *Driver) Step(ctx context.Context) (bool, error) {
	var (
		ready bool
		token string
	)
	_, err := d.engine.Exec(ctx, engine.Request{Caller: d.caller}, func(call *engine.Call) error {
		var err error
		ready, token, err = d.loop.Probe(call)
		return err
	})
	if err != nil {
		return false, err
	}
	if !ready {
		return false, nil
	}

	res, err := d.engine.Exec(ctx, engine.Request{Caller: d.caller}, func(call *engine.Call) error {
		return d.loop.Execute(call, token)
	})
	switch {
	case err == nil:
		d.logger.Debug("dispatched", "flow", res.FlowToken, "facts", len(res.Facts))
		return true, nil
	case engine.IsKind(err, engine.KindStaleContinuation), engine.IsKind(err, engine.KindPrecondition):
		d.logger.Debug("dispatch lost race", "error", err)
		return false, nil
	default:
		return false, err
	}
}

// Run steps on every tick until ctx is done. It returns nil on cancellation
// and the first unexpected error otherwise.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.Step(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d.logger.Warn("driver stopping", "error", err)
				return err
			}
		}
	}
}

// Fleet runs several drivers concurrently against the same engine. The
// engine serializes their chains; the loop generation decides who wins.
type Fleet struct {
	drivers []*Driver
}

// NewFleet groups drivers.
func NewFleet(drivers ...*Driver) *Fleet {
	return &Fleet{drivers: drivers}
}

// Drivers returns the fleet's drivers.
func (f *Fleet) Drivers() []*Driver {
	return f.drivers
}

// Run runs every driver until ctx is done or one of them fails, which stops
// the rest.
func (f *Fleet) Run(ctx context.Context) error {
	p := pool.New().WithContext(ctx).WithCancelOnError()
	for _, d := range f.drivers {
		p.Go(d.Run)
	}
	return p.Wait()
}

// StepAll steps every driver once, concurrently, and returns how many
// dispatched.
func (f *Fleet) StepAll(ctx context.Context) (int, error) {
	dispatched := make([]bool, len(f.drivers))
	p := pool.New().WithContext(ctx)
	for i, d := range f.drivers {
		p.Go(func(ctx context.Context) error {
			ok, err := d.Step(ctx)
			dispatched[i] = ok
			return err
		})
	}
	err := p.Wait()

	n := 0
	for _, ok := range dispatched {
		if ok {
			n++
		}
	}
	return n, err
}
