package modules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/railyard/internal/directory"
	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/hub"
	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/railcar"
	"github.com/roach88/railyard/internal/scheduler"
	"github.com/roach88/railyard/internal/store"
	"github.com/roach88/railyard/internal/testutil"
)

const deployer ir.Address = "deployer"

type yard struct {
	f   *testutil.Fixture
	dir *directory.Directory
}

func newYard(t *testing.T) *yard {
	t.Helper()
	return &yard{
		f:   testutil.NewFixture(t),
		dir: directory.New(directory.Config{Admin: "dir-admin"}),
	}
}

func (y *yard) relay(addr ir.Address, cfg RelayConfig) *Relay {
	y.f.T.Helper()
	cfg.Hub.Address = addr
	cfg.Hub.AllowAll = true
	var r *Relay
	y.f.MustExec(deployer, 0, func(call *engine.Call) error {
		var err error
		r, err = NewRelay(call, y.dir, cfg)
		return err
	})
	return r
}

// node is anything that can add outputs: relays, queues and bare hubs.
type node interface {
	ID() ir.HubID
	AddOutputs(call *engine.Call, ids []ir.HubID) error
}

func (y *yard) connect(from, to node) {
	y.f.T.Helper()
	y.f.MustExec(deployer, 0, func(call *engine.Call) error {
		return from.AddOutputs(call, []ir.HubID{to.ID()})
	})
}

// enteredBy counts hub.entered facts per hub per participant.
func enteredBy(facts []ir.Fact) map[ir.Address]map[string]int {
	out := map[ir.Address]map[string]int{}
	for _, f := range facts {
		if f.Kind != ir.KindEntered {
			continue
		}
		p, _ := f.Attrs["participant"].(string)
		if out[f.Source] == nil {
			out[f.Source] = map[string]int{}
		}
		out[f.Source][p]++
	}
	return out
}

func fourHubCycle(y *yard, launchFee uint64) (a, b, c, d *Relay) {
	a = y.relay("hub-a", RelayConfig{Terminal: true, LaunchFee: launchFee})
	b = y.relay("hub-b", RelayConfig{})
	c = y.relay("hub-c", RelayConfig{})
	d = y.relay("hub-d", RelayConfig{})
	y.connect(a, b)
	y.connect(b, c)
	y.connect(c, d)
	y.connect(d, a)
	return a, b, c, d
}

func TestRelay_FourHubCycle(t *testing.T) {
	y := newYard(t)
	a, b, c, d := fourHubCycle(y, 0)
	participants := []ir.Address{"p1", "p2", "p3"}

	res := y.f.MustExec("alice", 0, func(call *engine.Call) error {
		return a.Launch(call, participants...)
	})

	counts := enteredBy(res.Facts)
	for _, h := range []*Relay{a, b, c, d} {
		require.Contains(t, counts, h.Address())
		for _, p := range participants {
			assert.Equal(t, 1, counts[h.Address()][string(p)], "%s entered %s", p, h.Address())
		}
	}

	// A hub records its entry after its hooks return, so each lap unwinds
	// back through the ring: p3 reaching A, then D, C, and finally B.
	var tail []ir.Address
	for _, f := range res.Facts[len(res.Facts)-4:] {
		assert.Equal(t, ir.KindEntered, f.Kind)
		assert.Equal(t, "p3", f.Attrs["participant"])
		tail = append(tail, f.Source)
	}
	assert.Equal(t, []ir.Address{a.Address(), d.Address(), c.Address(), b.Address()}, tail)

	y.f.MustExec("reader", 0, func(call *engine.Call) error {
		ring := []*Relay{a, b, c, d}
		for i, h := range ring {
			next := ring[(i+1)%len(ring)]
			outs, err := h.Outputs(call)
			require.NoError(t, err)
			assert.Equal(t, []ir.HubID{next.ID()}, outs)
			ins, err := next.Inputs(call)
			require.NoError(t, err)
			assert.Equal(t, []ir.HubID{h.ID()}, ins)
		}
		return nil
	})

	committed := y.f.Facts(store.FactFilter{FlowToken: res.FlowToken})
	assert.Len(t, committed, len(res.Facts))
}

func TestRelay_FailedHopRollsBackEverything(t *testing.T) {
	y := newYard(t)
	a, _, c, d := fourHubCycle(y, 5)
	y.f.MustExec(deployer, 0, func(call *engine.Call) error {
		if err := d.SetAllowAll(call, false); err != nil {
			return err
		}
		return d.SetAllowedInput(call, 99, true)
	})
	before := y.f.FactCount(store.FactFilter{})

	res, err := y.f.Exec("alice", 5, func(call *engine.Call) error {
		return a.Launch(call, "p1")
	})
	require.Error(t, err)
	assert.True(t, engine.HasCode(err, engine.CodeNotAuthorized))

	assert.Zero(t, y.f.FactCount(store.FactFilter{FlowToken: res.FlowToken}))
	assert.Equal(t, before, y.f.FactCount(store.FactFilter{}))
	y.f.MustExec("reader", 0, func(call *engine.Call) error {
		bal, err := a.Balance(call)
		require.NoError(t, err)
		assert.Zero(t, bal, "launch payment rolled back")
		ins, err := d.Inputs(call)
		require.NoError(t, err)
		assert.Equal(t, []ir.HubID{c.ID()}, ins)
		return nil
	})
}

func TestRelay_LaunchPayment(t *testing.T) {
	y := newYard(t)
	a, _, _, _ := fourHubCycle(y, 5)

	_, err := y.f.Exec("alice", 4, func(call *engine.Call) error {
		return a.Launch(call, "p1")
	})
	re, ok := engine.AsError(err)
	require.True(t, ok)
	assert.Equal(t, engine.CodePaymentTooLow, re.Code)
	assert.Equal(t, &engine.Bounds{Required: 5, Supplied: 4}, re.Bounds)

	_, err = y.f.Exec("alice", 5, func(call *engine.Call) error {
		return a.Launch(call)
	})
	assert.True(t, engine.HasCode(err, engine.CodeInvalidArgument))

	y.f.MustExec("alice", 6, func(call *engine.Call) error {
		return a.Launch(call, "p1")
	})
	var got uint64
	y.f.MustExec(deployer, 0, func(call *engine.Call) error {
		got, err = a.WithdrawFees(call, "treasury")
		return err
	})
	assert.Equal(t, uint64(6), got)
}

// relauncher tries to trigger the launcher again from inside the chain.
type relauncher struct{ launcher *Relay }

func (r *relauncher) DidEnterSingle(call *engine.Call, p ir.Address) error {
	return r.launcher.Launch(call.Forward("hub-evil", 0), p)
}

func TestRelay_LaunchIsNotReentrant(t *testing.T) {
	y := newYard(t)
	a := y.relay("hub-a", RelayConfig{Terminal: true})
	trap := &relauncher{launcher: a}
	var evil *hub.Hub
	y.f.MustExec(deployer, 0, func(call *engine.Call) error {
		var err error
		evil, err = hub.New(call, y.dir, hub.Config{Address: "hub-evil", AllowAll: true}, trap)
		return err
	})
	y.connect(a, evil)

	_, err := y.f.Exec("alice", 0, func(call *engine.Call) error {
		return a.Launch(call, "p1")
	})
	assert.True(t, engine.IsKind(err, engine.KindReentrancy))
}

func TestRelay_RoutesByNameAndStops(t *testing.T) {
	y := newYard(t)
	end := y.relay("hub-end", RelayConfig{Terminal: true})
	y.f.MustExec("hub-end", 0, func(call *engine.Call) error {
		return y.dir.ReserveName(call, "end", end.ID())
	})
	start := y.relay("hub-start", RelayConfig{Next: ir.ToName("end")})
	lost := y.relay("hub-lost", RelayConfig{})
	y.connect(start, end)
	assert.True(t, end.Terminal())

	res := y.f.MustExec("alice", 0, func(call *engine.Call) error {
		return start.Launch(call, "p1")
	})
	assert.Equal(t, 1, enteredBy(res.Facts)[end.Address()]["p1"])

	_, err := y.f.Exec("alice", 0, func(call *engine.Call) error {
		return lost.Launch(call, "p1")
	})
	assert.True(t, engine.HasCode(err, engine.CodeNotFound))
}

func TestQueue_DrainsIntoRailcar(t *testing.T) {
	y := newYard(t)
	cars := railcar.New(y.dir, railcar.Config{Admin: "rail-admin", CreationFee: 1})

	launcher := y.relay("hub-l", RelayConfig{Terminal: true})
	var q *Queue
	y.f.MustExec(deployer, 0, func(call *engine.Call) error {
		var err error
		q, err = NewQueue(call, y.dir, cars, QueueConfig{
			Hub:      hub.Config{Address: "hub-q", AllowAll: true},
			Interval: time.Minute,
			JoinFee:  2,
		})
		return err
	})
	sink := y.relay("hub-t", RelayConfig{Terminal: true})
	y.connect(launcher, q)
	y.connect(q, sink)

	y.f.MustExec("alice", 0, func(call *engine.Call) error {
		return launcher.Launch(call, "a", "b")
	})
	_, err := y.f.Exec("c", 1, func(call *engine.Call) error {
		return q.Join(call)
	})
	assert.True(t, engine.HasCode(err, engine.CodePaymentTooLow))
	y.f.MustExec("c", 2, func(call *engine.Call) error {
		return q.Join(call)
	})
	assert.Equal(t, 3, y.f.FactCount(store.FactFilter{Kind: ir.KindEnqueued}))

	driver := scheduler.NewDriver(y.f.Engine, q.Loop(), "keeper")
	dispatched, err := driver.Step(context.Background())
	require.NoError(t, err)
	require.True(t, dispatched)

	y.f.MustExec("reader", 0, func(call *engine.Call) error {
		n, err := q.Len(call)
		require.NoError(t, err)
		assert.Zero(t, n)

		owned, err := cars.CreatedByOwner(call, q.Address())
		require.NoError(t, err)
		require.Len(t, owned, 1)
		members, err := cars.Members(call, owned[0])
		require.NoError(t, err)
		assert.Equal(t, []ir.Address{"a", "b", "c"}, members)

		qbal, err := q.Balance(call)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), qbal, "creation fee paid from join fees")
		cbal, err := cars.Balance(call)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), cbal)
		return nil
	})

	arrivals := y.f.Facts(store.FactFilter{Kind: ir.KindEntered, Source: sink.Address()})
	require.Len(t, arrivals, 1)
	assert.Contains(t, arrivals[0].Attrs, "group")

	ready, _ := probe(t, y, q)
	assert.False(t, ready, "nothing queued after dispatch")
}

func TestQueue_DispatchNeedsFunds(t *testing.T) {
	y := newYard(t)
	cars := railcar.New(y.dir, railcar.Config{CreationFee: 10})
	var q *Queue
	y.f.MustExec(deployer, 0, func(call *engine.Call) error {
		var err error
		q, err = NewQueue(call, y.dir, cars, QueueConfig{
			Hub:  hub.Config{Address: "hub-q", AllowAll: true},
			Next: ir.ToName("downstream"),
		})
		return err
	})
	y.f.MustExec("a", 0, func(call *engine.Call) error {
		return q.Join(call)
	})

	ready, token := probe(t, y, q)
	require.True(t, ready)
	_, err := y.f.Exec("keeper", 0, func(call *engine.Call) error {
		return q.Loop().Execute(call, token)
	})
	assert.True(t, engine.HasCode(err, engine.CodePaymentTooLow))

	y.f.MustExec("reader", 0, func(call *engine.Call) error {
		st, err := q.Loop().State(call)
		require.NoError(t, err)
		assert.Zero(t, st.Generation)
		n, err := q.Len(call)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "drain rolled back")
		return nil
	})
}

func probe(t *testing.T, y *yard, q *Queue) (bool, string) {
	t.Helper()
	var (
		ready bool
		token string
	)
	y.f.MustExec("keeper", 0, func(call *engine.Call) error {
		var err error
		ready, token, err = q.Loop().Probe(call)
		return err
	})
	return ready, token
}
