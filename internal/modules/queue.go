package modules

import (
	"errors"
	"time"

	"github.com/roach88/railyard/internal/directory"
	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/hub"
	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/railcar"
	"github.com/roach88/railyard/internal/scheduler"
	"github.com/roach88/railyard/internal/store"
)

const entryJoin = "join"

// QueueConfig configures a Queue.
type QueueConfig struct {
	Hub hub.Config

	// Next is where dispatched railcars go. Zero means the first output.
	Next ir.Target

	// Interval is the minimum time between dispatches.
	Interval time.Duration

	// JoinFee is the minimum payment for Join.
	JoinFee uint64

	// Batch caps how many participants one dispatch seats. Zero takes the
	// whole queue.
	Batch int
}

// Queue collects participants, from Join or from upstream hubs, and on each
// scheduler dispatch seats them in a new railcar and routes it onward.
type Queue struct {
	*hub.Hub
	cars    *railcar.Registry
	loop    *scheduler.Loop
	next    ir.Target
	joinFee uint64
	batch   int
}

// NewQueue constructs and registers a Queue and its loop.
func NewQueue(call *engine.Call, dir *directory.Directory, cars *railcar.Registry, cfg QueueConfig) (*Queue, error) {
	q := &Queue{cars: cars, next: cfg.Next, joinFee: cfg.JoinFee, batch: cfg.Batch}
	h, err := hub.New(call, dir, cfg.Hub, q)
	if err != nil {
		return nil, err
	}
	q.Hub = h
	q.loop, err = scheduler.NewLoop(call, h, cfg.Interval, q, q)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Loop returns the queue's scheduler loop.
func (q *Queue) Loop() *scheduler.Loop { return q.loop }

// Len returns the number of waiting participants.
func (q *Queue) Len(call *engine.Call) (int, error) {
	n, err := call.Tx().QueueLen(q.ID())
	return n, engine.Ledger(err)
}

// Join queues the caller. Payable and non-reentrant; the payment is kept by
// the queue and funds railcar creation.
func (q *Queue) Join(call *engine.Call) error {
	release, err := call.Guard(q.Address(), entryJoin)
	if err != nil {
		return err
	}
	defer release()

	if call.Value() < q.joinFee {
		return engine.PaymentTooLow(q.joinFee, call.Value())
	}
	if err := engine.Ledger(call.Tx().Credit(q.Address(), call.Value())); err != nil {
		return err
	}
	return q.enqueue(call, call.Caller())
}

// DidEnterSingle queues a participant delivered by an upstream hub.
func (q *Queue) DidEnterSingle(call *engine.Call, participant ir.Address) error {
	return q.enqueue(call, participant)
}

// Ready holds while someone is waiting.
func (q *Queue) Ready(call *engine.Call) error {
	n, err := q.Len(call)
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.Errorf(engine.CodeNothingQueued, "queue %s is empty", q.Address())
	}
	return nil
}

// Dispatch drains the queue into a railcar owned by this hub, paying the
// creation fee from the queue's balance, and routes the railcar onward.
func (q *Queue) Dispatch(call *engine.Call) error {
	tx := call.Tx()
	members, err := tx.DrainQueue(q.ID(), q.batch)
	if err != nil {
		return engine.Ledger(err)
	}
	next, ok, err := q.NextTarget(call, q.next)
	if err != nil {
		return err
	}
	if !ok {
		return engine.Errorf(engine.CodeNotFound, "queue %s has no next hop", q.Address())
	}

	fee, err := q.cars.CreationFee(call)
	if err != nil {
		return err
	}
	if err := tx.Debit(q.Address(), fee); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			held, _ := tx.Balance(q.Address())
			return engine.PaymentTooLow(fee, held)
		}
		return engine.Ledger(err)
	}

	group, err := q.cars.CreateWithMembers(call.Forward(q.Address(), fee), uint64(len(members)), members)
	if err != nil {
		return err
	}
	call.Logger().Debug("queue dispatched", "hub", q.Address(), "railcar", group, "members", len(members))
	return q.RouteGroup(call, group, next)
}

func (q *Queue) enqueue(call *engine.Call, participant ir.Address) error {
	if err := call.Tx().Enqueue(q.ID(), participant); err != nil {
		return engine.Ledger(err)
	}
	return call.Emit(ir.KindEnqueued, q.Address(), ir.Attrs{"participant": string(participant)})
}
