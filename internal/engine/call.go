package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/store"
)

// Module is anything with a ledger identity that can be bound to a
// directory entry.
type Module interface {
	Address() ir.Address
}

// Receiver is implemented by modules that take delivery of moved funds.
// Returning an error aborts the transfer and with it the chain.
type Receiver interface {
	Receive(call *Call, amount uint64) error
}

// chain is the state shared by every Call of one chain.
type chain struct {
	ctx    context.Context
	tx     *store.Tx
	flow   string
	now    time.Time
	logger *slog.Logger
	span   trace.Span
	guards map[string]struct{}
	hops   *HopQuota
	facts  []ir.Fact

	locals   map[any]any
	onCommit []func()
}

// Call is the context of one invocation within a chain: who is calling, what
// value accompanies the call, and the chain it belongs to. Module entry
// points take a *Call as their first argument.
//
// A Call is only valid inside the ChainFunc it was handed to.
type Call struct {
	chain  *chain
	caller ir.Address
	value  uint64
}

// Context returns the chain's context.
func (c *Call) Context() context.Context { return c.chain.ctx }

// Tx returns the chain's ledger transaction.
func (c *Call) Tx() *store.Tx { return c.chain.tx }

// Caller returns the identity making this call.
func (c *Call) Caller() ir.Address { return c.caller }

// Value returns the payment accompanying this call.
func (c *Call) Value() uint64 { return c.value }

// FlowToken returns the token correlating every fact of the chain.
func (c *Call) FlowToken() string { return c.chain.flow }

// Now returns the chain timestamp. It is fixed when the chain starts so
// every hop observes the same time.
func (c *Call) Now() time.Time { return c.chain.now }

// Logger returns the chain-scoped logger.
func (c *Call) Logger() *slog.Logger { return c.chain.logger }

// Forward derives the call a module makes to another module within the same
// chain. from becomes the callee's Caller.
func (c *Call) Forward(from ir.Address, value uint64) *Call {
	return &Call{chain: c.chain, caller: from, value: value}
}

// Emit appends a fact to the ledger as part of this chain.
func (c *Call) Emit(kind string, source ir.Address, attrs ir.Attrs) error {
	fact, err := c.chain.tx.AppendFact(c.chain.flow, kind, source, attrs)
	if err != nil {
		return Ledger(err)
	}
	c.chain.facts = append(c.chain.facts, fact)
	c.chain.span.AddEvent(kind, trace.WithAttributes(
		attribute.String("source", string(source)),
		attribute.Int64("seq", fact.Seq),
	))
	return nil
}

// Facts returns the facts emitted so far in this chain.
func (c *Call) Facts() []ir.Fact {
	out := make([]ir.Fact, len(c.chain.facts))
	copy(out, c.chain.facts)
	return out
}

// Guard acquires the reentrancy guard for one entry point of one module.
// A second acquisition of the same guard while the first is held fails with
// CodeReentrantCall. The returned release must be deferred by the caller.
//
// Guards are scoped to the chain; routing entry points take no guard so that
// legitimate cycles through the graph are possible.
func (c *Call) Guard(owner ir.Address, entry string) (func(), error) {
	key := string(owner) + "#" + entry
	if _, held := c.chain.guards[key]; held {
		return nil, Errorf(CodeReentrantCall, "%s re-entered %s", owner, entry)
	}
	c.chain.guards[key] = struct{}{}
	return func() { delete(c.chain.guards, key) }, nil
}

// OnCommit registers fn to run after the chain commits. Hooks run in
// registration order and are dropped if the chain rolls back.
func (c *Call) OnCommit(fn func()) {
	c.chain.onCommit = append(c.chain.onCommit, fn)
}

// Local returns the chain-scoped value stored under key, or nil.
func (c *Call) Local(key any) any {
	return c.chain.locals[key]
}

// SetLocal stores a chain-scoped value. It is discarded with the chain.
func (c *Call) SetLocal(key, value any) {
	if c.chain.locals == nil {
		c.chain.locals = make(map[any]any)
	}
	c.chain.locals[key] = value
}

// Hop counts one hub entry against the chain's hop quota.
func (c *Call) Hop() error {
	return c.chain.hops.Check(c.chain.flow)
}

// Hops returns the number of hub entries so far in this chain.
func (c *Call) Hops() int {
	return c.chain.hops.Current()
}

// MoveFunds records a transfer of amount from one account to another and
// emits the funds.moved fact, including for a zero amount. When recv is
// non-nil it is notified first and may reject the transfer.
//
// The caller is responsible for having debited from.
func (c *Call) MoveFunds(from, to ir.Address, amount uint64, recv Receiver) error {
	if recv != nil {
		if err := recv.Receive(c.Forward(from, amount), amount); err != nil {
			if _, ok := AsError(err); ok {
				return err
			}
			return Errorf(CodeTransferFailed, "recipient %s rejected %d", to, amount).Wrap(err)
		}
	}
	if err := c.chain.tx.Credit(to, amount); err != nil {
		return Ledger(err)
	}
	return c.Emit(ir.KindFundsMoved, from, ir.Attrs{
		"from":   string(from),
		"to":     string(to),
		"amount": amount,
	})
}
