package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/store"
)

const tracerName = "github.com/roach88/railyard/internal/engine"

// ErrStopped is returned for chains submitted to, or still queued in, an
// engine that has stopped.
var ErrStopped = errors.New("engine stopped")

// errNestedExec is returned when Exec is called from inside a running chain.
var errNestedExec = Errorf(CodeInvalidArgument, "Exec called from inside a chain")

// Request describes the external trigger of a chain.
type Request struct {
	// Caller is the external identity initiating the chain.
	Caller ir.Address

	// Value is the payment accompanying the outermost call.
	Value uint64

	// FlowToken overrides the generated token. Optional.
	FlowToken string
}

// ChainFunc is the body of a chain. Returning an error rolls back every
// ledger change the chain made, including its facts.
type ChainFunc func(call *Call) error

// Result describes a committed chain.
type Result struct {
	FlowToken string
	Chain     int64
	Facts     []ir.Fact
}

// Engine runs chains against the ledger, one at a time.
//
// Thread-safety model:
//   - Exec(): safe from any goroutine; calls are serialized
//   - Submit(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// INVARIANTS:
//   - A chain is exactly one ledger transaction
//   - No two chains ever interleave
//   - A failed chain leaves nothing behind
type Engine struct {
	store   *store.Store
	flowGen FlowTokenGenerator
	clock   TimeSource
	chains  *Clock
	maxHops int
	logger  *slog.Logger
	tracer  trace.Tracer

	mu    sync.Mutex
	queue *chainQueue
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxHops sets the hop quota per chain.
//
// Default: 1000 hops (DefaultMaxHops)
func WithMaxHops(maxHops int) EngineOption {
	return func(e *Engine) {
		e.maxHops = maxHops
	}
}

// WithTimeSource sets the source of chain timestamps.
func WithTimeSource(ts TimeSource) EngineOption {
	return func(e *Engine) {
		e.clock = ts
	}
}

// WithLogger sets the engine logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTracerProvider sets the provider chain spans are recorded with.
// Default: the global otel provider.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) {
		e.tracer = tp.Tracer(tracerName)
	}
}

// New creates an Engine over s. A nil flowGen uses UUIDv7 tokens.
func New(s *store.Store, flowGen FlowTokenGenerator, opts ...EngineOption) *Engine {
	if flowGen == nil {
		flowGen = UUIDv7Generator{}
	}
	e := &Engine{
		store:   s,
		flowGen: flowGen,
		clock:   SystemTime{},
		chains:  NewClock(),
		maxHops: DefaultMaxHops,
		logger:  slog.Default(),
		tracer:  otel.GetTracerProvider().Tracer(tracerName),
		queue:   newChainQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the ledger the engine runs against.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// NewFlow generates a new flow token.
func (e *Engine) NewFlow() string {
	return e.flowGen.Generate()
}

type inChainKey struct{}

// Exec runs fn as one atomic chain and returns once it has committed or
// rolled back. Concurrent callers are serialized.
//
// Exec must not be called from inside a chain; doing so through the chain's
// context fails immediately instead of deadlocking.
func (e *Engine) Exec(ctx context.Context, req Request, fn ChainFunc) (Result, error) {
	if ctx.Value(inChainKey{}) != nil {
		return Result{}, errNestedExec
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exec(ctx, req, fn)
}

func (e *Engine) exec(ctx context.Context, req Request, fn ChainFunc) (Result, error) {
	flow := req.FlowToken
	if flow == "" {
		flow = e.flowGen.Generate()
	}
	seq := e.chains.Next()
	logger := e.logger.With("flow", flow, "chain", seq)

	ctx, span := e.tracer.Start(ctx, "railyard.chain", trace.WithAttributes(
		attribute.String("railyard.flow_token", flow),
		attribute.String("railyard.caller", string(req.Caller)),
		attribute.Int64("railyard.value", int64(req.Value)),
	))
	defer span.End()

	ctx = context.WithValue(ctx, inChainKey{}, true)
	res := Result{FlowToken: flow, Chain: seq}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin failed")
		return res, Ledger(err)
	}
	defer tx.Rollback()

	c := &chain{
		ctx:    ctx,
		tx:     tx,
		flow:   flow,
		now:    e.clock.Now(),
		logger: logger,
		span:   span,
		guards: make(map[string]struct{}),
		hops:   NewHopQuota(e.maxHops),
	}
	call := &Call{chain: c, caller: req.Caller, value: req.Value}

	if err := fn(call); err != nil {
		logger.Warn("chain failed", "caller", req.Caller, "hops", c.hops.Current(), "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "context done before commit")
		return res, err
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return res, Ledger(err)
	}

	for _, fn := range c.onCommit {
		fn()
	}

	res.Facts = c.facts
	span.SetAttributes(
		attribute.Int("railyard.facts", len(c.facts)),
		attribute.Int("railyard.hops", c.hops.Current()),
	)
	logger.Debug("chain committed", "facts", len(c.facts), "hops", c.hops.Current())
	return res, nil
}

// Submit queues fn for the Run loop and returns a channel that receives its
// outcome. Returns false if the engine has stopped.
func (e *Engine) Submit(ctx context.Context, req Request, fn ChainFunc) (<-chan Outcome, bool) {
	p := &pending{ctx: ctx, req: req, fn: fn, done: make(chan Outcome, 1)}
	if !e.queue.Enqueue(p) {
		return nil, false
	}
	return p.done, true
}

// Run starts the single-writer loop that executes submitted chains in FIFO
// order. Blocks until ctx is cancelled or Stop is called. Chains still queued
// at shutdown receive ErrStopped.
//
// Must be called from exactly ONE goroutine.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")

	for {
		if p, ok := e.queue.TryDequeue(); ok {
			e.runPending(ctx, p)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.abandon(e.queue.Close())
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes with the queue, which makes this case
			// fire immediately.
			if e.queue.closedAndEmpty() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

func (e *Engine) runPending(ctx context.Context, p *pending) {
	pctx := p.ctx
	if pctx == nil {
		pctx = ctx
	}
	e.mu.Lock()
	res, err := e.exec(pctx, p.req, p.fn)
	e.mu.Unlock()
	p.done <- Outcome{Result: res, Err: err}
}

func (e *Engine) abandon(rest []*pending) {
	for _, p := range rest {
		p.done <- Outcome{Err: ErrStopped}
	}
}

// Stop gracefully shuts down the engine. Queued chains receive ErrStopped.
func (e *Engine) Stop() {
	e.abandon(e.queue.Close())
}
