// Package engine implements the railyard chain runtime.
//
// A chain is the complete effect of one external trigger: every hub it
// routes through, every hook that runs, every fact emitted. The engine runs
// each chain as exactly one ledger transaction, so a chain either commits as
// a whole or leaves nothing behind.
//
// ARCHITECTURE:
//
// Single-Writer Execution:
// Chains never interleave. Exec serializes direct callers; Run is a
// single-writer loop that drains chains queued with Submit in FIFO order.
// Within a chain control flow is synchronous and depth-first.
//
// Call Context:
// Every module entry point receives a *Call carrying the caller identity,
// the accompanying payment, the ledger transaction, and the chain state.
// Modules derive the call they make to another module with Call.Forward.
//
// Reentrancy:
// Payment-accepting entry points reachable from outside take a per-entry
// guard with Call.Guard. Routing entry points take none, which is what lets
// a chain cycle back through a hub it has already visited.
//
// Termination:
// Every hub entry counts one hop. A chain that exceeds its hop quota fails
// with CodeHopQuotaExceeded, which bounds cyclic graphs.
//
// Errors:
// Every failure is an *Error with a Kind and a stable Code. Any error
// returned from a chain aborts it; there is no retry inside the core.
package engine
