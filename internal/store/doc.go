// Package store provides the SQLite-backed ledger that every railyard chain
// runs against.
//
// The ledger holds:
//   - Directory entries, reserved names and fee settings
//   - Capability grants and collected balances
//   - Hub authorization policies and both ends of every routing edge
//   - Railcars and their ordered member lists
//   - Scheduler loop state and per-hub participant queues
//   - The append-only fact log
//
// # Atomicity
//
// A chain is one Tx. Every typed operation runs inside it, so a failed chain
// discards facts together with the state changes that produced them.
//
// # Ordering
//
// Queries that return lists order by an explicit column (seq, id or
// position), never by insertion accident or wall-clock time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Monetary amounts are uint64 in Go and INTEGER in SQLite; the driver rejects
// values at or above 2^63, so fees and balances are bounded by MaxInt64.
package store
