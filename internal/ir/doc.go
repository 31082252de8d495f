// Package ir provides the foundational value types shared by every railyard
// package: module addresses, hub and railcar ids, routing targets, and the
// facts emitted into the ledger.
//
// ir imports nothing internal. All other internal packages import ir.
//
// Key design constraints:
//   - Ids are unsigned and start at 1; the zero id never names a record
//   - Fact attributes carry no floats (monetary values are uint64)
//   - All JSON tags use snake_case
//   - Fact ordering uses the ledger seq, never wall-clock time
package ir
