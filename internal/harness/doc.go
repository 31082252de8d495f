// Package harness runs railyard scenarios: YAML descriptions of a yard of
// reference hubs, the steps driven through it, and assertions over the
// resulting fact log and ledger.
//
// Every step runs through the real engine, so a scenario exercises the same
// directory, hub, railcar and scheduler code as production. Each run gets a
// private ledger, a fake clock starting at testutil.Epoch, and flow tokens
// "flow-1", "flow-2", ...
//
// # Scenario Format
//
//	name: relay_line
//	description: "Launch through a chain of relays"
//	fees:
//	  registration: 0
//	  naming: 0
//	  creation: 0
//	hubs:
//	  - name: a
//	    kind: relay
//	  - name: b
//	    kind: relay
//	    allow_all: true
//	    terminal: true
//	edges:
//	  - from: a
//	    to: [b]
//	steps:
//	  - action: launch
//	    hub: a
//	    caller: alice
//	    participants: [p1]
//	  - action: disconnect
//	    hub: a
//	    targets: [b]
//	  - action: launch
//	    hub: a
//	    participants: [p2]
//	    expect: { error: NOT_FOUND }
//	assertions:
//	  - type: fact_count
//	    kind: hub.entered
//	    source: b
//	    count: 1
//
// Hub addresses default to "hub-<name>" and each hub reserves its name in
// the directory. Each hub is built, and its edges added, by its admin, which
// is the deployer unless the hub names one. The deployer also administers
// the directory and the railcar registry unless
// WithDefaults names other admins. WithDefaults also supplies fees and a
// queue interval for whatever the scenario leaves at zero.
//
// # Step Actions
//
//   - launch: Relay.Launch with participants
//   - join: Queue.Join by the caller
//   - dispatch: one scheduler step by each of `drivers` concurrent drivers
//   - advance: move the clock forward by `duration`
//   - connect, disconnect: add or remove outputs of hub
//   - allow_all: set hub's allow-all flag to `allow`
//   - set_input_active: pause or resume hub's inputs from targets
//   - create_railcar, join_railcar: railcar registry calls
//   - withdraw: move hub's collected payments to `to`
//
// A step without an expect clause must succeed. `expect: {error: CODE}`
// requires the step's chain to fail with that code; the chain leaves nothing
// behind and later steps still run.
//
// # Assertion Types
//
//   - fact_count: facts of a kind, optionally from a source, appear N times
//   - fact_order: first facts of the given kinds appear in order
//   - fact_contains: some fact carries the given attributes (subset match)
//   - balance: an account holds an amount
//   - members: a railcar seats exactly the given members, in order
//   - edges: a hub's output and input sets
//   - queue_length: a queue hub's waiting participants
//
// # Golden Traces
//
// Render prints a result step by step with the facts each committed.
// RunWithGolden compares it against testdata/golden/<name>.golden using
// goldie; run the tests with -update to regenerate.
package harness
