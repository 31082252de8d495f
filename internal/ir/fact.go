package ir

// Fact kinds emitted by the core. Each kind is "<component>.<event>".
const (
	KindRegistered    = "directory.registered"
	KindNameReserved  = "directory.name_reserved"
	KindFeeSet        = "directory.fee_set"
	KindFundsMoved    = "funds.moved"
	KindEdgeAdded     = "hub.edge_added"
	KindEdgeRemoved   = "hub.edge_removed"
	KindPolicyChanged = "hub.policy_changed"
	KindEntered       = "hub.entered"
	KindExited        = "hub.exited"
	KindEnqueued      = "hub.enqueued"
	KindRailcarNew    = "railcar.created"
	KindRailcarJoined = "railcar.joined"
	KindDispatched    = "loop.dispatched"
)

// Fact is one append-only ledger record. Seq is the per-ledger order; ID is
// the content hash of the remaining fields. Facts carry no wall-clock time.
type Fact struct {
	Seq       int64   `json:"seq"`
	ID        string  `json:"id"`
	FlowToken string  `json:"flow_token"`
	Kind      string  `json:"kind"`
	Source    Address `json:"source"`
	Attrs     Attrs   `json:"attrs"`
}
