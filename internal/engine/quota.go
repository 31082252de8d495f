package engine

// DefaultMaxHops is the default number of hub entries allowed per chain.
// Cyclic graphs rely on this bound to terminate.
const DefaultMaxHops = 1000

// HopQuota counts hub entries within one chain and enforces a limit.
//
// Each chain has its own HopQuota. Entry points call Check on every entry,
// before running hooks, so a runaway cycle fails the chain instead of
// recursing without bound.
type HopQuota struct {
	maxHops int
	current int
}

// NewHopQuota creates a quota with the given limit. A limit <= 0 uses
// DefaultMaxHops.
func NewHopQuota(maxHops int) *HopQuota {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	return &HopQuota{maxHops: maxHops}
}

// Check increments the hop counter and validates it against the limit.
func (q *HopQuota) Check(flowToken string) error {
	q.current++
	if q.current > q.maxHops {
		return Errorf(CodeHopQuotaExceeded, "flow %s exceeded hop quota: %d hops > %d limit",
			flowToken, q.current, q.maxHops)
	}
	return nil
}

// Current returns the current hop count.
func (q *HopQuota) Current() int {
	return q.current
}

// MaxHops returns the limit.
func (q *HopQuota) MaxHops() int {
	return q.maxHops
}
