package harness

import (
	"github.com/roach88/railyard/internal/ir"
)

// TraceEvent is one fact emitted by a step, in ledger order.
type TraceEvent struct {
	Step   int        `json:"step"`
	Seq    int64      `json:"seq"`
	Flow   string     `json:"flow"`
	Kind   string     `json:"kind"`
	Source ir.Address `json:"source"`
	Attrs  ir.Attrs   `json:"attrs"`
}

// StepOutcome records how a step ended.
type StepOutcome struct {
	Index      int    `json:"index"`
	Action     string `json:"action"`
	Hub        string `json:"hub,omitempty"`
	Code       string `json:"code,omitempty"` // empty on success
	Dispatched int    `json:"dispatched,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Steps holds one outcome per scenario step.
	Steps []StepOutcome `json:"steps"`

	// Trace holds every fact the steps committed.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepOutcome{},
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addFacts(step int, facts []ir.Fact) {
	for _, f := range facts {
		r.Trace = append(r.Trace, TraceEvent{
			Step:   step,
			Seq:    f.Seq,
			Flow:   f.FlowToken,
			Kind:   f.Kind,
			Source: f.Source,
			Attrs:  f.Attrs,
		})
	}
}
