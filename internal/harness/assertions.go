package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Facts for context; nil for ledger assertions
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step %d %s %s %v\n", ev.Seq, ev.Step, ev.Kind, ev.Source, ev.Attrs)
		}
	}
	return buf.String()
}

// AssertionContext provides what ledger assertions read.
type AssertionContext struct {
	Ctx   context.Context
	Store *store.Store

	yard *yard
}

func (c *AssertionContext) address(name string) ir.Address {
	if c.yard == nil {
		return ir.Address(name)
	}
	return c.yard.address(name)
}

// EvaluateAssertions runs every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertFactCount:
			err = assertFactCount(result.Trace, a, actx)
		case AssertFactOrder:
			err = assertFactOrder(result.Trace, a)
		case AssertFactContains:
			err = assertFactContains(result.Trace, a, actx)
		case AssertBalance, AssertMembers, AssertEdges, AssertQueueLength:
			err = assertLedger(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func (c *AssertionContext) matches(ev TraceEvent, a Assertion) bool {
	if ev.Kind != a.Kind {
		return false
	}
	return a.Source == "" || ev.Source == c.address(a.Source)
}

// assertFactCount checks that facts of the kind, from the source if given,
// appear exactly Count times.
func assertFactCount(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	n := 0
	for _, ev := range trace {
		if actx.matches(ev, a) {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertFactCount,
			Expected: fmt.Sprintf("%d %s facts%s", a.Count, a.Kind, fromClause(a.Source)),
			Actual:   fmt.Sprintf("%d facts", n),
			Trace:    trace,
		}
	}
	return nil
}

// assertFactOrder checks that the first fact of each kind appears in the
// given order. Other facts may appear in between.
func assertFactOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int, len(a.Kinds))
	for i, ev := range trace {
		if _, seen := positions[ev.Kind]; !seen {
			positions[ev.Kind] = i + 1 // 1-indexed for readability
		}
	}

	for _, kind := range a.Kinds {
		if positions[kind] == 0 {
			return &AssertionError{
				Type:     AssertFactOrder,
				Expected: fmt.Sprintf("all kinds present: %v", a.Kinds),
				Actual:   fmt.Sprintf("missing kind: %s", kind),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Kinds); i++ {
		prev, curr := a.Kinds[i-1], a.Kinds[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertFactOrder,
				Expected: fmt.Sprintf("kinds in order: %v", a.Kinds),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertFactContains checks that some matching fact carries every expected
// attribute (subset match).
func assertFactContains(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	for _, ev := range trace {
		if actx.matches(ev, a) && matchAttrs(ev.Attrs, a.Attrs) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertFactContains,
		Expected: fmt.Sprintf("%s fact%s with attrs %v", a.Kind, fromClause(a.Source), a.Attrs),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// matchAttrs reports whether actual contains every key of expected with an
// equal value. Values compare by their printed form, so YAML integers match
// the json.Number values decoded from the ledger.
func matchAttrs(actual ir.Attrs, expected map[string]any) bool {
	for k, want := range expected {
		got, ok := actual[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func fromClause(source string) string {
	if source == "" {
		return ""
	}
	return " from " + source
}

// assertLedger checks final ledger state.
func assertLedger(actx *AssertionContext, a Assertion) error {
	if actx == nil || actx.Store == nil {
		return fmt.Errorf("%s assertion requires a ledger", a.Type)
	}
	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	err := actx.Store.View(ctx, func(tx *store.Tx) error {
		switch a.Type {
		case AssertBalance:
			return checkBalance(tx, actx, a)
		case AssertMembers:
			return checkMembers(tx, a)
		case AssertEdges:
			return checkEdges(tx, actx, a)
		default:
			return checkQueueLength(tx, actx, a)
		}
	})
	var failure *AssertionError
	if err != nil && !errors.As(err, &failure) {
		return &AssertionError{
			Type:     a.Type,
			Expected: "readable ledger",
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	return err
}

func checkBalance(tx *store.Tx, actx *AssertionContext, a Assertion) error {
	account := actx.address(a.Account)
	got, err := tx.Balance(account)
	if err != nil {
		return err
	}
	if got != a.Amount {
		return &AssertionError{
			Type:     AssertBalance,
			Expected: fmt.Sprintf("%s holds %d", account, a.Amount),
			Actual:   fmt.Sprintf("%s holds %d", account, got),
		}
	}
	return nil
}

func checkMembers(tx *store.Tx, a Assertion) error {
	members, err := tx.Members(ir.GroupID(a.Railcar))
	if err != nil {
		return err
	}
	got := make([]string, len(members))
	for i, m := range members {
		got[i] = string(m)
	}
	want := a.Members
	if want == nil {
		want = []string{}
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return &AssertionError{
			Type:     AssertMembers,
			Expected: fmt.Sprintf("railcar %d seats %v", a.Railcar, want),
			Actual:   fmt.Sprintf("railcar %d seats %v", a.Railcar, got),
		}
	}
	return nil
}

// checkEdges compares edge sets; order after removal is unspecified.
func checkEdges(tx *store.Tx, actx *AssertionContext, a Assertion) error {
	h := actx.yard.hubs[a.Hub]
	outs, err := tx.Outputs(h.ID())
	if err != nil {
		return err
	}
	ins, err := tx.Inputs(h.ID())
	if err != nil {
		return err
	}
	gotOut, gotIn := actx.yard.names(outs), actx.yard.names(ins)
	wantOut, wantIn := sorted(a.Outputs), sorted(a.Inputs)
	if strings.Join(gotOut, ",") != strings.Join(wantOut, ",") || strings.Join(gotIn, ",") != strings.Join(wantIn, ",") {
		return &AssertionError{
			Type:     AssertEdges,
			Expected: fmt.Sprintf("%s outputs %v inputs %v", a.Hub, wantOut, wantIn),
			Actual:   fmt.Sprintf("%s outputs %v inputs %v", a.Hub, gotOut, gotIn),
		}
	}
	return nil
}

func checkQueueLength(tx *store.Tx, actx *AssertionContext, a Assertion) error {
	n, err := tx.QueueLen(actx.yard.hubs[a.Hub].ID())
	if err != nil {
		return err
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertQueueLength,
			Expected: fmt.Sprintf("%s holds %d", a.Hub, a.Count),
			Actual:   fmt.Sprintf("%s holds %d", a.Hub, n),
		}
	}
	return nil
}

// names maps hub ids back to scenario names, sorted. Unknown ids print as
// "#id".
func (y *yard) names(ids []ir.HubID) []string {
	byID := make(map[ir.HubID]string, len(y.hubs))
	for name, h := range y.hubs {
		byID[h.ID()] = name
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		if name, ok := byID[id]; ok {
			out[i] = name
		} else {
			out[i] = fmt.Sprintf("#%d", id)
		}
	}
	sort.Strings(out)
	return out
}

func sorted(s []string) []string {
	out := append([]string{}, s...)
	sort.Strings(out)
	return out
}
