package harness

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/railyard/internal/ir"
)

// GoldenDir holds golden traces, relative to the test's package.
const GoldenDir = "testdata/golden"

// Render prints a result as a deterministic trace: one line per step with
// its outcome, then one indented line per fact it committed. Attributes are
// canonical JSON. Seqs, fact ids and flow tokens are left out so a trace
// only changes when behavior does.
func Render(name string, result *Result) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario %s\n", name)

	byStep := make(map[int][]TraceEvent, len(result.Steps))
	for _, ev := range result.Trace {
		byStep[ev.Step] = append(byStep[ev.Step], ev)
	}

	for _, st := range result.Steps {
		fmt.Fprintf(&buf, "step %d %s", st.Index, st.Action)
		if st.Hub != "" {
			fmt.Fprintf(&buf, " %s", st.Hub)
		}
		if st.Code == "" {
			buf.WriteString(" ok")
		} else {
			fmt.Fprintf(&buf, " %s", st.Code)
		}
		if st.Action == ActionDispatch {
			fmt.Fprintf(&buf, " dispatched=%d", st.Dispatched)
		}
		buf.WriteByte('\n')

		for _, ev := range byStep[st.Index] {
			attrs, err := ir.MarshalCanonical(ev.Attrs)
			if err != nil {
				return nil, fmt.Errorf("step %d: %s: %w", st.Index, ev.Kind, err)
			}
			fmt.Fprintf(&buf, "  %s %s %s\n", ev.Kind, ev.Source, attrs)
		}
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its rendered trace
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against the golden file for
// name.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	trace, err := Render(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, trace)
	return nil
}
