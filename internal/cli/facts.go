package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/store"
)

// FactsOptions holds flags for the facts command.
type FactsOptions struct {
	*RootOptions
	Database  string
	FlowToken string
	Kind      string
	Source    string
	After     int64
	Limit     int
}

// FactsResult is the JSON payload of the facts command.
type FactsResult struct {
	Facts []ir.Fact `json:"facts"`
	Flows int       `json:"flows"`
}

// NewFactsCommand creates the facts command.
func NewFactsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FactsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Print the fact log",
		Long: `Print facts committed to a ledger, in commit order.

Every committed chain appends its facts under one flow token; a failed
chain appends none. Filters combine.

Examples:
  railyard facts --db ./railyard.db
  railyard facts --db ./railyard.db --flow flow-3
  railyard facts --db ./railyard.db --kind hub.entered --source hub-b
  railyard facts --db ./railyard.db --after 120 --limit 20 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFacts(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.FlowToken, "flow", "", "only facts of this flow")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only facts of this kind")
	cmd.Flags().StringVar(&opts.Source, "source", "", "only facts emitted by this address")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only facts with a greater seq")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of facts (0 = all)")

	return cmd
}

func runFacts(ctx context.Context, opts *FactsOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}
	st, err := openLedger(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	filter := store.FactFilter{
		FlowToken: opts.FlowToken,
		Kind:      opts.Kind,
		Source:    ir.Address(opts.Source),
		AfterSeq:  opts.After,
		Limit:     opts.Limit,
	}
	var facts []ir.Fact
	err = st.View(ctx, func(tx *store.Tx) error {
		var err error
		facts, err = tx.Facts(filter)
		return err
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read facts", err)
	}

	result := FactsResult{Facts: facts, Flows: countFlows(facts)}
	out := newFormatter(cmd, opts.RootOptions)
	if out.JSON() {
		return out.Success(result)
	}

	w := cmd.OutOrStdout()
	if len(facts) == 0 {
		fmt.Fprintln(w, "No facts found.")
		return nil
	}
	for _, f := range facts {
		attrs, err := ir.MarshalCanonical(f.Attrs)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("fact %d has unprintable attributes", f.Seq), err)
		}
		fmt.Fprintf(w, "%6d  %-10s %-20s %-16s %s\n", f.Seq, f.FlowToken, f.Kind, f.Source, attrs)
	}
	fmt.Fprintf(w, "\n%d facts in %d flows\n", len(facts), result.Flows)
	return nil
}

func countFlows(facts []ir.Fact) int {
	seen := make(map[string]struct{})
	for _, f := range facts {
		seen[f.FlowToken] = struct{}{}
	}
	return len(seen)
}

// openLedger opens an existing ledger for inspection.
func openLedger(opts *RootOptions, flag string) (*store.Store, error) {
	path, err := opts.database(flag)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
