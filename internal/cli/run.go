package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/railyard/internal/harness"
	"github.com/roach88/railyard/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Execute a scenario against a persistent ledger",
		Long: `Execute one scenario against a SQLite ledger, creating it if needed.

Facts, balances, edges and railcars stay in the ledger afterwards and can
be inspected with "railyard facts" and "railyard hubs". Running the same
scenario again rebinds its hubs and skips names and edges that already
exist.

Examples:
  railyard run --db ./railyard.db ./scenarios/relay_line.yaml
  railyard run ./scenarios/queue_dispatch.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")

	return cmd
}

func runScenarioFile(ctx context.Context, opts *RunOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := opts.logger()

	s, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	dbPath, err := opts.database(opts.Database)
	if err != nil {
		return err
	}
	log.Info("opening ledger", "path", dbPath)
	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	result, err := harness.Run(ctx, s, opts.prepare(s, harness.WithStore(st))...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}
	log.Info("scenario finished", "scenario", s.Name, "pass", result.Pass, "facts", len(result.Trace))

	out := newFormatter(cmd, opts.RootOptions)
	if out.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{Code: "E_SCENARIO_FAILED", Message: s.Name, Details: result.Errors}
		}
		if err := out.Response(resp); err != nil {
			return err
		}
	} else {
		trace, err := harness.Render(s.Name, result)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to render trace", err)
		}
		w := cmd.OutOrStdout()
		if _, err := w.Write(trace); err != nil {
			return err
		}
		for _, e := range result.Errors {
			fmt.Fprintf(w, "✗ %s\n", e)
		}
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", s.Name))
	}
	return nil
}
