package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/railyard/internal/hub"
	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/store"
)

// HubsOptions holds flags for the hubs command.
type HubsOptions struct {
	*RootOptions
	Database string
	From     uint64
	To       uint64
	Rings    bool
}

// HubsResult is the JSON payload of the hubs command.
type HubsResult struct {
	Total   uint64        `json:"total"`
	Entries []store.Entry `json:"entries"`
	Rings   []hub.Ring    `json:"rings,omitempty"`
}

// NewHubsCommand creates the hubs command.
func NewHubsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HubsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hubs",
		Short: "List directory entries",
		Long: `List the hubs registered in a ledger's directory, by id.

Ids start at 1 and follow registration order. --to 0 lists up to the
last registered id. --rings also reports every set of hubs whose
outputs lead back into itself.

Examples:
  railyard hubs --db ./railyard.db
  railyard hubs --db ./railyard.db --rings
  railyard hubs --db ./railyard.db --from 2 --to 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHubs(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().Uint64Var(&opts.From, "from", 1, "first id to list")
	cmd.Flags().Uint64Var(&opts.To, "to", 0, "last id to list (0 = last registered)")
	cmd.Flags().BoolVar(&opts.Rings, "rings", false, "report cycles in the output edges")

	return cmd
}

func runHubs(ctx context.Context, opts *HubsOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.From == 0 {
		return NewExitError(ExitCommandError, "--from must be at least 1")
	}
	st, err := openLedger(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	result := HubsResult{Entries: []store.Entry{}}
	err = st.View(ctx, func(tx *store.Tx) error {
		total, err := tx.CountEntries()
		if err != nil {
			return err
		}
		result.Total = total
		if opts.Rings {
			g, err := hub.LoadGraph(tx)
			if err != nil {
				return err
			}
			result.Rings = hub.Rings(g)
		}
		end := opts.To
		if end == 0 || end > total {
			end = total
		}
		if opts.From > end {
			return nil
		}
		result.Entries, err = tx.EntriesRange(ir.HubID(opts.From), ir.HubID(end))
		return err
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read directory", err)
	}

	out := newFormatter(cmd, opts.RootOptions)
	if out.JSON() {
		return out.Success(result)
	}

	w := cmd.OutOrStdout()
	if len(result.Entries) == 0 {
		fmt.Fprintf(w, "No hubs in range (%d registered).\n", result.Total)
	} else {
		for _, e := range result.Entries {
			name := e.Name
			if name == "" {
				name = "-"
			}
			fmt.Fprintf(w, "%4d  %-24s %s\n", e.ID, e.Address, name)
		}
		fmt.Fprintf(w, "\n%d of %d hubs\n", len(result.Entries), result.Total)
	}
	if opts.Rings {
		printRings(w, result.Rings)
	}
	return nil
}

func printRings(w io.Writer, rings []hub.Ring) {
	if len(rings) == 0 {
		fmt.Fprintln(w, "No rings.")
		return
	}
	for _, r := range rings {
		steps := make([]string, len(r.Path))
		for i, id := range r.Path {
			steps[i] = strconv.FormatUint(uint64(id), 10)
		}
		fmt.Fprintf(w, "ring of %d: %s\n", len(r.Members), strings.Join(steps, " -> "))
	}
}
