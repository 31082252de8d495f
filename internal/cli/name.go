package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/railyard/internal/directory"
	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/store"
)

// NameCheck is the JSON payload of "name check".
type NameCheck struct {
	Name  string `json:"name"`
	Valid bool   `json:"valid"`
}

// NameLookup is the JSON payload of "name resolve".
type NameLookup struct {
	Name    string     `json:"name"`
	ID      ir.HubID   `json:"id"`
	Address ir.Address `json:"address"`
}

// NewNameCommand creates the name command group.
func NewNameCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "name",
		Short: "Check and resolve directory names",
	}
	cmd.AddCommand(newNameCheckCommand(rootOpts))
	cmd.AddCommand(newNameResolveCommand(rootOpts))
	return cmd
}

func newNameCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <name>",
		Short: "Validate a name against the directory grammar",
		Long: `Validate a name against the directory grammar.

A name is one or more of: lowercase ASCII letters, digits, '.', '_'
and '-'.

Exits 1 when the name is rejected.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			check := NameCheck{Name: args[0], Valid: directory.ValidName(args[0])}
			out := newFormatter(cmd, opts)
			if out.JSON() {
				if err := out.Success(check); err != nil {
					return err
				}
			} else if check.Valid {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %q is a valid name\n", check.Name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "✗ %q is not a valid name\n", check.Name)
			}
			if !check.Valid {
				return NewExitError(ExitFailure, fmt.Sprintf("invalid name %q", check.Name))
			}
			return nil
		},
	}
}

func newNameResolveCommand(opts *RootOptions) *cobra.Command {
	var database string
	cmd := &cobra.Command{
		Use:           "resolve <name>",
		Short:         "Look up the hub a name is reserved for",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			st, err := openLedger(opts, database)
			if err != nil {
				return err
			}
			defer st.Close()

			lookup := NameLookup{Name: args[0]}
			var found bool
			err = st.View(ctx, func(tx *store.Tx) error {
				id, ok, err := tx.NameOwner(lookup.Name)
				if err != nil || !ok {
					return err
				}
				addr, ok, err := tx.EntryByID(id)
				if err != nil || !ok {
					return err
				}
				lookup.ID, lookup.Address, found = id, addr, true
				return nil
			})
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read directory", err)
			}

			out := newFormatter(cmd, opts)
			if !found {
				if err := out.Error("E_NAME_NOT_FOUND", fmt.Sprintf("name %q is not reserved", lookup.Name), nil); err != nil {
					return err
				}
				return NewExitError(ExitFailure, fmt.Sprintf("name %q is not reserved", lookup.Name))
			}
			if out.JSON() {
				return out.Success(lookup)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %d %s\n", lookup.Name, lookup.ID, lookup.Address)
			return nil
		},
	}
	cmd.Flags().StringVar(&database, "db", "", "path to SQLite database (default from config)")
	return cmd
}
