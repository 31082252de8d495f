package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/railyard/internal/config"
	"github.com/roach88/railyard/internal/directory"
	"github.com/roach88/railyard/internal/harness"
	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/railcar"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Config and Logger are filled in before a subcommand runs. Commands
	// built directly in tests may leave them nil.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the railyard CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "railyard",
		Short: "railyard - hub composition runtime",
		Long: `Run and inspect railyard ledgers.

A railyard ledger holds a directory of hubs, the edges between them,
railcars of participants and the fact log every chain commits.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			opts.Config = &cfg
			opts.Logger = cfg.Log.NewLogger(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a CUE config file")

	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewFactsCommand(opts))
	cmd.AddCommand(NewHubsCommand(opts))
	cmd.AddCommand(NewNameCommand(opts))

	return cmd
}

// logger returns the configured logger, or one that discards everything.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// database picks the ledger path: the flag, then the config file.
func (o *RootOptions) database(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if o.Config != nil && o.Config.Database != "" {
		return o.Config.Database, nil
	}
	return "", NewExitError(ExitCommandError, "no database: pass --db or set database in config")
}

// prepare fills what a scenario leaves unset from the config and returns
// the options to run it with.
func (o *RootOptions) prepare(s *harness.Scenario, extra ...harness.Option) []harness.Option {
	opts := append([]harness.Option{harness.WithLogger(o.logger())}, extra...)
	cfg := o.Config
	if cfg == nil {
		return opts
	}
	if s.MaxHops == 0 {
		s.MaxHops = cfg.Engine.MaxHops
	}
	return append(opts, harness.WithDefaults(harness.Defaults{
		Directory: directory.Config{
			Address:         ir.Address(cfg.Directory.Address),
			Admin:           ir.Address(cfg.Directory.Admin),
			RegistrationFee: cfg.Directory.RegistrationFee,
			NamingFee:       cfg.Directory.NamingFee,
		},
		Railcar: railcar.Config{
			Address:     ir.Address(cfg.Railcar.Address),
			Admin:       ir.Address(cfg.Railcar.Admin),
			CreationFee: cfg.Railcar.CreationFee,
		},
		Interval: cfg.Scheduler.Interval.Std(),
	}))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
