package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/vigil/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	DB         string

	// Config is loaded before any subcommand runs.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the vigil CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "vigil",
		Short: "vigil - standing queries over evolving models",
		Long: `vigil answers path queries against published mechanistic models,
keeps every answer in a result ledger and reports how answers change
as models are republished.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default: ./vigil.yaml or ~/.config/vigil/vigil.yaml)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "SQLite database path (overrides config)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewAskCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewResultsCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewPublishCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// load reads the configuration and sets up logging. Logs go to stderr so
// JSON output on stdout stays parseable.
func (o *RootOptions) load(logOut io.Writer) error {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.Logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	if o.DB != "" {
		cfg.DB = o.DB
	}
	o.Config = cfg
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
