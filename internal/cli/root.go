package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // config file path; empty means parsecheck.yaml when present
	DB      string // run history database
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the parsecheck CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RunOptions{RootOptions: &RootOptions{}})
}

func newRootCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parsecheck",
		Short: "parsecheck - parser conformance harness",
		Long: `Build a parser once and run it against labeled fixtures.

Fixtures in the accept directory (default yes/) must exit 0; fixtures in the
reject directory (default no/) must exit non-zero. Each fixture is recorded
as Pass or Fail in a timestamped CSV log in the build directory.

The parser is invoked as:  <artifact> <input-path> <input-size-bytes>

Exit codes:
  0 - Run completed (whatever the verdicts) or build-only succeeded
  1 - --top input missing or not a file
  2 - Command error (flags, config, fixture layout, history database)
  3 - Build failed
  4 - Artifact could not be executed

Examples:
  parsecheck
  parsecheck --restrict number
  parsecheck --top sample.json
  parsecheck --build-only --build-log
  parsecheck --cleanup --db history.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				msg := fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
				fmt.Fprintf(cmd.ErrOrStderr(), "Error [%s]: %s\n", ErrCodeGeneric, msg)
				return NewExitError(ExitCommandError, msg)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarness(opts, cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging, per-fixture progress)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "config file (default parsecheck.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "run history database (SQLite)")

	addRunFlags(cmd, opts)

	// Add subcommands
	cmd.AddCommand(NewValidateCommand(opts.RootOptions))
	cmd.AddCommand(NewHistoryCommand(opts.RootOptions))

	return cmd
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
