package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/parsecheck/internal/fixture"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the config, parser source and fixture layout without building",
		Long: `Check that a run could start: the config passes its schema, the parser
source exists, and the accept and reject directories hold only regular files.

Nothing is compiled or executed.

Examples:
  parsecheck validate
  parsecheck validate --restrict number
  parsecheck validate --config ci.yaml --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Restrict, "restrict", "", "only count fixtures named y_<tag>* and n_<tag>*")
	cmd.Flags().StringVar(&opts.Source, "source", "", "parser source file (default test.c)")
	cmd.Flags().StringVar(&opts.Fixtures, "fixtures", "", "directory holding the accept and reject sets (default .)")

	return cmd
}

// ValidateResult is the output of the validate command.
type ValidateResult struct {
	Valid    bool   `json:"valid"`
	Source   string `json:"source"`
	Mode     string `json:"mode"`
	Accept   int    `json:"accept"`
	Reject   int    `json:"reject"`
	Fixtures int    `json:"fixtures"`
}

// WriteText renders the text form.
func (r ValidateResult) WriteText(w io.Writer) {
	fmt.Fprintf(w, "✓ %s: %d fixtures (%d accept, %d reject), mode %s\n",
		r.Source, r.Fixtures, r.Accept, r.Reject, r.Mode)
}

func runValidate(opts *RunOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := loadConfig(opts, cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	info, err := os.Stat(cfg.Source)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, fmt.Sprintf("parser source: %v", err), nil)
		return WrapExitError(ExitCommandError, "parser source not found", err)
	}
	if info.IsDir() {
		msg := fmt.Sprintf("parser source %s is a directory", cfg.Source)
		_ = formatter.Error(ErrCodeConfig, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}
	formatter.VerboseLog("Source: %s (%d bytes)", cfg.Source, info.Size())

	set, err := fixture.Load(cfg.Fixtures.Root, fixture.Options{
		AcceptDir: cfg.Fixtures.Accept,
		RejectDir: cfg.Fixtures.Reject,
		Restrict:  opts.Restrict,
	})
	if err != nil {
		_ = formatter.Error(ErrCodeStructure, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid fixture layout", err)
	}

	result := ValidateResult{
		Valid:    true,
		Source:   cfg.Source,
		Mode:     set.Mode(),
		Fixtures: set.Len(),
	}
	for _, c := range set.Cases() {
		if c.ExpectedAccept {
			result.Accept++
		} else {
			result.Reject++
		}
		formatter.VerboseLog("  %s", c.Path)
	}
	return formatter.Success(result)
}
