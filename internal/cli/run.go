package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/parsecheck/internal/build"
	"github.com/roach88/parsecheck/internal/config"
	"github.com/roach88/parsecheck/internal/harness"
	"github.com/roach88/parsecheck/internal/report"
	"github.com/roach88/parsecheck/internal/store"
	"github.com/roach88/parsecheck/internal/verdict"
)

// RunOptions holds flags for a harness run.
type RunOptions struct {
	*RootOptions
	BuildOnly bool
	Cleanup   bool
	Top       string
	Restrict  string
	Source    string
	Fixtures  string
	BuildLog  bool
	SkipBuild bool
	Timeout   string
	Compress  bool

	// Clock and IDs override run timestamps and IDs (for testing).
	// If nil, the harness uses the wall clock and UUIDv7 IDs.
	Clock harness.Clock
	IDs   harness.IDGenerator
}

func addRunFlags(cmd *cobra.Command, opts *RunOptions) {
	f := cmd.Flags()
	f.BoolVar(&opts.BuildOnly, "build-only", false, "build the parser and exit")
	f.BoolVar(&opts.Cleanup, "cleanup", false, "remove the artifact and staged files when done")
	f.StringVar(&opts.Top, "top", "", "run the parser on a single input and print ACCEPTED or REJECTED")
	f.StringVar(&opts.Restrict, "restrict", "", "only run fixtures named y_<tag>* and n_<tag>*")
	f.StringVar(&opts.Source, "source", "", "parser source file (default test.c)")
	f.StringVar(&opts.Fixtures, "fixtures", "", "directory holding the accept and reject sets (default .)")
	f.BoolVar(&opts.BuildLog, "build-log", false, "show compiler output")
	f.BoolVar(&opts.SkipBuild, "skip-build", false, "reuse an existing artifact instead of compiling")
	f.StringVar(&opts.Timeout, "timeout", "", "per-fixture time limit, e.g. 5s (default none)")
	f.BoolVar(&opts.Compress, "compress", false, "write the batch log zstd-compressed")
}

// loadConfig reads the config file and applies flag overrides. Only flags
// the user actually set override file values.
func loadConfig(opts *RunOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Source = opts.Source
	}
	if flags.Changed("fixtures") {
		cfg.Fixtures.Root = opts.Fixtures
	}
	if flags.Changed("build-log") {
		cfg.Build.Log = opts.BuildLog
	}
	if flags.Changed("timeout") {
		cfg.Run.Timeout = opts.Timeout
	}
	if flags.Changed("compress") {
		cfg.Report.Compress = opts.Compress
	}
	if opts.DB != "" {
		cfg.History.DB = opts.DB
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

func runHarness(opts *RunOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Progress and logs go to stderr in JSON mode
		Verbose:   opts.Verbose,
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := loadConfig(opts, cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	h := harness.New(cfg)
	h.Logger = logger
	h.ParserOut = cmd.ErrOrStderr()
	h.BuildLog = cmd.ErrOrStderr()
	h.Out = cmd.OutOrStdout()
	if opts.Format == "json" {
		h.Out = cmd.ErrOrStderr()
	}
	if opts.Clock != nil {
		h.Clock = opts.Clock
	}
	if opts.IDs != nil {
		h.IDs = opts.IDs
	}

	if cfg.History.DB != "" && !opts.BuildOnly && opts.Top == "" {
		logger.Debug("opening history database", "path", cfg.History.DB)
		st, err := store.Open(cfg.History.DB)
		if err != nil {
			_ = formatter.Error(ErrCodeHistory, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open history database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing history database", "error", closeErr)
			}
		}()
		h.History = st
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	run, err := h.Run(ctx, harness.Options{
		BuildOnly: opts.BuildOnly,
		Cleanup:   opts.Cleanup,
		Top:       opts.Top,
		Restrict:  opts.Restrict,
		SkipBuild: opts.SkipBuild,
		Progress:  opts.Verbose,
	})
	if err != nil {
		return outputRunError(formatter, run, err)
	}

	switch run.Mode {
	case harness.ModeBuildOnly:
		return formatter.Success(BuildResult{Artifact: run.Artifact})
	case harness.ModeSingle:
		return formatter.Success(SingleResult{
			Input:    run.Single.Case.Path,
			Outcome:  run.Observed(),
			ExitCode: run.Single.ExitCode,
			Signaled: run.Single.Signaled,
			TimedOut: run.Single.TimedOut,
		})
	default:
		return formatter.Success(run.Summary())
	}
}

// outputRunError reports a failed run. A batch that stopped part-way still
// prints the summary of the fixtures that completed.
func outputRunError(formatter *OutputFormatter, run *harness.TestRun, err error) error {
	code, errCode := classify(err)

	var details interface{}
	var buildErr *build.BuildError
	if errors.As(err, &buildErr) && buildErr.Output != "" {
		details = buildErr.Output
		if formatter.Format != "json" {
			fmt.Fprint(formatter.GetErrWriter(), buildErr.Output)
		}
	}

	if run != nil && run.Total() > 0 && formatter.Format != "json" {
		run.Summary().WriteText(formatter.Writer)
	}

	_ = formatter.Error(errCode, err.Error(), details)
	return WrapExitError(code, "run failed", err)
}

// BuildResult is the output of a --build-only run.
type BuildResult struct {
	Artifact string `json:"artifact"`
}

// WriteText renders the text form.
func (r BuildResult) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Built %s\n", r.Artifact)
}

// SingleResult is the output of a --top run.
type SingleResult struct {
	Input    string          `json:"input"`
	Outcome  verdict.Outcome `json:"outcome"`
	ExitCode int             `json:"exit_code"`
	Signaled bool            `json:"signaled,omitempty"`
	TimedOut bool            `json:"timed_out,omitempty"`
}

// WriteText prints ACCEPTED or REJECTED.
func (r SingleResult) WriteText(w io.Writer) {
	report.Single(w, r.Outcome)
}
