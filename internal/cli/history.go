package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/parsecheck/internal/config"
	"github.com/roach88/parsecheck/internal/store"
	"github.com/roach88/parsecheck/internal/verdict"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Run   string
	Diff  []string
	Limit int
	Prune int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs from the history database",
		Long: `Show batch runs recorded with --db (or history.db in the config file).

With no flags, lists the most recent runs. --run prints the verdicts of one
run in execution order. --diff compares two runs by fixture name and prints
only fixtures whose verdict changed.

Examples:
  parsecheck history --db history.db
  parsecheck history --db history.db --run 0190a1b2-...
  parsecheck history --db history.db --diff <old-id>,<new-id>
  parsecheck history --db history.db --prune 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Run, "run", "", "show the verdicts of one run")
	cmd.Flags().StringSliceVar(&opts.Diff, "diff", nil, "compare two runs: --diff <old>,<new>")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of runs to list (0 for all)")
	cmd.Flags().IntVar(&opts.Prune, "prune", -1, "delete all but the N newest runs")
	cmd.MarkFlagsMutuallyExclusive("run", "diff", "prune")

	return cmd
}

// RunList is the output of history with no flags.
type RunList struct {
	Runs []store.Run `json:"runs"`
}

// WriteText renders the text form.
func (l RunList) WriteText(w io.Writer) {
	if len(l.Runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	for _, r := range l.Runs {
		fmt.Fprintf(w, "%s  %s  %-10s %d passed, %d failed, %d total\n",
			r.ID, r.StartedAt.UTC().Format("2006-01-02 15:04:05"), r.Mode, r.Passed, r.Failed, r.Total)
	}
}

// RunDetail is the output of history --run.
type RunDetail struct {
	Run     store.Run        `json:"run"`
	Records []verdict.Record `json:"records"`
}

// WriteText renders the text form.
func (d RunDetail) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Run %s (%s)\n", d.Run.ID, d.Run.Mode)
	if d.Run.Source != "" {
		fmt.Fprintf(w, "Source: %s\n", d.Run.Source)
	}
	for _, rec := range d.Records {
		fmt.Fprintf(w, "  %s\n", rec.String())
	}
	fmt.Fprintf(w, "%d passed, %d failed, %d total\n", d.Run.Passed, d.Run.Failed, d.Run.Total)
}

// PruneResult is the output of history --prune.
type PruneResult struct {
	Deleted int64 `json:"deleted"`
	Kept    int   `json:"kept"`
}

// WriteText renders the text form.
func (r PruneResult) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Pruned %d runs, kept at most %d\n", r.Deleted, r.Kept)
}

// RunDiff is the output of history --diff.
type RunDiff struct {
	Before  string         `json:"before"`
	After   string         `json:"after"`
	Changes []store.Change `json:"changes"`
}

// WriteText renders the text form.
func (d RunDiff) WriteText(w io.Writer) {
	if len(d.Changes) == 0 {
		fmt.Fprintf(w, "No verdict changes between %s and %s\n", d.Before, d.After)
		return
	}
	for _, c := range d.Changes {
		set := "reject"
		if c.ExpectedAccept {
			set = "accept"
		}
		fmt.Fprintf(w, "  %s (%s): %s -> %s\n", c.Fixture, set, orAbsent(c.Before), orAbsent(c.After))
	}
}

func orAbsent(v verdict.Verdict) string {
	if v == "" {
		return "(absent)"
	}
	return string(v)
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if len(opts.Diff) != 0 && len(opts.Diff) != 2 {
		msg := fmt.Sprintf("--diff takes exactly two run IDs, got %d", len(opts.Diff))
		_ = formatter.Error(ErrCodeGeneric, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	path := opts.DB
	if path == "" {
		cfg, err := config.Load(opts.Config)
		if err != nil {
			_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid configuration", err)
		}
		path = cfg.History.DB
	}
	if path == "" {
		msg := "no history database: pass --db or set history.db in the config file"
		_ = formatter.Error(ErrCodeHistory, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	// Open would create an empty database; a missing file is a user error.
	if _, err := os.Stat(path); err != nil {
		_ = formatter.Error(ErrCodeHistory, fmt.Sprintf("history database: %v", err), nil)
		return WrapExitError(ExitCommandError, "history database not found", err)
	}

	st, err := store.Open(path)
	if err != nil {
		_ = formatter.Error(ErrCodeHistory, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := queryHistory(ctx, st, opts)
	if err != nil {
		_ = formatter.Error(ErrCodeHistory, err.Error(), map[string]string{"database": path})
		if errors.Is(err, store.ErrRunNotFound) {
			return WrapExitError(ExitCommandError, "unknown run", err)
		}
		return WrapExitError(ExitCommandError, "history query failed", err)
	}
	return formatter.Success(result)
}

func queryHistory(ctx context.Context, st *store.Store, opts *HistoryOptions) (interface{}, error) {
	switch {
	case opts.Prune >= 0:
		n, err := st.PruneRuns(ctx, opts.Prune)
		if err != nil {
			return nil, err
		}
		return PruneResult{Deleted: n, Kept: opts.Prune}, nil

	case opts.Run != "":
		run, err := st.ReadRun(ctx, opts.Run)
		if err != nil {
			return nil, err
		}
		records, err := st.ReadVerdicts(ctx, opts.Run)
		if err != nil {
			return nil, err
		}
		return RunDetail{Run: run, Records: records}, nil

	case len(opts.Diff) == 2:
		changes, err := st.DiffRuns(ctx, opts.Diff[0], opts.Diff[1])
		if err != nil {
			return nil, err
		}
		return RunDiff{Before: opts.Diff[0], After: opts.Diff[1], Changes: changes}, nil

	default:
		runs, err := st.ListRuns(ctx, opts.Limit)
		if err != nil {
			return nil, err
		}
		return RunList{Runs: runs}, nil
	}
}
