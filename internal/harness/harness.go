package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"runtime"

	"github.com/roach88/parsecheck/internal/build"
	"github.com/roach88/parsecheck/internal/config"
	"github.com/roach88/parsecheck/internal/fixture"
	"github.com/roach88/parsecheck/internal/report"
	"github.com/roach88/parsecheck/internal/runner"
	"github.com/roach88/parsecheck/internal/store"
	"github.com/roach88/parsecheck/internal/verdict"
)

// Harness runs the pipeline: fixture loader, build, runner, classifier and
// report writer. A Harness is reusable; every Run rebuilds from scratch.
type Harness struct {
	Config *config.Config

	// Out receives the banner and progress lines.
	Out io.Writer

	// ParserOut receives the parser's stdout and stderr. Nil discards it.
	ParserOut io.Writer

	// BuildLog receives compiler output when Config.Build.Log is set.
	BuildLog io.Writer

	// History records batch runs when non-nil.
	History *store.Store

	Logger *slog.Logger
	Clock  Clock
	IDs    IDGenerator

	// GOOS selects the build strategy. Empty means runtime.GOOS.
	GOOS string
}

// New creates a Harness for cfg with production clock and IDs.
func New(cfg *config.Config) *Harness {
	return &Harness{
		Config: cfg,
		Out:    io.Discard,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  systemClock{},
		IDs:    UUIDv7Generator{},
	}
}

func (h *Harness) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return h.Logger
}

func (h *Harness) goos() string {
	if h.GOOS == "" {
		return runtime.GOOS
	}
	return h.GOOS
}

func (h *Harness) out() io.Writer {
	if h.Out == nil {
		return io.Discard
	}
	return h.Out
}

// Orchestrator returns the build orchestrator described by the config.
func (h *Harness) Orchestrator() *build.Orchestrator {
	cfg := h.Config.Build
	o := &build.Orchestrator{
		Strategy:     build.SelectStrategy(h.goos(), cfg),
		Source:       h.Config.Source,
		OutputDir:    cfg.OutputDir,
		ArtifactName: build.ArtifactName(cfg.Artifact, h.goos()),
		Stage:        cfg.Stage,
		Logger:       h.logger(),
	}
	if cfg.Log {
		o.Log = h.BuildLog
		if o.Log == nil {
			o.Log = os.Stderr
		}
	}
	return o
}

// Run executes one harness invocation.
//
// Input and fixture layout are checked before anything is built, so an
// InputError or StructureError never leaves an artifact behind. A failed
// build aborts before any fixture runs and before the report is created.
// With opts.Cleanup the artifact and staged files are removed on every exit
// path; cleanup failures are logged and never replace the returned error.
//
// On a LaunchError or cancellation mid-batch the partial run is returned
// together with the error, and the report holds every completed fixture.
func (h *Harness) Run(ctx context.Context, opts Options) (*TestRun, error) {
	log := h.logger()
	run := &TestRun{
		ID:        h.IDs.NewID(),
		Mode:      opts.Mode(),
		StartedAt: h.Clock.Now(),
	}

	timeout, err := h.Config.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	orch := h.Orchestrator()
	if opts.Cleanup {
		defer func() {
			if err := orch.Cleanup(); err != nil {
				log.Warn("cleanup failed", "error", err)
			}
		}()
	}

	var (
		set   *fixture.Set
		input fixture.Case
	)
	switch run.Mode {
	case ModeSingle:
		input, err = runner.ResolveInput(opts.Top)
		if err != nil {
			return nil, err
		}
	case ModeBatchAll, ModeBatchFiltered:
		run.Restrict = opts.Restrict
		set, err = fixture.Load(h.Config.Fixtures.Root, fixture.Options{
			AcceptDir: h.Config.Fixtures.Accept,
			RejectDir: h.Config.Fixtures.Reject,
			Restrict:  opts.Restrict,
		})
		if err != nil {
			return nil, err
		}
		log.Debug("fixtures loaded", "count", set.Len(), "mode", set.Mode())
	}

	artifact, err := h.build(ctx, orch, opts.SkipBuild)
	if err != nil {
		return nil, err
	}
	run.Artifact = artifact.Path

	if run.Mode == ModeBuildOnly {
		log.Info("build-only run complete", "artifact", artifact.Path)
		return run, nil
	}

	r := runner.New(artifact.Path)
	r.Timeout = timeout
	r.Stdout = h.ParserOut
	r.Stderr = h.ParserOut
	r.Logger = log

	if run.Mode == ModeSingle {
		// Resolved again so the size argument reflects the file as it is now.
		out, err := r.RunSingle(ctx, input.Path)
		if err != nil {
			return nil, err
		}
		run.Single = &out
		log.Info("single input executed", "input", input.Path, "exit_code", out.ExitCode)
		return run, nil
	}

	return run, h.runBatch(ctx, r, set, run, opts)
}

func (h *Harness) build(ctx context.Context, orch *build.Orchestrator, skip bool) (*build.Artifact, error) {
	if skip {
		path, err := orch.ArtifactPath()
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		switch {
		case err == nil && !info.IsDir():
			h.logger().Info("reusing existing artifact", "artifact", path)
			return &build.Artifact{Path: path}, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("check artifact: %w", err)
		}
		h.logger().Info("no artifact to reuse, building", "artifact", path)
	}
	return orch.Build(ctx)
}

func (h *Harness) runBatch(ctx context.Context, r *runner.Runner, set *fixture.Set, run *TestRun, opts Options) (err error) {
	log := h.logger()

	report.Banner(h.out(), set.Len(), set.Mode())

	w, err := report.Open(h.Config.ReportDir(), run.StartedAt, h.Config.Report.Compress)
	if err != nil {
		return err
	}
	run.ReportPath = w.Path()
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close report: %w", cerr)
		}
	}()

	progress := report.NewProgress(h.out(), set.Len(), opts.Progress)
	err = r.RunBatch(ctx, set, func(out runner.Outcome) error {
		rec := verdict.NewRecord(out.Case.Name, out.Case.ExpectedAccept, out.ExitCode)
		run.Records = append(run.Records, rec)
		progress.Record(rec)
		switch {
		case out.TimedOut:
			log.Warn("parser timed out", "fixture", out.Case.Name, "timeout", r.Timeout)
		case out.Signaled:
			log.Warn("parser terminated by signal", "fixture", out.Case.Name)
		}
		return w.Append(rec)
	})
	if err != nil {
		log.Error("batch aborted", "completed", len(run.Records), "total", set.Len(), "error", err)
		return err
	}

	log.Info("batch complete",
		"run_id", run.ID,
		"passed", run.Passed(),
		"failed", run.Failed(),
		"report", run.ReportPath,
	)
	return h.record(ctx, run)
}

// record saves a completed batch run to history.
func (h *Harness) record(ctx context.Context, run *TestRun) error {
	if h.History == nil {
		return nil
	}
	err := h.History.SaveRun(ctx, store.Run{
		ID:         run.ID,
		StartedAt:  run.StartedAt,
		Mode:       string(run.Mode),
		Source:     h.Config.Source,
		Restrict:   run.Restrict,
		Artifact:   run.Artifact,
		ReportPath: run.ReportPath,
		Total:      run.Total(),
		Passed:     run.Passed(),
		Failed:     run.Failed(),
	}, run.Records)
	if err != nil {
		return fmt.Errorf("record run history: %w", err)
	}
	h.logger().Debug("run recorded", "run_id", run.ID)
	return nil
}
