// Package runner executes the built parser against fixture inputs.
//
// The parser is invoked as
//
//	<artifact> <absolute-input-path> <input-size-bytes>
//
// and only its exit status is observed. A process that runs and exits
// non-zero is an ordinary rejection; a process that cannot be started at all
// is a LaunchError and ends the run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/roach88/parsecheck/internal/fixture"
)

// waitDelay bounds how long Wait keeps draining output after the parser
// has exited or been killed. Orphaned children can hold the pipes open.
const waitDelay = 500 * time.Millisecond

// TimedOutExitCode is recorded for a process killed by the per-fixture timeout.
const TimedOutExitCode = -1

// Outcome is the observed result of one parser invocation.
type Outcome struct {
	Case     fixture.Case  `json:"case"`
	ExitCode int           `json:"exit_code"`
	Signaled bool          `json:"signaled,omitempty"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Runner invokes a built artifact. Invocations are independent: nothing is
// carried from one process to the next.
type Runner struct {
	// Artifact is the path of the executable under test.
	Artifact string

	// Dir is the working directory for each process. Empty means the
	// harness's own working directory.
	Dir string

	// Timeout bounds each invocation. Zero means wait indefinitely.
	Timeout time.Duration

	// Stdout and Stderr receive the parser's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	Logger *slog.Logger
}

// New creates a Runner for artifact with output discarded.
func New(artifact string) *Runner {
	return &Runner{
		Artifact: artifact,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Logger
}

// Args returns the argument vector passed to the artifact for c.
func Args(c fixture.Case) []string {
	return []string{c.Path, strconv.FormatInt(c.Size, 10)}
}

// Invoke runs the artifact once for c and waits for it to exit.
//
// Cancellation of ctx kills the process and returns ctx.Err(). A per-fixture
// timeout is not an error: the outcome is marked TimedOut with a non-zero
// exit code.
func (r *Runner) Invoke(ctx context.Context, c fixture.Case) (Outcome, error) {
	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	// #nosec G204 -- the artifact is the harness's own build output.
	cmd := exec.CommandContext(runCtx, r.Artifact, Args(c)...)
	cmd.Dir = r.Dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.WaitDelay = waitDelay

	out := Outcome{Case: c}
	start := time.Now()
	err := cmd.Run()
	out.Duration = time.Since(start)

	if cmd.ProcessState == nil {
		// The process never started.
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, &LaunchError{Artifact: r.Artifact, Err: err}
	}

	if ctx.Err() != nil {
		return out, ctx.Err()
	}

	out.ExitCode = cmd.ProcessState.ExitCode()
	if !cmd.ProcessState.Exited() {
		out.Signaled = true
	}
	if r.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		out.TimedOut = true
		out.ExitCode = TimedOutExitCode
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
		return out, fmt.Errorf("wait for %s: %w", r.Artifact, err)
	}

	r.logger().Debug("fixture executed",
		"fixture", c.Name,
		"exit_code", out.ExitCode,
		"signaled", out.Signaled,
		"timed_out", out.TimedOut,
		"duration", out.Duration,
	)
	return out, nil
}

// RunBatch invokes the artifact for every case in set, strictly in order.
// Each process exits before the next one starts. fn is called with each
// outcome as soon as it is available; an error from fn or a LaunchError
// stops the batch.
func (r *Runner) RunBatch(ctx context.Context, set *fixture.Set, fn func(Outcome) error) error {
	for _, c := range set.Cases() {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := r.Invoke(ctx, c)
		if err != nil {
			return err
		}
		if err := fn(out); err != nil {
			return err
		}
	}
	return nil
}

// RunSingle invokes the artifact on one explicit input, without any label.
func (r *Runner) RunSingle(ctx context.Context, path string) (Outcome, error) {
	c, err := ResolveInput(path)
	if err != nil {
		return Outcome{}, err
	}
	return r.Invoke(ctx, c)
}

// ResolveInput validates a single-input path and describes it as a Case.
// The returned case carries no meaningful label.
func ResolveInput(path string) (fixture.Case, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fixture.Case{}, &InputError{Path: path, Reason: "invalid path", Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return fixture.Case{}, &InputError{Path: path, Reason: "file not found", Err: err}
		}
		return fixture.Case{}, &InputError{Path: path, Reason: "cannot stat input", Err: err}
	}
	if info.IsDir() {
		return fixture.Case{}, &InputError{Path: path, Reason: "expected file, found directory"}
	}
	return fixture.Case{
		Path: abs,
		Name: filepath.Base(abs),
		Size: info.Size(),
	}, nil
}

// LaunchError reports an artifact that could not be executed at all.
type LaunchError struct {
	Artifact string
	Err      error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Artifact, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// InputError reports a missing or unusable single-input path.
type InputError struct {
	Path   string
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input %s: %s", e.Path, e.Reason)
}

func (e *InputError) Unwrap() error {
	return e.Err
}
