package harness

import (
	"time"

	"github.com/google/uuid"

	"github.com/roach88/parsecheck/internal/fixture"
	"github.com/roach88/parsecheck/internal/report"
	"github.com/roach88/parsecheck/internal/runner"
	"github.com/roach88/parsecheck/internal/verdict"
)

// Mode is what a single harness invocation does after the build.
type Mode string

const (
	ModeBatchAll      Mode = "batch-all"
	ModeBatchFiltered Mode = "batch-filtered"
	ModeSingle        Mode = "single"
	ModeBuildOnly     Mode = "build-only"
)

// Options selects the mode and the scoped behavior of one run.
type Options struct {
	// BuildOnly stops after a successful build. It takes precedence over Top.
	BuildOnly bool

	// Cleanup removes the artifact and staged files on every exit path.
	Cleanup bool

	// Top runs the parser on this one input instead of the fixture sets.
	Top string

	// Restrict limits the batch to fixtures prefixed y_<tag> / n_<tag>.
	Restrict string

	// SkipBuild reuses an existing artifact instead of compiling.
	SkipBuild bool

	// Progress forces per-fixture progress lines even when output is not
	// a terminal.
	Progress bool
}

// Mode returns the mode opts selects.
func (o Options) Mode() Mode {
	switch {
	case o.BuildOnly:
		return ModeBuildOnly
	case o.Top != "":
		return ModeSingle
	case o.Restrict != "":
		return ModeBatchFiltered
	default:
		return ModeBatchAll
	}
}

// TestRun is the result of one harness invocation. Records are appended in
// execution order and never modified.
type TestRun struct {
	ID         string           `json:"id"`
	Mode       Mode             `json:"mode"`
	Restrict   string           `json:"restrict,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	Artifact   string           `json:"artifact,omitempty"`
	ReportPath string           `json:"report_path,omitempty"`
	Records    []verdict.Record `json:"records,omitempty"`

	// Single is set in single-input mode.
	Single *runner.Outcome `json:"single,omitempty"`
}

// Total returns the number of fixtures executed.
func (r *TestRun) Total() int {
	return len(r.Records)
}

// Passed returns the number of Pass records.
func (r *TestRun) Passed() int {
	passed, _ := verdict.Tally(r.Records)
	return passed
}

// Failed returns the number of Fail records.
func (r *TestRun) Failed() int {
	_, failed := verdict.Tally(r.Records)
	return failed
}

// Observed returns the single-input result. It is only meaningful in
// single mode.
func (r *TestRun) Observed() verdict.Outcome {
	if r.Single == nil {
		return ""
	}
	return verdict.Observe(r.Single.ExitCode)
}

// Summary returns the end-of-run summary for a batch run.
func (r *TestRun) Summary() report.Summary {
	mode := fixture.ModeAll
	if r.Restrict != "" {
		mode = r.Restrict
	}
	return report.NewSummary(r.ID, mode, r.Restrict, r.StartedAt, r.ReportPath, r.Records)
}

// Clock supplies run start times.
type Clock interface {
	Now() time.Time
}

// IDGenerator supplies run IDs.
//
// Implemented by UUIDv7Generator (production) and testutil.FixedIDGenerator
// (tests).
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run IDs, so history rows
// sort by creation time even without started_at.
type UUIDv7Generator struct{}

// NewID returns a new hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
