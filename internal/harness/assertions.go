package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/parsecheck/internal/build"
	"github.com/roach88/parsecheck/internal/config"
	"github.com/roach88/parsecheck/internal/fixture"
	"github.com/roach88/parsecheck/internal/report"
	"github.com/roach88/parsecheck/internal/runner"
)

// Failure kinds reported by ErrorKind.
const (
	KindInput     = "input"
	KindStructure = "structure"
	KindBuild     = "build"
	KindLaunch    = "launch"
	KindConfig    = "config"
	KindCanceled  = "canceled"
	KindOther     = "other"
)

// ErrorKind classifies a Run error. It returns "" for a nil error.
func ErrorKind(err error) string {
	var (
		inputErr     *runner.InputError
		structureErr *fixture.StructureError
		buildErr     *build.BuildError
		launchErr    *runner.LaunchError
		configErr    *config.ValidationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &inputErr):
		return KindInput
	case errors.As(err, &structureErr):
		return KindStructure
	case errors.As(err, &buildErr):
		return KindBuild
	case errors.As(err, &launchErr):
		return KindLaunch
	case errors.As(err, &configErr):
		return KindConfig
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindOther
	}
}

// ExpectationError is returned when a run does not match its scenario.
type ExpectationError struct {
	Scenario string
	Failures []string
}

func (e *ExpectationError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario %s: %d expectation(s) failed\n", e.Scenario, len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&buf, "  - %s\n", f)
	}
	return buf.String()
}

// Outputs locates what a run may leave on disk.
type Outputs struct {
	// Artifact is where the artifact would be built.
	Artifact string

	// ReportDir is where batch logs are written.
	ReportDir string
}

// CheckExpectation compares the result of Run with exp. Returns a slice of
// failure messages, empty when everything matches. out is only consulted
// when exp sets Report or Artifact.
func CheckExpectation(exp Expectation, run *TestRun, runErr error, out Outputs) []string {
	var failures []string

	if kind := ErrorKind(runErr); kind != exp.Error {
		if exp.Error == "" {
			failures = append(failures, fmt.Sprintf("unexpected %s error: %v", kind, runErr))
		} else {
			failures = append(failures, fmt.Sprintf("expected %s error, got %q (%v)", exp.Error, kind, runErr))
		}
	}

	if exp.Outcome != "" {
		switch {
		case run == nil || run.Single == nil:
			failures = append(failures, fmt.Sprintf("expected outcome %s, got no single-input result", exp.Outcome))
		case run.Observed() != exp.Outcome:
			failures = append(failures, fmt.Sprintf("expected outcome %s, got %s (exit %d)", exp.Outcome, run.Observed(), run.Single.ExitCode))
		}
	}

	if exp.Records != nil || exp.Error == "" {
		failures = append(failures, checkRecords(exp.Records, run)...)
	}

	if exp.Report != nil {
		hasReport := run != nil && run.ReportPath != "" && fileExists(run.ReportPath)
		if hasReport != *exp.Report {
			failures = append(failures, fmt.Sprintf("expected report present=%t, got %t", *exp.Report, hasReport))
		}
		// A failed run returns no TestRun, so look on disk as well.
		if !*exp.Report {
			if logs := reportLogs(out.ReportDir); len(logs) > 0 {
				failures = append(failures, fmt.Sprintf("expected no report, found %s", strings.Join(logs, ", ")))
			}
		}
	}

	if exp.Artifact != nil {
		if got := fileExists(out.Artifact); got != *exp.Artifact {
			failures = append(failures, fmt.Sprintf("expected artifact present=%t, got %t", *exp.Artifact, got))
		}
	}

	return failures
}

func checkRecords(expected []ExpectedRecord, run *TestRun) []string {
	var actual int
	if run != nil {
		actual = len(run.Records)
	}
	if actual != len(expected) {
		return []string{fmt.Sprintf("expected %d records, got %d%s", len(expected), actual, listRecords(run))}
	}

	var failures []string
	for i, exp := range expected {
		got := run.Records[i]
		if got.Fixture != exp.Fixture {
			failures = append(failures, fmt.Sprintf("records[%d]: expected fixture %s, got %s", i, exp.Fixture, got.Fixture))
			continue
		}
		if got.Verdict != exp.Verdict {
			failures = append(failures, fmt.Sprintf("records[%d]: %s expected %s, got %s (exit %d)", i, exp.Fixture, exp.Verdict, got.Verdict, got.ExitCode))
		}
		if exp.ExitCode != nil && got.ExitCode != *exp.ExitCode {
			failures = append(failures, fmt.Sprintf("records[%d]: %s expected exit %d, got %d", i, exp.Fixture, *exp.ExitCode, got.ExitCode))
		}
	}
	return failures
}

func listRecords(run *TestRun) string {
	if run == nil || len(run.Records) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString(":")
	for _, r := range run.Records {
		fmt.Fprintf(&buf, "\n    %s", r)
	}
	return buf.String()
}

// reportLogs lists the batch logs in dir by base name.
func reportLogs(dir string) []string {
	if dir == "" {
		return nil
	}
	matches, _ := filepath.Glob(filepath.Join(dir, report.LogPrefix+"*"))
	for i, m := range matches {
		matches[i] = filepath.Base(m)
	}
	return matches
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
