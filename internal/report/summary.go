// Package report renders run results: the per-run CSV log, the console
// banner and progress lines, and the end-of-run summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	jsoncanonicalizer "github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"golang.org/x/term"

	"github.com/roach88/parsecheck/internal/verdict"
)

// Banner prints the start-of-run line.
func Banner(w io.Writer, total int, mode string) {
	fmt.Fprintf(w, "running %d tests: MODE=%s\n", total, mode)
}

// Single prints the single-input result line.
func Single(w io.Writer, outcome verdict.Outcome) {
	fmt.Fprintln(w, string(outcome))
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Progress prints one line per completed fixture. It is silent unless
// forced on or writing to a terminal.
type Progress struct {
	w       io.Writer
	total   int
	done    int
	enabled bool
}

// NewProgress creates a progress printer for total fixtures.
func NewProgress(w io.Writer, total int, force bool) *Progress {
	return &Progress{w: w, total: total, enabled: force || IsTerminal(w)}
}

// Record prints rec.
func (p *Progress) Record(rec verdict.Record) {
	p.done++
	if !p.enabled {
		return
	}
	mark := "✓"
	if rec.Verdict == verdict.Fail {
		mark = "✗"
	}
	fmt.Fprintf(p.w, "[%d/%d] %s %s\n", p.done, p.total, mark, rec.Fixture)
}

// Summary is the end-of-run result.
type Summary struct {
	RunID      string           `json:"run_id"`
	Mode       string           `json:"mode"`
	Restrict   string           `json:"restrict,omitempty"`
	StartedAt  time.Time        `json:"-"`
	Total      int              `json:"total"`
	Passed     int              `json:"passed"`
	Failed     int              `json:"failed"`
	ReportPath string           `json:"report_path,omitempty"`
	Records    []verdict.Record `json:"records"`
}

// NewSummary tallies records.
func NewSummary(runID, mode, restrict string, startedAt time.Time, reportPath string, records []verdict.Record) Summary {
	passed, failed := verdict.Tally(records)
	if records == nil {
		records = []verdict.Record{}
	}
	return Summary{
		RunID:      runID,
		Mode:       mode,
		Restrict:   restrict,
		StartedAt:  startedAt,
		Total:      len(records),
		Passed:     passed,
		Failed:     failed,
		ReportPath: reportPath,
		Records:    records,
	}
}

// Failures returns the failed records in run order.
func (s Summary) Failures() []verdict.Record {
	var out []verdict.Record
	for _, r := range s.Records {
		if r.Verdict == verdict.Fail {
			out = append(out, r)
		}
	}
	return out
}

// WriteText renders the human-readable summary.
func (s Summary) WriteText(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", s.Passed, s.Failed, s.Total)
	for _, r := range s.Failures() {
		fmt.Fprintf(w, "  ✗ %s (expected %s, got %s, exit %d)\n", r.Fixture, r.Expected(), r.Observed(), r.ExitCode)
	}
	if s.ReportPath != "" {
		fmt.Fprintf(w, "Report: %s\n", s.ReportPath)
	}
}

// MarshalCanonical renders the summary as RFC 8785 canonical JSON, so two
// runs over the same fixtures and binary produce identical bytes apart from
// run_id, started_at and report_path.
func (s Summary) MarshalCanonical() ([]byte, error) {
	type wire struct {
		Summary
		StartedAt string `json:"started_at,omitempty"`
	}
	w := wire{Summary: s}
	if !s.StartedAt.IsZero() {
		w.StartedAt = s.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	out, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize summary: %w", err)
	}
	return out, nil
}
