package harness

import (
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// AssertGolden compares the canonical JSON summary of run against
// testdata/golden/<name>.golden.
//
// The report path is reduced to its base name so the snapshot does not
// depend on the test's temp directory. Run IDs and start times must come
// from a fixed IDGenerator and Clock for the snapshot to be stable.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, run *TestRun) {
	t.Helper()

	summary := run.Summary()
	if summary.ReportPath != "" {
		summary.ReportPath = filepath.Base(summary.ReportPath)
	}
	data, err := summary.MarshalCanonical()
	if err != nil {
		t.Fatalf("marshal summary: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
