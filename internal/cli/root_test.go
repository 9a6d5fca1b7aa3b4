package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parsecheck/internal/report"
	"github.com/roach88/parsecheck/internal/testutil"
	"github.com/roach88/parsecheck/internal/verdict"
)

const cliCorpus = `
-- test.c --
int main(void) { return 0; }
-- yes/y_basic_ok.json --
accept
-- yes/y_basic_bug.json --
bug
-- yes/y_number_big.json --
accept
-- no/n_basic_trailing_comma.json --
reject
-- no/n_number_nan.json --
reject
`

// cliEnv is a checkout with a fake toolchain and a parsecheck.yaml using
// paths relative to the checkout.
type cliEnv struct {
	Root   string
	Config string
	Clock  *testutil.DeterministicClock
}

func newCLIEnv(t *testing.T, tree string) *cliEnv {
	t.Helper()
	tc := testutil.NewToolchain(t)
	root := testutil.WriteTree(t, t.TempDir(), tree)

	cfg := fmt.Sprintf(`source: test.c
fixtures:
  root: .
build:
  output_dir: build
  command: %q
`, tc.CompileCommand())
	path := filepath.Join(root, "parsecheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	return &cliEnv{Root: root, Config: path, Clock: testutil.NewDeterministicClock()}
}

type cliResult struct {
	Stdout string
	Stderr string
	Err    error
}

func (r cliResult) ExitCode() int {
	return GetExitCode(r.Err)
}

// execute runs the root command with args followed by --config. runID fixes
// the run ID; the clock is shared across calls so log names never collide.
func (e *cliEnv) execute(t *testing.T, runID string, args ...string) cliResult {
	t.Helper()
	opts := &RunOptions{
		RootOptions: &RootOptions{},
		Clock:       e.Clock,
		IDs:         testutil.NewFixedIDGenerator(runID),
	}
	cmd := newRootCommand(opts)

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--config", e.Config))

	err := cmd.Execute()
	return cliResult{Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
}

func (e *cliEnv) path(rel string) string {
	return filepath.Join(e.Root, filepath.FromSlash(rel))
}

func (e *cliEnv) reports(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(e.Root, "build", report.LogPrefix+"*"))
	require.NoError(t, err)
	return matches
}

func TestRun_BatchText(t *testing.T) {
	env := newCLIEnv(t, cliCorpus)

	res := env.execute(t, "run-1")
	require.NoError(t, res.Err, res.Stderr)
	assert.Equal(t, ExitSuccess, res.ExitCode())

	assert.Contains(t, res.Stdout, "running 5 tests: MODE=ALL\n")
	assert.Contains(t, res.Stdout, "Test Summary: 4 passed, 1 failed, 5 total\n")
	assert.Contains(t, res.Stdout, "✗ y_basic_bug.json (expected ACCEPTED, got REJECTED, exit 1)")

	logs := env.reports(t)
	require.Len(t, logs, 1)
	assert.Equal(t, report.LogName(testutil.Epoch, false), filepath.Base(logs[0]))

	rows, err := report.ReadLog(logs[0])
	require.NoError(t, err)
	require.Len(t, rows, 5)
	got := map[string]verdict.Verdict{}
	for _, r := range rows {
		got[r.Fixture] = r.Verdict
	}
	assert.Equal(t, map[string]verdict.Verdict{
		"y_basic_ok.json":             verdict.Pass,
		"y_basic_bug.json":            verdict.Fail,
		"y_number_big.json":           verdict.Pass,
		"n_basic_trailing_comma.json": verdict.Pass,
		"n_number_nan.json":           verdict.Pass,
	}, got)
}

func TestRun_BatchJSON(t *testing.T) {
	env := newCLIEnv(t, cliCorpus)

	res := env.execute(t, "run-json", "--format", "json")
	require.NoError(t, res.Err, res.Stderr)

	var resp struct {
		Status string         `json:"status"`
		Data   report.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Stdout), &resp), "stdout must be a single JSON document: %s", res.Stdout)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-json", resp.Data.RunID)
	assert.Equal(t, "ALL", resp.Data.Mode)
	assert.Equal(t, 5, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Failed)

	assert.Contains(t, res.Stderr, "running 5 tests: MODE=ALL")
}

func TestRun_Restrict(t *testing.T) {
	env := newCLIEnv(t, cliCorpus)

	res := env.execute(t, "run-r", "--restrict", "number")
	require.NoError(t, res.Err, res.Stderr)
	assert.Contains(t, res.Stdout, "running 2 tests: MODE=number\n")
	assert.Contains(t, res.Stdout, "Test Summary: 2 passed, 0 failed, 2 total\n")
	assert.NotContains(t, res.Stdout, "y_basic")
}

func TestRun_VerboseProgress(t *testing.T) {
	env := newCLIEnv(t, cliCorpus)

	res := env.execute(t, "run-v", "--restrict", "basic", "-v")
	require.NoError(t, res.Err, res.Stderr)
	assert.Contains(t, res.Stdout, "✓ y_basic_ok.json")
	assert.Contains(t, res.Stdout, "✗ y_basic_bug.json")
	assert.Contains(t, res.Stderr, "level=DEBUG")
}

func TestRun_BuildFailure(t *testing.T) {
	env := newCLIEnv(t, `
-- test.c --
int main(void) { syntax error }
-- yes/y_basic_ok.json --
accept
-- no/.keep --
`)

	res := env.execute(t, "run-e")
	require.Error(t, res.Err)
	assert.Equal(t, ExitBuildError, res.ExitCode())
	assert.Contains(t, res.Stdout, "Error [E003]")
	assert.Contains(t, res.Stderr, "error: syntax error")
	assert.NotContains(t, res.Stdout, "running")
	assert.Empty(t, env.reports(t), "no report after a failed build")
}

func TestRun_BuildFailureJSON(t *testing.T) {
	env := newCLIEnv(t, `
-- test.c --
syntax error
-- yes/.keep --
-- no/.keep --
`)

	res := env.execute(t, "run-e", "--format", "json")
	require.Error(t, res.Err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(res.Stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeBuild, resp.Error.Code)
	assert.Contains(t, resp.Error.Details, "syntax error")
}

func TestRun_Top(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"accepted", "yes/y_basic_ok.json", "ACCEPTED\n"},
		{"rejected", "no/n_number_nan.json", "REJECTED\n"},
		{"unlabeled", "yes/y_basic_bug.json", "REJECTED\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newCLIEnv(t, cliCorpus)

			res := env.execute(t, "run-top", "--top", env.path(tt.input))
			require.NoError(t, res.Err, res.Stderr)
			assert.Equal(t, tt.want, res.Stdout)
			assert.Empty(t, env.reports(t), "single mode writes no report")
		})
	}
}

func TestRun_TopJSON(t *testing.T) {
	env := newCLIEnv(t, cliCorpus)

	res := env.execute(t, "run-top", "--format", "json", "--top", env.path("no/n_number_nan.json"))
	require.NoError(t, res.Err, res.Stderr)

	var resp struct {
		Status string       `json:"status"`
		Data   SingleResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Stdout), &resp))
	assert.Equal(t, verdict.Rejected, resp.Data.Outcome)
	assert.Equal(t, 2, resp.Data.ExitCode)
}

func TestRun_TopInputErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing", "nope.json"},
		{"directory", "yes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newCLIEnv(t, cliCorpus)

			res := env.execute(t, "run-top", "--top", env.path(tt.input))
			require.Error(t, res.Err)
			assert.Equal(t, ExitFailure, res.ExitCode())
			assert.Contains(t, res.Stdout, "Error [E001]")
			assert.NoFileExists(t, env.path("build/test.out"), "nothing is built for a bad input")
		})
	}
}

func TestRun_StructureError(t *testing.T) {
	env := newCLIEnv(t, `
-- test.c --
int main(void) { return 0; }
-- yes/y_basic_ok.json --
accept
-- yes/nested/y_basic_deep.json --
accept
-- no/.keep --
`)

	res := env.execute(t, "run-s")
	require.Error(t, res.Err)
	assert.Equal(t, ExitCommandError, res.ExitCode())
	assert.Contains(t, res.Stdout, "Error [E002]")
	assert.NoFileExists(t, env.path("build/test.out"))
}

func TestRun_BuildOnly(t *testing.T) {
	env := newCLIEnv(t, cliCorpus)

	res := env.execute(t, "run-b", "--build-only")
	require.NoError(t, res.Err, res.Stderr)

	artifact := env.path("build/test.out")
	assert.Equal(t, "Built "+artifact+"\n", res.Stdout)
	assert.FileExists(t, artifact)
	assert.Empty(t, env.reports(t))
}

func TestRun_BuildOnlyWinsOverTop(t *testing.T) {
	env := newCLIEnv(t, cliCorpus)

	res := env.execute(t, "run-b", "--build-only", "--top", env.path("nope.json"))
	require.NoError(t, res.Err, res.Stderr)
	assert.Contains(t, res.Stdout, "Built ")
}

func TestRun_Cleanup(t *testing.T) {
	env := newCLIEnv(t, cliCorpus)

	res := env.execute(t, "run-c", "--cleanup")
	require.NoError(t, res.Err, res.Stderr)
	assert.NoFileExists(t, env.path("build/test.out"))
	assert.Len(t, env.reports(t), 1, "cleanup keeps the report")
}

func TestRun_SkipBuildReusesArtifact(t *testing.T) {
	env := newCLIEnv(t, cliCorpus)

	res := env.execute(t, "run-1", "--build-only")
	require.NoError(t, res.Err, res.Stderr)

	// A broken source proves the second run does not compile.
	require.NoError(t, os.WriteFile(env.path("test.c"), []byte("syntax error\n"), 0o644))

	res = env.execute(t, "run-2", "--skip-build", "--restrict", "number")
	require.NoError(t, res.Err, res.Stderr)
	assert.Contains(t, res.Stdout, "2 passed, 0 failed, 2 total")
}

func TestRun_FlagOverrides(t *testing.T) {
	env := newCLIEnv(t, cliCorpus)

	res := env.execute(t, "run-z", "--compress", "--restrict", "number")
	require.NoError(t, res.Err, res.Stderr)

	logs := env.reports(t)
	require.Len(t, logs, 1)
	assert.Equal(t, ".zst", filepath.Ext(logs[0]))
	rows, err := report.ReadLog(logs[0])
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRun_CommandErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{"invalid timeout", []string{"--timeout", "soon"}, ErrCodeConfig},
		{"negative timeout", []string{"--timeout", "-1s"}, ErrCodeConfig},
		{"missing fixtures root", []string{"--fixtures", "does-not-exist"}, ErrCodeStructure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newCLIEnv(t, cliCorpus)

			res := env.execute(t, "run-x", tt.args...)
			require.Error(t, res.Err)
			assert.Equal(t, ExitCommandError, res.ExitCode())
			assert.Contains(t, res.Stdout, "Error ["+tt.wantCode+"]")
		})
	}
}

func TestRun_InvalidConfigFile(t *testing.T) {
	env := newCLIEnv(t, cliCorpus)
	require.NoError(t, os.WriteFile(env.Config, []byte("sauce: test.c\n"), 0o644))

	res := env.execute(t, "run-x")
	require.Error(t, res.Err)
	assert.Equal(t, ExitCommandError, res.ExitCode())
	assert.Contains(t, res.Stdout, "Error [E005]")
}

func TestRoot_InvalidFormat(t *testing.T) {
	env := newCLIEnv(t, cliCorpus)

	res := env.execute(t, "run-x", "--format", "yaml")
	require.Error(t, res.Err)
	assert.Equal(t, ExitCommandError, res.ExitCode())
	assert.Contains(t, res.Stderr, "invalid format")
}

func TestRoot_RejectsPositionalArgs(t *testing.T) {
	env := newCLIEnv(t, cliCorpus)

	res := env.execute(t, "run-x", "sample.json")
	require.Error(t, res.Err)
	assert.Equal(t, ExitCommandError, res.ExitCode())
	assert.Empty(t, env.reports(t))
}

func TestRoot_Help(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	for _, flag := range []string{"--build-only", "--cleanup", "--top", "--restrict", "--db"} {
		assert.Contains(t, out.String(), flag)
	}
	assert.Contains(t, out.String(), "Exit codes:")
}
