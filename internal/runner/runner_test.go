package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parsecheck/internal/fixture"
	"github.com/roach88/parsecheck/internal/testutil"
)

func newParser(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.out")
	testutil.WriteParser(t, path)
	return path
}

func writeInput(t *testing.T, dir, name, content string) fixture.Case {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return fixture.Case{Path: path, Name: name, Size: int64(len(content))}
}

func TestArgs(t *testing.T) {
	c := fixture.Case{Path: "/tmp/y_a.json", Size: 42}
	assert.Equal(t, []string{"/tmp/y_a.json", "42"}, Args(c))
}

func TestInvokeExitCodes(t *testing.T) {
	r := New(newParser(t))
	dir := t.TempDir()

	tests := []struct {
		content  string
		exitCode int
	}{
		{"accept\n", 0},
		{"reject\n", 2},
		{"garbage\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			c := writeInput(t, dir, "input.json", tt.content)
			out, err := r.Invoke(context.Background(), c)
			require.NoError(t, err)
			assert.Equal(t, tt.exitCode, out.ExitCode)
			assert.False(t, out.Signaled)
			assert.False(t, out.TimedOut)
			assert.Equal(t, c, out.Case)
		})
	}
}

func TestInvokePassesSize(t *testing.T) {
	r := New(newParser(t))
	c := writeInput(t, t.TempDir(), "input.json", "accept\n")
	c.Size = 999

	out, err := r.Invoke(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 97, out.ExitCode, "fake parser exits 97 on a size mismatch")
}

func TestInvokeForwardsOutput(t *testing.T) {
	r := New(newParser(t))
	var stderr bytes.Buffer
	r.Stderr = &stderr

	c := writeInput(t, t.TempDir(), "input.json", "accept\n")
	c.Size = 1

	_, err := r.Invoke(context.Background(), c)
	require.NoError(t, err)
	assert.Contains(t, stderr.String(), "size mismatch")
}

func TestInvokeCrashIsSignaled(t *testing.T) {
	r := New(newParser(t))
	c := writeInput(t, t.TempDir(), "input.json", "crash\n")

	out, err := r.Invoke(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, out.Signaled)
	assert.NotEqual(t, 0, out.ExitCode)
}

func TestInvokeTimeout(t *testing.T) {
	r := New(newParser(t))
	r.Timeout = 200 * time.Millisecond
	c := writeInput(t, t.TempDir(), "input.json", "hang\n")

	start := time.Now()
	out, err := r.Invoke(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, out.TimedOut)
	assert.Equal(t, TimedOutExitCode, out.ExitCode)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestInvokeCancelled(t *testing.T) {
	r := New(newParser(t))
	c := writeInput(t, t.TempDir(), "input.json", "hang\n")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := r.Invoke(ctx, c)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvokeMissingArtifact(t *testing.T) {
	testutil.RequirePOSIX(t)
	r := New(filepath.Join(t.TempDir(), "does-not-exist"))
	c := writeInput(t, t.TempDir(), "input.json", "accept\n")

	_, err := r.Invoke(context.Background(), c)
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Contains(t, err.Error(), "does-not-exist")
}

func TestInvokeNotExecutable(t *testing.T) {
	testutil.RequirePOSIX(t)
	artifact := filepath.Join(t.TempDir(), "test.out")
	require.NoError(t, os.WriteFile(artifact, []byte("#!/bin/sh\nexit 0\n"), 0o644))

	c := writeInput(t, t.TempDir(), "input.json", "accept\n")
	_, err := New(artifact).Invoke(context.Background(), c)
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
}

func TestRunBatchSequential(t *testing.T) {
	r := New(newParser(t))
	dir := t.TempDir()
	set := fixture.NewSet("",
		writeInput(t, dir, "y_a.json", "accept\n"),
		writeInput(t, dir, "y_b.json", "reject\n"),
		writeInput(t, dir, "n_c.json", "reject\n"),
	)

	var got []Outcome
	err := r.RunBatch(context.Background(), set, func(o Outcome) error {
		got = append(got, o)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "y_a.json", got[0].Case.Name)
	assert.Equal(t, 0, got[0].ExitCode)
	assert.Equal(t, 2, got[1].ExitCode)
	assert.Equal(t, 2, got[2].ExitCode)
}

func TestRunBatchStopsOnCallbackError(t *testing.T) {
	r := New(newParser(t))
	dir := t.TempDir()
	set := fixture.NewSet("",
		writeInput(t, dir, "y_a.json", "accept\n"),
		writeInput(t, dir, "y_b.json", "accept\n"),
	)

	sentinel := errors.New("stop")
	calls := 0
	err := r.RunBatch(context.Background(), set, func(Outcome) error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestRunBatchLaunchErrorIsFatal(t *testing.T) {
	testutil.RequirePOSIX(t)
	r := New(filepath.Join(t.TempDir(), "missing"))
	dir := t.TempDir()
	set := fixture.NewSet("",
		writeInput(t, dir, "y_a.json", "accept\n"),
		writeInput(t, dir, "y_b.json", "accept\n"),
	)

	calls := 0
	err := r.RunBatch(context.Background(), set, func(Outcome) error {
		calls++
		return nil
	})
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Zero(t, calls)
}

func TestRunSingle(t *testing.T) {
	r := New(newParser(t))
	dir := t.TempDir()
	writeInput(t, dir, "input.json", "reject\n")

	out, err := r.RunSingle(context.Background(), filepath.Join(dir, "input.json"))
	require.NoError(t, err)
	assert.Equal(t, 2, out.ExitCode)
	assert.Equal(t, int64(len("reject\n")), out.Case.Size)
}

func TestResolveInput(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "input.json", "accept\n")

	c, err := ResolveInput(filepath.Join(dir, "input.json"))
	require.NoError(t, err)
	assert.Equal(t, "input.json", c.Name)
	assert.True(t, filepath.IsAbs(c.Path))

	_, err = ResolveInput(filepath.Join(dir, "missing.json"))
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "file not found", inputErr.Reason)

	_, err = ResolveInput(dir)
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "expected file, found directory", inputErr.Reason)
}
