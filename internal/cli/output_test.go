package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parsecheck/internal/build"
	"github.com/roach88/parsecheck/internal/config"
	"github.com/roach88/parsecheck/internal/fixture"
	"github.com/roach88/parsecheck/internal/runner"
	"github.com/roach88/parsecheck/internal/verdict"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(BuildResult{Artifact: "build/test"})
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   BuildResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "build/test", resp.Data.Artifact)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeBuild, "build failed", "test.c:1:1: error: syntax error\n")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeBuild, resp.Error.Code)
	assert.Equal(t, "build failed", resp.Error.Message)
	assert.Equal(t, "test.c:1:1: error: syntax error\n", resp.Error.Details)
}

func TestOutputFormatter_TextSuccessUsesWriteText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(SingleResult{Input: "x.json", Outcome: verdict.Rejected, ExitCode: 1}))
	assert.Equal(t, "REJECTED\n", buf.String())
}

func TestOutputFormatter_TextSuccessFallback(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("all fixtures valid"))
	assert.Equal(t, "all fixtures valid\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error(ErrCodeInput, "input not found", map[string]string{"path": "x.json"}))
			assert.Contains(t, buf.String(), "Error [E001]: input not found")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details:")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Loaded %d fixtures", 3)

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Equal(t, "Loaded 3 fixtures\n", errOut.String())
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"exit error", NewExitError(ExitBuildError, "x"), ExitBuildError},
		{"wrapped exit error", fmt.Errorf("outer: %w", WrapExitError(ExitLaunchError, "x", errors.New("y"))), ExitLaunchError},
		{"input", &runner.InputError{Path: "x.json", Reason: "not found"}, ExitFailure},
		{"structure", &fixture.StructureError{Dir: "yes", Entry: "sub", Reason: "is a directory"}, ExitCommandError},
		{"build", &build.BuildError{Strategy: "direct", Command: []string{"gcc"}, ExitCode: 1}, ExitBuildError},
		{"launch", &runner.LaunchError{Artifact: "build/test", Err: errors.New("exec format error")}, ExitLaunchError},
		{"config", &config.ValidationError{Details: "bad"}, ExitCommandError},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), ExitCommandError},
		{"unknown flag", errors.New("unknown flag: --nope"), ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestClassifyErrorCodes(t *testing.T) {
	_, code := classify(&runner.InputError{Path: "x", Reason: "not found"})
	assert.Equal(t, ErrCodeInput, code)
	_, code = classify(&build.BuildError{Strategy: "direct", Command: []string{"gcc"}, ExitCode: 1})
	assert.Equal(t, ErrCodeBuild, code)
	_, code = classify(context.Canceled)
	assert.Equal(t, ErrCodeCanceled, code)
	_, code = classify(errors.New("boom"))
	assert.Equal(t, ErrCodeGeneric, code)
}

func TestExitError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := WrapExitError(ExitCommandError, "outer", inner)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "outer: inner", err.Error())
	assert.Equal(t, "plain", NewExitError(ExitFailure, "plain").Error())
}
