package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/parsecheck/internal/harness"
)

// Exit codes for CLI commands.
//
// A completed run exits 0 whatever mix of Pass and Fail it recorded; the
// verdicts are data, not a harness failure.
const (
	ExitSuccess      = 0 // Run completed (any verdicts), build-only succeeded
	ExitFailure      = 1 // Missing or unusable --top input
	ExitCommandError = 2 // Command error (bad flags, config, fixture layout, history database)
	ExitBuildError   = 3 // Parser failed to build
	ExitLaunchError  = 4 // Built artifact could not be executed
)

// Error codes used in CLIError.Code.
const (
	ErrCodeGeneric   = "E000"
	ErrCodeInput     = "E001"
	ErrCodeStructure = "E002"
	ErrCodeBuild     = "E003"
	ErrCodeLaunch    = "E004"
	ErrCodeConfig    = "E005"
	ErrCodeHistory   = "E006"
	ErrCodeCanceled  = "E007"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// classify maps a harness error to its exit code and error code.
func classify(err error) (int, string) {
	switch harness.ErrorKind(err) {
	case harness.KindInput:
		return ExitFailure, ErrCodeInput
	case harness.KindStructure:
		return ExitCommandError, ErrCodeStructure
	case harness.KindBuild:
		return ExitBuildError, ErrCodeBuild
	case harness.KindLaunch:
		return ExitLaunchError, ErrCodeLaunch
	case harness.KindConfig:
		return ExitCommandError, ErrCodeConfig
	case harness.KindCanceled:
		return ExitCommandError, ErrCodeCanceled
	default:
		return ExitCommandError, ErrCodeGeneric
	}
}

// GetExitCode extracts the exit code from an error.
// Errors that are not an ExitError (flag parsing, unknown commands) are
// classified by kind, which makes them command errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	code, _ := classify(err)
	return code
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // ErrCode* constant
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if w, ok := data.(interface{ WriteText(io.Writer) }); ok {
		w.WriteText(f.Writer)
		return nil
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
