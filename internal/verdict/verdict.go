// Package verdict classifies parser exit codes against fixture labels.
//
// The wire contract with the parser is a single bit: exit code 0 means the
// input was accepted, any other code means it was rejected. The specific
// non-zero value carries no meaning here.
package verdict

import "fmt"

// Verdict is the binary result of comparing a label with an observed exit code.
type Verdict string

const (
	Pass Verdict = "Pass"
	Fail Verdict = "Fail"
)

// Outcome is the observed parser behavior, independent of any label.
type Outcome string

const (
	Accepted Outcome = "ACCEPTED"
	Rejected Outcome = "REJECTED"
)

// Observe maps an exit code to the parser's observed behavior.
func Observe(exitCode int) Outcome {
	if exitCode == 0 {
		return Accepted
	}
	return Rejected
}

// Classify returns Pass iff the observed behavior matches the label.
// There is no third outcome.
func Classify(expectedAccept bool, exitCode int) Verdict {
	if expectedAccept == (Observe(exitCode) == Accepted) {
		return Pass
	}
	return Fail
}

// Record is one classified fixture execution. Records are values and are
// never updated after NewRecord returns.
type Record struct {
	Fixture        string  `json:"fixture"`
	ExpectedAccept bool    `json:"expected_accept"`
	ExitCode       int     `json:"exit_code"`
	Verdict        Verdict `json:"verdict"`
}

// NewRecord classifies an execution.
func NewRecord(fixture string, expectedAccept bool, exitCode int) Record {
	return Record{
		Fixture:        fixture,
		ExpectedAccept: expectedAccept,
		ExitCode:       exitCode,
		Verdict:        Classify(expectedAccept, exitCode),
	}
}

// Expected returns the outcome the fixture label asks for.
func (r Record) Expected() Outcome {
	if r.ExpectedAccept {
		return Accepted
	}
	return Rejected
}

// Observed returns the outcome derived from the exit code.
func (r Record) Observed() Outcome {
	return Observe(r.ExitCode)
}

func (r Record) String() string {
	return fmt.Sprintf("%s: %s (expected %s, exit %d)", r.Fixture, r.Verdict, r.Expected(), r.ExitCode)
}

// Tally counts passes and failures.
func Tally(records []Record) (passed, failed int) {
	for _, r := range records {
		if r.Verdict == Pass {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// Parse converts a stored verdict string back to a Verdict.
func Parse(s string) (Verdict, error) {
	switch Verdict(s) {
	case Pass, Fail:
		return Verdict(s), nil
	default:
		return "", fmt.Errorf("unknown verdict %q", s)
	}
}
