package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/parsecheck/internal/verdict"
)

// Scenario is an end-to-end conformance case for the harness itself: a
// fixture tree, the options to run with, and what the run must produce.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Tree is a txtar archive of the working directory: the parser source
	// (test.c), the yes/ and no/ fixture sets and any staged headers.
	Tree string `yaml:"tree"`

	Options ScenarioOptions `yaml:"options,omitempty"`

	Expect Expectation `yaml:"expect"`
}

// ScenarioOptions mirrors the command-line flags of a run.
type ScenarioOptions struct {
	Restrict  string `yaml:"restrict,omitempty"`
	Top       string `yaml:"top,omitempty"`
	BuildOnly bool   `yaml:"build_only,omitempty"`
	Cleanup   bool   `yaml:"cleanup,omitempty"`
	Timeout   string `yaml:"timeout,omitempty"`
}

// Expectation is what a scenario run must produce.
type Expectation struct {
	// Error is the failure kind the run must end with. Empty means success.
	Error string `yaml:"error,omitempty"`

	// Records are the expected verdicts, in execution order.
	Records []ExpectedRecord `yaml:"records,omitempty"`

	// Outcome is the expected single-input result.
	Outcome verdict.Outcome `yaml:"outcome,omitempty"`

	// Report says whether a batch log must (true) or must not (false) exist.
	Report *bool `yaml:"report,omitempty"`

	// Artifact says whether the artifact must exist once Run returns.
	Artifact *bool `yaml:"artifact,omitempty"`
}

// ExpectedRecord is one expected verdict row.
type ExpectedRecord struct {
	Fixture string          `yaml:"fixture"`
	Verdict verdict.Verdict `yaml:"verdict"`

	// ExitCode is checked when set.
	ExitCode *int `yaml:"exit_code,omitempty"`
}

// RunOptions converts the scenario options to harness options.
func (s *Scenario) RunOptions() Options {
	return Options{
		BuildOnly: s.Options.BuildOnly,
		Cleanup:   s.Options.Cleanup,
		Top:       s.Options.Top,
		Restrict:  s.Options.Restrict,
	}
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "record:" vs "records:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Tree == "" {
		return fmt.Errorf("tree is required")
	}

	switch s.Expect.Error {
	case "", KindInput, KindStructure, KindBuild, KindLaunch, KindConfig:
	default:
		return fmt.Errorf("expect.error: unknown kind %q", s.Expect.Error)
	}

	switch s.Expect.Outcome {
	case "", verdict.Accepted, verdict.Rejected:
	default:
		return fmt.Errorf("expect.outcome: unknown outcome %q", s.Expect.Outcome)
	}
	if s.Expect.Outcome != "" && s.Options.Top == "" {
		return fmt.Errorf("expect.outcome requires options.top")
	}

	for i, rec := range s.Expect.Records {
		if rec.Fixture == "" {
			return fmt.Errorf("expect.records[%d]: fixture is required", i)
		}
		if _, err := verdict.Parse(string(rec.Verdict)); err != nil {
			return fmt.Errorf("expect.records[%d]: %w", i, err)
		}
	}

	return nil
}
