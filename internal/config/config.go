// Package config loads parsecheck.yaml.
//
// The file is decoded strictly (unknown keys are errors) on top of the
// built-in defaults and then checked against an embedded CUE schema, so a
// config that decodes cleanly but carries nonsense values is still rejected
// before anything is built.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// DefaultFile is the config file picked up from the working directory.
const DefaultFile = "parsecheck.yaml"

// Config is the full harness configuration.
type Config struct {
	// Source is the parser source file handed to the compiler.
	Source string `yaml:"source" json:"source"`

	Fixtures Fixtures `yaml:"fixtures" json:"fixtures"`
	Build    Build    `yaml:"build" json:"build"`
	Run      Run      `yaml:"run" json:"run"`
	Report   Report   `yaml:"report" json:"report"`
	History  History  `yaml:"history" json:"history"`
}

// Fixtures locates the accept and reject sets.
type Fixtures struct {
	Root   string `yaml:"root" json:"root"`
	Accept string `yaml:"accept" json:"accept"`
	Reject string `yaml:"reject" json:"reject"`
}

// Build configures the build orchestrator.
type Build struct {
	// OutputDir receives the artifact. Created if missing.
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// Artifact is the executable base name; the platform suffix is appended.
	Artifact string `yaml:"artifact" json:"artifact"`

	// Command is the direct compiler invocation. {src} and {out} are expanded.
	Command string `yaml:"command" json:"command"`

	// EnvInit is a vendor environment script (vcvarsall.bat) run before the
	// compiler. Only consulted on Windows.
	EnvInit     string   `yaml:"env_init" json:"env_init"`
	EnvInitArgs []string `yaml:"env_init_args" json:"env_init_args"`

	// EnvCommand is the compiler invocation chained after EnvInit.
	EnvCommand string `yaml:"env_command" json:"env_command"`

	// Shell runs the chained env-init command line.
	Shell []string `yaml:"shell" json:"shell"`

	// Stage lists support files (headers) copied next to Source before the
	// build and removed by --cleanup.
	Stage []string `yaml:"stage" json:"stage"`

	// Log forwards compiler output instead of capturing it.
	Log bool `yaml:"log" json:"log"`
}

// Run configures fixture execution.
type Run struct {
	// Timeout bounds each parser process, as a Go duration. Empty means none.
	Timeout string `yaml:"timeout" json:"timeout"`
}

// Report configures the batch log.
type Report struct {
	// Dir receives the log. Empty means Build.OutputDir.
	Dir string `yaml:"dir" json:"dir"`

	// Compress writes the log zstd-compressed.
	Compress bool `yaml:"compress" json:"compress"`
}

// History configures the optional run database.
type History struct {
	DB string `yaml:"db" json:"db"`
}

// Default returns the built-in configuration, matching the layout of a
// parser checkout with test.c, yes/, no/ and build/ side by side.
// Nothing is staged by default: a missing staged file fails the build, so
// headers are listed in the config file (see parsecheck.example.yaml).
func Default() *Config {
	return &Config{
		Source: "test.c",
		Fixtures: Fixtures{
			Root:   ".",
			Accept: "yes",
			Reject: "no",
		},
		Build: Build{
			OutputDir:   "build",
			Artifact:    "test",
			Command:     "gcc {src} -o {out}",
			EnvInitArgs: []string{"x64"},
			EnvCommand:  "clang {src} -g -o {out}",
			Shell:       []string{"cmd", "/C"},
		},
	}
}

// TimeoutDuration parses Run.Timeout.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	if c.Run.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Run.Timeout)
	if err != nil {
		return 0, fmt.Errorf("run.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("run.timeout: must not be negative")
	}
	return d, nil
}

// ReportDir returns the directory for batch logs.
func (c *Config) ReportDir() string {
	if c.Report.Dir != "" {
		return c.Report.Dir
	}
	return c.Build.OutputDir
}

// Load reads path on top of the defaults. An empty path loads DefaultFile
// when it exists in the working directory and the defaults otherwise.
func Load(path string) (*Config, error) {
	if path == "" {
		if _, err := os.Stat(DefaultFile); err != nil {
			cfg := Default()
			return cfg, Validate(cfg)
		}
		path = DefaultFile
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.resolve(filepath.Dir(path))
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses YAML from r on top of the defaults without validating.
func Decode(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// resolve makes relative paths in the file relative to the file's directory.
func (c *Config) resolve(base string) {
	if base == "" || base == "." {
		return
	}
	join := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Source = join(c.Source)
	c.Fixtures.Root = join(c.Fixtures.Root)
	c.Build.OutputDir = join(c.Build.OutputDir)
	c.Report.Dir = join(c.Report.Dir)
	c.History.DB = join(c.History.DB)
	for i, s := range c.Build.Stage {
		c.Build.Stage[i] = join(s)
	}
}

// Validate checks cfg against the embedded schema.
func Validate(cfg *Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.Encode(cfg)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Details: cueerrors.Details(err, nil), Err: err}
	}

	if _, err := cfg.TimeoutDuration(); err != nil {
		return &ValidationError{Details: err.Error(), Err: err}
	}
	return nil
}

// ValidationError reports a config that fails the schema.
type ValidationError struct {
	Details string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s", e.Details)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
