// Package build compiles the parser under test into a single executable.
//
// The Orchestrator owns the output directory and the artifact inside it.
// It is platform-agnostic; how the compiler is reached is delegated to a
// Strategy chosen once by SelectStrategy.
package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Artifact is a built executable.
type Artifact struct {
	Path string
}

// Orchestrator builds exactly one artifact per invocation.
type Orchestrator struct {
	Strategy Strategy

	// Source is the parser source file.
	Source string

	// OutputDir receives the artifact.
	OutputDir string

	// ArtifactName is the executable file name, suffix included.
	ArtifactName string

	// Stage lists support files copied next to Source before compiling.
	Stage []string

	// Log receives compiler output when non-nil. Otherwise output is
	// captured and attached to a BuildError.
	Log io.Writer

	Logger *slog.Logger

	staged []string
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// ArtifactPath returns the absolute path the artifact is built to.
func (o *Orchestrator) ArtifactPath() (string, error) {
	dir, err := filepath.Abs(o.OutputDir)
	if err != nil {
		return "", fmt.Errorf("resolve output directory: %w", err)
	}
	return filepath.Join(dir, o.ArtifactName), nil
}

// Build stages support files, runs the strategy and checks that the
// artifact exists. Any previous artifact is removed first so a failed
// build can never leave a stale executable behind.
func (o *Orchestrator) Build(ctx context.Context) (*Artifact, error) {
	if o.Strategy == nil {
		return nil, errors.New("build: no strategy configured")
	}

	source, err := filepath.Abs(o.Source)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}
	if _, err := os.Stat(source); err != nil {
		return nil, &BuildError{Strategy: o.Strategy.Name(), ExitCode: -1, Err: fmt.Errorf("source %s: %w", o.Source, err)}
	}

	if err := os.MkdirAll(o.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	artifact, err := o.ArtifactPath()
	if err != nil {
		return nil, err
	}
	if err := os.Remove(artifact); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove previous artifact: %w", err)
	}

	if err := o.stage(filepath.Dir(source)); err != nil {
		return nil, err
	}

	var captured bytes.Buffer
	out := o.Log
	if out == nil {
		out = &captured
	}

	o.logger().Info("building parser",
		"strategy", o.Strategy.Name(),
		"source", source,
		"artifact", artifact,
	)
	err = o.Strategy.Build(ctx, Request{
		Source:  source,
		Output:  artifact,
		WorkDir: filepath.Dir(artifact),
		Stdout:  out,
		Stderr:  out,
	})
	if err != nil {
		var buildErr *BuildError
		if errors.As(err, &buildErr) && o.Log == nil {
			buildErr.Output = captured.String()
		}
		return nil, err
	}

	info, err := os.Stat(artifact)
	if err != nil || info.IsDir() {
		return nil, &BuildError{
			Strategy: o.Strategy.Name(),
			Output:   captured.String(),
			Err:      fmt.Errorf("compiler exited 0 but produced no artifact at %s", artifact),
		}
	}

	o.logger().Info("build complete", "artifact", artifact)
	return &Artifact{Path: artifact}, nil
}

// Staged returns the files copied by the last Build.
func (o *Orchestrator) Staged() []string {
	return append([]string(nil), o.staged...)
}

func (o *Orchestrator) stage(dir string) error {
	owned := o.staged
	o.staged = nil
	for _, src := range o.Stage {
		absSrc, err := filepath.Abs(src)
		if err != nil {
			return fmt.Errorf("resolve staged file %s: %w", src, err)
		}
		dst := filepath.Join(dir, filepath.Base(absSrc))
		if dst == absSrc {
			continue
		}
		// Files already next to the source belong to the user unless an
		// earlier Build staged them: an identical copy is left alone and
		// never cleaned up, a different one is not overwritten.
		if !slices.Contains(owned, dst) {
			same, err := sameContents(absSrc, dst)
			switch {
			case err != nil:
				return &BuildError{Strategy: o.Strategy.Name(), ExitCode: -1, Err: fmt.Errorf("stage %s: %w", src, err)}
			case same:
				o.logger().Debug("support file already in place", "path", dst)
				continue
			}
		}
		if err := copyFile(absSrc, dst); err != nil {
			return fmt.Errorf("stage %s: %w", src, err)
		}
		o.staged = append(o.staged, dst)
		o.logger().Debug("staged support file", "src", absSrc, "dst", dst)
	}
	return nil
}

// sameContents reports whether dst exists with the contents of src. It
// returns an error when dst exists with different contents.
func sameContents(src, dst string) (bool, error) {
	existing, err := os.ReadFile(dst)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	want, err := os.ReadFile(src)
	if err != nil {
		return false, err
	}
	if !bytes.Equal(existing, want) {
		return false, fmt.Errorf("refusing to overwrite %s: it differs from %s", dst, src)
	}
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Cleanup removes the artifact and every staged file. Files that are
// already gone are not an error. Cleanup is safe to call after a failed
// or skipped build.
func (o *Orchestrator) Cleanup() error {
	var errs []error

	targets := append([]string(nil), o.staged...)
	if artifact, err := o.ArtifactPath(); err == nil {
		targets = append(targets, artifact)
	} else {
		errs = append(errs, err)
	}

	for _, path := range targets {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		o.logger().Debug("removed", "path", path)
	}
	o.staged = nil
	return errors.Join(errs...)
}

// BuildError reports a failed compile.
type BuildError struct {
	Strategy string
	Command  []string
	ExitCode int
	Output   string
	Err      error
}

func (e *BuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "build failed (%s strategy", e.Strategy)
	if e.ExitCode > 0 {
		fmt.Fprintf(&b, ", exit %d", e.ExitCode)
	}
	b.WriteString(")")
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
