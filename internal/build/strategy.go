package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/google/shlex"

	"github.com/roach88/parsecheck/internal/config"
)

// Request is one compile job.
type Request struct {
	// Source is the absolute path of the parser source.
	Source string

	// Output is the absolute artifact path the compiler must write.
	Output string

	// WorkDir is the compiler's working directory.
	WorkDir string

	Stdout io.Writer
	Stderr io.Writer
}

// Strategy produces an artifact from a source file. Implementations differ
// only in how the compiler is reached.
type Strategy interface {
	Name() string
	Build(ctx context.Context, req Request) error
}

// SelectStrategy picks the strategy for goos once at startup. Windows with
// an environment-init script configured goes through EnvInitStrategy;
// everything else invokes the compiler directly.
func SelectStrategy(goos string, cfg config.Build) Strategy {
	if goos == "windows" && cfg.EnvInit != "" {
		return &EnvInitStrategy{
			Script:  cfg.EnvInit,
			Args:    cfg.EnvInitArgs,
			Command: cfg.EnvCommand,
			Shell:   cfg.Shell,
		}
	}
	return &DirectStrategy{Command: cfg.Command}
}

// ArtifactName returns the executable file name for base on goos.
func ArtifactName(base, goos string) string {
	if goos == "windows" {
		return base + ".exe"
	}
	return base + ".out"
}

// DirectStrategy runs a compiler that is already on PATH.
type DirectStrategy struct {
	// Command is a template such as "gcc {src} -o {out}".
	Command string
}

func (s *DirectStrategy) Name() string { return "direct" }

func (s *DirectStrategy) Build(ctx context.Context, req Request) error {
	argv, err := ExpandCommand(s.Command, req.Source, req.Output)
	if err != nil {
		return &BuildError{Strategy: s.Name(), ExitCode: -1, Err: err}
	}
	return runCompiler(ctx, s.Name(), argv, req)
}

// EnvInitStrategy runs a vendor environment script and then the compiler
// in the same shell, for toolchains that are only usable after setup
// (vcvarsall.bat x64 && clang ...).
type EnvInitStrategy struct {
	Script  string
	Args    []string
	Command string

	// Shell is the interpreter prefix. "cmd /C" receives the chain as
	// separate arguments; a POSIX "sh -c" receives it as one quoted line.
	Shell []string
}

func (s *EnvInitStrategy) Name() string { return "env-init" }

func (s *EnvInitStrategy) Build(ctx context.Context, req Request) error {
	if len(s.Shell) == 0 {
		return &BuildError{Strategy: s.Name(), ExitCode: -1, Err: errors.New("no shell configured for environment init")}
	}
	compiler, err := ExpandCommand(s.Command, req.Source, req.Output)
	if err != nil {
		return &BuildError{Strategy: s.Name(), ExitCode: -1, Err: err}
	}

	chain := make([]string, 0, len(s.Args)+len(compiler)+2)
	chain = append(chain, s.Script)
	chain = append(chain, s.Args...)
	chain = append(chain, "&&")
	chain = append(chain, compiler...)

	return runCompiler(ctx, s.Name(), shellArgv(s.Shell, chain), req)
}

// shellArgv appends chain to shell. A shell ending in "-c" takes a single
// command string, so the chain is joined with POSIX quoting.
func shellArgv(shell, chain []string) []string {
	argv := append([]string{}, shell...)
	if shell[len(shell)-1] != "-c" {
		return append(argv, chain...)
	}
	parts := make([]string, len(chain))
	for i, tok := range chain {
		if tok == "&&" {
			parts[i] = tok
			continue
		}
		parts[i] = "'" + strings.ReplaceAll(tok, "'", `'\''`) + "'"
	}
	return append(argv, strings.Join(parts, " "))
}

// ExpandCommand splits a compiler template and substitutes {src} and {out}.
// Splitting happens before substitution so paths containing spaces or
// backslashes survive intact.
func ExpandCommand(tpl, src, out string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, errors.New("compiler command template is empty")
	}
	fields, err := shlex.Split(tpl)
	if err != nil {
		return nil, fmt.Errorf("parse compiler command %q: %w", tpl, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("compiler command %q is empty after parsing", tpl)
	}
	for i, f := range fields {
		f = strings.ReplaceAll(f, "{src}", src)
		f = strings.ReplaceAll(f, "{out}", out)
		fields[i] = f
	}
	return fields, nil
}

func runCompiler(ctx context.Context, strategy string, argv []string, req Request) error {
	// #nosec G204 -- argv comes from the harness configuration.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = req.WorkDir
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	buildErr := &BuildError{Strategy: strategy, Command: argv, ExitCode: -1, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		buildErr.ExitCode = exitErr.ExitCode()
	}
	return buildErr
}
