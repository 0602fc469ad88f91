package filespec

import (
	"context"
	"path/filepath"

	"github.com/jmgilman/go/exec"

	"github.com/kleenlab/ucsfbids/errors"
)

// TransformFunc converts src into dst. src.Path is empty when the step
// synthesizes its output without an input.
type TransformFunc func(ctx context.Context, src, dst Location) error

// PostFunc post-processes a destination file in place.
type PostFunc func(ctx context.Context, dst Location) error

// Runner executes an external program to completion.
type Runner interface {
	Run(ctx context.Context, program string, args ...string) error
}

// ExecRunner runs programs through an exec.Executor.
type ExecRunner struct {
	executor exec.Executor
}

// NewExecRunner returns a Runner backed by executor. A nil executor runs
// programs with the environment of the current process and colors off.
func NewExecRunner(executor exec.Executor) *ExecRunner {
	if executor == nil {
		executor = exec.New(exec.WithInheritEnv(), exec.WithDisableColors())
	}
	return &ExecRunner{executor: executor}
}

// Run executes program with args and waits for it to exit. Each run works
// on a clone of the executor, so one runner may serve concurrent steps.
func (r *ExecRunner) Run(ctx context.Context, program string, args ...string) error {
	wrapper := exec.NewWrapper(r.executor.Clone(), program).WithContext(ctx)
	if _, err := wrapper.Run(args...); err != nil {
		details := map[string]interface{}{"program": program, "args": args}
		var execErr *exec.ExecError
		if errors.As(err, &execErr) {
			details["exit_code"] = execErr.ExitCode
			details["stderr"] = execErr.Stderr
		}
		return errors.WrapWithContext(err, errors.CodeExecutionFailed, "external program failed", details)
	}
	return nil
}

// Step converts a resolved source into the destination file.
//
// The zero value copies bytes verbatim. Program runs
// "program [args...] source destination"; Transform is called directly.
// Setting both is invalid.
type Step struct {
	// Name identifies the step in logs and profiles.
	Name string
	// Program is the external program to run.
	Program string
	// Args are inserted before the source and destination arguments.
	Args []string
	// Transform converts the source in process.
	Transform TransformFunc
	// Synthesizes marks a Transform that can produce the destination
	// without any existing source.
	Synthesizes bool
}

// Validate checks that at most one conversion mechanism is set.
func (s *Step) Validate() error {
	if s == nil {
		return nil
	}
	if s.Program != "" && s.Transform != nil {
		return errors.Newf(errors.CodeInvalidInput, "step %q sets both a program and a transform", s.Name)
	}
	if s.Synthesizes && s.Transform == nil {
		return errors.Newf(errors.CodeInvalidInput, "step %q synthesizes output but has no transform", s.Name)
	}
	return nil
}

// CanSynthesize reports whether the step produces output without a source.
func (s *Step) CanSynthesize() bool {
	return s != nil && s.Synthesizes && s.Transform != nil
}

func (s *Step) label() string {
	switch {
	case s == nil:
		return "copy"
	case s.Name != "":
		return s.Name
	case s.Program != "":
		return s.Program
	case s.Transform != nil:
		return "transform"
	default:
		return "copy"
	}
}

func (s *Step) apply(ctx context.Context, runner Runner, src, dst Location) error {
	switch {
	case s == nil || (s.Program == "" && s.Transform == nil):
		return Copy(src, dst)
	case s.Program != "":
		return runProgram(ctx, runner, s.Program, s.Args, src, dst)
	default:
		if err := s.Transform(ctx, src, dst); err != nil {
			return errors.WrapWithContext(err, errors.CodeExecutionFailed, "transform failed", map[string]interface{}{
				"step":        s.label(),
				"source":      src.Path,
				"destination": dst.Path,
			})
		}
		return nil
	}
}

// Post runs after a destination file has been written.
type Post struct {
	// Name identifies the step in logs and profiles.
	Name string
	// Program is run as "program [args...] destination".
	Program string
	// Args are inserted before the destination argument.
	Args []string
	// Func post-processes the destination in process.
	Func PostFunc
}

func (p *Post) label() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Program != "" {
		return p.Program
	}
	return "post"
}

func (p *Post) apply(ctx context.Context, runner Runner, dst Location) error {
	if p.Program != "" {
		if !dst.IsLocal() {
			return errors.NewWithContext(errors.CodeInvalidInput, "program steps require a local filesystem", map[string]interface{}{
				"program": p.Program,
			})
		}
		return runner.Run(ctx, p.Program, append(append([]string{}, p.Args...), dst.Path)...)
	}
	if p.Func == nil {
		return nil
	}
	if err := p.Func(ctx, dst); err != nil {
		return errors.WrapWithContext(err, errors.CodeExecutionFailed, "post step failed", map[string]interface{}{
			"step":        p.label(),
			"destination": dst.Path,
		})
	}
	return nil
}

func runProgram(ctx context.Context, runner Runner, program string, args []string, src, dst Location) error {
	if !src.IsLocal() || !dst.IsLocal() {
		return errors.NewWithContext(errors.CodeInvalidInput, "program steps require a local filesystem", map[string]interface{}{
			"program": program,
		})
	}
	if err := dst.FS.MkdirAll(filepath.Dir(dst.Path), 0o755); err != nil {
		return errors.WrapWithContext(err, errors.CodeIO, "failed to create destination directory", map[string]interface{}{"destination": dst.Path})
	}
	full := append(append([]string{}, args...), src.Path, dst.Path)
	return runner.Run(ctx, program, full...)
}
