package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Runner executes a toolchain command in a working directory with extra
// environment variables appended to the inherited environment. Builds run
// through this interface so tests can substitute a fake and record the
// exact invocations.
type Runner interface {
	Run(ctx context.Context, dir string, env []string, name string, args ...string) error
}

// ExecRunner runs commands with os/exec, streaming combined output.
type ExecRunner struct {
	// Output receives stdout and stderr of every command; defaults to
	// os.Stderr so build noise stays off stdout.
	Output io.Writer
}

// Run executes the command and waits for it. The returned error carries the
// process exit code when the command ran and failed.
func (r *ExecRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)

	out := r.Output
	if out == nil {
		out = os.Stderr
	}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %s: %w", name, err)
	}
	return nil
}
