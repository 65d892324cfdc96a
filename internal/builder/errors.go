package builder

import (
	"errors"
	"fmt"
)

var (
	// ErrDownload reports a failed source archive download.
	ErrDownload = errors.New("source download failed")
	// ErrExtract reports an unreadable or unsafe source archive.
	ErrExtract = errors.New("source extraction failed")
	// ErrBuild reports a failed toolchain step (bootstrap, configure,
	// generate, or the build itself).
	ErrBuild = errors.New("build failed")
	// ErrPackaging reports a failed or ambiguous packaging step.
	ErrPackaging = errors.New("packaging failed")
)

// StepError carries the stage and exit code of a failed toolchain step.
type StepError struct {
	Stage    string
	Command  string
	ExitCode int
	Err      error
}

func (e *StepError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("%s step: %s exited with code %d", e.Stage, e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s step: %s: %v", e.Stage, e.Command, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// exitCode pulls the process exit code out of an error chain, -1 when the
// process never ran or was killed by a signal.
func exitCode(err error) int {
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}
