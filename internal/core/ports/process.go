package ports

import "context"

// Result is the captured outcome of an external command that ran to completion.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports whether the command exited with status zero.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Runner executes external commands (git, docker, filesystem utilities).
//
// A non-nil error means the command could not be started or was killed;
// a command that ran and exited non-zero returns a nil error and a Result
// with a non-zero ExitCode.
type Runner interface {
	RunInDir(ctx context.Context, dir string, name string, args ...string) (Result, error)
}
