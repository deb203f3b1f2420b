// Package process runs external commands for the other adapters.
//
// Every git, docker and filesystem invocation goes through ports.Runner so
// that adapters can be tested with MockRunner instead of real binaries.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/logging"
)

// ExecRunner implements ports.Runner with os/exec. It is safe for
// concurrent use.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner returns a runner that logs each command at debug level.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{logger: logging.OrDiscard(logger)}
}

// RunInDir runs name with args in dir (the current directory when empty)
// and captures its output. The command is killed when ctx is done.
func (r *ExecRunner) RunInDir(ctx context.Context, dir string, name string, args ...string) (ports.Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running command", "cmd", name+" "+strings.Join(args, " "), "dir", dir)

	err := cmd.Run()
	result := ports.Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	default:
		result.ExitCode = -1
		return result, fmt.Errorf("failed to run %s: %w", name, err)
	}
}

// Call records one invocation seen by MockRunner.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// String renders the call as a shell-like command line.
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// MockRunner implements ports.Runner for tests. RunInDirFunc decides the
// outcome; when nil every command succeeds with empty output. All calls are
// recorded in order.
type MockRunner struct {
	RunInDirFunc func(ctx context.Context, dir string, name string, args ...string) (ports.Result, error)

	mu    sync.Mutex
	Calls []Call
}

// RunInDir records the call and delegates to RunInDirFunc.
func (m *MockRunner) RunInDir(ctx context.Context, dir string, name string, args ...string) (ports.Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, Call{Dir: dir, Name: name, Args: append([]string(nil), args...)})
	m.mu.Unlock()
	if m.RunInDirFunc != nil {
		return m.RunInDirFunc(ctx, dir, name, args...)
	}
	return ports.Result{}, nil
}

// Commands returns the recorded calls as command lines.
func (m *MockRunner) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = c.String()
	}
	return out
}
