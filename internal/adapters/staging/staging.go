// Package staging prepares the staging and live directories of a service
// using filesystem utilities run through a ports.Runner.
package staging

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"unicode/utf8"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/logging"
)

// Sentinels printed by the directory existence test.
const (
	sentinelExists  = "Y\n"
	sentinelMissing = "N\n"
)

// existsScript prints one sentinel line for the directory passed as $0.
const existsScript = `[ -d "$0" ] && echo Y || echo N`

// Manager implements ports.Staging.
type Manager struct {
	runner ports.Runner
	logger *slog.Logger
}

// NewManager returns a Manager running its commands through runner.
func NewManager(runner ports.Runner, logger *slog.Logger) *Manager {
	return &Manager{runner: runner, logger: logging.OrDiscard(logger)}
}

// GetOrCreate tests whether path is a directory and creates it only when
// the test says it is missing. Any other test output is ErrUnexpected.
func (m *Manager) GetOrCreate(ctx context.Context, path string) (string, bool, error) {
	path = filepath.Clean(path)

	res, err := m.runner.RunInDir(ctx, "", "sh", "-c", existsScript, path)
	if err != nil {
		return "", false, domain.NewError(domain.ErrCommand, err)
	}
	if !res.Success() {
		return "", false, domain.NewError(domain.ErrStatus, fmt.Errorf("directory test exited with code %d", res.ExitCode))
	}
	if !utf8.ValidString(res.Stdout) {
		return "", false, domain.NewError(domain.ErrParse, fmt.Errorf("directory test output is not utf-8"))
	}

	switch res.Stdout {
	case sentinelExists:
		return path, false, nil
	case sentinelMissing:
		m.logger.Warn("creating directory", "path", path)
		mk, err := m.runner.RunInDir(ctx, "", "mkdir", "-p", path)
		if err != nil {
			return "", false, domain.NewError(domain.ErrCommand, err)
		}
		if !mk.Success() {
			m.logger.Warn("mkdir failed", "path", path, "stderr", mk.Stderr)
			return "", false, domain.NewError(domain.ErrStatus, fmt.Errorf("mkdir exited with code %d", mk.ExitCode))
		}
		return path, true, nil
	default:
		return "", false, domain.NewError(domain.ErrUnexpected, fmt.Errorf("directory test printed %q", res.Stdout))
	}
}

// Purge deletes every entry inside dir, hidden ones included.
func (m *Manager) Purge(ctx context.Context, dir string) error {
	res, err := m.runner.RunInDir(ctx, "", "find", dir, "-mindepth", "1", "-delete")
	if err != nil {
		return domain.NewError(domain.ErrCommand, err)
	}
	if !res.Success() {
		m.logger.Error("failed to purge directory", "dir", dir, "stderr", res.Stderr)
		return domain.NewError(domain.ErrRemove, fmt.Errorf("find exited with code %d", res.ExitCode))
	}
	return nil
}

// CopyContents copies src/. into dst, preserving attributes.
func (m *Manager) CopyContents(ctx context.Context, src, dst string) error {
	res, err := m.runner.RunInDir(ctx, dst, "cp", "-af", filepath.Clean(src)+string(filepath.Separator)+".", ".")
	if err != nil {
		return domain.NewError(domain.ErrCommand, err)
	}
	if !res.Success() {
		m.logger.Error("failed to copy directory", "src", src, "dst", dst, "stderr", res.Stderr)
		return domain.NewError(domain.ErrCopy, fmt.Errorf("cp exited with code %d", res.ExitCode))
	}
	return nil
}
