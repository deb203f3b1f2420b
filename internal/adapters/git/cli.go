// Package git fetches service repositories into staging directories.
package git

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/logging"
)

// CLI implements ports.RepoSyncer by running the git binary.
type CLI struct {
	runner ports.Runner
	logger *slog.Logger
}

// NewCLI returns a CLI syncer running git through runner.
func NewCLI(runner ports.Runner, logger *slog.Logger) *CLI {
	return &CLI{runner: runner, logger: logging.OrDiscard(logger)}
}

// Clone runs `git clone -- <repo> <dir>`. The separator keeps a repo URL
// starting with "-" from being read as an option.
func (g *CLI) Clone(ctx context.Context, svc domain.Service, dir string) error {
	return g.run(ctx, svc, "", "clone", "--", svc.RepoURL, dir)
}

// Pull runs `git pull` inside dir.
func (g *CLI) Pull(ctx context.Context, svc domain.Service, dir string) error {
	return g.run(ctx, svc, dir, "pull")
}

func (g *CLI) run(ctx context.Context, svc domain.Service, dir string, args ...string) error {
	res, err := g.runner.RunInDir(ctx, dir, "git", withIdentity(svc, args)...)
	if err != nil {
		return domain.NewError(domain.ErrCommand, err)
	}
	if !res.Success() {
		g.logger.Error("git failed", "service", svc.Name, "op", args[0], "stderr", res.Stderr)
		return domain.NewError(domain.ErrCloneOrPull, fmt.Errorf("git %s exited with code %d", args[0], res.ExitCode))
	}
	return nil
}

// withIdentity prefixes args with an sshCommand override when the service
// has an identity file. git only accepts -c before the subcommand.
func withIdentity(svc domain.Service, args []string) []string {
	key := svc.IdentityFile()
	if key == "" {
		return args
	}
	return append([]string{"-c", "core.sshCommand=ssh -i " + key}, args...)
}
