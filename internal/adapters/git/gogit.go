package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/logging"
)

// GoGit implements ports.RepoSyncer in-process with go-git, for hosts
// without a git binary.
type GoGit struct {
	progress io.Writer
	logger   *slog.Logger
}

// NewGoGit returns a GoGit syncer. progress receives remote progress
// output and may be nil.
func NewGoGit(progress io.Writer, logger *slog.Logger) *GoGit {
	return &GoGit{progress: progress, logger: logging.OrDiscard(logger)}
}

// Clone clones the service repository into dir.
func (g *GoGit) Clone(ctx context.Context, svc domain.Service, dir string) error {
	auth, err := authFor(svc)
	if err != nil {
		return domain.NewError(domain.ErrCloneOrPull, err)
	}

	g.logger.Info("cloning repository", "service", svc.Name, "dir", dir)
	_, err = gogit.PlainCloneContext(ctx, dir, false, &gogit.CloneOptions{
		URL:      svc.RepoURL,
		Auth:     auth,
		Progress: g.progress,
	})
	if err != nil {
		return domain.NewError(domain.ErrCloneOrPull, fmt.Errorf("failed to clone repo: %w", err))
	}
	return nil
}

// Pull fast-forwards the worktree in dir from origin. An up-to-date
// worktree is a success.
func (g *GoGit) Pull(ctx context.Context, svc domain.Service, dir string) error {
	auth, err := authFor(svc)
	if err != nil {
		return domain.NewError(domain.ErrCloneOrPull, err)
	}

	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return domain.NewError(domain.ErrCloneOrPull, fmt.Errorf("failed to open repo: %w", err))
	}
	wt, err := repo.Worktree()
	if err != nil {
		return domain.NewError(domain.ErrCloneOrPull, fmt.Errorf("failed to open worktree: %w", err))
	}

	err = wt.PullContext(ctx, &gogit.PullOptions{
		RemoteName: "origin",
		Auth:       auth,
		Progress:   g.progress,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return domain.NewError(domain.ErrCloneOrPull, fmt.Errorf("failed to pull repo: %w", err))
	}
	return nil
}

func authFor(svc domain.Service) (transport.AuthMethod, error) {
	key := svc.IdentityFile()
	if key == "" {
		return nil, nil
	}
	auth, err := ssh.NewPublicKeysFromFile("git", key, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load identity %s: %w", key, err)
	}
	return auth, nil
}
