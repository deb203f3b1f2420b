package compose

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/logging"
)

// Controller implements ports.ComposeController with `docker compose`.
type Controller struct {
	runner ports.Runner
	logger *slog.Logger
}

// NewController returns a Controller running docker through runner.
func NewController(runner ports.Runner, logger *slog.Logger) *Controller {
	return &Controller{runner: runner, logger: logging.OrDiscard(logger)}
}

// Stop runs `docker compose stop` in dir.
func (c *Controller) Stop(ctx context.Context, dir string) error {
	return c.run(ctx, dir, domain.ErrStop, "stop")
}

// Up runs `docker compose up -d` in dir.
func (c *Controller) Up(ctx context.Context, dir string) error {
	return c.run(ctx, dir, domain.ErrStart, "up", "-d")
}

func (c *Controller) run(ctx context.Context, dir string, failure domain.ErrorKind, args ...string) error {
	res, err := c.runner.RunInDir(ctx, dir, "docker", append([]string{"compose"}, args...)...)
	if err != nil {
		c.logger.Error("compose command could not run", "dir", dir, "args", args, "error", err)
		return domain.NewError(domain.ErrCommand, err)
	}
	if !res.Success() {
		c.logger.Error("compose command failed", "dir", dir, "args", args, "stderr", res.Stderr)
		return domain.NewError(failure, fmt.Errorf("docker compose exited with code %d", res.ExitCode))
	}
	return nil
}
