// Package deploy drives a service through the deployment pipeline:
// discovery, clone or pull, copy to live, compose tagging, conditional stop
// and start. Each step publishes its status before it runs; a failing step
// publishes the mapped failure status and aborts the run.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/logging"
	"github.com/melih/lighthouse/internal/metrics"
)

// DefaultComposeFile is the compose document name looked up in the live directory.
const DefaultComposeFile = "docker-compose.yaml"

// Config locates the per-service directories.
type Config struct {
	// RepoDir holds one staged clone per service, named after the service.
	RepoDir string
	// LiveDir holds one running copy per service, named after the service.
	LiveDir string
	// ComposeFile is the compose document inside the live copy.
	ComposeFile string
}

// Deps are the collaborators the pipeline drives.
type Deps struct {
	Discovery ports.ContainerDiscovery
	Staging   ports.Staging
	Repos     ports.RepoSyncer
	Tagger    ports.ComposeTagger
	Compose   ports.ComposeController
	Events    ports.Publisher
}

// Deployer runs the deployment pipeline. It is safe for concurrent use, but
// concurrent runs for the same service share directories and are not
// coordinated; see Dispatcher for an optional per-service lock.
type Deployer struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
}

// NewDeployer returns a Deployer.
func NewDeployer(deps Deps, cfg Config, logger *slog.Logger) *Deployer {
	if cfg.ComposeFile == "" {
		cfg.ComposeFile = DefaultComposeFile
	}
	return &Deployer{deps: deps, cfg: cfg, logger: logging.OrDiscard(logger)}
}

// RepoPath returns the staging directory of svc.
func (d *Deployer) RepoPath(svc domain.Service) string {
	return filepath.Join(d.cfg.RepoDir, svc.Name)
}

// LivePath returns the live directory of svc.
func (d *Deployer) LivePath(svc domain.Service) string {
	return filepath.Join(d.cfg.LiveDir, svc.Name)
}

// Deploy runs every step for svc in order. On failure the matching status
// has already been published when Deploy returns the error. On success no
// terminal status is published; that is left to the caller.
func (d *Deployer) Deploy(ctx context.Context, svc domain.Service) error {
	r := &run{
		Deployer: d,
		svc:      svc,
		repo:     d.RepoPath(svc),
		live:     d.LivePath(svc),
		logger: d.logger.With(
			"service_id", svc.ID,
			"service", svc.Name,
			"run_id", uuid.NewString(),
		),
	}

	r.publish(domain.NewStatus(domain.StatusDeploymentRequested))
	r.logger.Info("deployment started")

	if err := r.execute(ctx); err != nil {
		r.publish(domain.StatusFromError(err))
		r.logger.Error("deployment failed", "error", err)
		return err
	}

	r.logger.Info("deployment finished")
	return nil
}

// run carries the state of one pipeline execution.
type run struct {
	*Deployer
	svc        domain.Service
	repo, live string
	containers []domain.Container
	logger     *slog.Logger
}

func (r *run) execute(ctx context.Context) error {
	if err := r.step("discovery", func() error { return r.discover(ctx) }); err != nil {
		return err
	}
	if err := r.syncRepo(ctx); err != nil {
		return err
	}

	r.publish(domain.NewStatus(domain.StatusCopying))
	if err := r.step("copy", func() error { return r.copyToLive(ctx) }); err != nil {
		return err
	}

	r.publish(domain.NewStatus(domain.StatusRewritingConfig))
	if err := r.step("tag", r.tag); err != nil {
		return err
	}

	if r.svc.IsRunning(r.containers) {
		r.publish(domain.NewStatus(domain.StatusStopping))
		if err := r.step("stop", func() error { return r.deps.Compose.Stop(ctx, r.live) }); err != nil {
			return err
		}
	}

	r.publish(domain.NewStatus(domain.StatusStarting))
	return r.step("start", func() error { return r.start(ctx) })
}

func (r *run) discover(ctx context.Context) error {
	containers, err := r.deps.Discovery.ListContainers(ctx)
	if err != nil {
		return domain.NewError(domain.ErrDiscovery, err)
	}
	r.containers = containers
	r.logger.Debug("discovered containers", "count", len(containers), "running", r.svc.IsRunning(containers))
	return nil
}

// syncRepo clones into a freshly created staging directory, or pulls into
// an existing one.
func (r *run) syncRepo(ctx context.Context) error {
	dir, created, err := r.deps.Staging.GetOrCreate(ctx, r.repo)
	if err != nil {
		return err
	}

	if created {
		r.publish(domain.NewStatus(domain.StatusCloning))
		return r.step("clone", func() error { return r.deps.Repos.Clone(ctx, r.svc, dir) })
	}
	r.publish(domain.NewStatus(domain.StatusPulling))
	return r.step("pull", func() error { return r.deps.Repos.Pull(ctx, r.svc, dir) })
}

func (r *run) copyToLive(ctx context.Context) error {
	dir, created, err := r.deps.Staging.GetOrCreate(ctx, r.live)
	if err != nil {
		return err
	}
	if !created {
		if err := r.deps.Staging.Purge(ctx, dir); err != nil {
			return err
		}
	}
	return r.deps.Staging.CopyContents(ctx, r.repo, dir)
}

func (r *run) tag() error {
	path := filepath.Join(r.live, r.cfg.ComposeFile)
	return r.deps.Tagger.Tag(path, r.svc.ComposeName, r.svc.LabelName())
}

// start requires the live directory populated by the copy step.
func (r *run) start(ctx context.Context) error {
	dir, created, err := r.deps.Staging.GetOrCreate(ctx, r.live)
	if err != nil {
		return err
	}
	if created {
		return domain.NewError(domain.ErrUnexpected, fmt.Errorf("live directory %s vanished before start", dir))
	}
	return r.deps.Compose.Up(ctx, dir)
}

func (r *run) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.StepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		r.logger.Debug("step failed", "step", name, "error", err)
		return err
	}
	r.logger.Debug("step done", "step", name, "elapsed", time.Since(start))
	return nil
}

func (r *run) publish(status domain.Status) {
	r.deps.Events.Publish(domain.ServiceUpdate(r.svc.ID, status))
}
