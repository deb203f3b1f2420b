package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/melih/lighthouse/internal/adapters/compose"
	"github.com/melih/lighthouse/internal/adapters/docker"
	"github.com/melih/lighthouse/internal/adapters/git"
	"github.com/melih/lighthouse/internal/adapters/http"
	"github.com/melih/lighthouse/internal/adapters/process"
	"github.com/melih/lighthouse/internal/adapters/sqlitestore"
	"github.com/melih/lighthouse/internal/adapters/staging"
	"github.com/melih/lighthouse/internal/config"
	"github.com/melih/lighthouse/internal/core/deploy"
	"github.com/melih/lighthouse/internal/core/events"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		host       string
		port       int
	)

	cmd := &cobra.Command{
		Use:          "lighthouse",
		Short:        "Redeploy compose services from git and stream their status",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides APP_HOST)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides APP_PORT)")
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(logger)

	// 1. Initialize Adapters (Infrastructure)
	runner := process.NewExecRunner(logger.With("component", "runner"))

	discovery, discoveryCloser, err := newDiscovery(cfg, runner, logger)
	if err != nil {
		return err
	}
	defer discoveryCloser.Close()

	store, err := sqlitestore.Open(sqlitestore.Config{Path: cfg.DBPath}, logger.With("component", "store"))
	if err != nil {
		return err
	}
	defer store.Close()

	bus := events.NewBus(cfg.EventBuffer, logger.With("component", "bus"))

	// 2. Core: pipeline and dispatcher
	deployer := deploy.NewDeployer(deploy.Deps{
		Discovery: discovery,
		Staging:   staging.NewManager(runner, logger.With("component", "staging")),
		Repos:     newRepoSyncer(cfg, runner, logger),
		Tagger:    compose.NewTagger(),
		Compose:   compose.NewController(runner, logger.With("component", "compose")),
		Events:    bus,
	}, deploy.Config{
		RepoDir:     cfg.RepoDir,
		LiveDir:     cfg.LiveDir,
		ComposeFile: cfg.ComposeFile,
	}, logger.With("component", "deploy"))

	dispatcher := deploy.NewDispatcher(ctx, deployer, bus, deploy.DispatcherOptions{
		Serialize: cfg.SerializeDeploys,
	}, logger.With("component", "dispatcher"))

	// 3. HTTP Handlers (Interface Adapters)
	httpLogger := logger.With("component", "http")
	views := http.NewViews(store, discovery, httpLogger)
	handlers := http.Handlers{
		Services: http.NewServiceHandler(store, views, dispatcher, bus, httpLogger),
		Events:   http.NewEventsHandler(ctx, bus, views, httpLogger),
	}
	if cfg.ProxyDomain != "" {
		handlers.Proxy = http.NewProxyHandler(cfg.ProxyDomain, store, views, httpLogger)
	}
	app := http.NewApp(handlers)

	// 4. Start Server
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", cfg.Addr(),
			"git_backend", cfg.GitBackend,
			"discovery_backend", cfg.DiscoveryBackend,
			"serialize_deploys", cfg.SerializeDeploys,
		)
		errCh <- app.Listen(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	dispatcher.Wait()
	logger.Info("shutdown complete")
	return nil
}

func newDiscovery(cfg *config.Config, runner ports.Runner, logger *slog.Logger) (ports.ContainerDiscovery, io.Closer, error) {
	if cfg.DiscoveryBackend == config.BackendSDK {
		adapter, err := docker.NewAdapter()
		if err != nil {
			return nil, nil, err
		}
		return adapter, adapter, nil
	}
	return docker.NewCLIInspector(runner, logger.With("component", "discovery")), nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newRepoSyncer(cfg *config.Config, runner ports.Runner, logger *slog.Logger) ports.RepoSyncer {
	if cfg.GitBackend == config.BackendGoGit {
		return git.NewGoGit(nil, logger.With("component", "git"))
	}
	return git.NewCLI(runner, logger.With("component", "git"))
}
