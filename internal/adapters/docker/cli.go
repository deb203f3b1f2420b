// Package docker discovers running containers, either through the docker
// CLI or the Docker Engine API.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/logging"
)

// CLIInspector implements ports.ContainerDiscovery with `docker ps`.
type CLIInspector struct {
	runner ports.Runner
	logger *slog.Logger
}

// NewCLIInspector returns an inspector running docker through runner.
func NewCLIInspector(runner ports.Runner, logger *slog.Logger) *CLIInspector {
	return &CLIInspector{runner: runner, logger: logging.OrDiscard(logger)}
}

// ListContainers runs `docker ps --format json` and decodes one container
// per line. Lines that fail to decode are skipped.
func (i *CLIInspector) ListContainers(ctx context.Context) ([]domain.Container, error) {
	res, err := i.runner.RunInDir(ctx, "", "docker", "ps", "--format", "json")
	if err != nil {
		return nil, domain.NewError(domain.ErrCommand, err)
	}
	if !res.Success() {
		i.logger.Warn("docker ps failed", "stderr", res.Stderr)
		return nil, domain.NewError(domain.ErrStatus, fmt.Errorf("docker ps exited with code %d", res.ExitCode))
	}
	if !utf8.ValidString(res.Stdout) {
		return nil, domain.NewError(domain.ErrParse, fmt.Errorf("docker ps output is not utf-8"))
	}
	return ParseContainers(res.Stdout, i.logger), nil
}

// ParseContainers decodes line-oriented JSON container records, skipping
// blank and malformed lines.
func ParseContainers(output string, logger *slog.Logger) []domain.Container {
	logger = logging.OrDiscard(logger)

	containers := []domain.Container{}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var c domain.Container
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			logger.Debug("skipping undecodable container line", "error", err)
			continue
		}
		containers = append(containers, c)
	}
	return containers
}
