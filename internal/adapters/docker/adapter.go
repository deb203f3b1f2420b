package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/melih/lighthouse/internal/core/domain"
)

// Adapter implements ports.ContainerDiscovery using the Docker Engine API.
type Adapter struct {
	cli *client.Client
}

// NewAdapter creates a new Docker adapter instance
func NewAdapter() (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli}, nil
}

// ListContainers returns the running containers, shaped like the CLI listing.
func (a *Adapter) ListContainers(ctx context.Context) ([]domain.Container, error) {
	containers, err := a.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]domain.Container, 0, len(containers))
	for _, c := range containers {
		names := make([]string, 0, len(c.Names))
		for _, n := range c.Names {
			names = append(names, strings.TrimPrefix(n, "/"))
		}

		result = append(result, domain.Container{
			ID:     shortID(c.ID),
			Names:  strings.Join(names, ","),
			Image:  c.Image,
			Labels: joinLabels(c.Labels),
			State:  c.State,
		})
	}
	return result, nil
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.cli.Close()
}

// joinLabels renders labels the way `docker ps` does: k=v pairs joined by
// commas, sorted for stable output.
func joinLabels(labels map[string]string) string {
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
