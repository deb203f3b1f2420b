package ports

import (
	"context"

	"github.com/melih/lighthouse/internal/core/domain"
)

// ContainerDiscovery lists the containers currently running on the host.
// This interface allows us to switch between the docker CLI and the Docker
// Engine API without changing the pipeline.
type ContainerDiscovery interface {
	ListContainers(ctx context.Context) ([]domain.Container, error)
}

// ComposeController drives the compose tool inside a live directory.
type ComposeController interface {
	// Stop stops the compose project in dir.
	Stop(ctx context.Context, dir string) error
	// Up starts the compose project in dir, detached.
	Up(ctx context.Context, dir string) error
}

// ComposeTagger injects a correlation label into one unit of a compose file.
type ComposeTagger interface {
	Tag(path, unit, label string) error
}
