package ports

import (
	"context"

	"github.com/melih/lighthouse/internal/core/domain"
)

// RepoSyncer fetches a service's source repository into a staging directory.
type RepoSyncer interface {
	// Clone clones the service repository into dir, which exists and is empty.
	Clone(ctx context.Context, svc domain.Service, dir string) error
	// Pull updates an existing clone in dir.
	Pull(ctx context.Context, svc domain.Service, dir string) error
}

// Staging manages the staging and live directories on disk.
type Staging interface {
	// GetOrCreate ensures path is a directory and reports whether it had to
	// be created. Calling it again on an unchanged filesystem returns the same
	// path with created=false.
	GetOrCreate(ctx context.Context, path string) (dir string, created bool, err error)
	// Purge removes everything inside dir, keeping dir itself.
	Purge(ctx context.Context, dir string) error
	// CopyContents copies the contents of src into dst.
	CopyContents(ctx context.Context, src, dst string) error
}
