package ports

import (
	"context"

	"github.com/melih/lighthouse/internal/core/domain"
)

// ServiceStore is the persistence contract for service definitions. Every
// error it returns is a *domain.StoreError.
type ServiceStore interface {
	List(ctx context.Context) ([]domain.Service, error)
	Get(ctx context.Context, id int64) (domain.Service, error)
	Create(ctx context.Context, svc domain.Service) (int64, error)
	Update(ctx context.Context, id int64, svc domain.Service) error
}
