package http

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/logging"
)

const msgDatabaseError = "database error"

// AppView is the connection indicator shown next to the service list.
type AppView struct {
	Label string `json:"label"`
	Class string `json:"class"`
}

func appView(status domain.Status) *AppView {
	return &AppView{Label: status.AppLabel(), Class: status.AppClass()}
}

// ServiceView is a service definition with its current status.
type ServiceView struct {
	domain.Service
	Status domain.Status `json:"status"`
}

// EventView is the JSON payload pushed to event stream subscribers.
type EventView struct {
	Type     domain.EventKind `json:"type"`
	App      *AppView         `json:"app,omitempty"`
	Services []ServiceView    `json:"services,omitempty"`
	Service  *ServiceView     `json:"service,omitempty"`
	Error    string           `json:"error,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// Views renders events by re-querying the store and the container runtime.
// Concurrent discovery calls from many subscribers share one listing.
type Views struct {
	store     ports.ServiceStore
	discovery ports.ContainerDiscovery
	group     singleflight.Group
	logger    *slog.Logger
}

// NewViews returns a Views.
func NewViews(store ports.ServiceStore, discovery ports.ContainerDiscovery, logger *slog.Logger) *Views {
	return &Views{store: store, discovery: discovery, logger: logging.OrDiscard(logger)}
}

func (v *Views) containers(ctx context.Context) ([]domain.Container, error) {
	res, err, _ := v.group.Do("containers", func() (interface{}, error) {
		return v.discovery.ListContainers(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]domain.Container), nil
}

// Render builds the view of event.
func (v *Views) Render(ctx context.Context, event domain.Event) EventView {
	switch event.Kind {
	case domain.EventConnected:
		return EventView{Type: event.Kind, App: &AppView{Label: "Connected", Class: "success"}}
	case domain.EventAllStatus:
		return v.AllStatus(ctx)
	case domain.EventServiceUpdate:
		return v.serviceUpdate(ctx, event)
	default:
		return EventView{
			Type:    domain.EventUnknown,
			App:     appView(domain.NewStatus(domain.StatusUnknown)),
			Message: event.Message,
		}
	}
}

// AllStatus lists every service as Running or Inactive. When discovery
// fails every service is Unknown and the error is reported.
func (v *Views) AllStatus(ctx context.Context) EventView {
	view := EventView{Type: domain.EventAllStatus}

	services, err := v.store.List(ctx)
	if err != nil {
		v.logger.Error("failed to list services", "error", err)
		view.App = appView(domain.NewStatus(domain.StatusUnknown))
		view.Error = msgDatabaseError
		return view
	}

	containers, discoveryErr := v.containers(ctx)
	if discoveryErr != nil {
		v.logger.Warn("container discovery failed", "error", discoveryErr)
		view.Error = discoveryErr.Error()
	}

	view.Services = make([]ServiceView, 0, len(services))
	for _, svc := range services {
		status := domain.NewStatus(domain.StatusInactive)
		switch {
		case discoveryErr != nil:
			status = domain.NewStatus(domain.StatusUnknown)
		case svc.IsRunning(containers):
			status = domain.NewStatus(domain.StatusRunning)
		}
		view.Services = append(view.Services, ServiceView{Service: svc, Status: status})
	}

	if discoveryErr != nil {
		view.App = appView(domain.NewStatus(domain.StatusUnknown))
	} else {
		view.App = appView(domain.NewStatus(domain.StatusInactive))
	}
	return view
}

func (v *Views) serviceUpdate(ctx context.Context, event domain.Event) EventView {
	view := EventView{Type: event.Kind, App: appView(event.Status)}

	svc, err := v.store.Get(ctx, event.ServiceID)
	if err != nil {
		v.logger.Error("failed to load service", "service_id", event.ServiceID, "error", err)
		view.Error = msgDatabaseError
		return view
	}
	view.Service = &ServiceView{Service: svc, Status: event.Status}
	return view
}
