package http

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/logging"
)

// Dispatcher starts a deployment in the background.
type Dispatcher interface {
	Dispatch(svc domain.Service)
}

// ServiceHandler serves service definitions, status and deploy requests.
type ServiceHandler struct {
	store      ports.ServiceStore
	views      *Views
	dispatcher Dispatcher
	events     ports.Publisher
	logger     *slog.Logger
}

func NewServiceHandler(store ports.ServiceStore, views *Views, dispatcher Dispatcher, events ports.Publisher, logger *slog.Logger) *ServiceHandler {
	return &ServiceHandler{
		store:      store,
		views:      views,
		dispatcher: dispatcher,
		events:     events,
		logger:     logging.OrDiscard(logger),
	}
}

// ServiceRequest is the body of create and update requests.
type ServiceRequest struct {
	Name        string `json:"name"`
	ComposeName string `json:"compose_name"`
	RepoURL     string `json:"repo_url"`
	AccessURL   string `json:"access_url"`
	Active      *bool  `json:"active"`
	CredFile    string `json:"cred_file"`
	UseKey      bool   `json:"use_key"`
}

func (r ServiceRequest) service() domain.Service {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return domain.Service{
		Name:        r.Name,
		ComposeName: r.ComposeName,
		RepoURL:     r.RepoURL,
		AccessURL:   r.AccessURL,
		Active:      active,
		CredFile:    r.CredFile,
		UseKey:      r.UseKey,
	}
}

// Status returns every service with its Running or Inactive state.
func (h *ServiceHandler) Status(c *fiber.Ctx) error {
	view := h.views.AllStatus(c.Context())
	if view.Error == msgDatabaseError {
		return c.Status(fiber.StatusInternalServerError).JSON(view)
	}
	return c.JSON(view)
}

func (h *ServiceHandler) ListServices(c *fiber.Ctx) error {
	services, err := h.store.List(c.Context())
	if err != nil {
		return h.storeError(c, err)
	}
	return c.JSON(services)
}

func (h *ServiceHandler) GetService(c *fiber.Ctx) error {
	id, err := serviceID(c)
	if err != nil {
		return err
	}
	svc, err := h.store.Get(c.Context(), id)
	if err != nil {
		return h.storeError(c, err)
	}
	return c.JSON(svc)
}

func (h *ServiceHandler) CreateService(c *fiber.Ctx) error {
	svc, err := parseService(c)
	if err != nil {
		return err
	}

	id, err := h.store.Create(c.Context(), svc)
	if err != nil {
		return h.storeError(c, err)
	}
	svc.ID = id

	h.events.Publish(domain.AllStatus())
	return c.Status(fiber.StatusCreated).JSON(svc)
}

func (h *ServiceHandler) UpdateService(c *fiber.Ctx) error {
	id, err := serviceID(c)
	if err != nil {
		return err
	}
	svc, err := parseService(c)
	if err != nil {
		return err
	}

	if err := h.store.Update(c.Context(), id, svc); err != nil {
		return h.storeError(c, err)
	}
	svc.ID = id

	h.events.Publish(domain.AllStatus())
	return c.JSON(svc)
}

// Deploy hands the service to the dispatcher and answers immediately.
func (h *ServiceHandler) Deploy(c *fiber.Ctx) error {
	id, err := serviceID(c)
	if err != nil {
		return err
	}

	svc, err := h.store.Get(c.Context(), id)
	if err != nil {
		h.events.Publish(domain.UnknownEvent(err.Error()))
		return h.storeError(c, err)
	}

	h.logger.Info("deployment requested", "service_id", svc.ID, "service", svc.Name)
	h.dispatcher.Dispatch(svc)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":     svc.ID,
		"status": domain.NewStatus(domain.StatusDeploymentRequested),
	})
}

// RequestAllStatus asks every subscriber to refresh the full service list.
func (h *ServiceHandler) RequestAllStatus(c *fiber.Ctx) error {
	n := h.events.Publish(domain.AllStatus())
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"subscribers": n})
}

func (h *ServiceHandler) storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrServiceNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "service not found"})
	case errors.Is(err, domain.ErrServiceNameTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "service name already in use"})
	}
	h.logger.Error("store request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msgDatabaseError})
}

func serviceID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Service ID must be a positive integer")
	}
	return id, nil
}

func parseService(c *fiber.Ctx) (domain.Service, error) {
	var req ServiceRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.Service{}, fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	svc := req.service()
	if err := svc.Validate(); err != nil {
		return domain.Service{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return svc, nil
}
