// Package http exposes service management, deploy requests and the status
// event stream over Fiber.
package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything NewApp mounts.
type Handlers struct {
	Services *ServiceHandler
	Events   *EventsHandler
	// Proxy is optional.
	Proxy *ProxyHandler
}

// NewApp builds the Fiber application and its routes.
func NewApp(h Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	if h.Proxy != nil {
		app.Use(h.Proxy.ProxyRequest)
	}

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	v1 := api.Group("/v1")

	v1.Get("/status", h.Services.Status)
	v1.Post("/all_status", h.Services.RequestAllStatus)
	v1.Get("/events", h.Events.Stream)

	services := v1.Group("/services")
	services.Get("/", h.Services.ListServices)
	services.Post("/", h.Services.CreateService)
	services.Get("/:id", h.Services.GetService)
	services.Put("/:id", h.Services.UpdateService)
	services.Post("/:id/deploy", h.Services.Deploy)

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
