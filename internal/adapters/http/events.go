package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/lighthouse/internal/core/events"
	"github.com/melih/lighthouse/internal/logging"
)

const defaultKeepAlive = 15 * time.Second

// EventsHandler streams bus events to the client as server-sent events.
type EventsHandler struct {
	ctx       context.Context
	bus       *events.Bus
	views     *Views
	keepAlive time.Duration
	logger    *slog.Logger
}

// NewEventsHandler returns a handler whose streams end when ctx is done.
func NewEventsHandler(ctx context.Context, bus *events.Bus, views *Views, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		ctx:       ctx,
		bus:       bus,
		views:     views,
		keepAlive: defaultKeepAlive,
		logger:    logging.OrDiscard(logger),
	}
}

// Stream subscribes to the bus and writes one SSE frame per event. Each
// event is rendered against the current store and container state.
func (h *EventsHandler) Stream(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	sub := h.bus.Subscribe()
	logger := h.logger.With("subscription", sub.ID(), "remote", c.IP())
	logger.Info("event stream opened")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(h.ctx)
		defer cancel()
		defer sub.Close()

		for {
			waitCtx, waitCancel := context.WithTimeout(ctx, h.keepAlive)
			event, err := sub.Next(waitCtx)
			waitCancel()

			switch {
			case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
				if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
					return
				}
			case err != nil:
				logger.Info("event stream closed", "reason", err, "dropped", sub.Dropped())
				return
			default:
				data, err := json.Marshal(h.views.Render(ctx, event))
				if err != nil {
					logger.Error("failed to encode event", "kind", event.Kind, "error", err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data)
			}

			if err := w.Flush(); err != nil {
				logger.Info("event stream closed by client", "dropped", sub.Dropped())
				return
			}
		}
	})
	return nil
}
