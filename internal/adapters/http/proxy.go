package http

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/logging"
)

// ProxyHandler manages reverse proxying for subdomains of one base domain.
type ProxyHandler struct {
	domain string
	store  ports.ServiceStore
	views  *Views
	logger *slog.Logger
}

// NewProxyHandler creates a new proxy handler for <service>.<domain> hosts.
func NewProxyHandler(domain string, store ports.ServiceStore, views *Views, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		domain: strings.Trim(domain, "."),
		store:  store,
		views:  views,
		logger: logging.OrDiscard(logger),
	}
}

// ProxyRequest intercepts requests to subdomains (e.g., blog.localhost)
// and forwards them to the access URL of the service with that name.
// Requests to other hosts or unknown services fall through.
func (h *ProxyHandler) ProxyRequest(c *fiber.Ctx) error {
	host := c.Hostname()
	if name, _, err := net.SplitHostPort(host); err == nil {
		host = name
	}

	// 1. Extract Subdomain
	subdomain, ok := strings.CutSuffix(host, "."+h.domain)
	if !ok || subdomain == "" || strings.Contains(subdomain, ".") {
		return c.Next()
	}

	// Skip common subdomains
	if subdomain == "www" {
		return c.Next()
	}

	// 2. Find Service by Name (Subdomain)
	services, err := h.store.List(c.Context())
	if err != nil {
		h.logger.Error("proxy lookup failed", "host", host, "error", err)
		return c.Status(fiber.StatusInternalServerError).SendString(msgDatabaseError)
	}

	var target *domain.Service
	for i := range services {
		if services[i].Name == subdomain {
			target = &services[i]
			break
		}
	}
	if target == nil {
		return c.Next()
	}
	if !target.Active || target.AccessURL == "" {
		return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("App '%s' is not exposed", subdomain))
	}

	// Only proxy to running services
	containers, err := h.views.containers(c.Context())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("Failed to list containers")
	}
	if !target.IsRunning(containers) {
		return c.Status(fiber.StatusServiceUnavailable).SendString(fmt.Sprintf("App '%s' is not running", subdomain))
	}

	// 3. Proxy the Request
	remote, err := url.Parse(target.AccessURL)
	if err != nil || remote.Host == "" {
		return c.Status(fiber.StatusInternalServerError).SendString("Invalid target URL")
	}

	proxy := httputil.NewSingleHostReverseProxy(remote)

	// Rewrite Host so the upstream sees the address it listens on.
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = remote.Host
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		h.logger.Warn("proxy upstream failed", "service", target.Name, "target", remote.Host, "error", err)
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, "Proxy Info: target=%s error=%v", remote.Host, err)
	}

	// Fiber <-> Net/HTTP Adaptor
	return adaptor.HTTPHandler(proxy)(c)
}
