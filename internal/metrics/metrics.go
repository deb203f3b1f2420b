// Package metrics holds the Prometheus collectors shared by the deployment
// pipeline and the event bus. Collectors register with the default registry
// and are served by the HTTP adapter at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeploymentsTotal counts finished deployments by result (success or failure).
	DeploymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lighthouse_deployments_total",
		Help: "Finished deployments by result",
	}, []string{"result"})

	// StepDuration tracks how long each pipeline step takes.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lighthouse_deploy_step_duration_seconds",
		Help:    "Deployment pipeline step duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
	}, []string{"step"})

	// BusEventsDropped counts events discarded because a subscriber fell behind.
	BusEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lighthouse_bus_events_dropped_total",
		Help: "Events dropped from lagging bus subscribers",
	})

	// BusSubscribers is the number of attached bus subscribers.
	BusSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lighthouse_bus_subscribers",
		Help: "Currently attached event bus subscribers",
	})
)
