package deploy

import (
	"context"
	"log/slog"
	"sync"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/logging"
	"github.com/melih/lighthouse/internal/metrics"
)

// Pipeline runs one deployment to completion.
type Pipeline interface {
	Deploy(ctx context.Context, svc domain.Service) error
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Serialize makes deployments of the same service id wait for each
	// other. Without it two deployments of one service may race on its
	// staging and live directories.
	Serialize bool
}

// Dispatcher hands deployments off to background goroutines so the
// requesting path returns immediately.
type Dispatcher struct {
	ctx      context.Context
	pipeline Pipeline
	events   ports.Publisher
	opts     DispatcherOptions
	locks    *keyedMutex
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewDispatcher returns a Dispatcher whose runs inherit ctx. Cancelling ctx
// abandons in-flight external commands.
func NewDispatcher(ctx context.Context, pipeline Pipeline, events ports.Publisher, opts DispatcherOptions, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		ctx:      ctx,
		pipeline: pipeline,
		events:   events,
		opts:     opts,
		locks:    newKeyedMutex(),
		logger:   logging.OrDiscard(logger),
	}
}

// Dispatch starts a deployment of svc in the background. On success a
// Running update is published; failures were already published by the
// pipeline and are only logged here.
func (d *Dispatcher) Dispatch(svc domain.Service) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		if d.opts.Serialize {
			unlock := d.locks.Lock(svc.ID)
			defer unlock()
		}

		if err := d.pipeline.Deploy(d.ctx, svc); err != nil {
			metrics.DeploymentsTotal.WithLabelValues("failure").Inc()
			d.logger.Warn("deployment aborted", "service_id", svc.ID, "service", svc.Name, "error", err)
			return
		}
		metrics.DeploymentsTotal.WithLabelValues("success").Inc()
		d.events.Publish(domain.ServiceUpdate(svc.ID, domain.NewStatus(domain.StatusRunning)))
	}()
}

// Wait blocks until every dispatched deployment has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// keyedMutex is a set of mutexes indexed by service id. Entries are
// dropped once no goroutine holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*refMutex)}
}

// Lock acquires the mutex for id and returns its release function.
func (k *keyedMutex) Lock(id int64) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
