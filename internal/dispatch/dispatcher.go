package dispatch

import (
	"context"
	"io"
	"log/slog"
)

// discardLogger is used when Dispatcher is constructed without a logger
// accessor (e.g. by tests exercising the registry in isolation).
var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Dispatcher is the single long-lived goroutine of spec.md §4.6: it
// repeatedly pulls the highest-priority Job from the registry, drives it
// to completion (or until reschedule fires), re-enqueues it if work
// remains, and loops.
type Dispatcher struct {
	registry *Registry
	resched  *Reschedule
	logger   func() *slog.Logger
}

// NewDispatcher creates a dispatcher bound to registry/resched. logger,
// if non-nil, is called once when Run starts; the logger it returns is
// used for the dispatcher's start and stop messages.
func NewDispatcher(registry *Registry, resched *Reschedule, logger func() *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, resched: resched, logger: logger}
}

// Run executes the dispatch loop until ctx is cancelled. Intended to be
// run in its own goroutine for the lifetime of the process (or of a
// test's ResetGlobal scope).
func (d *Dispatcher) Run(ctx context.Context) {
	log := d.log()
	log.Info("dispatcher started")
	defer log.Info("dispatcher stopped")

	for {
		job, err := d.registry.Get(ctx)
		if err != nil {
			return // context cancelled (process shutdown / test reset)
		}
		if job == nil {
			// Render was destroyed between the semaphore post and the
			// registry lock acquisition (spec.md §4.5).
			continue
		}

		d.resched.Clear()
		job.RunDispatch(ctx, d.resched)

		if job.HasPendingWork() {
			d.registry.Put(job)
		}
		job.UnrefDispatch()
	}
}

func (d *Dispatcher) log() *slog.Logger {
	if d.logger != nil {
		if l := d.logger(); l != nil {
			return l
		}
	}
	return discardLogger
}
