package dispatch

import (
	"context"
	"log/slog"
	"sync"
)

// global holds the process-wide dispatcher subsystem, initialized lazily
// on first use (spec.md §6 "Process-wide state... initialized lazily on
// first sink_screen call and persist for the process lifetime") and
// guarded by a mutex rather than sync.Once so that ResetGlobal can tear
// it down and a later Start can create it again.
type global struct {
	mu       sync.Mutex
	registry *Registry
	resched  *Reschedule
	cancel   context.CancelFunc
}

var g global

// Start ensures the process-wide registry and dispatcher goroutine
// exist, creating them on first call. logger is called once when the
// dispatcher goroutine starts, to obtain the logger for its start and
// stop messages. Start never fails in practice (Go
// goroutine creation cannot fail the way OS thread creation can), but
// returns an error to preserve spec.md §7's "Thread creation failure at
// bootstrap: surfaced from the entry point" contract for callers that
// want to treat bootstrap uniformly with other Screen() failure modes.
func Start(logger func() *slog.Logger) (*Registry, *Reschedule, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.registry != nil {
		return g.registry, g.resched, nil
	}

	resched := &Reschedule{}
	registry := NewRegistry(resched)
	ctx, cancel := context.WithCancel(context.Background())

	g.registry = registry
	g.resched = resched
	g.cancel = cancel

	disp := NewDispatcher(registry, resched, logger)
	go disp.Run(ctx)

	return registry, resched, nil
}

// ResetGlobal tears down the dispatcher goroutine and clears the
// singleton, for use between test scenarios (spec.md §9 "tests need a
// hook to reset it"). Not intended for production use.
func ResetGlobal() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancel != nil {
		g.cancel()
	}
	g.registry = nil
	g.resched = nil
	g.cancel = nil
}
