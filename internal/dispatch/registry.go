// Package dispatch implements the process-wide dirty registry and the
// single background dispatcher goroutine described in spec.md §4.5-§4.6.
//
// It is decoupled from the concrete Render type in the root package via
// the Job interface (mirroring the teacher's backend.RenderBackend
// pattern in backend/backend.go) so that the root package can depend on
// dispatch without dispatch importing the root package back.
package dispatch

import (
	"context"
	"sort"
	"sync"
)

// semCapacity bounds the counting semaphore's buffer. It is sized far
// above any realistic number of simultaneously-dirty Renders; Put never
// blocks on it in practice.
const semCapacity = 1 << 20

// Job is the narrow view of a Render that the registry and dispatcher
// need. Priority is fixed at creation per spec.md §4.5 ("consulted only
// at enqueue time"); RefDispatch/UnrefDispatch balance spec.md §4.7's
// ref counting around a dispatch round; RunDispatch executes one full
// background pass (§4.6 steps 3); HasPendingWork reports whether the
// Job should be re-enqueued after the pass.
type Job interface {
	Priority() int
	RefDispatch()
	UnrefDispatch()
	RunDispatch(ctx context.Context, resched *Reschedule)
	HasPendingWork() bool
}

// Registry is the process-wide priority-ordered set of Jobs with pending
// work, plus the counting semaphore the dispatcher blocks on (spec.md
// §3 "Dirty registry (process-wide)").
type Registry struct {
	mu      sync.Mutex
	all     []Job // sorted by descending priority
	present map[Job]struct{}
	sem     chan struct{}
	resched *Reschedule
}

// NewRegistry creates an empty registry bound to the given reschedule flag.
func NewRegistry(resched *Reschedule) *Registry {
	return &Registry{
		present: make(map[Job]struct{}),
		sem:     make(chan struct{}, semCapacity),
		resched: resched,
	}
}

// Put enqueues job if it has pending work and is not already present,
// prepends it, re-sorts by descending priority, sets the reschedule
// flag, and posts the semaphore — spec.md §4.5 registry_put.
func (reg *Registry) Put(job Job) {
	// Checked before taking reg.mu: registry_lock is never held while a
	// Job's own lock is acquired.
	if !job.HasPendingWork() {
		return
	}
	reg.mu.Lock()
	if _, ok := reg.present[job]; ok {
		reg.mu.Unlock()
		return
	}
	reg.present[job] = struct{}{}
	reg.all = append([]Job{job}, reg.all...)
	sort.SliceStable(reg.all, func(i, j int) bool {
		return reg.all[i].Priority() > reg.all[j].Priority()
	})
	reg.resched.Set()
	reg.sem <- struct{}{}
	reg.mu.Unlock()
}

// Get blocks until some Job has pending work, then returns the
// highest-priority one, having bumped its ref count — spec.md §4.5
// registry_get. Returns (nil, nil) if the Job was removed between the
// semaphore post and the lock acquisition (Render destroyed). Returns
// a non-nil error only if ctx is cancelled.
func (reg *Registry) Get(ctx context.Context) (Job, error) {
	select {
	case <-reg.sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if len(reg.all) == 0 {
		return nil, nil
	}
	job := reg.all[0]
	reg.all = reg.all[1:]
	delete(reg.present, job)
	job.RefDispatch()
	return job, nil
}

// Len reports the current registry size. Exposed for tests verifying
// spec.md §8 invariant 5 (registry_sem.count == |registry_all|) and
// invariant 7 (sorted by descending priority).
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.all)
}

// Priorities returns the current priority ordering, for invariant checks.
func (reg *Registry) Priorities() []int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]int, len(reg.all))
	for i, j := range reg.all {
		out[i] = j.Priority()
	}
	return out
}

// remove drops job from the registry without running it, used when a
// Render is destroyed while still queued (spec.md §4.7 destruction
// "removes r from the registry (decrementing the semaphore if present)").
func (reg *Registry) remove(job Job) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.present[job]; !ok {
		return false
	}
	delete(reg.present, job)
	for i, j := range reg.all {
		if j == job {
			reg.all = append(reg.all[:i], reg.all[i+1:]...)
			break
		}
	}
	return true
}

// Remove drops job from the registry if present, decrementing the
// semaphore to keep its count equal to len(all) (spec.md §8 invariant 5).
func (reg *Registry) Remove(job Job) {
	if reg.remove(job) {
		// Non-blocking; the Put that posted this entry's token
		// happened-before this Remove observed `present`.
		select {
		case <-reg.sem:
		default:
		}
	}
}
