package dispatch

import "sync/atomic"

// Reschedule is the process-wide advisory preemption flag from spec.md
// §3/§5: set whenever a Job newly enters the registry, polled by a
// dispatch round's allocate step to decide whether to stop early so a
// higher-priority Job can be picked.
//
// Deliberately unlocked: a torn read at most delays a preemption by one
// tile, and the flag is set again on the next Put (spec.md §9).
type Reschedule struct {
	flag atomic.Bool
}

// Set raises the flag.
func (r *Reschedule) Set() { r.flag.Store(true) }

// Clear lowers the flag. Called by the dispatcher at the start of each
// dispatch round (spec.md §4.6 step 2).
func (r *Reschedule) Clear() { r.flag.Store(false) }

// Requested reports whether a higher-priority Job has arrived since the
// flag was last cleared.
func (r *Reschedule) Requested() bool { return r.flag.Load() }
