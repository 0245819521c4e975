// Package workthread implements a managed background-worker primitive: a
// small, reusable handle that lets a host run an isolated, long-lived
// activity on its own goroutine, wake it when there is work, let it sleep
// when there isn't, cancel it cooperatively (even mid-work), resume it
// later, and eventually destroy it.
//
// It is intended for activities that span many internal epochs of a host
// system (background compaction, scrubbing, trimming, and similar) and that
// have exactly one authoritative "is there work" indicator, owned by the
// host and consulted via a check callback.
//
// # Two callbacks, two locking regimes
//
// A [Handle] is driven by a pair of callbacks: check reports whether there
// is work, and work performs it. check runs with the handle's internal
// state lock held, so that it can serialize against [Handle.Cancel] and
// [Handle.Resume]; it must return promptly and must not call back into the
// handle, nor acquire any lock a caller of Cancel/Resume/Wakeup might be
// holding. work runs with no lock held, and may take as long as it needs,
// provided it calls [Handle.IsCancelled] periodically if it is unbounded.
//
// # No queue
//
// The primitive deliberately has no work queue and no priority scheduling.
// There is exactly one "is there work" bit, and it is the host's, not the
// handle's; check is how the handle reads it.
//
// # Cancellation is cooperative
//
// [Handle.Cancel] sets a flag and wakes the worker, then blocks until the
// worker's goroutine has actually exited its loop. A work callback that
// never calls [Handle.IsCancelled] can delay Cancel indefinitely; this is
// by design. The primitive guarantees eventual cancellation, not preemptive
// cancellation.
package workthread
