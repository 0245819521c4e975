package workthread

import (
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/logiface"

	"github.com/quietloop/workthread/internal/gid"
)

type (
	// CheckFunc reports whether there is pending work for arg. It is invoked
	// with the Handle's state lock held (see package docs): it must return
	// promptly, and must not reenter the Handle nor acquire a lock that a
	// concurrent Cancel/Resume/Wakeup caller might be holding.
	CheckFunc[T any] func(arg T, h *Handle[T]) bool

	// WorkFunc performs one unit of pending work for arg. It is invoked with
	// no Handle lock held, and may run arbitrarily long; an unbounded
	// WorkFunc should periodically call [Handle.IsCancelled].
	WorkFunc[T any] func(arg T, h *Handle[T])

	// Option configures a Handle at construction time. See [WithLogger] and
	// [WithSpawner].
	Option[T any] func(*Handle[T])

	// Handle is the worker-thread primitive. Instances are created by [New]
	// or [NewTimed], and must eventually be disposed of via [Handle.Destroy],
	// preceded by a [Handle.Cancel] if the worker may still be running.
	//
	// The zero value is not usable; Handle must be obtained via New or
	// NewTimed.
	Handle[T any] struct {
		// state lock: guards everything below, and the condvar is bound to it.
		mu   sync.Mutex
		cond *sync.Cond

		// request lock: serializes Wakeup/Cancel/Resume against each other.
		// Acquired strictly before mu, per the primitive's one locking
		// invariant; the worker loop never acquires it.
		reqMu sync.Mutex

		running   bool   // thread identity != none
		cancelled bool   // cancel flag
		worker    uint64 // goroutine id of the running worker, 0 if none
		destroyed bool

		// immutable after construction
		interval time.Duration
		check    CheckFunc[T]
		work     WorkFunc[T]
		arg      T

		spawn  func(func()) error
		logger *logiface.Logger[logiface.Event]
	}
)

func defaultSpawn(f func()) error {
	go f()
	return nil
}

// WithLogger attaches an optional structured logger, used only to record
// lifecycle edges (spawned, running, stopped, cancelled, resumed, destroyed)
// at debug level.
// It is never called from within the check or work callbacks' critical
// sections. A nil logger (the default) disables all logging.
func WithLogger[T any](logger *logiface.Logger[logiface.Event]) Option[T] {
	return func(h *Handle[T]) {
		h.logger = logger
	}
}

// WithSpawner overrides how the worker goroutine is started. It exists
// primarily for tests that need to simulate resource-exhaustion at
// creation time (spec's "allocation or thread-spawn failure"), which Go's
// runtime does not otherwise surface. The supplied function must either
// run fn (in whatever manner it chooses) and return nil, or return a
// non-nil error and not run fn at all.
func WithSpawner[T any](spawn func(fn func()) error) Option[T] {
	return func(h *Handle[T]) {
		if spawn == nil {
			panic(`workthread: nil spawner`)
		}
		h.spawn = spawn
	}
}

// New creates a Handle whose worker sleeps indefinitely between check
// invocations, waking only on an explicit [Handle.Wakeup] or
// [Handle.Cancel]. It is equivalent to NewTimed with a zero interval.
func New[T any](check CheckFunc[T], work WorkFunc[T], arg T, opts ...Option[T]) (*Handle[T], error) {
	return NewTimed(check, work, arg, 0, opts...)
}

// NewTimed creates a Handle whose worker wakes at least once every
// interval, even absent a [Handle.Wakeup], to re-run check. A zero interval
// means "wait only on explicit signal".
//
// On success, the returned Handle's worker is already running (or about to
// be). The only failure mode is the configured spawner (see [WithSpawner])
// declining to start the worker; by default this never happens.
func NewTimed[T any](check CheckFunc[T], work WorkFunc[T], arg T, interval time.Duration, opts ...Option[T]) (*Handle[T], error) {
	if check == nil {
		panic(`workthread: nil check callback`)
	}
	if work == nil {
		panic(`workthread: nil work callback`)
	}
	if interval < 0 {
		panic(`workthread: negative interval`)
	}

	h := &Handle[T]{
		interval: interval,
		check:    check,
		work:     work,
		arg:      arg,
		spawn:    defaultSpawn,
	}
	h.cond = sync.NewCond(&h.mu)

	for _, opt := range opts {
		opt(h)
	}

	h.mu.Lock()
	h.running = true
	h.cancelled = false
	h.mu.Unlock()

	if err := h.spawn(h.loop); err != nil {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
		return nil, fmt.Errorf("workthread: spawn worker: %w", err)
	}

	h.logEdge("spawned")
	return h, nil
}

// Wakeup is a hint that check should be re-evaluated soon. If the worker is
// currently sleeping, it will wake and re-run check at least once before
// sleeping again. If the worker is already working, already cancelled, or
// not running at all, Wakeup is a no-op.
func (h *Handle[T]) Wakeup() {
	h.reqMu.Lock()
	defer h.reqMu.Unlock()

	h.mu.Lock()
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Cancel requests cooperative cancellation and blocks until the worker
// goroutine has exited its loop. It is idempotent: calling Cancel on an
// already-stopped Handle returns immediately. After Cancel returns, the
// Handle may be reused via [Handle.Resume], or torn down via
// [Handle.Destroy].
func (h *Handle[T]) Cancel() {
	h.reqMu.Lock()
	defer h.reqMu.Unlock()

	h.mu.Lock()

	if !h.running {
		// already stopped
		h.mu.Unlock()
		return
	}

	h.cancelled = true
	h.cond.Broadcast() // unblock a sleeping worker

	for h.running {
		h.cond.Wait()
	}

	if h.cancelled {
		h.mu.Unlock()
		panic(`workthread: invariant violated: cancel flag observed true after worker stopped`)
	}

	h.mu.Unlock()
	h.logEdge("cancelled")
}

// Resume restarts the worker, if it is currently stopped. If the worker is
// already running, Resume is a no-op and returns nil. This mirrors the
// permissive behavior spec.md's design notes call out explicitly: a host
// that always pairs Cancel with Resume need not special-case the "never
// cancelled" state.
func (h *Handle[T]) Resume() error {
	h.reqMu.Lock()
	defer h.reqMu.Unlock()

	h.mu.Lock()

	if h.check == nil || h.work == nil {
		h.mu.Unlock()
		panic(`workthread: resume called with unset callbacks`)
	}
	if h.cancelled {
		h.mu.Unlock()
		panic(`workthread: invariant violated: cancel flag true while resuming a stopped worker`)
	}
	if h.running {
		h.mu.Unlock()
		return nil
	}

	h.running = true
	h.mu.Unlock()

	if err := h.spawn(h.loop); err != nil {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
		return fmt.Errorf("workthread: spawn worker: %w", err)
	}

	h.logEdge("resumed")
	return nil
}

// IsCancelled reports whether a cancel is currently pending. It is intended
// to be called only from within the work callback, by the worker goroutine
// itself, to poll for cancellation during a long-running work item; calling
// it from any other goroutine is a contract violation and panics.
func (h *Handle[T]) IsCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.worker == 0 || gid.Current() != h.worker {
		panic(`workthread: IsCancelled called from outside the worker goroutine`)
	}

	return h.cancelled
}

// Destroy releases the Handle's resources. The worker must already be
// stopped (i.e. a prior [Handle.Cancel] must have returned); calling
// Destroy on a running worker, or more than once, is a contract violation
// and panics. No operation on the Handle is defined after Destroy returns.
//
// The canonical cleanup sequence is Cancel, then Destroy.
func (h *Handle[T]) Destroy() {
	h.mu.Lock()

	if h.destroyed {
		h.mu.Unlock()
		panic(`workthread: destroy called on an already-destroyed handle`)
	}
	if h.running {
		h.mu.Unlock()
		panic(`workthread: destroy called on a running worker; call Cancel first`)
	}

	h.destroyed = true
	// drop references so the callbacks/argument can be collected promptly
	h.check = nil
	h.work = nil
	var zero T
	h.arg = zero

	h.mu.Unlock()
	h.logEdge("destroyed")
}

// loop is the worker goroutine's entry point.
func (h *Handle[T]) loop() {
	h.mu.Lock()
	h.worker = gid.Current()
	h.mu.Unlock()

	h.logEdge("running")

	for {
		h.mu.Lock()

		if h.cancelled {
			h.running = false
			h.cancelled = false
			h.worker = 0
			h.cond.Broadcast() // release any Cancel waiter
			h.mu.Unlock()
			h.logEdge("stopped")
			return
		}

		if h.check(h.arg, h) {
			h.mu.Unlock()
			h.work(h.arg, h)
			continue
		}

		if h.interval <= 0 {
			h.cond.Wait()
		} else {
			h.waitTimeoutLocked(h.interval)
		}

		h.mu.Unlock()
	}
}

// waitTimeoutLocked waits on the condvar for up to d, or until broadcast.
// mu must be held on entry and is held (possibly released and reacquired by
// cond.Wait) on return. A spurious early return is permitted and, per
// spec, does not affect correctness: the loop simply re-checks.
func (h *Handle[T]) waitTimeoutLocked(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		h.mu.Lock()
		h.cond.Broadcast()
		h.mu.Unlock()
	})
	defer timer.Stop()

	h.cond.Wait()
}

func (h *Handle[T]) logEdge(edge string) {
	if h.logger == nil {
		return
	}
	h.logger.Debug().Str("edge", edge).Log("workthread: lifecycle edge")
}
