// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package workpool provides a work-stealing goroutine pool.
//
// Every worker owns a deque guarded by its own mutex. Submission picks the
// owning deque round-robin and pushes on the front; workers pop their own
// front (most recently submitted, for locality) and steal from the back of
// the others, scanning cyclically from their right-hand neighbour. Results
// and panics propagate through the returned Future.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

// ErrStopped is returned by Submit after StopAll has begun.
var ErrStopped = errors.New(`workpool: pool has been stopped`)

type (
	// Pool is a work-stealing pool. Construct with New; the zero value is
	// not usable.
	Pool struct {
		queues   []*stealQueue
		next     atomic.Uint64
		stop     atomic.Bool
		wg       sync.WaitGroup
		stopOnce sync.Once
		log      *logiface.Logger[logiface.Event]
	}

	task struct {
		run func()
	}

	// stealQueue is one worker's deque. The front (slice tail) is the
	// owner's end; thieves take from the back (slice head).
	stealQueue struct {
		mu    sync.Mutex
		tasks []*task
	}

	// Option configures New.
	Option interface {
		applyPool(*poolOptions)
	}

	poolOptions struct {
		size int
		log  *logiface.Logger[logiface.Event]
	}

	poolOptionImpl struct {
		applyPoolFunc func(*poolOptions)
	}
)

func (x *poolOptionImpl) applyPool(opts *poolOptions) { x.applyPoolFunc(opts) }

// WithSize overrides the worker count. Values <= 0 are ignored. Defaults to
// runtime.GOMAXPROCS(0).
func WithSize(size int) Option {
	return &poolOptionImpl{func(opts *poolOptions) {
		opts.size = size
	}}
}

// WithLogger attaches a structured logger for worker lifecycle events. The
// logger may be nil (the default), which disables logging.
func WithLogger(log *logiface.Logger[logiface.Event]) Option {
	return &poolOptionImpl{func(opts *poolOptions) {
		opts.log = log
	}}
}

// New creates a pool and starts its workers.
func New(options ...Option) *Pool {
	cfg := poolOptions{size: runtime.GOMAXPROCS(0)}
	for _, o := range options {
		if o != nil {
			o.applyPool(&cfg)
		}
	}
	if cfg.size <= 0 {
		cfg.size = runtime.GOMAXPROCS(0)
	}
	x := &Pool{
		queues: make([]*stealQueue, cfg.size),
		log:    cfg.log,
	}
	for i := range x.queues {
		x.queues[i] = new(stealQueue)
	}
	x.wg.Add(cfg.size)
	for i := range x.queues {
		go x.worker(i)
	}
	x.log.Debug().Int(`workers`, cfg.size).Log(`workpool started`)
	return x
}

// Size returns the worker count.
func (x *Pool) Size() int { return len(x.queues) }

// StopAll stops the pool and joins every worker. Workers finish draining
// all queued tasks before exiting, so every accepted task runs. StopAll is
// idempotent and safe to call concurrently.
func (x *Pool) StopAll() {
	x.stopOnce.Do(func() {
		x.stop.Store(true)
		x.wg.Wait()
		x.log.Debug().Log(`workpool stopped`)
	})
}

// Submit schedules fn on the pool and returns a Future resolving to its
// result. A panic inside fn is captured as a PanicError. Returns ErrStopped
// if the pool has been stopped.
func Submit[R any](x *Pool, fn func() (R, error)) (*Future[R], error) {
	if x.stop.Load() {
		return nil, ErrStopped
	}
	f := newFuture[R]()
	t := &task{run: func() {
		defer f.settle()
		f.value, f.err = fn()
	}}
	q := x.queues[x.next.Add(1)%uint64(len(x.queues))]
	q.pushFront(t)
	if x.stop.Load() && q.remove(t) {
		// Raced StopAll; the task was reclaimed before any worker took it.
		return nil, ErrStopped
	}
	return f, nil
}

// RunPending runs one queued task on the calling goroutine, if any is
// available, scanning every deque. It reports whether a task ran. This lets
// non-worker goroutines help drain the pool instead of busy-waiting.
func (x *Pool) RunPending() bool {
	for i := range x.queues {
		if t, ok := x.queues[i].popBack(); ok {
			t.run()
			return true
		}
	}
	return false
}

func (x *Pool) worker(id int) {
	defer x.wg.Done()
	x.log.Trace().Int(`worker`, id).Log(`worker started`)
	for {
		// Load the flag before scanning: a Submit that saw the pool running
		// pushed its task before the flag was set, so this scan finds it.
		stopping := x.stop.Load()
		if x.runOne(id) {
			continue
		}
		if stopping {
			x.log.Trace().Int(`worker`, id).Log(`worker exiting`)
			return
		}
		runtime.Gosched()
	}
}

// runOne tries the worker's own front, then steals from the back of the
// other deques, scanning cyclically from (id+1).
func (x *Pool) runOne(id int) bool {
	if t, ok := x.queues[id].popFront(); ok {
		t.run()
		return true
	}
	n := len(x.queues)
	for off := 1; off < n; off++ {
		if t, ok := x.queues[(id+off)%n].popBack(); ok {
			t.run()
			return true
		}
	}
	return false
}

func (x *stealQueue) pushFront(t *task) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.tasks = append(x.tasks, t)
}

func (x *stealQueue) popFront() (*task, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.tasks) == 0 {
		return nil, false
	}
	t := x.tasks[len(x.tasks)-1]
	x.tasks[len(x.tasks)-1] = nil
	x.tasks = x.tasks[:len(x.tasks)-1]
	return t, true
}

func (x *stealQueue) popBack() (*task, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.tasks) == 0 {
		return nil, false
	}
	t := x.tasks[0]
	x.tasks[0] = nil
	x.tasks = x.tasks[1:]
	return t, true
}

func (x *stealQueue) remove(t *task) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	for i, c := range x.tasks {
		if c == t {
			x.tasks = append(x.tasks[:i], x.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e PanicError) Error() string {
	return fmt.Sprintf(`workpool: task panicked: %v`, e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type,
// enabling use with [errors.Is] and [errors.As].
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

type (
	// Future is the wait handle for a submitted task. It resolves exactly
	// once, with the task's result or its captured panic.
	Future[R any] struct {
		done  chan struct{}
		value R
		err   error
	}
)

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

func (x *Future[R]) settle() {
	if r := recover(); r != nil {
		x.err = PanicError{Value: r}
	}
	close(x.done)
}

// Done returns a channel closed when the task has completed.
func (x *Future[R]) Done() <-chan struct{} { return x.done }

// Wait blocks until the task completes or ctx is done, returning the task's
// result, its error, or ctx.Err.
func (x *Future[R]) Wait(ctx context.Context) (value R, _ error) {
	select {
	case <-ctx.Done():
		return value, ctx.Err()
	case <-x.done:
		return x.value, x.err
	}
}
