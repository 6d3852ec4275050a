// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package channel provides a buffered channel with explicit waiter queues,
// and a Select primitive that commits to exactly one of several channel
// operations.
//
// Unlike the built-in chan type, these channels expose their wake protocol:
// blocked senders and receivers sit in per-channel FIFO queues, a waiter is
// either a plain blocked operation or a participant in a Select, and every
// channel carries a process-unique id that Select uses to acquire multiple
// channel mutexes in a deadlock-free global order.
package channel

import (
	"container/list"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

var (
	// ErrClosed is returned by Send and TrySend on a closed channel, and by
	// Select.Wait when a send case is resolved by Close.
	ErrClosed = errors.New(`channel: send on closed channel`)

	// idCounter allocates process-unique identities for channels and
	// selects. The only requirement is a total order across any set of
	// channels used in one select.
	idCounter atomic.Uint64
)

type (
	// Channel is a buffered channel with a fixed-capacity circular buffer.
	// Construct with New.
	Channel[T any] struct {
		mu        sync.Mutex
		buf       ring[T]
		consumers list.List // of *waiter[T]
		producers list.List // of *waiter[T]
		closed    bool
		id        uint64
		log       *logiface.Logger[logiface.Event]
	}

	// waiter is one entry in a channel's producer or consumer queue. A plain
	// blocked Send or Receive owns wake/err/val directly; an entry enqueued
	// by a Select instead points at the select's shared participant record,
	// and val carries the case's value slot.
	waiter[T any] struct {
		sel    *selectShared
		caseID int32
		wake   chan struct{}
		err    error
		val    *T
	}

	// ring is a fixed-capacity circular buffer. All index arithmetic is
	// modular.
	ring[T any] struct {
		els     []T
		size    int
		pushIdx int
		popIdx  int
	}

	// Option configures New.
	Option interface {
		applyChannel(*channelOptions)
	}

	channelOptions struct {
		log *logiface.Logger[logiface.Event]
	}

	channelOptionImpl struct {
		applyChannelFunc func(*channelOptions)
	}
)

func (x *channelOptionImpl) applyChannel(opts *channelOptions) { x.applyChannelFunc(opts) }

// WithLogger attaches a structured logger for wake-protocol events
// (registration, cleanup, close). The logger may be nil (the default), which
// disables logging.
func WithLogger(log *logiface.Logger[logiface.Event]) Option {
	return &channelOptionImpl{func(opts *channelOptions) {
		opts.log = log
	}}
}

// New creates a channel with the given buffer capacity. A panic will occur
// if capacity < 1; capacity 1 degenerates to rendezvous semantics.
func New[T any](capacity int, options ...Option) *Channel[T] {
	if capacity < 1 {
		panic(`channel: capacity must be positive`)
	}
	var cfg channelOptions
	for _, o := range options {
		if o != nil {
			o.applyChannel(&cfg)
		}
	}
	return &Channel[T]{
		buf: ring[T]{els: make([]T, capacity)},
		id:  idCounter.Add(1),
		log: cfg.log,
	}
}

// ID returns the channel's process-unique identity.
func (x *Channel[T]) ID() uint64 { return x.id }

// Cap returns the buffer capacity.
func (x *Channel[T]) Cap() int { return len(x.buf.els) }

// Len returns the number of buffered elements.
func (x *Channel[T]) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.size
}

// Closed reports whether Close has been called.
func (x *Channel[T]) Closed() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.closed
}

// Send blocks until value is accepted by the channel, either into the buffer
// or directly by a waiting receiver. It returns ErrClosed if the channel is
// closed before the value is accepted.
func (x *Channel[T]) Send(value T) error {
	x.mu.Lock()
	ok, err := x.trySendLocked(&value)
	if err != nil || ok {
		x.mu.Unlock()
		return err
	}
	// Buffer full: enqueue ourselves carrying the value, then sleep.
	w := &waiter[T]{wake: make(chan struct{}), val: &value}
	x.producers.PushBack(w)
	x.mu.Unlock()
	<-w.wake
	return w.err
}

// Receive blocks until a value is available. ok is false when the channel is
// closed and the buffer empty; values buffered before Close are still
// delivered.
func (x *Channel[T]) Receive() (value T, ok bool) {
	x.mu.Lock()
	val, ok := x.tryReceiveLocked()
	if ok {
		x.mu.Unlock()
		if val == nil {
			return value, false
		}
		return *val, true
	}
	// Buffer empty and not closed: enqueue ourselves, then sleep. The waker
	// hands the value directly into our slot; Close leaves it nil.
	w := &waiter[T]{wake: make(chan struct{})}
	x.consumers.PushBack(w)
	x.mu.Unlock()
	<-w.wake
	if w.val == nil {
		return value, false
	}
	return *w.val, true
}

// TrySend attempts to deliver value without blocking, reporting whether it
// was accepted. Returns ErrClosed on a closed channel.
func (x *Channel[T]) TrySend(value T) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.trySendLocked(&value)
}

// TryReceive attempts to take a value without blocking. ok is false when no
// value was available, including on a closed and drained channel.
func (x *Channel[T]) TryReceive() (value T, ok bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	val, ok := x.tryReceiveLocked()
	if !ok || val == nil {
		return value, false
	}
	return *val, true
}

// Close marks the channel closed, fails every queued producer with
// ErrClosed, and completes every queued consumer with the empty result.
// Close is idempotent. Waiter resolution happens under the channel mutex.
func (x *Channel[T]) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return
	}
	x.closed = true
	for e := x.producers.Front(); e != nil; e = x.producers.Front() {
		w := x.producers.Remove(e).(*waiter[T])
		if w.sel == nil {
			w.err = ErrClosed
			close(w.wake)
		} else if w.sel.resolved.CompareAndSwap(-1, w.caseID) {
			w.sel.err = ErrClosed
			close(w.sel.wake)
		}
	}
	for e := x.consumers.Front(); e != nil; e = x.consumers.Front() {
		w := x.consumers.Remove(e).(*waiter[T])
		if w.sel == nil {
			close(w.wake)
		} else if w.sel.resolved.CompareAndSwap(-1, w.caseID) {
			close(w.sel.wake)
		}
	}
	x.log.Debug().Uint64(`channel`, x.id).Log(`channel closed`)
}

// trySendLocked is the core of Send and TrySend, and the try-op Select uses
// while holding the channel mutex. It reports whether the value was
// accepted; (false, nil) means the buffer is full.
func (x *Channel[T]) trySendLocked(value *T) (bool, error) {
	if x.closed {
		return false, ErrClosed
	}
	if x.buf.full() {
		// any waiting consumers would imply a non-full buffer
		return false, nil
	}
	for e := x.consumers.Front(); e != nil; e = x.consumers.Front() {
		w := x.consumers.Remove(e).(*waiter[T])
		if w.sel == nil {
			// Hand the value directly to the blocked receiver.
			w.val = value
			close(w.wake)
			return true, nil
		}
		if w.sel.resolved.CompareAndSwap(-1, w.caseID) {
			w.val = value
			close(w.sel.wake)
			return true, nil
		}
		// Entry belongs to a select already resolved elsewhere; discard it.
	}
	// Consumers were all stale selects (or absent); buffer the value.
	x.buf.push(*value)
	return true, nil
}

// tryReceiveLocked is the core of Receive and TryReceive, and the try-op
// Select uses while holding the channel mutex. ok reports resolution: a nil
// value with ok true means closed-and-drained.
func (x *Channel[T]) tryReceiveLocked() (value *T, ok bool) {
	if x.buf.empty() {
		if x.closed {
			return nil, true
		}
		return nil, false
	}
	v := x.buf.pop()
	// A producer may be blocked on the slot we just vacated; shift its value
	// into the buffer and wake it.
	for e := x.producers.Front(); e != nil; e = x.producers.Front() {
		w := x.producers.Remove(e).(*waiter[T])
		if w.sel == nil {
			x.buf.push(*w.val)
			close(w.wake)
			break
		}
		if w.sel.resolved.CompareAndSwap(-1, w.caseID) {
			x.buf.push(*w.val)
			close(w.sel.wake)
			break
		}
	}
	return &v, true
}

// registerConsumer enqueues a select participant; the caller holds the
// channel mutex.
func (x *Channel[T]) registerConsumer(w *waiter[T]) {
	x.log.Trace().Uint64(`channel`, x.id).Uint64(`select`, w.sel.owner).Log(`registered in consumer queue`)
	x.consumers.PushBack(w)
}

// registerProducer enqueues a select participant; the caller holds the
// channel mutex.
func (x *Channel[T]) registerProducer(w *waiter[T]) {
	x.log.Trace().Uint64(`channel`, x.id).Uint64(`select`, w.sel.owner).Log(`registered in producer queue`)
	x.producers.PushBack(w)
}

// removeSelectWaiters drops every queue entry owned by the given select; the
// caller holds the channel mutex. A select may appear in both queues and
// more than once in each.
func (x *Channel[T]) removeSelectWaiters(owner uint64) {
	for _, q := range [...]*list.List{&x.consumers, &x.producers} {
		for e := q.Front(); e != nil; {
			next := e.Next()
			if w := e.Value.(*waiter[T]); w.sel != nil && w.sel.owner == owner {
				q.Remove(e)
				x.log.Trace().Uint64(`channel`, x.id).Uint64(`select`, owner).Log(`cleaned up select entry`)
			}
			e = next
		}
	}
}

func (x *ring[T]) empty() bool { return x.size == 0 }
func (x *ring[T]) full() bool  { return x.size == len(x.els) }

func (x *ring[T]) push(v T) {
	if x.full() {
		panic(`channel: push into a full ring`)
	}
	x.els[x.pushIdx] = v
	x.pushIdx = (x.pushIdx + 1) % len(x.els)
	x.size++
}

func (x *ring[T]) pop() T {
	if x.empty() {
		panic(`channel: pop from an empty ring`)
	}
	var zero T
	v := x.els[x.popIdx]
	x.els[x.popIdx] = zero
	x.popIdx = (x.popIdx + 1) % len(x.els)
	x.size--
	return v
}
