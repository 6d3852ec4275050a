package lockfree

import (
	"sync"
	"sync/atomic"
)

type (
	// Queue is an unbounded lock-free FIFO in the Michael–Scott mould, using
	// split reference counting with a two-phase internal counter per node.
	//
	// A persistent empty sentinel sits at the tail: Push installs its payload
	// into the current sentinel and appends a fresh one, Pop detaches from
	// the head. The queue is empty exactly when head and tail reference the
	// same node. A node completes one phase when the head is swung off it and
	// one when the tail is; it is recycled once both phases are complete and
	// every borrow has been returned.
	//
	// Construct with NewQueue.
	Queue[T any] struct {
		head atomic.Pointer[counted[queueNode[T]]]
		tail atomic.Pointer[counted[queueNode[T]]]
		free sync.Pool
	}

	queueNode[T any] struct {
		data atomic.Pointer[T]
		tp   twoPhase
		next atomic.Pointer[counted[queueNode[T]]]
	}
)

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	x := new(Queue[T])
	sentinel := &counted[queueNode[T]]{node: x.node()}
	x.head.Store(sentinel)
	x.tail.Store(sentinel)
	return x
}

// Push appends value to the queue.
func (x *Queue[T]) Push(value T) {
	data := &value
	newTail := &counted[queueNode[T]]{node: x.node()}
	for {
		cp := bump(&x.tail)
		n := cp.node
		if n.data.CompareAndSwap(nil, data) {
			// We own the sentinel; pops still see head == tail until the
			// tail is swung, and contending pushes spin on the data CAS.
			if n.next.CompareAndSwap(nil, newTail) {
				x.setNewTail(cp, newTail)
			} else {
				// A helper already linked its spare node for us.
				next := n.next.Load()
				x.put(newTail.node)
				x.setNewTail(cp, next)
			}
			return
		}
		// Lost the data race; help link the next node and advance the tail
		// so the winner cannot stall us.
		if n.next.CompareAndSwap(nil, newTail) {
			x.setNewTail(cp, newTail)
			// Our spare was consumed; allocate another for the next round.
			newTail = &counted[queueNode[T]]{node: x.node()}
		} else {
			x.setNewTail(cp, n.next.Load())
		}
	}
}

// Pop removes and returns the oldest value. ok is false when the queue was
// observed empty.
func (x *Queue[T]) Pop() (value T, ok bool) {
	for {
		cp := bump(&x.head)
		n := cp.node
		if n == x.tail.Load().node {
			if n.tp.release() {
				x.put(n)
			}
			return value, false
		}
		// head != tail, so the push that filled n has already linked next.
		next := n.next.Load()
		if x.head.CompareAndSwap(cp, next) {
			// Winner holds the largest external counter for n.
			data := n.data.Swap(nil)
			if n.tp.finishPhase(cp.ext) {
				x.put(n)
			}
			return *data, true
		}
		if n.tp.release() {
			x.put(n)
		}
	}
}

// setNewTail swings the tail from expected's node to setTo, tolerating
// helpers that already advanced it, and settles expected's borrow either by
// merging the external count (when we performed the swing) or by a plain
// release (when somebody else did).
func (x *Queue[T]) setNewTail(expected, setTo *counted[queueNode[T]]) {
	n := expected.node
	for {
		if x.tail.CompareAndSwap(expected, setTo) {
			if n.tp.finishPhase(expected.ext) {
				x.put(n)
			}
			return
		}
		cur := x.tail.Load()
		if cur.node != n {
			// Another thread advanced the tail; our external count is stale.
			if n.tp.release() {
				x.put(n)
			}
			return
		}
		expected = cur
	}
}

func (x *Queue[T]) node() *queueNode[T] {
	if n, _ := x.free.Get().(*queueNode[T]); n != nil {
		return n
	}
	n := new(queueNode[T])
	n.tp.reset()
	return n
}

func (x *Queue[T]) put(n *queueNode[T]) {
	n.data.Store(nil)
	n.next.Store(nil)
	n.tp.reset()
	x.free.Put(n)
}
