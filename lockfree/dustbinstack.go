package lockfree

import (
	"sync"
	"sync/atomic"
)

type (
	// DustbinStack is a lock-free LIFO that gates reclamation on a count of
	// pops in flight. Detached nodes are parked in a shared dustbin; a popper
	// that observes itself to be the only pop in flight detaches the bin and,
	// after double-checking the count, recycles the lot. The zero value is
	// ready to use.
	DustbinStack[T any] struct {
		popCount atomic.Int32
		head     atomic.Pointer[dustbinNode[T]]
		dustbin  atomic.Pointer[dustbinNode[T]]
		free     sync.Pool
	}

	dustbinNode[T any] struct {
		data *T
		next *dustbinNode[T]
	}
)

// NewDustbinStack creates an empty stack. Equivalent to new(DustbinStack[T]).
func NewDustbinStack[T any]() *DustbinStack[T] { return new(DustbinStack[T]) }

// Push adds value to the top of the stack.
func (x *DustbinStack[T]) Push(value T) {
	n := x.node()
	n.data = &value
	for {
		old := x.head.Load()
		n.next = old
		if x.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// Pop removes and returns the value at the top of the stack. ok is false
// when the stack was observed empty.
func (x *DustbinStack[T]) Pop() (value T, ok bool) {
	x.popCount.Add(1)
	var n *dustbinNode[T]
	for {
		n = x.head.Load()
		if n == nil {
			break
		}
		if x.head.CompareAndSwap(n, n.next) {
			break
		}
	}
	if n == nil {
		x.popCount.Add(-1)
		return value, false
	}
	data := n.data
	x.tryRecycle(n)
	return *data, true
}

// tryRecycle decrements the pop-in-flight count and disposes of n, either
// immediately (when this pop can prove it is alone) or via the dustbin.
func (x *DustbinStack[T]) tryRecycle(n *dustbinNode[T]) {
	if x.popCount.Load() != 1 {
		// Other pops are in flight; they may still hold head snapshots that
		// reach n or the bin contents.
		x.addToDustbin(n, n)
		x.popCount.Add(-1)
		return
	}
	// We were alone at the check above, so everything already in the bin was
	// detached while no other pop could observe it.
	head := x.dustbin.Swap(nil)
	if x.popCount.Add(-1) == 0 {
		// Still alone: nothing entered pop between the check and the
		// decrement, so the detached bin and n are unreachable.
		x.put(n)
		for head != nil {
			next := head.next
			x.put(head)
			head = next
		}
		return
	}
	// New pops arrived; they cannot reach n (detached before they loaded the
	// head), but conservatively return the bin for a later drain.
	x.put(n)
	if head != nil {
		tail := head
		for tail.next != nil {
			tail = tail.next
		}
		x.addToDustbin(head, tail)
	}
}

func (x *DustbinStack[T]) addToDustbin(front, rear *dustbinNode[T]) {
	for {
		rear.next = x.dustbin.Load()
		if x.dustbin.CompareAndSwap(rear.next, front) {
			return
		}
	}
}

func (x *DustbinStack[T]) node() *dustbinNode[T] {
	if n, _ := x.free.Get().(*dustbinNode[T]); n != nil {
		return n
	}
	return &dustbinNode[T]{}
}

func (x *DustbinStack[T]) put(n *dustbinNode[T]) {
	n.data = nil
	n.next = nil
	x.free.Put(n)
}
