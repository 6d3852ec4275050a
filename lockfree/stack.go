package lockfree

import (
	"sync"
	"sync/atomic"
)

type (
	// Stack is a lock-free LIFO using split reference counting. The zero
	// value is ready to use.
	//
	// The external counter travels on the head box and is bumped by every
	// pop attempt before the node is dereferenced. The winner of the detach
	// CAS merges the external counter into the node's internal release
	// counter by adding 1-ext; losers increment it by one. Whichever party
	// drives the sum to zero recycles the node.
	Stack[T any] struct {
		head atomic.Pointer[counted[stackNode[T]]]
		free sync.Pool
	}

	stackNode[T any] struct {
		release atomic.Int32
		data    *T
		next    *counted[stackNode[T]]
	}
)

// NewStack creates an empty stack. Equivalent to new(Stack[T]).
func NewStack[T any]() *Stack[T] { return new(Stack[T]) }

// Push adds value to the top of the stack.
func (x *Stack[T]) Push(value T) {
	n := x.node()
	n.data = &value
	box := &counted[stackNode[T]]{node: n}
	for {
		old := x.head.Load()
		// data and next are published before the head CAS makes n reachable.
		n.next = old
		if x.head.CompareAndSwap(old, box) {
			return
		}
	}
}

// Pop removes and returns the value at the top of the stack. ok is false
// when the stack was observed empty.
func (x *Stack[T]) Pop() (value T, ok bool) {
	for {
		old := x.head.Load()
		if old == nil {
			return value, false
		}
		// Acquire a borrow by bumping the external counter in place.
		cp := &counted[stackNode[T]]{node: old.node, ext: old.ext + 1}
		if !x.head.CompareAndSwap(old, cp) {
			continue
		}
		n := cp.node
		if x.head.CompareAndSwap(cp, n.next) {
			// Only the holder of the largest external counter can pass the
			// CAS above: any later borrower would have replaced the head box
			// first, failing our compare.
			data := n.data
			addon := -cp.ext + 1
			if n.release.Add(addon) == 0 {
				x.recycle(n)
			}
			return *data, true
		}
		if n.release.Add(1) == 0 {
			x.recycle(n)
		}
	}
}

func (x *Stack[T]) node() *stackNode[T] {
	if n, _ := x.free.Get().(*stackNode[T]); n != nil {
		return n
	}
	return &stackNode[T]{}
}

func (x *Stack[T]) recycle(n *stackNode[T]) {
	n.data = nil
	n.next = nil
	n.release.Store(0)
	x.free.Put(n)
}
