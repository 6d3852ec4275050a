package lockfree

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/joeycumines/go-syncutil/hazard"
)

type (
	// HazardStack is a lock-free LIFO using hazard-pointer reclamation. It
	// shares Stack's multiset push/pop contract but bounds the number of
	// concurrent pops by the size of its hazard pool.
	//
	// Construct with NewHazardStack.
	HazardStack[T any] struct {
		head    atomic.Pointer[hazardNode[T]]
		hazards *hazard.Pool
		bin     *hazard.Dustbin
		free    sync.Pool
		recycle func(unsafe.Pointer)
	}

	hazardNode[T any] struct {
		data *T
		next *hazardNode[T]
	}

	// HazardStackOption configures NewHazardStack.
	HazardStackOption interface {
		applyHazardStack(*hazardStackOptions)
	}

	hazardStackOptions struct {
		poolSize int
	}

	hazardStackOptionImpl struct {
		applyHazardStackFunc func(*hazardStackOptions)
	}
)

func (x *hazardStackOptionImpl) applyHazardStack(opts *hazardStackOptions) {
	x.applyHazardStackFunc(opts)
}

// WithHazardPoolSize overrides the hazard slot count, which bounds the
// number of pops that may be in flight at once. Defaults to
// hazard.DefaultPoolSize.
func WithHazardPoolSize(size int) HazardStackOption {
	return &hazardStackOptionImpl{func(opts *hazardStackOptions) {
		opts.poolSize = size
	}}
}

// NewHazardStack creates an empty stack with its own hazard pool and
// deferred-reclamation bin.
func NewHazardStack[T any](options ...HazardStackOption) *HazardStack[T] {
	var cfg hazardStackOptions
	for _, o := range options {
		if o != nil {
			o.applyHazardStack(&cfg)
		}
	}
	x := &HazardStack[T]{hazards: hazard.NewPool(cfg.poolSize)}
	x.bin = hazard.NewDustbin(x.hazards)
	x.recycle = func(p unsafe.Pointer) { x.put((*hazardNode[T])(p)) }
	return x
}

// Push adds value to the top of the stack.
func (x *HazardStack[T]) Push(value T) {
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
// when the stack was observed empty. err is hazard.ErrExhausted when no
// hazard slot was free, in which case no element was removed.
func (x *HazardStack[T]) Pop() (value T, ok bool, err error) {
	slot, err := x.hazards.Acquire()
	if err != nil {
		return value, false, err
	}
	defer slot.Release()

	var n *hazardNode[T]
	for {
		// Optimistically publish the candidate, then re-read the head until
		// the two agree: only a stable published pointer is protected.
		cur := x.head.Load()
		for {
			n = cur
			if n == nil {
				break
			}
			slot.Protect(unsafe.Pointer(n))
			cur = x.head.Load()
			if cur == n {
				break
			}
		}
		if n == nil {
			return value, false, nil
		}
		if x.head.CompareAndSwap(n, n.next) {
			break
		}
	}
	// n is detached; our own slot must not keep it out of reclamation.
	slot.Protect(nil)

	data := n.data
	if x.hazards.Protected(unsafe.Pointer(n)) {
		x.bin.Defer(unsafe.Pointer(n), x.recycle)
	} else {
		x.put(n)
	}
	x.bin.Scan()
	return *data, true, nil
}

func (x *HazardStack[T]) node() *hazardNode[T] {
	if n, _ := x.free.Get().(*hazardNode[T]); n != nil {
		return n
	}
	return &hazardNode[T]{}
}

func (x *HazardStack[T]) put(n *hazardNode[T]) {
	n.data = nil
	n.next = nil
	x.free.Put(n)
}
