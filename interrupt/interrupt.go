// Package interrupt provides cooperative cancellation for goroutines: a
// Flag that is requested once and observed at explicitly registered
// interrupt points, and a Thread wrapper that binds a Flag to a spawned
// goroutine.
package interrupt

import (
	"errors"
	"sync"
)

// ErrInterrupted is returned by Flag.Point after Request.
var ErrInterrupted = errors.New(`interrupt: interrupted`)

type (
	// Flag is a one-shot stop request. The zero value is not usable;
	// construct with NewFlag.
	Flag struct {
		once sync.Once
		done chan struct{}
	}

	// Thread runs a callable on its own goroutine with an attached Flag.
	// Construct with Spawn; the constructor returns only after the
	// goroutine has started, so an immediate Interrupt cannot outrun the
	// callable's setup.
	Thread struct {
		flag *Flag
		done chan struct{}
	}
)

// NewFlag creates an unrequested flag.
func NewFlag() *Flag {
	return &Flag{done: make(chan struct{})}
}

// Request marks the flag. Idempotent and safe for concurrent use.
func (x *Flag) Request() {
	x.once.Do(func() { close(x.done) })
}

// Requested reports whether Request has been called.
func (x *Flag) Requested() bool {
	select {
	case <-x.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed by Request, for use in select-based waits
// so a blocked goroutine can be unhooked from its current channel wait.
func (x *Flag) Done() <-chan struct{} { return x.done }

// Point is a registered interrupt point: it returns ErrInterrupted if the
// flag has been requested, and nil otherwise.
func (x *Flag) Point() error {
	if x.Requested() {
		return ErrInterrupted
	}
	return nil
}

// Spawn starts fn on a new goroutine with a fresh Flag. fn should consult
// the flag at its own interrupt points. A panic will occur if fn is nil.
func Spawn(fn func(*Flag)) *Thread {
	if fn == nil {
		panic(`interrupt: nil callable`)
	}
	x := &Thread{flag: NewFlag(), done: make(chan struct{})}
	started := make(chan struct{})
	go func() {
		defer close(x.done)
		close(started)
		fn(x.flag)
	}()
	<-started
	return x
}

// Interrupt requests the thread's flag.
func (x *Thread) Interrupt() { x.flag.Request() }

// Flag returns the thread's flag.
func (x *Thread) Flag() *Flag { return x.flag }

// Join blocks until the callable returns.
func (x *Thread) Join() { <-x.done }

// Done returns a channel closed when the callable returns.
func (x *Thread) Done() <-chan struct{} { return x.done }
