// Package parallel provides partitioned parallel algorithms over slices:
// a first-match search with early termination and an in-place prefix sum
// with chunk-to-chunk hand-off.
package parallel

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/exp/constraints"
	"golang.org/x/sync/errgroup"
)

// smallestWorkload is the minimum chunk size; below it the goroutine
// overhead outweighs the scan.
const smallestWorkload = 25

// partition sizes the worker count and per-worker chunk for n elements:
// enough workers to keep every processor busy, but never chunks smaller
// than smallestWorkload.
func partition(n int) (workers, workload int) {
	maxWorkers := runtime.GOMAXPROCS(0)
	switch {
	case n == 0:
		return 0, 0
	case maxWorkers <= 1:
		return 1, n
	case maxWorkers*smallestWorkload >= n:
		return (n + smallestWorkload - 1) / smallestWorkload, smallestWorkload
	default:
		workload = (n + maxWorkers - 1) / maxWorkers
		// ceil again so the final chunk is never empty
		return (n + workload - 1) / workload, workload
	}
}

// PanicError wraps a value recovered from a panicking chunk worker.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf(`parallel: worker panicked: %v`, e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type,
// enabling use with [errors.Is] and [errors.As].
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Find returns the index of the first chunk-local match of target, or -1.
// The input is split into chunks scanned by parallel workers; every worker
// polls a shared stop flag each iteration, and the first match raises it,
// so unsearched remainders are abandoned early. When multiple chunks match
// concurrently the reported index is that of whichever match published
// first, which is a match but not necessarily the smallest index.
func Find[T comparable](data []T, target T) int {
	workers, workload := partition(len(data))
	if workers == 0 {
		return -1
	}

	var stop atomic.Bool
	result := make(chan int, 1)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		begin := w * workload
		end := min(begin+workload, len(data))
		g.Go(func() error {
			for i := begin; i < end && !stop.Load(); i++ {
				if data[i] == target {
					select {
					case result <- i:
						stop.Store(true)
					default:
					}
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait() // workers return nil; the join itself is the point

	select {
	case i := <-result:
		return i
	default:
		return -1
	}
}

// handoff carries a chunk's final prefix value to its successor, or the
// error that prevented it.
type handoff[E any] struct {
	tail E
	err  error
}

// PrefixSum replaces data in place with its inclusive prefix sums:
// data[i] becomes the sum of data[0..i].
//
// Each chunk is summed locally in parallel; a chunk then awaits its
// predecessor's published tail, publishes its own new tail for the
// successor, adds the predecessor's tail to all but its own tail element,
// and finally patches the saved tail. Errors (worker panics) propagate through the same hand-off chain so
// no successor blocks forever.
func PrefixSum[E constraints.Integer | constraints.Float](data []E) error {
	workers, workload := partition(len(data))
	if workers <= 1 {
		for i := 1; i < len(data); i++ {
			data[i] += data[i-1]
		}
		return nil
	}

	links := make([]chan handoff[E], workers-1)
	for i := range links {
		links[i] = make(chan handoff[E], 1)
	}

	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		begin := w * workload
		end := min(begin+workload, len(data))
		var waitFor, writeTo chan handoff[E]
		if w > 0 {
			waitFor = links[w-1]
		}
		if w < workers-1 {
			writeTo = links[w]
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Value: r}
				}
				if err != nil && writeTo != nil {
					writeTo <- handoff[E]{err: err}
				}
			}()

			chunk := data[begin:end]
			for i := 1; i < len(chunk); i++ {
				chunk[i] += chunk[i-1]
			}
			if waitFor == nil {
				if writeTo != nil {
					writeTo <- handoff[E]{tail: chunk[len(chunk)-1]}
				}
				return nil
			}

			var prev handoff[E]
			select {
			case prev = <-waitFor:
			case <-ctx.Done():
				return ctx.Err()
			}
			if prev.err != nil {
				return prev.err
			}
			tail := len(chunk) - 1
			newTail := chunk[tail] + prev.tail
			if writeTo != nil {
				// unblock the successor before patching our own elements
				writeTo <- handoff[E]{tail: newTail}
			}
			for i := 0; i < tail; i++ {
				chunk[i] += prev.tail
			}
			chunk[tail] = newTail
			return nil
		})
	}
	return g.Wait()
}
