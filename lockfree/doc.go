// Package lockfree provides lock-free LIFO and FIFO containers with three
// contrasting memory-reclamation schemes.
//
//   - Stack uses split reference counting: an external counter rides on the
//     head pointer and is bumped on every acquire, while a per-node internal
//     counter records outstanding borrows. The two are merged when a node is
//     detached, and the node is recycled by whichever party drives the merged
//     count to zero.
//   - HazardStack uses a hazard pointer pool: readers publish the pointer
//     they are about to dereference, and reclaimers defer any node still
//     published into a scan-on-pop dustbin.
//   - DustbinStack gates reclamation on a pop-in-flight counter: nodes are
//     parked in a shared dustbin and drained only by a popper that observes
//     itself to be the only pop in flight.
//   - Queue is an unbounded Michael–Scott style FIFO using split reference
//     counting with a two-phase internal counter, because a queue node is
//     reachable from both the head and the tail.
//
// Since the Go runtime reclaims unreferenced memory itself, "deletion" here
// means returning the node to a freelist for reuse. Premature recycling
// corrupts concurrent operations exactly the way a premature free would, so
// the counter and hazard protocols carry the same burden they do under
// manual memory management.
//
// The counted pointer is an immutable box manipulated through
// atomic.Pointer CAS: box identity provides the full-word compare that the
// packed 48+16-bit representation provides on canonical-address hardware,
// without hiding node addresses from the collector. The packed single-word
// representation is retained where it is sound, in the queue's two-phase
// counter.
package lockfree
