// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package lockfree

import (
	"sync/atomic"
)

type (
	// counted pairs a node pointer with the external acquire counter that
	// would be packed into the pointer's spare bits on canonical-address
	// hardware. Instances are immutable once published; every update installs
	// a fresh box via CAS, so box identity defends against ABA the way the
	// counter bits do in the packed representation.
	counted[N any] struct {
		node *N
		ext  int32
	}

	// twoPhase packs a 32-bit borrow count and a 32-bit phase count into one
	// atomic word. A queue node is reachable from the head and from the tail;
	// each detachment completes one phase. The node is dead once both phases
	// have completed and the merged borrow count has returned to zero.
	twoPhase struct {
		v atomic.Uint64
	}
)

// bump CAS-increments the external counter on p, returning the freshly
// installed box. The caller now holds a borrow on the node and must release
// it through the node's internal counter. p must never hold nil.
func bump[N any](p *atomic.Pointer[counted[N]]) *counted[N] {
	for {
		old := p.Load()
		cp := &counted[N]{node: old.node, ext: old.ext + 1}
		if p.CompareAndSwap(old, cp) {
			return cp
		}
	}
}

const twoPhaseInit = uint64(2) << 32 // count 0, phases 2

func packTwoPhase(count, phases int32) uint64 {
	return uint64(uint32(phases))<<32 | uint64(uint32(count))
}

func unpackTwoPhase(v uint64) (count, phases int32) {
	return int32(uint32(v)), int32(uint32(v >> 32))
}

func (x *twoPhase) reset() { x.v.Store(twoPhaseInit) }

// finishPhase merges an external acquire count and completes one phase.
// Called by the thread that swung the head or tail away from the node, which
// necessarily holds the largest external counter. Reports whether the node
// is now dead.
func (x *twoPhase) finishPhase(ext int32) bool {
	for {
		old := x.v.Load()
		count, phases := unpackTwoPhase(old)
		count -= ext - 1
		phases--
		if x.v.CompareAndSwap(old, packTwoPhase(count, phases)) {
			return count == 0 && phases == 0
		}
	}
}

// release records one returned borrow. Reports whether the node is now dead.
func (x *twoPhase) release() bool {
	for {
		old := x.v.Load()
		count, phases := unpackTwoPhase(old)
		count++
		if x.v.CompareAndSwap(old, packTwoPhase(count, phases)) {
			return count == 0 && phases == 0
		}
	}
}
