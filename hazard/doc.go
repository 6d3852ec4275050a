// Package hazard implements a fixed-capacity hazard pointer pool and the
// deferred-reclamation bin that rides alongside it.
//
// A reader protects a pointer by publishing it into an acquired slot,
// re-reading the source, and retrying until the two reads agree. A would-be
// reclaimer consults the whole pool: if the pointer is absent it may recycle
// immediately, otherwise it defers the pointer into a Dustbin and retries on
// a later scan. Bin entries carry a type-erased recycle function, so a single
// bin can serve containers of different element types.
//
// Slots are acquired for the duration of one protected operation and must be
// released via Slot.Release, typically with defer.
package hazard
