// Package state holds the single in-memory store for the live-chat console
// and the pure merge logic that keeps it consistent: message reconciliation,
// sidebar index merging, and virtual-window computation.
//
// The store is deliberately not synchronized. Every mutation happens on the
// console controller's run loop, one queued callback at a time, so a merge
// always completes before the next callback observes the store.
package state
