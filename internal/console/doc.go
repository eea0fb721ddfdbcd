// ABOUTME: Package console is the coordination layer of the operator console.
// ABOUTME: One run loop serializes every store mutation from every source.

// Package console wires the transport, the REST client, and the state store
// into a single controller. The controller owns the only goroutine allowed
// to touch the store: socket events, REST completions, timers, and operator
// commands are all funneled into its run loop as tasks and executed one at
// a time. Asynchronous completions re-check the selection they were issued
// for before mutating anything, so stale responses land as no-ops.
package console
