// Package dedupe suppresses duplicate operator-facing events using a
// time-based cache. Push, poll, and REST deliveries of the same message
// collapse to a single notification within the configured window.
package dedupe
