// ABOUTME: Package rest is the HTTP client for the livechat admin API.
// ABOUTME: It backs history paging, list refresh, and the socket fallback path.

// Package rest talks to the livechat backend over plain HTTP.
//
// The socket is the primary transport for everything the operator does
// while connected. REST fills the gaps: the initial conversation list,
// history pages, and any write that must go through while the socket is
// down. Every method takes a context and returns a wrapped error that
// names the operation that failed.
package rest
