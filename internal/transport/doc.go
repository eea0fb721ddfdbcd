// Package transport owns the WebSocket session to the live-chat backend.
//
// A single Manager holds the connection lifecycle: dial, auth handshake,
// heartbeat, and reconnect with bounded exponential backoff. Callers never
// retry the link themselves; they observe state through one connection-change
// callback and fall back to REST while the socket is down.
//
// Inbound frames are decoded and delivered to a Handler one at a time from
// the session's read loop, so handler callbacks never race each other.
package transport
