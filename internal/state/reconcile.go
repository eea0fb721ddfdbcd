// ABOUTME: Message reconciliation: the identity/merge rule for message lists
// ABOUTME: Unifies optimistic, confirmed, and push-delivered messages

package state

import "github.com/opsdesk/livechat/internal/chat"

// Reconcile merges m into the ordered list. If an existing entry shares an
// identity with m (non-zero server ID match, or non-empty temp ID match) the
// entry is replaced in place, preserving its position; otherwise m is
// appended. The returned bool reports whether a replacement happened.
//
// The rule is idempotent: applying the same confirmed message twice leaves
// the list's length and order unchanged. Order is pure insertion order;
// history backfill prepends and never flows through this path.
func Reconcile(list []chat.Message, m chat.Message) ([]chat.Message, bool) {
	for i, e := range list {
		if e.SameIdentity(m) {
			list[i] = m
			return list, true
		}
	}
	return append(list, m), false
}
