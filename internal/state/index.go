// ABOUTME: Sidebar conversation index merging for partial push updates
// ABOUTME: Most-recent-first ordering with shallow field merge

package state

import "github.com/opsdesk/livechat/internal/chat"

// MergeUpdate applies a partial conversation update to the sidebar list and
// returns the new list plus the merged entry.
//
// An existing entry is moved to the front and shallow-merged: fields absent
// from the update keep their client value (notably tags, which pushes often
// omit). A conversation not yet in the list is synthesized at the front with
// unread defaulting to 1, or 0 when it is the one currently selected.
//
// Unread accounting: an explicit unread_count on the update is authoritative.
// Without one, an existing entry keeps its current count; incrementing on
// incoming messages is the message path's job, and doing it here as well
// would count one message twice when the backend emits both frames. The
// selected conversation always stays at 0.
func MergeUpdate(list []chat.Conversation, u chat.ConversationUpdate, selectedID string) ([]chat.Conversation, chat.Conversation) {
	selected := selectedID != "" && selectedID == u.ID

	idx := -1
	for i, c := range list {
		if c.ID == u.ID {
			idx = i
			break
		}
	}

	var merged chat.Conversation
	if idx >= 0 {
		merged = list[idx]
	} else {
		merged = chat.Conversation{ID: u.ID}
	}

	if u.DisplayName != "" {
		merged.DisplayName = u.DisplayName
	}
	if u.PictureURL != "" {
		merged.PictureURL = u.PictureURL
	}
	if u.ChatMode != "" {
		merged.ChatMode = u.ChatMode
	}
	if u.Session != nil {
		merged.Session = u.Session
	}
	if u.LastMessage != nil {
		merged.LastMessage = u.LastMessage
	}
	if len(u.Tags) > 0 {
		merged.Tags = u.Tags
	}

	switch {
	case u.UnreadCount != nil:
		merged.UnreadCount = *u.UnreadCount
	case selected:
		merged.UnreadCount = 0
	case idx == -1:
		merged.UnreadCount = 1
	}

	if idx >= 0 {
		list = append(list[:idx], list[idx+1:]...)
	}
	out := make([]chat.Conversation, 0, len(list)+1)
	out = append(out, merged)
	out = append(out, list...)
	return out, merged
}

// IncrementUnread bumps the unread count for a conversation by one, in place.
// Used for incoming message pushes that carry no authoritative count.
func IncrementUnread(list []chat.Conversation, conversationID string) []chat.Conversation {
	for i := range list {
		if list[i].ID == conversationID {
			list[i].UnreadCount++
			break
		}
	}
	return list
}

// ResetUnread zeroes the unread count for a conversation, in place. Happens
// exactly when the operator selects it.
func ResetUnread(list []chat.Conversation, conversationID string) []chat.Conversation {
	for i := range list {
		if list[i].ID == conversationID {
			list[i].UnreadCount = 0
			break
		}
	}
	return list
}
