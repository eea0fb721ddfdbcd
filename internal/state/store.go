// ABOUTME: Single in-memory store for conversations, messages, and send state
// ABOUTME: Typed mutation entry points; no internal locking (controller-owned)

package state

import "github.com/opsdesk/livechat/internal/chat"

// Store is the one authoritative copy of everything the console knows:
// the sidebar index, the open conversation's message list, and the lifecycle
// of unacknowledged sends. Mutations are only ever made from the controller's
// run loop.
type Store struct {
	Conversations []chat.Conversation
	SelectedID    string
	Current       *chat.ConversationDetail
	Messages      []chat.Message

	// Outbound send lifecycle. A temp ID lives in at most one of Pending or
	// Failed at any instant; absent from both means settled.
	Pending map[string]struct{}
	Failed  map[string]string

	// History backfill.
	HasMoreHistory bool
	LoadingHistory bool

	// Input & activity flags.
	InputText string
	Sending   bool
	Claiming  bool

	// Connectivity as inferred from REST outcomes, distinct from the socket
	// connection state.
	BackendOnline bool
	Loading       bool

	// Sidebar filters.
	FilterStatus string
	SearchQuery  string
}

// NewStore returns an empty store with the defaults the console boots with.
func NewStore() *Store {
	return &Store{
		Pending:        make(map[string]struct{}),
		Failed:         make(map[string]string),
		HasMoreHistory: true,
		BackendOnline:  true,
		Loading:        true,
	}
}

// ApplyResult describes the side effects a message merge asks of the caller.
type ApplyResult struct {
	// Mutated is true when the open message list changed.
	Mutated bool
	// Replaced is true when the merge replaced an existing entry in place
	// (optimistic confirmation) rather than appending.
	Replaced bool
	// Notify is true when the message belongs to a conversation that is not
	// open and the caller should raise a notification.
	Notify bool
}

// ApplyMessage merges a message from any source into the store. Messages for
// the open conversation flow through the reconciliation rule; an incoming
// message for any other conversation never touches the open list — it bumps
// that conversation's unread count and requests a notification instead.
func (s *Store) ApplyMessage(m chat.Message) ApplyResult {
	if s.SelectedID != "" && m.ConversationID == s.SelectedID {
		var replaced bool
		s.Messages, replaced = Reconcile(s.Messages, m)
		return ApplyResult{Mutated: true, Replaced: replaced}
	}
	if m.Direction == chat.DirectionIncoming {
		s.Conversations = IncrementUnread(s.Conversations, m.ConversationID)
		return ApplyResult{Notify: true}
	}
	return ApplyResult{}
}

// ApplyConversationUpdate merges a partial push update into the sidebar and,
// when it targets the open conversation, propagates session and messages into
// the open view. That propagation is the only path by which a push event can
// mutate the active view without operator action.
func (s *Store) ApplyConversationUpdate(u chat.ConversationUpdate) {
	var merged chat.Conversation
	s.Conversations, merged = MergeUpdate(s.Conversations, u, s.SelectedID)

	if s.SelectedID == "" || s.SelectedID != u.ID {
		return
	}
	detail := chat.ConversationDetail{Conversation: merged}
	s.Current = &detail
	if u.Messages != nil {
		s.Messages = u.Messages
	}
}

// ApplySessionChange records a session lifecycle event (claim, close) against
// a conversation. It updates the session and chat mode in place, on the
// sidebar entry and on the open view when that conversation is selected. It
// deliberately bypasses MergeUpdate: a session event is not message activity,
// so it neither reorders the sidebar nor touches unread counts.
func (s *Store) ApplySessionChange(conversationID string, mode chat.ChatMode, session *chat.Session) {
	for i := range s.Conversations {
		if s.Conversations[i].ID == conversationID {
			s.Conversations[i].ChatMode = mode
			s.Conversations[i].Session = session
			break
		}
	}
	if s.SelectedID == conversationID && s.Current != nil {
		s.Current.ChatMode = mode
		s.Current.Session = session
	}
}

// Select switches the open conversation. Selecting a conversation resets its
// unread count to zero and clears the message view; the controller refills it
// from the REST collaborator. A claim mark left over from the previous
// conversation is dropped. Selecting the empty ID closes the view.
func (s *Store) Select(id string) {
	s.SelectedID = id
	s.Messages = nil
	s.Current = nil
	s.HasMoreHistory = true
	s.LoadingHistory = false
	s.Claiming = false
	if id != "" {
		s.Conversations = ResetUnread(s.Conversations, id)
	}
}

// SelectedConversation returns the sidebar entry for the open conversation,
// or nil when nothing is selected.
func (s *Store) SelectedConversation() *chat.Conversation {
	if s.SelectedID == "" {
		return nil
	}
	for i := range s.Conversations {
		if s.Conversations[i].ID == s.SelectedID {
			return &s.Conversations[i]
		}
	}
	return nil
}

// SetMessages replaces the open message list wholesale (detail fetch).
func (s *Store) SetMessages(messages []chat.Message) {
	s.Messages = messages
}

// PrependMessages inserts a history page at the front of the open list.
// Returns the number of rows inserted so a renderer can compensate scroll.
func (s *Store) PrependMessages(page []chat.Message) int {
	if len(page) == 0 {
		return 0
	}
	merged := make([]chat.Message, 0, len(page)+len(s.Messages))
	merged = append(merged, page...)
	merged = append(merged, s.Messages...)
	s.Messages = merged
	return len(page)
}

// OldestMessage returns the first entry of the open list, or false when the
// list is empty. The history pager uses its server ID as the backfill cursor.
func (s *Store) OldestMessage() (chat.Message, bool) {
	if len(s.Messages) == 0 {
		return chat.Message{}, false
	}
	return s.Messages[0], true
}

// AddPending marks a temp ID as sent-but-unacknowledged. Any stale failure
// for the same temp ID is cleared to preserve pending/failed exclusivity.
func (s *Store) AddPending(tempID string) {
	delete(s.Failed, tempID)
	s.Pending[tempID] = struct{}{}
}

// RemovePending clears the pending mark for a temp ID.
func (s *Store) RemovePending(tempID string) {
	delete(s.Pending, tempID)
}

// SetFailed records a send failure. The temp ID leaves the pending set in the
// same mutation so it is never pending and failed at once.
func (s *Store) SetFailed(tempID, reason string) {
	delete(s.Pending, tempID)
	s.Failed[tempID] = reason
}

// ClearFailed removes the failure record for a temp ID.
func (s *Store) ClearFailed(tempID string) {
	delete(s.Failed, tempID)
}

// IsPending reports whether a temp ID is awaiting acknowledgement.
func (s *Store) IsPending(tempID string) bool {
	_, ok := s.Pending[tempID]
	return ok
}

// FailureReason returns the recorded failure for a temp ID, if any.
func (s *Store) FailureReason(tempID string) (string, bool) {
	reason, ok := s.Failed[tempID]
	return reason, ok
}

// SetConversations replaces the sidebar index wholesale (list fetch).
func (s *Store) SetConversations(list []chat.Conversation) {
	s.Conversations = list
}

// SetCurrent replaces the open conversation detail. Messages are only
// replaced when the detail actually carries them.
func (s *Store) SetCurrent(detail *chat.ConversationDetail, includeMessages bool) {
	s.Current = detail
	if detail != nil && includeMessages {
		s.Messages = detail.Messages
		s.HasMoreHistory = len(detail.Messages) >= 50
	}
}
