// ABOUTME: Core domain model for the live-chat console
// ABOUTME: Messages, conversations, and agent handoff sessions

package chat

import "encoding/json"

// Direction indicates whether a message flowed toward or away from the operator.
type Direction string

const (
	DirectionIncoming Direction = "INCOMING"
	DirectionOutgoing Direction = "OUTGOING"
)

// SenderRole identifies who authored a message.
type SenderRole string

const (
	RoleUser  SenderRole = "USER"
	RoleBot   SenderRole = "BOT"
	RoleAdmin SenderRole = "ADMIN"
)

// ChatMode controls whether the bot or a human operator answers a conversation.
type ChatMode string

const (
	ModeBot   ChatMode = "BOT"
	ModeHuman ChatMode = "HUMAN"
)

// SessionStatus tracks the human-handling lifecycle of a conversation.
type SessionStatus string

const (
	SessionWaiting SessionStatus = "WAITING"
	SessionActive  SessionStatus = "ACTIVE"
	SessionClosed  SessionStatus = "CLOSED"
)

// Message is one entry in a conversation's ordered message list.
//
// A message carries at least one identity: ID is the server identity (zero
// until the server confirms it), TempID is the client identity assigned to
// optimistic sends. Once ID is assigned it never changes; TempID is retained
// after confirmation so late acks still reconcile, but is never reused.
type Message struct {
	ID             int64           `json:"id"`
	TempID         string          `json:"temp_id,omitempty"`
	ConversationID string          `json:"conversation_id"`
	Direction      Direction       `json:"direction"`
	SenderRole     SenderRole      `json:"sender_role,omitempty"`
	OperatorName   string          `json:"operator_name,omitempty"`
	Content        string          `json:"content"`
	Type           string          `json:"message_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

// Confirmed reports whether the server has assigned this message an identity.
func (m Message) Confirmed() bool {
	return m.ID != 0
}

// SameIdentity reports whether two messages refer to the same logical message
// under the reconciliation identity rule: matching non-zero server IDs, or
// matching non-empty temp IDs.
func (m Message) SameIdentity(other Message) bool {
	if m.ID != 0 && other.ID != 0 && m.ID == other.ID {
		return true
	}
	return m.TempID != "" && other.TempID != "" && m.TempID == other.TempID
}

// Session is the handoff lifecycle for one conversation. Transitions:
// WAITING→ACTIVE (claim), ACTIVE→CLOSED (close), ACTIVE→ACTIVE with a new
// operator (transfer). CLOSED is terminal.
type Session struct {
	ID         int64         `json:"id"`
	Status     SessionStatus `json:"status"`
	StartedAt  string        `json:"started_at,omitempty"`
	OperatorID int64         `json:"operator_id,omitempty"`
}

// Transfer reassigns an active session to another operator. Claiming and
// closing go through explicit status writes; transfer is the only transition
// that keeps the status and swaps the operator.
func (s *Session) Transfer(operatorID int64) {
	if s.Status == SessionActive {
		s.OperatorID = operatorID
	}
}

// Tag is an operator-assigned label on a conversation.
type Tag struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// LastMessage is the sidebar preview of a conversation's newest message.
type LastMessage struct {
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Conversation is one sidebar entry: a user the bot (or an operator) is
// talking to, plus enough state to render and sort the list.
type Conversation struct {
	ID          string       `json:"conversation_id"`
	DisplayName string       `json:"display_name"`
	PictureURL  string       `json:"picture_url,omitempty"`
	ChatMode    ChatMode     `json:"chat_mode"`
	Session     *Session     `json:"session,omitempty"`
	LastMessage *LastMessage `json:"last_message,omitempty"`
	UnreadCount int          `json:"unread_count"`
	Tags        []Tag        `json:"tags,omitempty"`
}

// ConversationDetail is a conversation plus its recent messages, as returned
// by the detail endpoint and by full conversation_update pushes.
type ConversationDetail struct {
	Conversation
	Messages []Message `json:"messages,omitempty"`
}

// ConversationUpdate is a partial push update for one conversation. Only the
// identity is guaranteed; every other field may be absent and must not
// clobber client state when it is.
type ConversationUpdate struct {
	ID          string       `json:"conversation_id"`
	DisplayName string       `json:"display_name,omitempty"`
	PictureURL  string       `json:"picture_url,omitempty"`
	ChatMode    ChatMode     `json:"chat_mode,omitempty"`
	Session     *Session     `json:"session,omitempty"`
	LastMessage *LastMessage `json:"last_message,omitempty"`
	UnreadCount *int         `json:"unread_count,omitempty"`
	Tags        []Tag        `json:"tags,omitempty"`
	Messages    []Message    `json:"messages,omitempty"`
}
