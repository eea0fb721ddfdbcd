// ABOUTME: Wire protocol for the live-chat WebSocket: frame types and payloads
// ABOUTME: JSON envelope {type, payload, timestamp} in both directions

package transport

import (
	"encoding/json"
	"fmt"
	"time"
)

// FrameType names a frame on the wire.
type FrameType string

// Client → server frames.
const (
	FrameAuth            FrameType = "auth"
	FrameJoinRoom        FrameType = "join_room"
	FrameLeaveRoom       FrameType = "leave_room"
	FrameSendMessage     FrameType = "send_message"
	FrameTypingStart     FrameType = "typing_start"
	FrameTypingStop      FrameType = "typing_stop"
	FrameClaimSession    FrameType = "claim_session"
	FrameCloseSession    FrameType = "close_session"
	FrameTransferSession FrameType = "transfer_session"
	FramePing            FrameType = "ping"
)

// Server → client frames.
const (
	FrameAuthSuccess        FrameType = "auth_success"
	FrameAuthError          FrameType = "auth_error"
	FrameNewMessage         FrameType = "new_message"
	FrameMessageSent        FrameType = "message_sent"
	FrameMessageAck         FrameType = "message_ack"
	FrameMessageFailed      FrameType = "message_failed"
	FrameTypingIndicator    FrameType = "typing_indicator"
	FrameSessionClaimed     FrameType = "session_claimed"
	FrameSessionClosed      FrameType = "session_closed"
	FrameSessionTransferred FrameType = "session_transferred"
	FrameConversationUpdate FrameType = "conversation_update"
	FramePresenceUpdate     FrameType = "presence_update"
	FrameError              FrameType = "error"
	FramePong               FrameType = "pong"
)

// Envelope wraps every frame in both directions.
type Envelope struct {
	Type      FrameType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// EncodeFrame builds the wire bytes for a frame with the given payload.
func EncodeFrame(t FrameType, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s payload: %w", t, err)
		}
		raw = data
	}
	env := Envelope{
		Type:      t,
		Payload:   raw,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s envelope: %w", t, err)
	}
	return data, nil
}

// Outbound payloads.

type authPayload struct {
	AdminID string `json:"admin_id"`
	Token   string `json:"token,omitempty"`
}

type roomPayload struct {
	ConversationID string `json:"conversation_id"`
}

type sendPayload struct {
	Text   string `json:"text"`
	TempID string `json:"temp_id,omitempty"`
}

type transferPayload struct {
	OperatorID int64  `json:"to_operator_id"`
	Reason     string `json:"reason,omitempty"`
}

// Inbound payloads.

// AckPayload confirms a sent message by temp ID and assigns its server ID.
type AckPayload struct {
	TempID    string `json:"temp_id"`
	MessageID int64  `json:"message_id"`
	Timestamp string `json:"timestamp,omitempty"`
}

// FailedPayload reports a send failure for a temp ID.
type FailedPayload struct {
	TempID    string `json:"temp_id"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// TypingPayload signals another operator's typing activity in a room.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	OperatorID     string `json:"admin_id"`
	IsTyping       bool   `json:"is_typing"`
}

// SessionEventPayload carries session lifecycle pushes (claimed/closed).
type SessionEventPayload struct {
	ConversationID string `json:"conversation_id"`
	SessionID      int64  `json:"session_id,omitempty"`
	Status         string `json:"status,omitempty"`
	OperatorID     int64  `json:"operator_id,omitempty"`
}

// TransferredPayload reports a session handed to another operator.
type TransferredPayload struct {
	ConversationID string `json:"conversation_id"`
	ToOperatorID   int64  `json:"to_operator_id"`
}

// OperatorPresence is one operator's entry in a presence update.
type OperatorPresence struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ActiveChats int    `json:"active_chats"`
}

// PresencePayload lists currently present operators.
type PresencePayload struct {
	Operators []OperatorPresence `json:"operators"`
}

// ErrorPayload is a server-reported application error.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
