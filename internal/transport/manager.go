// ABOUTME: WebSocket connection manager with auth handshake and auto-reconnect
// ABOUTME: Owns the transport link; callers observe state, never retry it

package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/opsdesk/livechat/internal/chat"
)

// State is the connection lifecycle phase. There is exactly one authoritative
// value per Manager.
type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateConnected      State = "connected"
	StateReconnecting   State = "reconnecting"
)

const (
	dialTimeout       = 10 * time.Second
	writeTimeout      = 5 * time.Second
	heartbeatInterval = 25 * time.Second
	typingAutoStop    = 3 * time.Second
)

// Handler receives inbound events from the session. Callbacks fire from the
// session's read loop, one at a time.
type Handler interface {
	OnConnectionChange(state State)
	OnNewMessage(m chat.Message)
	OnMessageSent(m chat.Message)
	OnMessageAck(ack AckPayload)
	OnMessageFailed(f FailedPayload)
	OnTyping(t TypingPayload)
	OnSessionClaimed(e SessionEventPayload)
	OnSessionClosed(e SessionEventPayload)
	OnSessionTransferred(e TransferredPayload)
	OnConversationUpdate(u chat.ConversationUpdate)
	OnPresence(p PresencePayload)
	OnServerError(e ErrorPayload)
}

// Conn is the subset of the websocket connection the manager uses. Tests
// substitute a scripted implementation.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens a websocket connection to the given URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

func defaultDialer(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Options configures a Manager.
type Options struct {
	URL     string
	AdminID string
	Token   string
	Handler Handler
	Logger  *slog.Logger
	Backoff Backoff // zero value uses DefaultBackoff
	Dial    Dialer  // nil uses the real websocket dialer
}

// Manager owns one transport session: dialing, the auth handshake, heartbeat,
// room membership, and reconnect with bounded backoff. All other components
// treat the link as up or down and nothing in between.
type Manager struct {
	url     string
	adminID string
	token   string
	handler Handler
	logger  *slog.Logger
	dial    Dialer
	backoff Backoff
	queue   *FrameQueue

	mu                 sync.Mutex
	state              State
	conn               Conn
	sessionActive      bool
	sessionCancel      context.CancelFunc
	attempts           int
	currentRoom        string
	authFailed         bool
	reconnectRequested bool
	closed             bool
	typingTimer        *time.Timer
	reconnectTimer     *time.Timer
}

// NewManager creates a manager. It does not connect; call Connect.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backoff := opts.Backoff
	if backoff.MaxAttempts == 0 {
		backoff = DefaultBackoff()
	}
	dial := opts.Dial
	if dial == nil {
		dial = defaultDialer
	}
	return &Manager{
		url:     opts.URL,
		adminID: opts.AdminID,
		token:   opts.Token,
		handler: opts.Handler,
		logger:  logger.With("component", "transport"),
		dial:    dial,
		backoff: backoff,
		queue:   NewFrameQueue(0),
		state:   StateDisconnected,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the session is authenticated and usable.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// Room returns the conversation currently joined, if any. Membership voids
// whenever the session leaves connected; callers rejoin after reconnect.
func (m *Manager) Room() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentRoom
}

func (m *Manager) setState(next State) {
	m.mu.Lock()
	if m.state == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	if next != StateConnected {
		m.currentRoom = ""
	}
	handler := m.handler
	m.mu.Unlock()

	m.logger.Debug("connection state", "state", string(next))
	if handler != nil {
		handler.OnConnectionChange(next)
	}
}

// Connect starts a session if none is active. Safe to call repeatedly.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.closed || m.sessionActive {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.sessionActive = true
	m.sessionCancel = cancel
	m.mu.Unlock()

	m.setState(StateConnecting)
	go m.session(ctx)
}

// Reconnect tears down any current session and dials again immediately,
// resetting the backoff schedule. This is the only way back after the
// schedule is exhausted.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.attempts = 0
	if m.sessionActive {
		m.reconnectRequested = true
		cancel := m.sessionCancel
		conn := m.conn
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "reconnect")
		}
		return
	}
	m.mu.Unlock()
	m.Connect()
}

// Close shuts the manager down permanently.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	if m.typingTimer != nil {
		m.typingTimer.Stop()
	}
	cancel := m.sessionCancel
	conn := m.conn
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	m.queue.Clear()
	m.setState(StateDisconnected)
}

func (m *Manager) session(ctx context.Context) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, err := m.dial(dialCtx, m.url)
	cancel()
	if err != nil {
		m.logger.Warn("dial failed", "error", err)
		m.endSession(ctx, nil)
		return
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	m.setState(StateAuthenticating)
	m.writeNow(FrameAuth, authPayload{AdminID: m.adminID, Token: m.token})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		m.handleFrame(ctx, data)
	}

	m.endSession(ctx, conn)
}

// endSession settles the session's outcome and decides whether to redial.
// Deliberate teardown (Close, Reconnect, cancelled context) and auth failure
// never auto-redial; everything else goes through the backoff schedule.
func (m *Manager) endSession(ctx context.Context, conn Conn) {
	m.mu.Lock()
	m.sessionActive = false
	m.sessionCancel = nil
	m.conn = nil
	authFailed := m.authFailed
	m.authFailed = false
	again := m.reconnectRequested
	m.reconnectRequested = false
	closed := m.closed
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	m.setState(StateDisconnected)

	switch {
	case closed || authFailed:
	case again:
		m.Connect()
	case ctx.Err() != nil:
	default:
		m.scheduleReconnect()
	}
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.closed || !m.backoff.ShouldRetry(m.attempts) {
		m.mu.Unlock()
		return
	}
	m.attempts++
	attempt := m.attempts
	delay := m.backoff.Delay(attempt)
	m.mu.Unlock()

	m.setState(StateReconnecting)
	m.logger.Debug("reconnect scheduled", "attempt", attempt, "delay", delay)

	m.mu.Lock()
	m.reconnectTimer = time.AfterFunc(delay, m.Connect)
	m.mu.Unlock()
}

func (m *Manager) handleFrame(ctx context.Context, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		m.logger.Warn("unparseable frame", "error", err)
		return
	}

	switch env.Type {
	case FrameAuthSuccess:
		m.mu.Lock()
		m.attempts = 0
		m.mu.Unlock()
		m.setState(StateConnected)
		m.flushQueue()
		go m.heartbeat(ctx)

	case FrameAuthError:
		m.mu.Lock()
		m.authFailed = true
		conn := m.conn
		m.mu.Unlock()
		m.logger.Error("authentication rejected")
		m.handler.OnServerError(ErrorPayload{Message: "authentication failed", Code: "auth_error"})
		if conn != nil {
			_ = conn.Close(websocket.StatusPolicyViolation, "auth failed")
		}

	case FramePong:
		// Heartbeat reply, nothing to do.

	case FrameNewMessage:
		var msg chat.Message
		if m.decode(env, &msg) {
			m.handler.OnNewMessage(msg)
		}

	case FrameMessageSent:
		var msg chat.Message
		if m.decode(env, &msg) {
			m.handler.OnMessageSent(msg)
		}

	case FrameMessageAck:
		var ack AckPayload
		if m.decode(env, &ack) {
			m.handler.OnMessageAck(ack)
		}

	case FrameMessageFailed:
		var failed FailedPayload
		if m.decode(env, &failed) {
			m.handler.OnMessageFailed(failed)
		}

	case FrameTypingIndicator:
		var typing TypingPayload
		if m.decode(env, &typing) {
			m.handler.OnTyping(typing)
		}

	case FrameSessionClaimed:
		var e SessionEventPayload
		if m.decode(env, &e) {
			m.handler.OnSessionClaimed(e)
		}

	case FrameSessionClosed:
		var e SessionEventPayload
		if m.decode(env, &e) {
			m.handler.OnSessionClosed(e)
		}

	case FrameSessionTransferred:
		var e TransferredPayload
		if m.decode(env, &e) {
			m.handler.OnSessionTransferred(e)
		}

	case FrameConversationUpdate:
		var u chat.ConversationUpdate
		if m.decode(env, &u) {
			m.handler.OnConversationUpdate(u)
		}

	case FramePresenceUpdate:
		var p PresencePayload
		if m.decode(env, &p) {
			m.handler.OnPresence(p)
		}

	case FrameError:
		var e ErrorPayload
		if m.decode(env, &e) {
			m.handler.OnServerError(e)
		}

	default:
		m.logger.Debug("ignoring unknown frame", "type", string(env.Type))
	}
}

func (m *Manager) decode(env Envelope, v any) bool {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		m.logger.Warn("bad frame payload", "type", string(env.Type), "error", err)
		return false
	}
	return true
}

func (m *Manager) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.Connected() {
				return
			}
			m.writeNow(FramePing, nil)
		}
	}
}

// writeNow encodes and writes directly, bypassing the connected-state check.
// Used for handshake and heartbeat frames.
func (m *Manager) writeNow(t FrameType, payload any) bool {
	data, err := EncodeFrame(t, payload)
	if err != nil {
		m.logger.Error("encoding frame", "type", string(t), "error", err)
		return false
	}
	return m.write(data)
}

func (m *Manager) write(data []byte) bool {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		m.logger.Warn("write failed", "error", err)
		return false
	}
	return true
}

// send encodes a frame and writes it when connected; otherwise (or on write
// failure) the frame is queued for the next flush.
func (m *Manager) send(t FrameType, payload any) bool {
	data, err := EncodeFrame(t, payload)
	if err != nil {
		m.logger.Error("encoding frame", "type", string(t), "error", err)
		return false
	}
	if !m.Connected() || !m.write(data) {
		m.queue.Enqueue(data)
		return false
	}
	return true
}

func (m *Manager) flushQueue() {
	for _, frame := range m.queue.Drain() {
		if !m.write(frame) {
			m.queue.Enqueue(frame)
			return
		}
	}
}

// JoinRoom subscribes the session to one conversation's events.
func (m *Manager) JoinRoom(conversationID string) {
	m.mu.Lock()
	m.currentRoom = conversationID
	m.mu.Unlock()
	m.send(FrameJoinRoom, roomPayload{ConversationID: conversationID})
}

// LeaveRoom drops the current room membership, if any.
func (m *Manager) LeaveRoom() {
	m.mu.Lock()
	room := m.currentRoom
	m.currentRoom = ""
	m.mu.Unlock()
	if room != "" {
		m.send(FrameLeaveRoom, nil)
	}
}

// SendMessage dispatches an operator message over the socket. Requires a
// joined room and a live connection; returns false otherwise. Message frames
// are never queued, so a false return means the message was not delivered
// and the caller must use the REST path instead.
func (m *Manager) SendMessage(text, tempID string) bool {
	if m.Room() == "" {
		m.logger.Warn("send without a joined room")
		return false
	}
	if !m.Connected() {
		return false
	}
	data, err := EncodeFrame(FrameSendMessage, sendPayload{Text: text, TempID: tempID})
	if err != nil {
		m.logger.Error("encoding frame", "type", string(FrameSendMessage), "error", err)
		return false
	}
	return m.write(data)
}

// StartTyping announces typing activity and schedules an automatic stop
// after 3 seconds of silence.
func (m *Manager) StartTyping(conversationID string) {
	m.send(FrameTypingStart, roomPayload{ConversationID: conversationID})

	m.mu.Lock()
	if m.typingTimer != nil {
		m.typingTimer.Stop()
	}
	m.typingTimer = time.AfterFunc(typingAutoStop, func() {
		m.send(FrameTypingStop, roomPayload{ConversationID: conversationID})
	})
	m.mu.Unlock()
}

// StopTyping cancels the auto-stop timer and announces the stop immediately.
func (m *Manager) StopTyping(conversationID string) {
	m.mu.Lock()
	if m.typingTimer != nil {
		m.typingTimer.Stop()
		m.typingTimer = nil
	}
	m.mu.Unlock()
	m.send(FrameTypingStop, roomPayload{ConversationID: conversationID})
}

// ClaimSession asks the server to assign the current room's session to this
// operator.
func (m *Manager) ClaimSession() bool {
	return m.send(FrameClaimSession, nil)
}

// CloseSession ends the current room's session.
func (m *Manager) CloseSession() bool {
	return m.send(FrameCloseSession, nil)
}

// TransferSession hands the current room's session to another operator.
func (m *Manager) TransferSession(operatorID int64, reason string) bool {
	return m.send(FrameTransferSession, transferPayload{OperatorID: operatorID, Reason: reason})
}
