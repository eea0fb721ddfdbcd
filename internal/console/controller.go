// ABOUTME: Controller run loop: selection, polling, session control, presence
// ABOUTME: Implements transport.Handler; every event becomes a serialized task

package console

import (
	"context"
	"log/slog"
	"time"

	"github.com/opsdesk/livechat/internal/chat"
	"github.com/opsdesk/livechat/internal/dedupe"
	"github.com/opsdesk/livechat/internal/rest"
	"github.com/opsdesk/livechat/internal/state"
	"github.com/opsdesk/livechat/internal/transport"
)

const (
	defaultListPoll   = 5 * time.Second
	defaultDetailPoll = 3 * time.Second
	typingThrottle    = time.Second
	historyPageSize   = 50

	notifyTTL     = 5 * time.Minute
	notifyMaxSize = 1000
)

// Socket is the transport surface the controller drives. Satisfied by
// *transport.Manager; tests substitute a scripted implementation.
type Socket interface {
	Connect()
	Reconnect()
	Close()
	Connected() bool
	Room() string
	JoinRoom(conversationID string)
	LeaveRoom()
	SendMessage(text, tempID string) bool
	StartTyping(conversationID string)
	StopTyping(conversationID string)
	ClaimSession() bool
	CloseSession() bool
	TransferSession(operatorID int64, reason string) bool
}

// API is the REST surface the controller falls back to. Satisfied by
// *rest.Client.
type API interface {
	Conversations(ctx context.Context, status string) ([]chat.Conversation, error)
	ConversationDetail(ctx context.Context, id string) (*chat.ConversationDetail, error)
	Messages(ctx context.Context, id string, limit int, beforeID int64) (rest.MessagesPage, error)
	PostMessage(ctx context.Context, id, text string) error
	Claim(ctx context.Context, id string) error
	Close(ctx context.Context, id string) error
	SetMode(ctx context.Context, id, mode string) error
}

// Notifier raises an operator-facing notification for an incoming message
// in a conversation that is not open.
type Notifier interface {
	Notify(conversationID, title, body string)
}

// Options configures a Controller. Socket and API are required.
type Options struct {
	Store    *state.Store // nil creates a fresh store
	Socket   Socket
	API      API
	Notifier Notifier // nil disables notifications
	Logger   *slog.Logger
	// OnChange fires after every executed task, from the run loop goroutine.
	// Renderers use it to schedule a redraw.
	OnChange func()

	ListPoll   time.Duration // default 5s
	DetailPoll time.Duration // default 3s
}

// Snapshot is the read view handed to View callbacks. Valid only for the
// duration of the callback.
type Snapshot struct {
	Store      *state.Store
	Connection transport.State
	Typing     map[string]bool
	Operators  []transport.OperatorPresence
}

// Controller coordinates the console. All fields below tasks are owned by
// the run loop goroutine and must not be touched from anywhere else.
type Controller struct {
	socket   Socket
	api      API
	notifier Notifier
	logger   *slog.Logger
	onChange func()
	seen     *dedupe.Cache

	listPoll   time.Duration
	detailPoll time.Duration

	tasks chan func()
	quit  chan struct{}
	ctx   context.Context

	store        *state.Store
	connState    transport.State
	typing       map[string]bool
	operators    []transport.OperatorPresence
	typingSentAt time.Time
}

// New builds a controller. Call Run to start it.
func New(opts Options) *Controller {
	store := opts.Store
	if store == nil {
		store = state.NewStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	listPoll := opts.ListPoll
	if listPoll == 0 {
		listPoll = defaultListPoll
	}
	detailPoll := opts.DetailPoll
	if detailPoll == 0 {
		detailPoll = defaultDetailPoll
	}
	onChange := opts.OnChange
	if onChange == nil {
		onChange = func() {}
	}
	return &Controller{
		socket:     opts.Socket,
		api:        opts.API,
		notifier:   opts.Notifier,
		logger:     logger.With("component", "console"),
		onChange:   onChange,
		seen:       dedupe.New(notifyTTL, notifyMaxSize),
		listPoll:   listPoll,
		detailPoll: detailPoll,
		tasks:      make(chan func(), 128),
		quit:       make(chan struct{}),
		store:      store,
		connState:  transport.StateDisconnected,
		typing:     make(map[string]bool),
	}
}

// Run executes the controller loop until ctx is cancelled. It connects the
// socket, issues the initial list fetch, and then serializes every task.
func (c *Controller) Run(ctx context.Context) {
	c.ctx = ctx
	defer close(c.quit)
	defer c.socket.Close()
	defer c.seen.Close()

	c.socket.Connect()
	c.refreshList()

	listTicker := time.NewTicker(c.listPoll)
	defer listTicker.Stop()
	detailTicker := time.NewTicker(c.detailPoll)
	defer detailTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-c.tasks:
			task()
			c.onChange()
		case <-listTicker.C:
			// Polling is the fallback sync path. While the socket is up,
			// push events keep both the sidebar and the open view current.
			if !c.socket.Connected() {
				c.refreshList()
			}
		case <-detailTicker.C:
			if !c.socket.Connected() {
				c.pollDetail()
			}
		}
	}
}

// do enqueues a task for the run loop. A task enqueued after shutdown is
// dropped.
func (c *Controller) do(task func()) {
	select {
	case c.tasks <- task:
	case <-c.quit:
	}
}

// View runs fn on the run loop with a consistent read view of the store.
// Must not be called from within a task.
func (c *Controller) View(fn func(Snapshot)) {
	done := make(chan struct{})
	c.do(func() {
		fn(Snapshot{
			Store:      c.store,
			Connection: c.connState,
			Typing:     c.typing,
			Operators:  c.operators,
		})
		close(done)
	})
	select {
	case <-done:
	case <-c.quit:
	}
}

// Select opens a conversation: leaves the previous room, clears the view,
// joins the new room, and loads the detail over REST. Selecting "" closes
// the view.
func (c *Controller) Select(id string) {
	c.do(func() {
		if c.store.SelectedID == id {
			return
		}
		if c.store.SelectedID != "" {
			c.socket.LeaveRoom()
		}
		c.store.Select(id)
		c.typing = make(map[string]bool)
		if id == "" {
			return
		}
		c.socket.JoinRoom(id)
		c.loadDetail(id)
	})
}

// Refresh re-fetches the conversation list immediately.
func (c *Controller) Refresh() {
	c.do(c.refreshList)
}

// Reconnect asks the transport for an immediate redial, resetting its
// backoff schedule. Wired to an explicit operator action.
func (c *Controller) Reconnect() {
	c.socket.Reconnect()
}

// SetFilter changes the sidebar status filter and refreshes the list.
func (c *Controller) SetFilter(status string) {
	c.do(func() {
		c.store.FilterStatus = status
		c.refreshList()
	})
}

// SetSearch changes the sidebar search query. Filtering happens at render
// time; no fetch is issued.
func (c *Controller) SetSearch(query string) {
	c.do(func() {
		c.store.SearchQuery = query
	})
}

// InputChanged records the compose box content and announces typing
// activity, throttled to one frame per second. The transport auto-stops
// typing after three seconds of silence.
func (c *Controller) InputChanged(text string) {
	c.do(func() {
		c.store.InputText = text
		if text == "" || c.store.SelectedID == "" {
			return
		}
		if time.Since(c.typingSentAt) < typingThrottle {
			return
		}
		c.typingSentAt = time.Now()
		c.socket.StartTyping(c.store.SelectedID)
	})
}

// Claim takes the open conversation's session for this operator. The socket
// path is preferred; when it cannot deliver, the REST endpoint is used and
// the detail is re-fetched to pick up the new session.
func (c *Controller) Claim() {
	c.do(func() {
		id := c.store.SelectedID
		if id == "" || c.store.Claiming {
			return
		}
		c.store.Claiming = true
		if c.socket.Connected() && c.socket.ClaimSession() {
			return
		}
		go func() {
			err := c.api.Claim(c.ctx, id)
			c.do(func() {
				if c.store.SelectedID != id {
					return
				}
				c.store.Claiming = false
				if err != nil {
					c.logger.Error("claim failed", "conversation", id, "error", err)
					return
				}
				c.loadDetail(id)
			})
		}()
	})
}

// EndSession closes the open conversation's session, returning it to the bot.
func (c *Controller) EndSession() {
	c.do(func() {
		id := c.store.SelectedID
		if id == "" {
			return
		}
		if c.socket.Connected() && c.socket.CloseSession() {
			return
		}
		go func() {
			err := c.api.Close(c.ctx, id)
			c.do(func() {
				if c.store.SelectedID != id {
					return
				}
				if err != nil {
					c.logger.Error("close failed", "conversation", id, "error", err)
					return
				}
				c.loadDetail(id)
			})
		}()
	})
}

// Transfer hands the open conversation's session to another operator. This
// is a socket-only operation; when the socket is down the request is
// refused and logged.
func (c *Controller) Transfer(operatorID int64, reason string) {
	c.do(func() {
		if c.store.SelectedID == "" {
			return
		}
		if !c.socket.Connected() || !c.socket.TransferSession(operatorID, reason) {
			c.logger.Warn("transfer refused while disconnected",
				"conversation", c.store.SelectedID, "operator", operatorID)
		}
	})
}

// SetMode switches the open conversation between bot and human handling
// over REST.
func (c *Controller) SetMode(mode chat.ChatMode) {
	c.do(func() {
		id := c.store.SelectedID
		if id == "" {
			return
		}
		modeValue := "bot"
		if mode == chat.ModeHuman {
			modeValue = "human"
		}
		go func() {
			err := c.api.SetMode(c.ctx, id, modeValue)
			c.do(func() {
				if c.store.SelectedID != id {
					return
				}
				if err != nil {
					c.logger.Error("mode change failed", "conversation", id, "error", err)
					return
				}
				c.loadDetail(id)
			})
		}()
	})
}

// refreshList fetches the conversation list with the current filter. Runs
// on the loop; the fetch itself runs in a goroutine and re-enters as a task.
func (c *Controller) refreshList() {
	status := c.store.FilterStatus
	go func() {
		list, err := c.api.Conversations(c.ctx, status)
		c.do(func() {
			c.store.Loading = false
			if err != nil {
				c.logger.Warn("list fetch failed", "error", err)
				c.store.BackendOnline = false
				return
			}
			c.store.BackendOnline = true
			if c.store.FilterStatus != status {
				return
			}
			c.store.SetConversations(list)
		})
	}()
}

// loadDetail fetches the full detail for a conversation and installs it,
// messages included, unless the selection moved on in the meantime.
func (c *Controller) loadDetail(id string) {
	go func() {
		detail, err := c.api.ConversationDetail(c.ctx, id)
		c.do(func() {
			if c.store.SelectedID != id {
				return
			}
			if err != nil {
				c.logger.Error("detail fetch failed", "conversation", id, "error", err)
				c.store.BackendOnline = false
				return
			}
			c.store.BackendOnline = true
			c.store.SetCurrent(detail, true)
		})
	}()
}

// pollDetail re-fetches the open conversation while the socket is down.
// Fetched messages merge through the reconciler one by one, so optimistic
// entries survive and rows already present are updated in place.
func (c *Controller) pollDetail() {
	id := c.store.SelectedID
	if id == "" {
		return
	}
	go func() {
		detail, err := c.api.ConversationDetail(c.ctx, id)
		c.do(func() {
			if c.store.SelectedID != id {
				return
			}
			if err != nil {
				c.store.BackendOnline = false
				return
			}
			c.store.BackendOnline = true
			c.store.SetCurrent(detail, false)
			for _, m := range detail.Messages {
				c.applyConfirmed(m)
			}
		})
	}()
}

// applyConfirmed merges a server-confirmed message and settles any pending
// or failed record its temp ID was carrying.
func (c *Controller) applyConfirmed(m chat.Message) state.ApplyResult {
	res := c.store.ApplyMessage(m)
	if m.TempID != "" && m.Confirmed() {
		c.store.RemovePending(m.TempID)
		c.store.ClearFailed(m.TempID)
	}
	return res
}

// Transport events. Each handler enqueues a task; the transport's read loop
// never touches the store directly.

func (c *Controller) OnConnectionChange(s transport.State) {
	c.do(func() {
		prev := c.connState
		c.connState = s
		if s != transport.StateConnected || prev == transport.StateConnected {
			return
		}
		// Fresh session: room membership was voided, so rejoin and
		// resynchronize everything missed while down.
		if id := c.store.SelectedID; id != "" {
			c.socket.JoinRoom(id)
			c.loadDetail(id)
		}
		c.refreshList()
	})
}

func (c *Controller) OnNewMessage(m chat.Message) {
	c.do(func() {
		res := c.applyConfirmed(m)
		if res.Notify {
			c.notify(m)
		}
	})
}

func (c *Controller) OnMessageSent(m chat.Message) {
	c.do(func() {
		c.applyConfirmed(m)
	})
}

func (c *Controller) OnMessageAck(ack transport.AckPayload) {
	c.do(func() {
		c.store.RemovePending(ack.TempID)
		c.store.ClearFailed(ack.TempID)
		for i := range c.store.Messages {
			if c.store.Messages[i].TempID == ack.TempID {
				c.store.Messages[i].ID = ack.MessageID
				if ack.Timestamp != "" {
					c.store.Messages[i].CreatedAt = ack.Timestamp
				}
				return
			}
		}
	})
}

func (c *Controller) OnMessageFailed(f transport.FailedPayload) {
	c.do(func() {
		c.store.SetFailed(f.TempID, f.Error)
	})
}

func (c *Controller) OnTyping(t transport.TypingPayload) {
	c.do(func() {
		if t.ConversationID != c.store.SelectedID {
			return
		}
		if t.IsTyping {
			c.typing[t.OperatorID] = true
		} else {
			delete(c.typing, t.OperatorID)
		}
	})
}

func (c *Controller) OnSessionClaimed(e transport.SessionEventPayload) {
	c.do(func() {
		session := &chat.Session{
			ID:         e.SessionID,
			Status:     chat.SessionActive,
			OperatorID: e.OperatorID,
		}
		c.store.ApplySessionChange(e.ConversationID, chat.ModeHuman, session)
		if e.ConversationID == c.store.SelectedID {
			c.store.Claiming = false
		}
		c.refreshList()
	})
}

func (c *Controller) OnSessionClosed(e transport.SessionEventPayload) {
	c.do(func() {
		session := &chat.Session{ID: e.SessionID, Status: chat.SessionClosed}
		c.store.ApplySessionChange(e.ConversationID, chat.ModeBot, session)
		c.refreshList()
	})
}

func (c *Controller) OnSessionTransferred(e transport.TransferredPayload) {
	c.do(func() {
		if e.ConversationID != c.store.SelectedID || c.store.Current == nil {
			return
		}
		if c.store.Current.Session != nil {
			c.store.Current.Session.Transfer(e.ToOperatorID)
		}
	})
}

func (c *Controller) OnConversationUpdate(u chat.ConversationUpdate) {
	c.do(func() {
		c.store.ApplyConversationUpdate(u)
	})
}

func (c *Controller) OnPresence(p transport.PresencePayload) {
	c.do(func() {
		c.operators = p.Operators
	})
}

func (c *Controller) OnServerError(e transport.ErrorPayload) {
	c.do(func() {
		c.logger.Error("server error", "code", e.Code, "message", e.Message)
		// A claim dispatched over the socket has no dedicated failure frame;
		// the server reports it here. Release the mark so the operator can
		// try again.
		c.store.Claiming = false
	})
}

// notify raises at most one notification per server message ID.
func (c *Controller) notify(m chat.Message) {
	if c.notifier == nil || m.ID == 0 {
		return
	}
	if c.seen.CheckAndMark(messageKey(m.ID)) {
		return
	}
	title := m.ConversationID
	for i := range c.store.Conversations {
		if c.store.Conversations[i].ID == m.ConversationID {
			title = c.store.Conversations[i].DisplayName
			break
		}
	}
	c.notifier.Notify(m.ConversationID, title, chat.PreviewText(m))
}
