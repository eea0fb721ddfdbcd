// ABOUTME: Controller tests with scripted socket and API fakes
// ABOUTME: Selection, stale guards, session control, and event handling

package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/livechat/internal/chat"
	"github.com/opsdesk/livechat/internal/rest"
	"github.com/opsdesk/livechat/internal/state"
	"github.com/opsdesk/livechat/internal/transport"
)

type sentFrame struct {
	text   string
	tempID string
}

type fakeSocket struct {
	mu           sync.Mutex
	connected    bool
	room         string
	sendOK       bool
	claimOK      bool
	closeOK      bool
	transferOK   bool
	sent         []sentFrame
	claims       int
	closes       int
	transfers    int
	typingStarts []string
	typingStops  []string
	reconnects   int
	rooms        []string
}

func (f *fakeSocket) Connect()   {}
func (f *fakeSocket) Close()     {}
func (f *fakeSocket) Reconnect() { f.mu.Lock(); f.reconnects++; f.mu.Unlock() }

func (f *fakeSocket) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSocket) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeSocket) Room() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.room
}

func (f *fakeSocket) JoinRoom(id string) {
	f.mu.Lock()
	f.room = id
	f.rooms = append(f.rooms, id)
	f.mu.Unlock()
}

func (f *fakeSocket) LeaveRoom() {
	f.mu.Lock()
	f.room = ""
	f.mu.Unlock()
}

func (f *fakeSocket) SendMessage(text, tempID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sendOK {
		return false
	}
	f.sent = append(f.sent, sentFrame{text: text, tempID: tempID})
	return true
}

func (f *fakeSocket) StartTyping(id string) {
	f.mu.Lock()
	f.typingStarts = append(f.typingStarts, id)
	f.mu.Unlock()
}

func (f *fakeSocket) StopTyping(id string) {
	f.mu.Lock()
	f.typingStops = append(f.typingStops, id)
	f.mu.Unlock()
}

func (f *fakeSocket) ClaimSession() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	return f.claimOK
}

func (f *fakeSocket) CloseSession() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.closeOK
}

func (f *fakeSocket) TransferSession(operatorID int64, reason string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers++
	return f.transferOK
}

func (f *fakeSocket) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSocket) claimCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claims
}

type postCall struct {
	id   string
	text string
}

type fakeAPI struct {
	mu            sync.Mutex
	conversations []chat.Conversation
	convErr       error
	convCalls     int
	details       map[string]*chat.ConversationDetail
	detailGate    map[string]chan struct{}
	pageFn        func(id string, limit int, beforeID int64) (rest.MessagesPage, error)
	pageCalls     int
	postErr       error
	postGate      chan struct{}
	posts         []postCall
	claimed       []string
	closed        []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		details:    make(map[string]*chat.ConversationDetail),
		detailGate: make(map[string]chan struct{}),
	}
}

func (f *fakeAPI) Conversations(ctx context.Context, status string) ([]chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convCalls++
	if f.convErr != nil {
		return nil, f.convErr
	}
	return f.conversations, nil
}

func (f *fakeAPI) ConversationDetail(ctx context.Context, id string) (*chat.ConversationDetail, error) {
	f.mu.Lock()
	gate := f.detailGate[id]
	detail := f.details[id]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if detail == nil {
		return nil, fmt.Errorf("no detail for %s", id)
	}
	return detail, nil
}

func (f *fakeAPI) Messages(ctx context.Context, id string, limit int, beforeID int64) (rest.MessagesPage, error) {
	f.mu.Lock()
	f.pageCalls++
	fn := f.pageFn
	f.mu.Unlock()
	if fn == nil {
		return rest.MessagesPage{}, nil
	}
	return fn(id, limit, beforeID)
}

func (f *fakeAPI) PostMessage(ctx context.Context, id, text string) error {
	f.mu.Lock()
	gate := f.postGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.posts = append(f.posts, postCall{id: id, text: text})
	return nil
}

func (f *fakeAPI) Claim(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed = append(f.claimed, id)
	return nil
}

func (f *fakeAPI) Close(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeAPI) SetMode(ctx context.Context, id, mode string) error {
	return nil
}

func (f *fakeAPI) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

func (f *fakeAPI) convCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convCalls
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeNotifier) Notify(conversationID, title, body string) {
	f.mu.Lock()
	f.calls = append(f.calls, conversationID)
	f.mu.Unlock()
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startController builds a controller around the fakes and runs its loop
// for the duration of the test. Pollers are effectively disabled.
func startController(t *testing.T, opts Options) *Controller {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	if opts.ListPoll == 0 {
		opts.ListPoll = time.Hour
	}
	if opts.DetailPoll == 0 {
		opts.DetailPoll = time.Hour
	}
	c := New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)
	return c
}

func snapshot(c *Controller, read func(Snapshot)) {
	c.View(read)
}

func waitFor(t *testing.T, c *Controller, cond func(Snapshot) bool, msg string) {
	t.Helper()
	require.Eventually(t, func() bool {
		ok := false
		snapshot(c, func(s Snapshot) { ok = cond(s) })
		return ok
	}, 2*time.Second, 10*time.Millisecond, msg)
}

func TestRun_FetchesConversationList(t *testing.T) {
	sock := &fakeSocket{}
	api := newFakeAPI()
	api.conversations = []chat.Conversation{
		{ID: "c1", DisplayName: "Alice", UnreadCount: 2},
		{ID: "c2", DisplayName: "Bob"},
	}
	c := startController(t, Options{Socket: sock, API: api})

	waitFor(t, c, func(s Snapshot) bool {
		return len(s.Store.Conversations) == 2 && !s.Store.Loading
	}, "initial list loaded")
}

func TestRun_ListPollOnlyWhileDisconnected(t *testing.T) {
	sock := &fakeSocket{connected: true}
	api := newFakeAPI()
	api.conversations = []chat.Conversation{{ID: "c1"}}
	c := startController(t, Options{Socket: sock, API: api, ListPoll: 20 * time.Millisecond})

	waitFor(t, c, func(s Snapshot) bool { return len(s.Store.Conversations) == 1 }, "initial fetch")
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, api.convCount(), "pushes keep the sidebar current while the socket is up")

	sock.setConnected(false)
	require.Eventually(t, func() bool { return api.convCount() >= 3 },
		2*time.Second, 10*time.Millisecond, "polling takes over while disconnected")
}

func TestSelect_JoinsRoomAndLoadsDetail(t *testing.T) {
	sock := &fakeSocket{}
	api := newFakeAPI()
	api.conversations = []chat.Conversation{{ID: "c1", UnreadCount: 3}}
	api.details["c1"] = &chat.ConversationDetail{
		Conversation: chat.Conversation{ID: "c1", ChatMode: chat.ModeBot},
		Messages:     []chat.Message{{ID: 1, Content: "hi"}, {ID: 2, Content: "there"}},
	}
	c := startController(t, Options{Socket: sock, API: api})
	waitFor(t, c, func(s Snapshot) bool { return len(s.Store.Conversations) == 1 }, "list loaded")

	c.Select("c1")

	waitFor(t, c, func(s Snapshot) bool {
		return s.Store.Current != nil && len(s.Store.Messages) == 2
	}, "detail loaded")
	assert.Equal(t, "c1", sock.Room())
	snapshot(c, func(s Snapshot) {
		assert.Equal(t, 0, s.Store.Conversations[0].UnreadCount, "selection resets unread")
		assert.False(t, s.Store.HasMoreHistory, "short page exhausts history")
	})
}

func TestSelect_StaleDetailResponseIgnored(t *testing.T) {
	sock := &fakeSocket{}
	api := newFakeAPI()
	gate := make(chan struct{})
	api.detailGate["c1"] = gate
	api.details["c1"] = &chat.ConversationDetail{
		Conversation: chat.Conversation{ID: "c1"},
		Messages:     []chat.Message{{ID: 1, Content: "stale"}},
	}
	api.details["c2"] = &chat.ConversationDetail{
		Conversation: chat.Conversation{ID: "c2"},
		Messages:     []chat.Message{{ID: 9, Content: "fresh"}},
	}
	c := startController(t, Options{Socket: sock, API: api})

	c.Select("c1")
	c.Select("c2")
	waitFor(t, c, func(s Snapshot) bool {
		return s.Store.Current != nil && s.Store.Current.ID == "c2"
	}, "second selection loaded")

	close(gate) // now the c1 response lands, after the selection moved on

	time.Sleep(50 * time.Millisecond)
	snapshot(c, func(s Snapshot) {
		assert.Equal(t, "c2", s.Store.Current.ID)
		require.Len(t, s.Store.Messages, 1)
		assert.Equal(t, "fresh", s.Store.Messages[0].Content)
	})
}

func TestOnNewMessage_OpenConversationReconciles(t *testing.T) {
	sock := &fakeSocket{}
	api := newFakeAPI()
	store := state.NewStore()
	store.Select("c1")
	c := startController(t, Options{Socket: sock, API: api, Store: store})

	m := chat.Message{ID: 5, ConversationID: "c1", Direction: chat.DirectionIncoming, Content: "hello"}
	c.OnNewMessage(m)
	c.OnNewMessage(m) // duplicate delivery

	waitFor(t, c, func(s Snapshot) bool { return len(s.Store.Messages) == 1 }, "one row")
}

func TestOnNewMessage_OtherConversationNotifiesOnce(t *testing.T) {
	sock := &fakeSocket{}
	api := newFakeAPI()
	notifier := &fakeNotifier{}
	api.conversations = []chat.Conversation{{ID: "c1"}, {ID: "c2", DisplayName: "Bob"}}
	store := state.NewStore()
	store.Conversations = []chat.Conversation{{ID: "c1"}, {ID: "c2", DisplayName: "Bob"}}
	store.Select("c1")
	c := startController(t, Options{Socket: sock, API: api, Notifier: notifier, Store: store})
	waitFor(t, c, func(s Snapshot) bool { return !s.Store.Loading }, "initial list loaded")

	m := chat.Message{ID: 7, ConversationID: "c2", Direction: chat.DirectionIncoming, Content: "ping"}
	c.OnNewMessage(m)
	c.OnNewMessage(m) // duplicate must not notify again

	waitFor(t, c, func(s Snapshot) bool {
		return len(s.Store.Conversations) == 2 && s.Store.Conversations[1].UnreadCount >= 1 &&
			len(s.Store.Messages) == 0
	}, "unread bumped, open view untouched")
	assert.Equal(t, 1, notifier.count(), "one notification per message id")
}

func TestOnMessageAck_ConfirmsInPlace(t *testing.T) {
	sock := &fakeSocket{sendOK: true}
	api := newFakeAPI()
	store := state.NewStore()
	store.Select("c1")
	c := startController(t, Options{Socket: sock, API: api, Store: store})

	c.Send("hello")
	waitFor(t, c, func(s Snapshot) bool { return len(s.Store.Messages) == 1 }, "optimistic insert")

	var tempID string
	snapshot(c, func(s Snapshot) {
		tempID = s.Store.Messages[0].TempID
		assert.True(t, s.Store.IsPending(tempID))
	})

	c.OnMessageAck(transport.AckPayload{TempID: tempID, MessageID: 42})
	waitFor(t, c, func(s Snapshot) bool {
		return s.Store.Messages[0].ID == 42 && !s.Store.IsPending(tempID)
	}, "ack assigns server id and settles pending")
	snapshot(c, func(s Snapshot) {
		assert.Len(t, s.Store.Messages, 1, "still one row")
	})
}

func TestOnMessageFailed_MarksFailure(t *testing.T) {
	sock := &fakeSocket{sendOK: true}
	api := newFakeAPI()
	store := state.NewStore()
	store.Select("c1")
	c := startController(t, Options{Socket: sock, API: api, Store: store})

	c.Send("hello")
	var tempID string
	waitFor(t, c, func(s Snapshot) bool { return len(s.Store.Messages) == 1 }, "insert")
	snapshot(c, func(s Snapshot) { tempID = s.Store.Messages[0].TempID })

	c.OnMessageFailed(transport.FailedPayload{TempID: tempID, Error: "user unreachable"})
	waitFor(t, c, func(s Snapshot) bool {
		reason, failed := s.Store.FailureReason(tempID)
		return failed && reason == "user unreachable" && !s.Store.IsPending(tempID)
	}, "failure recorded, never pending and failed at once")
}

func TestOnConnectionChange_RejoinsAndResyncs(t *testing.T) {
	sock := &fakeSocket{}
	api := newFakeAPI()
	api.details["c1"] = &chat.ConversationDetail{Conversation: chat.Conversation{ID: "c1"}}
	store := state.NewStore()
	store.Select("c1")
	c := startController(t, Options{Socket: sock, API: api, Store: store})

	c.OnConnectionChange(transport.StateConnected)

	waitFor(t, c, func(s Snapshot) bool {
		return s.Connection == transport.StateConnected && s.Store.Current != nil
	}, "detail refreshed after reconnect")
	assert.Equal(t, "c1", sock.Room(), "room rejoined")
}

func TestClaim_SocketFirst(t *testing.T) {
	sock := &fakeSocket{connected: true, claimOK: true}
	api := newFakeAPI()
	store := state.NewStore()
	store.Conversations = []chat.Conversation{{ID: "c1", ChatMode: chat.ModeBot}}
	store.Select("c1")
	store.Current = &chat.ConversationDetail{
		Conversation: chat.Conversation{ID: "c1", ChatMode: chat.ModeBot},
	}
	c := startController(t, Options{Socket: sock, API: api, Store: store})

	c.Claim()
	waitFor(t, c, func(s Snapshot) bool { return s.Store.Claiming }, "claim in flight")
	assert.Empty(t, api.claimed, "no REST call when the socket delivered")

	c.OnSessionClaimed(transport.SessionEventPayload{
		ConversationID: "c1", SessionID: 10, OperatorID: 3,
	})
	waitFor(t, c, func(s Snapshot) bool { return !s.Store.Claiming }, "claim settled by push")
	snapshot(c, func(s Snapshot) {
		require.NotNil(t, s.Store.Current)
		assert.Equal(t, chat.ModeHuman, s.Store.Current.ChatMode)
		require.NotNil(t, s.Store.Current.Session)
		assert.Equal(t, chat.SessionActive, s.Store.Current.Session.Status)
	})
	require.Eventually(t, func() bool { return api.convCount() >= 2 },
		2*time.Second, 10*time.Millisecond, "session push refreshes the list")
}

func TestClaim_ServerErrorReleasesClaim(t *testing.T) {
	sock := &fakeSocket{connected: true, claimOK: true}
	api := newFakeAPI()
	store := state.NewStore()
	store.Select("c1")
	c := startController(t, Options{Socket: sock, API: api, Store: store})

	c.Claim()
	waitFor(t, c, func(s Snapshot) bool { return s.Store.Claiming }, "claim in flight")

	c.OnServerError(transport.ErrorPayload{Code: "CLAIM_FAILED", Message: "session already claimed"})
	waitFor(t, c, func(s Snapshot) bool { return !s.Store.Claiming }, "error frame releases the claim")

	c.Claim()
	waitFor(t, c, func(s Snapshot) bool { return s.Store.Claiming }, "operator can try again")
	assert.Equal(t, 2, sock.claimCount())
}

func TestSelect_DropsClaimInFlight(t *testing.T) {
	sock := &fakeSocket{connected: true, claimOK: true}
	api := newFakeAPI()
	api.details["c2"] = &chat.ConversationDetail{Conversation: chat.Conversation{ID: "c2"}}
	store := state.NewStore()
	store.Select("c1")
	c := startController(t, Options{Socket: sock, API: api, Store: store})

	c.Claim()
	waitFor(t, c, func(s Snapshot) bool { return s.Store.Claiming }, "claim in flight")

	c.Select("c2")
	waitFor(t, c, func(s Snapshot) bool {
		return !s.Store.Claiming && s.Store.Current != nil && s.Store.Current.ID == "c2"
	}, "switching conversations drops the claim mark")
}

func TestClaim_RESTFallbackWhileDisconnected(t *testing.T) {
	sock := &fakeSocket{connected: false}
	api := newFakeAPI()
	api.details["c1"] = &chat.ConversationDetail{
		Conversation: chat.Conversation{
			ID:       "c1",
			ChatMode: chat.ModeHuman,
			Session:  &chat.Session{ID: 10, Status: chat.SessionActive},
		},
	}
	store := state.NewStore()
	store.Select("c1")
	c := startController(t, Options{Socket: sock, API: api, Store: store})

	c.Claim()
	waitFor(t, c, func(s Snapshot) bool { return !s.Store.Claiming && s.Store.Current != nil }, "claim settled over REST")
	require.Equal(t, []string{"c1"}, api.claimed)
	assert.Equal(t, 0, sock.claims, "socket path skipped while disconnected")
}

func TestSessionClosed_ReturnsConversationToBot(t *testing.T) {
	sock := &fakeSocket{}
	api := newFakeAPI()
	api.conversations = []chat.Conversation{{ID: "c1", ChatMode: chat.ModeBot}}
	store := state.NewStore()
	store.Conversations = []chat.Conversation{{ID: "c1", ChatMode: chat.ModeHuman}}
	c := startController(t, Options{Socket: sock, API: api, Store: store})

	c.OnSessionClosed(transport.SessionEventPayload{ConversationID: "c1", SessionID: 10})
	waitFor(t, c, func(s Snapshot) bool {
		return len(s.Store.Conversations) == 1 && s.Store.Conversations[0].ChatMode == chat.ModeBot
	}, "mode back to bot")
}

func TestTyping_TracksOnlyOpenConversation(t *testing.T) {
	sock := &fakeSocket{}
	api := newFakeAPI()
	store := state.NewStore()
	store.Select("c1")
	c := startController(t, Options{Socket: sock, API: api, Store: store})

	c.OnTyping(transport.TypingPayload{ConversationID: "c1", OperatorID: "op-2", IsTyping: true})
	c.OnTyping(transport.TypingPayload{ConversationID: "c9", OperatorID: "op-3", IsTyping: true})

	waitFor(t, c, func(s Snapshot) bool { return s.Typing["op-2"] }, "typing tracked")
	snapshot(c, func(s Snapshot) {
		assert.False(t, s.Typing["op-3"], "other room ignored")
	})

	c.OnTyping(transport.TypingPayload{ConversationID: "c1", OperatorID: "op-2", IsTyping: false})
	waitFor(t, c, func(s Snapshot) bool { return !s.Typing["op-2"] }, "typing cleared")
}

func TestPresence_Stored(t *testing.T) {
	sock := &fakeSocket{}
	api := newFakeAPI()
	c := startController(t, Options{Socket: sock, API: api})

	c.OnPresence(transport.PresencePayload{Operators: []transport.OperatorPresence{
		{ID: "op-1", Status: "online", ActiveChats: 2},
	}})
	waitFor(t, c, func(s Snapshot) bool { return len(s.Operators) == 1 }, "presence stored")
}

func TestConversationUpdate_PropagatesToOpenView(t *testing.T) {
	sock := &fakeSocket{}
	api := newFakeAPI()
	store := state.NewStore()
	store.Conversations = []chat.Conversation{{ID: "c1", DisplayName: "Alice"}}
	store.Select("c1")
	c := startController(t, Options{Socket: sock, API: api, Store: store})

	c.OnConversationUpdate(chat.ConversationUpdate{
		ID:       "c1",
		ChatMode: chat.ModeHuman,
		Session:  &chat.Session{ID: 4, Status: chat.SessionWaiting},
	})
	waitFor(t, c, func(s Snapshot) bool {
		return s.Store.Current != nil && s.Store.Current.ChatMode == chat.ModeHuman
	}, "open view follows the push")
	snapshot(c, func(s Snapshot) {
		assert.Equal(t, "Alice", s.Store.Current.DisplayName, "absent fields preserved")
	})
}
