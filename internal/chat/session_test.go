package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zawajapp/zawaj/internal/auth"
	"github.com/zawajapp/zawaj/internal/bus"
	"github.com/zawajapp/zawaj/internal/cache"
	"github.com/zawajapp/zawaj/internal/gateway"
	"github.com/zawajapp/zawaj/internal/model"
	"github.com/zawajapp/zawaj/internal/notify"
	"github.com/zawajapp/zawaj/internal/presence"
	"github.com/zawajapp/zawaj/internal/rest"
	"github.com/zawajapp/zawaj/internal/status"
	"github.com/zawajapp/zawaj/internal/typing"
)

// sessionFixture composes a full session against fake endpoints.
type sessionFixture struct {
	sess *Session
	bus  *bus.Bus
	db   *cache.DB

	wsMu    sync.Mutex
	wsConns []*websocket.Conn

	restMu       sync.Mutex
	failMessages bool
}

// setFailMessages makes the message history endpoint answer 502.
func (fx *sessionFixture) setFailMessages(fail bool) {
	fx.restMu.Lock()
	fx.failMessages = fail
	fx.restMu.Unlock()
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	fx := &sessionFixture{bus: bus.New()}

	upgrader := websocket.Upgrader{}
	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fx.wsMu.Lock()
		fx.wsConns = append(fx.wsConns, ws)
		fx.wsMu.Unlock()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var f gateway.Frame
			if json.Unmarshal(data, &f) == nil && f.AckID != 0 {
				raw, _ := json.Marshal(gateway.AckResult{Success: true})
				_ = ws.WriteJSON(gateway.Frame{Event: "ack", AckID: f.AckID, Data: raw})
			}
		}
	}))
	t.Cleanup(wsSrv.Close)

	restSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/conversations" && r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(rest.ConversationPage{
				Conversations: []model.Conversation{
					{ID: "c-1", ParticipantA: "u-self", ParticipantB: "u-peer", LastMessage: "hi", LastMessageAt: time.Now()},
				},
				Total: 1, Page: 1, TotalPages: 1,
			})
		case r.URL.Path == "/conversations/c-1/messages":
			fx.restMu.Lock()
			fail := fx.failMessages
			fx.restMu.Unlock()
			if fail {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_ = json.NewEncoder(w).Encode(rest.MessagePage{
				Messages: []model.Message{
					{ID: "m-1", ConversationID: "c-1", SenderID: "u-peer", Content: "hi", Type: model.TypeText, Status: model.StatusSent, CreatedAt: time.Now()},
				},
				Total: 1, Page: 1, TotalPages: 1,
			})
		case strings.HasSuffix(r.URL.Path, "/presence"):
			_ = json.NewEncoder(w).Encode(rest.Presence{UserID: "u-peer", IsOnline: true})
		case strings.HasSuffix(r.URL.Path, "/read"):
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(restSrv.Close)

	db, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	fx.db = db

	tokens := auth.Static("tok")
	machine := status.NewMachine(fx.bus)
	gw := gateway.NewManager(gateway.Options{
		URL: "ws" + strings.TrimPrefix(wsSrv.URL, "http"),
	}, tokens, fx.bus, machine, nil)
	api := rest.NewClient(restSrv.URL, 5*time.Second, tokens)
	tracker := presence.NewTracker(fx.bus)
	coord := typing.NewCoordinator(gw, typing.Options{})
	relay := notify.NewRelay(10)
	convs := NewConversationList(api, "u-self", 20)
	thread := NewThread(gw, api, "u-self", 50, nil)

	fx.sess = NewSession(SessionDeps{
		SelfID:   "u-self",
		Bus:      fx.bus,
		Gateway:  gw,
		API:      api,
		Presence: tracker,
		Typing:   coord,
		Notify:   relay,
		Convs:    convs,
		Thread:   thread,
		Cache:    db,
	})
	fx.sess.Start(context.Background())
	t.Cleanup(func() {
		fx.sess.Stop()
		gw.Disconnect()
	})
	return fx
}

// push writes a server-initiated frame on the live connection.
func (fx *sessionFixture) push(t *testing.T, event string, data any) {
	t.Helper()
	fx.wsMu.Lock()
	defer fx.wsMu.Unlock()
	if len(fx.wsConns) == 0 {
		t.Fatal("no websocket connection")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.wsConns[len(fx.wsConns)-1].WriteJSON(gateway.Frame{Event: event, Data: raw}); err != nil {
		t.Fatal(err)
	}
}

func awaitCond(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestSessionLoadsAndOpens(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	if err := fx.sess.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	awaitCond(t, 2*time.Second, fx.sess.Connected, "connected")

	if err := fx.sess.LoadConversations(ctx, 1); err != nil {
		t.Fatalf("LoadConversations: %v", err)
	}
	items := fx.sess.Conversations().Items()
	if len(items) != 1 || items[0].ID != "c-1" {
		t.Fatalf("conversations = %+v", items)
	}

	if err := fx.sess.OpenConversation(ctx, items[0]); err != nil {
		t.Fatalf("OpenConversation: %v", err)
	}
	msgs := fx.sess.Thread().Messages()
	if len(msgs) != 1 || msgs[0].ID != "m-1" {
		t.Fatalf("messages = %+v", msgs)
	}

	// Peer presence was fetched on open.
	awaitCond(t, 2*time.Second, func() bool {
		return fx.sess.Presence().IsOnline("u-peer")
	}, "peer presence")

	// History was written through to the cache.
	cached, err := fx.db.ListMessages("c-1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cached) != 1 || cached[0].ID != "m-1" {
		t.Errorf("cached messages = %+v", cached)
	}
}

func TestSessionRoutesInboundMessage(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	if err := fx.sess.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	awaitCond(t, 2*time.Second, fx.sess.Connected, "connected")
	if err := fx.sess.LoadConversations(ctx, 1); err != nil {
		t.Fatal(err)
	}
	conv, _ := fx.sess.Conversations().Get("c-1")
	if err := fx.sess.OpenConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	fx.push(t, "message_received", map[string]any{
		"conversationId": "c-1",
		"message": map[string]any{
			"id": "m-2", "conversationId": "c-1", "senderId": "u-peer",
			"content": "kaifa halek", "messageType": "text", "status": "sent",
		},
	})

	awaitCond(t, 2*time.Second, func() bool {
		msgs := fx.sess.Thread().Messages()
		return len(msgs) == 2 && msgs[1].ID == "m-2"
	}, "inbound message in thread")

	// The list preview moved with it; the open conversation gains no
	// unread count.
	items := fx.sess.Conversations().Items()
	if items[0].LastMessage != "kaifa halek" {
		t.Errorf("preview = %q", items[0].LastMessage)
	}
	if items[0].UnreadCount != 0 {
		t.Errorf("UnreadCount = %d for the open conversation", items[0].UnreadCount)
	}

	// Write-through cache picked it up.
	awaitCond(t, 2*time.Second, func() bool {
		cached, err := fx.db.ListMessages("c-1", 0, 10)
		return err == nil && len(cached) == 2
	}, "cache write-through")
}

func TestSessionRoutesTypingAndNotifications(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	if err := fx.sess.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	awaitCond(t, 2*time.Second, fx.sess.Connected, "connected")
	if err := fx.sess.LoadConversations(ctx, 1); err != nil {
		t.Fatal(err)
	}
	conv, _ := fx.sess.Conversations().Get("c-1")
	if err := fx.sess.OpenConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	fx.push(t, "user_typing", map[string]any{
		"userId": "u-peer", "conversationId": "c-1", "isTyping": true,
	})
	awaitCond(t, 2*time.Second, fx.sess.Typing().OtherTyping, "peer typing")

	fx.push(t, "notification_received", map[string]any{
		"id": "n-1", "type": "new_match", "title": "New match",
	})
	awaitCond(t, 2*time.Second, func() bool {
		return fx.sess.Notifications().Len() == 1
	}, "notification buffered")
}

func TestSessionMarkReadClearsUnread(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	if err := fx.sess.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	awaitCond(t, 2*time.Second, fx.sess.Connected, "connected")
	if err := fx.sess.LoadConversations(ctx, 1); err != nil {
		t.Fatal(err)
	}
	conv, _ := fx.sess.Conversations().Get("c-1")
	if err := fx.sess.OpenConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	if err := fx.sess.MarkRead(ctx); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	got, _ := fx.sess.Conversations().Get("c-1")
	if got.UnreadCount != 0 {
		t.Errorf("UnreadCount = %d after MarkRead", got.UnreadCount)
	}
}

func TestSessionSendTextOptimisticFlow(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	if err := fx.sess.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	awaitCond(t, 2*time.Second, fx.sess.Connected, "connected")
	if err := fx.sess.LoadConversations(ctx, 1); err != nil {
		t.Fatal(err)
	}
	conv, _ := fx.sess.Conversations().Get("c-1")
	if err := fx.sess.OpenConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	// The fake gateway acks without a canonical message, so the
	// optimistic entry stays pending for the broadcast.
	sent, err := fx.sess.SendText(ctx, "ahlan")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if !model.IsLocalID(sent.ID) {
		t.Errorf("sent id = %q, want optimistic id pending broadcast", sent.ID)
	}
	msgs := fx.sess.Thread().Messages()
	if len(msgs) != 2 || msgs[1].Content != "ahlan" {
		t.Fatalf("messages = %+v", msgs)
	}

	// Optimistic entries never reach the cache.
	cached, err := fx.db.ListMessages("c-1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range cached {
		if model.IsLocalID(m.ID) {
			t.Errorf("optimistic id %q persisted to cache", m.ID)
		}
	}
}

func TestSessionOpenFallsBackToCachedHistory(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	// History persisted by an earlier run.
	cached := model.Message{
		ID: "m-cached", ConversationID: "c-1", SenderID: "u-peer",
		Content: "salaam", Type: model.TypeText, Status: model.StatusRead,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	if err := fx.db.UpsertMessage(&cached); err != nil {
		t.Fatal(err)
	}

	fx.setFailMessages(true)
	conv := model.Conversation{ID: "c-1", ParticipantA: "u-self", ParticipantB: "u-peer"}
	if err := fx.sess.OpenConversation(ctx, conv); err == nil {
		t.Fatal("OpenConversation should surface the failed fetch")
	}

	msgs := fx.sess.Thread().Messages()
	if len(msgs) != 1 || msgs[0].ID != "m-cached" {
		t.Fatalf("messages = %+v, want the cached history", msgs)
	}
	if fx.sess.Thread().Err() == "" {
		t.Error("Err() should report the failed fetch alongside cached content")
	}
}
