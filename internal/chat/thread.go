package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zawajapp/zawaj/internal/bus"
	"github.com/zawajapp/zawaj/internal/gateway"
	"github.com/zawajapp/zawaj/internal/model"
	"github.com/zawajapp/zawaj/internal/rest"
	"go.uber.org/zap"
)

var (
	// ErrEmptyContent rejects whitespace-only sends.
	ErrEmptyContent = errors.New("empty message content")

	// ErrNoConversation rejects operations with no open conversation.
	ErrNoConversation = errors.New("no open conversation")
)

// ThreadState is the lifecycle of the open conversation's history.
type ThreadState string

const (
	StateIdle        ThreadState = "idle"
	StateLoading     ThreadState = "loading"
	StateReady       ThreadState = "ready"
	StateLoadingMore ThreadState = "loadingMore"
)

// threadGateway is the slice of the gateway manager the thread needs.
type threadGateway interface {
	Connected() bool
	JoinConversation(ctx context.Context, conversationID string) error
	LeaveConversation(conversationID string)
	EmitWithAck(ctx context.Context, event string, data any) (gateway.AckResult, error)
}

// threadAPI is the slice of the REST client the thread needs.
type threadAPI interface {
	ListMessages(ctx context.Context, conversationID string, page, limit int) (*rest.MessagePage, error)
}

// Outgoing describes a message to send.
type Outgoing struct {
	Content       string
	Type          model.MessageType
	FileURL       string
	AudioDuration int
}

// Thread holds the ordered message history of the one open
// conversation: initial fetch, backward pagination, optimistic send
// with reconciliation, and status upgrades. Messages are kept in
// ascending creation order; realtime deliveries append, older pages
// prepend, and neither ever reorders existing entries.
type Thread struct {
	gw       threadGateway
	api      threadAPI
	selfID   string
	pageSize int
	logger   *zap.Logger

	mu         sync.Mutex
	state      ThreadState
	conv       *model.Conversation
	otherID    string
	msgs       []model.Message
	page       int
	totalPages int
	hasMore    bool
	lastErr    string

	// epoch increments on every Open; async completions compare their
	// captured epoch and discard themselves when superseded.
	epoch uint64

	// pending maps the client correlation token of an in-flight send to
	// its optimistic local message id.
	pending map[string]string
}

// NewThread creates an idle thread.
func NewThread(gw threadGateway, api threadAPI, selfID string, pageSize int, logger *zap.Logger) *Thread {
	if pageSize <= 0 {
		pageSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Thread{
		gw:       gw,
		api:      api,
		selfID:   selfID,
		pageSize: pageSize,
		logger:   logger,
		state:    StateIdle,
		pending:  make(map[string]string),
	}
}

// Open switches the thread to a conversation: leaves the previous
// room, resets the sequence, fetches the newest history page and joins
// the new room. A concurrent later Open supersedes this one; the
// superseded fetch result is discarded.
func (t *Thread) Open(ctx context.Context, conv model.Conversation) error {
	t.mu.Lock()
	if t.conv != nil {
		t.gw.LeaveConversation(t.conv.ID)
	}
	t.epoch++
	epoch := t.epoch
	c := conv
	t.conv = &c
	t.otherID = c.Other(t.selfID)
	t.msgs = nil
	t.page = 0
	t.totalPages = 0
	t.hasMore = false
	t.lastErr = ""
	t.state = StateLoading
	t.pending = make(map[string]string)
	t.mu.Unlock()

	res, err := t.api.ListMessages(ctx, conv.ID, 1, t.pageSize)

	t.mu.Lock()
	if t.epoch != epoch {
		// A newer Open superseded this fetch.
		t.mu.Unlock()
		return nil
	}
	if err != nil {
		t.lastErr = err.Error()
		t.state = StateReady
		t.mu.Unlock()
		return fmt.Errorf("load messages: %w", err)
	}
	t.msgs = ascending(res.Messages)
	t.page = res.Page
	t.totalPages = res.TotalPages
	t.hasMore = res.Page < res.TotalPages
	t.state = StateReady
	t.mu.Unlock()

	if err := t.gw.JoinConversation(ctx, conv.ID); err != nil {
		t.logger.Warn("join conversation failed", zap.String("conversation_id", conv.ID), zap.Error(err))
	}
	return nil
}

// Seed installs cached history for the open conversation when the
// initial fetch failed and nothing is loaded yet. Last-known-good
// only; a later successful Open replaces it.
func (t *Thread) Seed(conversationID string, msgs []model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conv == nil || t.conv.ID != conversationID || len(t.msgs) > 0 {
		return
	}
	t.msgs = append([]model.Message(nil), msgs...)
}

// Close leaves the room and resets the thread to idle. Cached stores
// elsewhere keep the history; the thread itself is conversation-scoped.
func (t *Thread) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conv != nil {
		t.gw.LeaveConversation(t.conv.ID)
	}
	t.epoch++
	t.conv = nil
	t.otherID = ""
	t.msgs = nil
	t.state = StateIdle
	t.hasMore = false
	t.lastErr = ""
	t.pending = make(map[string]string)
}

// LoadMore fetches the next older page and prepends it. No-op while a
// load is in flight or when no older pages remain. Messages already
// shown keep their positions relative to each other.
func (t *Thread) LoadMore(ctx context.Context) error {
	t.mu.Lock()
	if t.conv == nil || t.state != StateReady || !t.hasMore {
		t.mu.Unlock()
		return nil
	}
	epoch := t.epoch
	convID := t.conv.ID
	nextPage := t.page + 1
	t.state = StateLoadingMore
	t.mu.Unlock()

	res, err := t.api.ListMessages(ctx, convID, nextPage, t.pageSize)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.epoch != epoch {
		return nil
	}
	t.state = StateReady
	if err != nil {
		t.lastErr = err.Error()
		return fmt.Errorf("load older messages: %w", err)
	}
	t.lastErr = ""
	t.msgs = append(ascending(res.Messages), t.msgs...)
	t.page = res.Page
	t.totalPages = res.TotalPages
	t.hasMore = res.Page < res.TotalPages
	return nil
}

// Send performs an optimistic send: the message appears at the end of
// the sequence immediately, then is replaced by the server's canonical
// message on acknowledgment or removed again on failure. The ack is
// correlated by a client-generated token echoed by the server, so two
// rapid identical sends cannot be misattributed.
func (t *Thread) Send(ctx context.Context, out Outgoing) (*model.Message, error) {
	if out.Type == "" {
		out.Type = model.TypeText
	}
	if out.Type == model.TypeText && strings.TrimSpace(out.Content) == "" {
		return nil, ErrEmptyContent
	}

	t.mu.Lock()
	if t.conv == nil {
		t.mu.Unlock()
		return nil, ErrNoConversation
	}
	if !t.gw.Connected() {
		t.mu.Unlock()
		return nil, gateway.ErrNotConnected
	}

	convID := t.conv.ID
	clientMsgID := uuid.New().String()
	optimistic := model.Message{
		ID:             model.NewLocalID(),
		ConversationID: convID,
		SenderID:       t.selfID,
		Content:        out.Content,
		Type:           out.Type,
		Status:         model.StatusSent,
		FileURL:        out.FileURL,
		AudioDuration:  out.AudioDuration,
		CreatedAt:      time.Now(),
	}
	t.msgs = append(t.msgs, optimistic)
	t.pending[clientMsgID] = optimistic.ID
	t.mu.Unlock()

	res, err := t.gw.EmitWithAck(ctx, gateway.EvtSendMessage, gateway.SendPayload{
		ConversationID: convID,
		ClientMsgID:    clientMsgID,
		Message: gateway.OutgoingMessage{
			Content:       out.Content,
			MessageType:   string(out.Type),
			FileURL:       out.FileURL,
			AudioDuration: out.AudioDuration,
		},
	})
	if err != nil {
		t.rollback(clientMsgID, optimistic.ID)
		return nil, fmt.Errorf("send message: %w", err)
	}
	if !res.Success {
		t.rollback(clientMsgID, optimistic.ID)
		if res.Error != "" {
			return nil, fmt.Errorf("send message refused: %s", res.Error)
		}
		return nil, errors.New("send message refused")
	}
	if res.Message == nil {
		// Ack without a canonical message: the broadcast path (echoed
		// clientMsgId) will reconcile; keep the optimistic entry.
		return &optimistic, nil
	}

	canonical := t.reconcile(clientMsgID, *res.Message)
	return &canonical, nil
}

// reconcile replaces the optimistic entry recorded under clientMsgID
// with the canonical message, in place. Idempotent against the
// broadcast having arrived first.
func (t *Thread) reconcile(clientMsgID string, canonical model.Message) model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	localID, ok := t.pending[clientMsgID]
	if ok {
		delete(t.pending, clientMsgID)
		for i := range t.msgs {
			if t.msgs[i].ID == localID {
				canonical.Status = t.msgs[i].Status.Upgrade(canonical.Status)
				t.msgs[i] = canonical
				return canonical
			}
		}
	}

	// Already reconciled via broadcast, or rolled back meanwhile.
	for i := range t.msgs {
		if t.msgs[i].ID == canonical.ID {
			return t.msgs[i]
		}
	}
	return canonical
}

// rollback removes a failed optimistic entry. The sequence returns to
// its pre-send length; a stuck optimistic message is never left
// behind.
func (t *Thread) rollback(clientMsgID, localID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, clientMsgID)
	for i := range t.msgs {
		if t.msgs[i].ID == localID {
			t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
			return
		}
	}
}

// ApplyReceived ingests an inbound message_received event. Returns
// true when the event belonged to the open conversation. Duplicate
// deliveries (reconnect replay) are absorbed by canonical-id check;
// own messages reconcile against pending optimistic entries instead of
// appending twice.
func (t *Thread) ApplyReceived(evt bus.MessageReceived) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conv == nil || evt.ConversationID != t.conv.ID {
		return false
	}

	msg := evt.Message
	for i := range t.msgs {
		if t.msgs[i].ID == msg.ID {
			return true
		}
	}

	// Echoed correlation token: exact reconciliation.
	if evt.ClientMsgID != "" {
		if localID, ok := t.pending[evt.ClientMsgID]; ok {
			delete(t.pending, evt.ClientMsgID)
			for i := range t.msgs {
				if t.msgs[i].ID == localID {
					msg.Status = t.msgs[i].Status.Upgrade(msg.Status)
					t.msgs[i] = msg
					return true
				}
			}
		}
	}

	// Echo-less broadcast of an own message: best-effort fallback on
	// the newest pending optimistic entry with matching content.
	if msg.SenderID == t.selfID {
		for i := len(t.msgs) - 1; i >= 0; i-- {
			if t.msgs[i].Optimistic() && t.msgs[i].Content == msg.Content {
				t.dropPendingByLocalID(t.msgs[i].ID)
				msg.Status = t.msgs[i].Status.Upgrade(msg.Status)
				t.msgs[i] = msg
				return true
			}
		}
	}

	t.msgs = append(t.msgs, msg)
	return true
}

func (t *Thread) dropPendingByLocalID(localID string) {
	for token, id := range t.pending {
		if id == localID {
			delete(t.pending, token)
			return
		}
	}
}

// ApplyDelivered upgrades one message to delivered. Never downgrades
// a message already read.
func (t *Thread) ApplyDelivered(conversationID, messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conv == nil || conversationID != t.conv.ID {
		return
	}
	for i := range t.msgs {
		if t.msgs[i].ID == messageID {
			t.msgs[i].Status = t.msgs[i].Status.Upgrade(model.StatusDelivered)
			return
		}
	}
}

// ApplyRead marks every own message as read after the peer identified
// by readBy read the conversation.
func (t *Thread) ApplyRead(conversationID, readBy string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conv == nil || conversationID != t.conv.ID {
		return
	}
	for i := range t.msgs {
		if t.msgs[i].SenderID == t.selfID && t.msgs[i].SenderID != readBy {
			t.msgs[i].Status = t.msgs[i].Status.Upgrade(model.StatusRead)
		}
	}
}

// MarkRead emits a read receipt for the open conversation. Idempotent
// from the caller's perspective.
func (t *Thread) MarkRead(ctx context.Context) error {
	t.mu.Lock()
	if t.conv == nil {
		t.mu.Unlock()
		return ErrNoConversation
	}
	convID := t.conv.ID
	t.mu.Unlock()

	res, err := t.gw.EmitWithAck(ctx, gateway.EvtMessageRead, gateway.RoomPayload{ConversationID: convID})
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("mark read refused: %s", res.Error)
	}
	return nil
}

// Messages returns a copy of the current sequence, ascending by
// creation time.
func (t *Thread) Messages() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Conversation returns the open conversation, nil when idle.
func (t *Thread) Conversation() *model.Conversation {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conv == nil {
		return nil
	}
	c := *t.conv
	return &c
}

// OtherID returns the peer's user id for the open conversation.
func (t *Thread) OtherID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.otherID
}

// State returns the thread lifecycle state.
func (t *Thread) State() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// HasMore reports whether older pages remain.
func (t *Thread) HasMore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasMore
}

// Err returns the last fetch error message, empty when healthy.
func (t *Thread) Err() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// ascending reverses a newest-first REST page into ascending creation
// order.
func ascending(msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out
}
