package chat

import (
	"context"
	"sync"

	"github.com/zawajapp/zawaj/internal/model"
	"github.com/zawajapp/zawaj/internal/rest"
)

// conversationAPI is the slice of the REST client the list needs.
type conversationAPI interface {
	ListConversations(ctx context.Context, page, limit int) (*rest.ConversationPage, error)
}

// ConversationList holds the paginated, most-recent-first collection
// of the user's conversations, updated by both REST fetches and
// realtime pushes.
type ConversationList struct {
	api      conversationAPI
	selfID   string
	pageSize int

	mu         sync.Mutex
	items      []model.Conversation
	page       int
	totalPages int
	total      int
	loading    bool
	lastErr    string
}

// NewConversationList creates an empty list loading pages of pageSize.
func NewConversationList(api conversationAPI, selfID string, pageSize int) *ConversationList {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &ConversationList{api: api, selfID: selfID, pageSize: pageSize}
}

// Seed replaces the list with cached entries. Used at startup so the
// UI shows last-known-good data before the first REST page lands; a
// later Load of page 1 overwrites it.
func (l *ConversationList) Seed(items []model.Conversation) {
	l.mu.Lock()
	l.items = append([]model.Conversation(nil), items...)
	l.mu.Unlock()
}

// Load fetches one page. Page 1 replaces the local sequence, later
// pages append. A failed fetch leaves prior items untouched and
// records the error; transient network failures never flicker the UI
// to empty.
func (l *ConversationList) Load(ctx context.Context, page int) error {
	if page <= 0 {
		page = 1
	}

	l.mu.Lock()
	if l.loading {
		l.mu.Unlock()
		return nil
	}
	l.loading = true
	l.mu.Unlock()

	res, err := l.api.ListConversations(ctx, page, l.pageSize)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = false

	if err != nil {
		l.lastErr = err.Error()
		return err
	}

	l.lastErr = ""
	l.page = res.Page
	l.total = res.Total
	l.totalPages = res.TotalPages
	if page == 1 {
		l.items = res.Conversations
	} else {
		l.items = append(l.items, res.Conversations...)
	}
	return nil
}

// ApplyInbound updates the list for a freshly delivered message:
// preview and timestamp in place, a stable move-to-front, and an
// unread increment unless the conversation is the currently open one
// or the message is the user's own echoed back by the gateway.
// Unknown conversations are inserted at the head from the message.
func (l *ConversationList) ApplyInbound(msg model.Message, activeConversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	countsUnread := msg.ConversationID != activeConversationID && msg.SenderID != l.selfID

	idx := -1
	for i := range l.items {
		if l.items[i].ID == msg.ConversationID {
			idx = i
			break
		}
	}

	if idx < 0 {
		conv := model.Conversation{
			ID:            msg.ConversationID,
			ParticipantA:  msg.SenderID,
			LastMessage:   msg.Content,
			LastMessageAt: msg.CreatedAt,
		}
		if countsUnread {
			conv.UnreadCount = 1
		}
		l.items = append([]model.Conversation{conv}, l.items...)
		return
	}

	conv := l.items[idx]
	conv.LastMessage = msg.Content
	conv.LastMessageAt = msg.CreatedAt
	if countsUnread {
		conv.UnreadCount++
	}

	// Stable move-to-front: everyone else keeps relative order.
	l.items = append(l.items[:idx], l.items[idx+1:]...)
	l.items = append([]model.Conversation{conv}, l.items...)
}

// MarkRead zeroes the unread counter of a conversation.
func (l *ConversationList) MarkRead(conversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == conversationID {
			l.items[i].UnreadCount = 0
			return
		}
	}
}

// Remove drops a conversation from the list.
func (l *ConversationList) Remove(conversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == conversationID {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return
		}
	}
}

// Get returns a conversation by id.
func (l *ConversationList) Get(conversationID string) (model.Conversation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == conversationID {
			return l.items[i], true
		}
	}
	return model.Conversation{}, false
}

// Items returns a copy of the current sequence.
func (l *ConversationList) Items() []model.Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Conversation, len(l.items))
	copy(out, l.items)
	return out
}

// Pagination returns the loaded page, total pages and total count.
func (l *ConversationList) Pagination() (page, totalPages, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.page, l.totalPages, l.total
}

// Loading reports whether a fetch is in flight.
func (l *ConversationList) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// Err returns the last fetch error message, empty when healthy.
func (l *ConversationList) Err() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}
