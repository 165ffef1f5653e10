package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zawajapp/zawaj/internal/model"
	"github.com/zawajapp/zawaj/internal/rest"
)

// fakeConvAPI serves canned conversation pages.
type fakeConvAPI struct {
	pages map[int]*rest.ConversationPage
	err   error
	calls int
}

func (f *fakeConvAPI) ListConversations(ctx context.Context, page, limit int) (*rest.ConversationPage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.pages[page]; ok {
		return p, nil
	}
	return &rest.ConversationPage{Page: page}, nil
}

func convPage(page, totalPages int, ids ...string) *rest.ConversationPage {
	convs := make([]model.Conversation, len(ids))
	for i, id := range ids {
		convs[i] = model.Conversation{ID: id, ParticipantA: "u-self", ParticipantB: "u-" + id}
	}
	return &rest.ConversationPage{
		Conversations: convs,
		Total:         totalPages * len(ids),
		Page:          page,
		TotalPages:    totalPages,
	}
}

func TestLoadFirstPageReplaces(t *testing.T) {
	api := &fakeConvAPI{pages: map[int]*rest.ConversationPage{
		1: convPage(1, 2, "c-1", "c-2"),
	}}
	l := NewConversationList(api, "u-self", 20)
	l.Seed([]model.Conversation{{ID: "c-stale"}})

	if err := l.Load(context.Background(), 1); err != nil {
		t.Fatalf("Load: %v", err)
	}

	items := l.Items()
	if len(items) != 2 || items[0].ID != "c-1" || items[1].ID != "c-2" {
		t.Errorf("items = %v, want seeded entries replaced by page 1", ids(items))
	}
	page, totalPages, _ := l.Pagination()
	if page != 1 || totalPages != 2 {
		t.Errorf("pagination = %d/%d, want 1/2", page, totalPages)
	}
}

func TestLoadLaterPageAppends(t *testing.T) {
	api := &fakeConvAPI{pages: map[int]*rest.ConversationPage{
		1: convPage(1, 2, "c-1", "c-2"),
		2: convPage(2, 2, "c-3", "c-4"),
	}}
	l := NewConversationList(api, "u-self", 20)

	if err := l.Load(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := l.Load(context.Background(), 2); err != nil {
		t.Fatal(err)
	}

	items := l.Items()
	want := []string{"c-1", "c-2", "c-3", "c-4"}
	if len(items) != len(want) {
		t.Fatalf("items = %v, want %v", ids(items), want)
	}
	for i := range want {
		if items[i].ID != want[i] {
			t.Errorf("items[%d] = %s, want %s", i, items[i].ID, want[i])
		}
	}
}

func TestLoadFailurePreservesItems(t *testing.T) {
	api := &fakeConvAPI{pages: map[int]*rest.ConversationPage{
		1: convPage(1, 1, "c-1"),
	}}
	l := NewConversationList(api, "u-self", 20)
	if err := l.Load(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	api.err = errors.New("gateway timeout")
	if err := l.Load(context.Background(), 1); err == nil {
		t.Fatal("Load should surface the fetch error")
	}

	if items := l.Items(); len(items) != 1 || items[0].ID != "c-1" {
		t.Errorf("items = %v, prior state should survive a failed fetch", ids(items))
	}
	if l.Err() == "" {
		t.Error("Err() should record the failure")
	}

	// A subsequent success clears the error.
	api.err = nil
	if err := l.Load(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if l.Err() != "" {
		t.Errorf("Err() = %q after recovery, want empty", l.Err())
	}
}

func TestApplyInboundUpdatesAndMovesToFront(t *testing.T) {
	l := NewConversationList(&fakeConvAPI{}, "u-self", 20)
	l.Seed([]model.Conversation{
		{ID: "c-1", UnreadCount: 0},
		{ID: "c-2", UnreadCount: 1},
		{ID: "c-3"},
	})

	now := time.Now()
	l.ApplyInbound(model.Message{
		ID: "m-1", ConversationID: "c-2", SenderID: "u-peer",
		Content: "salaam", CreatedAt: now,
	}, "")

	items := l.Items()
	want := []string{"c-2", "c-1", "c-3"}
	for i := range want {
		if items[i].ID != want[i] {
			t.Fatalf("order = %v, want %v", ids(items), want)
		}
	}
	if items[0].LastMessage != "salaam" || !items[0].LastMessageAt.Equal(now) {
		t.Errorf("preview not updated: %+v", items[0])
	}
	if items[0].UnreadCount != 2 {
		t.Errorf("UnreadCount = %d, want 2", items[0].UnreadCount)
	}
}

func TestApplyInboundActiveConversationNoUnread(t *testing.T) {
	l := NewConversationList(&fakeConvAPI{}, "u-self", 20)
	l.Seed([]model.Conversation{{ID: "c-1"}})

	l.ApplyInbound(model.Message{ID: "m-1", ConversationID: "c-1", Content: "hi"}, "c-1")

	if got := l.Items()[0].UnreadCount; got != 0 {
		t.Errorf("UnreadCount = %d for the open conversation, want 0", got)
	}
}

func TestApplyInboundOwnEchoDoesNotCountUnread(t *testing.T) {
	l := NewConversationList(&fakeConvAPI{}, "u-self", 20)
	l.Seed([]model.Conversation{{ID: "c-1"}, {ID: "c-2"}})

	// A broadcast echo of the user's own message for a room that is
	// not open updates the preview but is never unread.
	now := time.Now()
	l.ApplyInbound(model.Message{
		ID: "m-1", ConversationID: "c-2", SenderID: "u-self",
		Content: "sent elsewhere", CreatedAt: now,
	}, "")

	items := l.Items()
	if items[0].ID != "c-2" || items[0].LastMessage != "sent elsewhere" {
		t.Fatalf("items[0] = %+v, want c-2 moved to front with preview", items[0])
	}
	if items[0].UnreadCount != 0 {
		t.Errorf("UnreadCount = %d for own message, want 0", items[0].UnreadCount)
	}
}

func TestApplyInboundUnknownConversationInsertsAtHead(t *testing.T) {
	l := NewConversationList(&fakeConvAPI{}, "u-self", 20)
	l.Seed([]model.Conversation{{ID: "c-1"}})

	l.ApplyInbound(model.Message{
		ID: "m-1", ConversationID: "c-new", SenderID: "u-peer", Content: "hello",
	}, "")

	items := l.Items()
	if len(items) != 2 || items[0].ID != "c-new" {
		t.Fatalf("items = %v, want c-new at head", ids(items))
	}
	if items[0].UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1", items[0].UnreadCount)
	}
}

func TestMarkReadZeroesCounter(t *testing.T) {
	l := NewConversationList(&fakeConvAPI{}, "u-self", 20)
	l.Seed([]model.Conversation{{ID: "c-1", UnreadCount: 7}})

	l.MarkRead("c-1")
	if got := l.Items()[0].UnreadCount; got != 0 {
		t.Errorf("UnreadCount = %d after MarkRead, want 0", got)
	}
}

func TestRemove(t *testing.T) {
	l := NewConversationList(&fakeConvAPI{}, "u-self", 20)
	l.Seed([]model.Conversation{{ID: "c-1"}, {ID: "c-2"}})

	l.Remove("c-1")
	items := l.Items()
	if len(items) != 1 || items[0].ID != "c-2" {
		t.Errorf("items = %v after Remove, want [c-2]", ids(items))
	}

	if _, ok := l.Get("c-1"); ok {
		t.Error("Get(c-1) should miss after Remove")
	}
}

func ids(convs []model.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}
