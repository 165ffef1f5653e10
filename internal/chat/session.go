// Package chat holds the client-side chat synchronization core: the
// conversation list store, the open-conversation message thread, and
// the Session that wires them to the gateway, the REST collaborator
// and the ancillary trackers.
package chat

import (
	"context"
	"io"
	"time"

	"github.com/zawajapp/zawaj/internal/bus"
	"github.com/zawajapp/zawaj/internal/cache"
	"github.com/zawajapp/zawaj/internal/gateway"
	"github.com/zawajapp/zawaj/internal/model"
	"github.com/zawajapp/zawaj/internal/notify"
	"github.com/zawajapp/zawaj/internal/presence"
	"github.com/zawajapp/zawaj/internal/rest"
	"github.com/zawajapp/zawaj/internal/typing"
	"go.uber.org/zap"
)

// Session is the per-login composition of the chat core. It owns the
// bus dispatch loop that fans inbound gateway events out to the
// stores, and exposes the operations the UI layer calls. Constructed
// once per session and torn down on logout.
type Session struct {
	selfID string

	bus      *bus.Bus
	gw       *gateway.Manager
	api      *rest.Client
	presence *presence.Tracker
	typing   *typing.Coordinator
	notify   *notify.Relay
	convs    *ConversationList
	thread   *Thread
	cache    *cache.DB
	logger   *zap.Logger

	cancel context.CancelFunc
}

// SessionDeps bundles the collaborators a Session composes.
type SessionDeps struct {
	SelfID   string
	Bus      *bus.Bus
	Gateway  *gateway.Manager
	API      *rest.Client
	Presence *presence.Tracker
	Typing   *typing.Coordinator
	Notify   *notify.Relay
	Convs    *ConversationList
	Thread   *Thread
	Cache    *cache.DB
	Logger   *zap.Logger
}

// NewSession creates a session from its dependencies.
func NewSession(d SessionDeps) *Session {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		selfID:   d.SelfID,
		bus:      d.Bus,
		gw:       d.Gateway,
		api:      d.API,
		presence: d.Presence,
		typing:   d.Typing,
		notify:   d.Notify,
		convs:    d.Convs,
		thread:   d.Thread,
		cache:    d.Cache,
		logger:   logger,
	}
}

// Start seeds the conversation list from the cache, starts the
// presence tracker and begins dispatching bus events to the stores.
func (s *Session) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.cache != nil {
		if cached, err := s.cache.ListConversations(100); err != nil {
			s.logger.Warn("cache seed failed", zap.Error(err))
		} else if len(cached) > 0 {
			s.convs.Seed(cached)
			s.logger.Info("conversation list seeded from cache", zap.Int("count", len(cached)))
		}
	}

	s.presence.Start(ctx)

	ch, unsub := s.bus.Subscribe("", 256)
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				s.handle(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the dispatch loop.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.presence.Stop()
}

func (s *Session) handle(evt bus.Event) {
	switch evt.Kind {
	case bus.KindMessageReceived:
		p, ok := evt.Payload.(bus.MessageReceived)
		if !ok {
			return
		}
		s.thread.ApplyReceived(p)
		s.convs.ApplyInbound(p.Message, s.activeConversationID())
		s.cacheMessage(p.Message)

	case bus.KindMessageDelivered:
		p, ok := evt.Payload.(bus.MessageDelivered)
		if !ok {
			return
		}
		s.thread.ApplyDelivered(p.ConversationID, p.MessageID)
		if s.cache != nil {
			if err := s.cache.SetMessageStatus(p.ConversationID, p.MessageID, model.StatusDelivered); err != nil {
				s.logger.Warn("cache status update failed", zap.Error(err))
			}
		}

	case bus.KindMessageRead:
		p, ok := evt.Payload.(bus.MessageRead)
		if !ok {
			return
		}
		s.thread.ApplyRead(p.ConversationID, p.ReadBy)
		if s.cache != nil {
			if err := s.cache.MarkSenderMessagesRead(p.ConversationID, s.selfID); err != nil {
				s.logger.Warn("cache read update failed", zap.Error(err))
			}
		}

	case bus.KindTypingUpdate:
		p, ok := evt.Payload.(bus.TypingUpdate)
		if !ok {
			return
		}
		s.typing.ApplyRemote(p.ConversationID, p.UserID, s.selfID, p.IsTyping)

	case bus.KindNotification:
		if n, ok := evt.Payload.(model.Notification); ok {
			s.notify.Add(n)
		}

	case bus.KindConnDown:
		// Typing state is channel-scoped; presence resets itself.
		s.typing.Reset()

	case bus.KindConnUp:
		s.afterReconnect()
	}
}

// afterReconnect refreshes channel-scoped views. Rooms of interest
// were already re-joined by the gateway; the open peer's presence is
// re-fetched so a status change during the gap is not missed.
func (s *Session) afterReconnect() {
	otherID := s.thread.OtherID()
	if otherID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		p, err := s.api.GetPresence(ctx, otherID)
		if err != nil {
			s.logger.Warn("presence refresh failed", zap.String("user_id", otherID), zap.Error(err))
			return
		}
		s.presence.Apply(p.UserID, p.IsOnline, time.Now())
	}()
}

func (s *Session) activeConversationID() string {
	if conv := s.thread.Conversation(); conv != nil {
		return conv.ID
	}
	return ""
}

// seedThreadFromCache backfills the open thread with cached history
// when the REST fetch failed, so the UI shows last-known-good content
// instead of an empty pane.
func (s *Session) seedThreadFromCache(conversationID string) {
	if s.cache == nil {
		return
	}
	cached, err := s.cache.ListMessages(conversationID, 0, 0)
	if err != nil || len(cached) == 0 {
		return
	}
	s.thread.Seed(conversationID, cached)
	s.logger.Info("thread seeded from cache",
		zap.String("conversation_id", conversationID), zap.Int("count", len(cached)))
}

func (s *Session) cacheMessage(m model.Message) {
	if s.cache == nil {
		return
	}
	if err := s.cache.UpsertMessage(&m); err != nil {
		s.logger.Warn("cache message failed", zap.Error(err))
	}
	if conv, ok := s.convs.Get(m.ConversationID); ok {
		if err := s.cache.UpsertConversation(&conv); err != nil {
			s.logger.Warn("cache conversation failed", zap.Error(err))
		}
	}
}

// Connect opens the realtime channel.
func (s *Session) Connect(ctx context.Context) error {
	return s.gw.Connect(ctx)
}

// Disconnect tears the realtime channel down. Conversation and
// message content stays as last-known-good cache.
func (s *Session) Disconnect() {
	s.gw.Disconnect()
}

// LoadConversations fetches a conversation page and writes it through
// to the cache.
func (s *Session) LoadConversations(ctx context.Context, page int) error {
	if err := s.convs.Load(ctx, page); err != nil {
		return err
	}
	if s.cache != nil {
		for _, conv := range s.convs.Items() {
			c := conv
			if err := s.cache.UpsertConversation(&c); err != nil {
				s.logger.Warn("cache conversation failed", zap.Error(err))
				break
			}
		}
	}
	return nil
}

// OpenConversation opens a conversation: history fetch, room join,
// typing rebind, peer presence lookup.
func (s *Session) OpenConversation(ctx context.Context, conv model.Conversation) error {
	s.typing.Bind(conv.ID)
	if err := s.thread.Open(ctx, conv); err != nil {
		s.seedThreadFromCache(conv.ID)
		return err
	}

	for _, m := range s.thread.Messages() {
		s.cacheMessage(m)
	}

	otherID := s.thread.OtherID()
	if otherID != "" {
		if p, err := s.api.GetPresence(ctx, otherID); err == nil {
			s.presence.Apply(p.UserID, p.IsOnline, time.Now())
		}
	}
	return nil
}

// CloseConversation leaves the open conversation.
func (s *Session) CloseConversation() {
	s.typing.Reset()
	s.thread.Close()
}

// LoadOlderMessages pages the open conversation backward.
func (s *Session) LoadOlderMessages(ctx context.Context) error {
	return s.thread.LoadMore(ctx)
}

// SendText sends a text message, stopping the typing indicator first.
func (s *Session) SendText(ctx context.Context, content string) (*model.Message, error) {
	s.typing.StopTyping()
	msg, err := s.thread.Send(ctx, Outgoing{Content: content, Type: model.TypeText})
	if err != nil {
		return nil, err
	}
	s.cacheMessage(*msg)
	return msg, nil
}

// SendImage uploads an image and sends it as a message.
func (s *Session) SendImage(ctx context.Context, filename string, r io.Reader) (*model.Message, error) {
	up, err := s.api.UploadImage(ctx, filename, r)
	if err != nil {
		return nil, err
	}
	s.typing.StopTyping()
	msg, err := s.thread.Send(ctx, Outgoing{
		Content: up.FileName,
		Type:    model.TypeImage,
		FileURL: up.FileURL,
	})
	if err != nil {
		return nil, err
	}
	s.cacheMessage(*msg)
	return msg, nil
}

// SendAudio uploads a voice recording and sends it as a message.
func (s *Session) SendAudio(ctx context.Context, filename string, r io.Reader, durationSeconds int) (*model.Message, error) {
	up, err := s.api.UploadAudio(ctx, filename, r)
	if err != nil {
		return nil, err
	}
	s.typing.StopTyping()
	msg, err := s.thread.Send(ctx, Outgoing{
		Content:       up.FileName,
		Type:          model.TypeAudio,
		FileURL:       up.FileURL,
		AudioDuration: durationSeconds,
	})
	if err != nil {
		return nil, err
	}
	s.cacheMessage(*msg)
	return msg, nil
}

// MarkRead emits the read receipt for the open conversation, zeroes
// its unread counter and syncs the REST collaborator.
func (s *Session) MarkRead(ctx context.Context) error {
	conv := s.thread.Conversation()
	if conv == nil {
		return ErrNoConversation
	}
	if err := s.thread.MarkRead(ctx); err != nil {
		return err
	}
	s.convs.MarkRead(conv.ID)
	if err := s.api.MarkConversationRead(ctx, conv.ID); err != nil {
		s.logger.Warn("rest mark read failed", zap.String("conversation_id", conv.ID), zap.Error(err))
	}
	return nil
}

// StartConversation creates (or fetches) the conversation with a
// recipient via REST and adds it to the list.
func (s *Session) StartConversation(ctx context.Context, recipientID string) (*model.Conversation, error) {
	conv, err := s.api.CreateConversation(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if _, ok := s.convs.Get(conv.ID); !ok {
		s.convs.Seed(append([]model.Conversation{*conv}, s.convs.Items()...))
	}
	if s.cache != nil {
		if err := s.cache.UpsertConversation(conv); err != nil {
			s.logger.Warn("cache conversation failed", zap.Error(err))
		}
	}
	return conv, nil
}

// DeleteConversation removes a conversation everywhere: REST, list,
// cache, and the open thread when it is the one being deleted.
func (s *Session) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.api.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}
	if conv := s.thread.Conversation(); conv != nil && conv.ID == conversationID {
		s.CloseConversation()
	}
	s.convs.Remove(conversationID)
	if s.cache != nil {
		if err := s.cache.DeleteConversation(conversationID); err != nil {
			s.logger.Warn("cache delete failed", zap.Error(err))
		}
	}
	return nil
}

// StartTyping signals local typing for the open conversation.
func (s *Session) StartTyping() { s.typing.StartTyping() }

// StopTyping ends the local typing signal.
func (s *Session) StopTyping() { s.typing.StopTyping() }

// Accessors for the UI layer.

func (s *Session) SelfID() string                   { return s.selfID }
func (s *Session) Conversations() *ConversationList { return s.convs }
func (s *Session) Thread() *Thread                  { return s.thread }
func (s *Session) Presence() *presence.Tracker      { return s.presence }
func (s *Session) Typing() *typing.Coordinator      { return s.typing }
func (s *Session) Notifications() *notify.Relay     { return s.notify }
func (s *Session) Connected() bool                  { return s.gw.Connected() }
