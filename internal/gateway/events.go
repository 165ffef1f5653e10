package gateway

import (
	"encoding/json"
	"time"

	"github.com/zawajapp/zawaj/internal/bus"
	"github.com/zawajapp/zawaj/internal/model"
	"go.uber.org/zap"
)

// translate decodes a server frame into a bus event. Returns false for
// unknown events and undecodable payloads; the channel stays healthy
// either way.
func translate(f Frame, logger *zap.Logger) (bus.Event, bool) {
	now := time.Now()

	decode := func(v any) bool {
		if err := json.Unmarshal(f.Data, v); err != nil {
			if logger != nil {
				logger.Warn("undecodable gateway payload", zap.String("event", f.Event), zap.Error(err))
			}
			return false
		}
		return true
	}

	switch f.Event {
	case evtMessageReceived:
		var p messageReceivedPayload
		if !decode(&p) {
			return bus.Event{}, false
		}
		convID := p.ConversationID
		if convID == "" {
			convID = p.Message.ConversationID
		}
		return bus.Event{Kind: bus.KindMessageReceived, Timestamp: now, Payload: bus.MessageReceived{
			ConversationID: convID,
			Message:        p.Message,
			ClientMsgID:    p.ClientMsgID,
		}}, true

	case evtMessageDelivered:
		var p messageDeliveredPayload
		if !decode(&p) {
			return bus.Event{}, false
		}
		return bus.Event{Kind: bus.KindMessageDelivered, Timestamp: now, Payload: bus.MessageDelivered{
			ConversationID: p.ConversationID,
			MessageID:      p.MessageID,
		}}, true

	case evtMessageRead:
		var p messageReadPayload
		if !decode(&p) {
			return bus.Event{}, false
		}
		return bus.Event{Kind: bus.KindMessageRead, Timestamp: now, Payload: bus.MessageRead{
			ConversationID: p.ConversationID,
			ReadBy:         p.ReadBy,
		}}, true

	case evtUserTyping:
		var p userTypingPayload
		if !decode(&p) {
			return bus.Event{}, false
		}
		return bus.Event{Kind: bus.KindTypingUpdate, Timestamp: now, Payload: bus.TypingUpdate{
			ConversationID: p.ConversationID,
			UserID:         p.UserID,
			IsTyping:       p.IsTyping,
		}}, true

	case evtUserOnline:
		var p presencePayload
		if !decode(&p) {
			return bus.Event{}, false
		}
		return bus.Event{Kind: bus.KindPresenceOnline, Timestamp: now, Payload: bus.PresenceUpdate{
			UserID: p.UserID,
			Online: true,
		}}, true

	case evtUserOffline:
		var p presencePayload
		if !decode(&p) {
			return bus.Event{}, false
		}
		return bus.Event{Kind: bus.KindPresenceOffline, Timestamp: now, Payload: bus.PresenceUpdate{
			UserID: p.UserID,
			Online: false,
		}}, true

	case evtUserStatusChanged:
		var p presencePayload
		if !decode(&p) {
			return bus.Event{}, false
		}
		return bus.Event{Kind: bus.KindPresenceChanged, Timestamp: now, Payload: bus.PresenceUpdate{
			UserID: p.UserID,
			Online: p.IsOnline,
		}}, true

	case evtOnlineUsersList:
		var p onlineUsersPayload
		if !decode(&p) {
			return bus.Event{}, false
		}
		snap := bus.PresenceSnapshot{Users: make([]bus.PresenceUpdate, 0, len(p.Users))}
		for _, u := range p.Users {
			snap.Users = append(snap.Users, bus.PresenceUpdate{UserID: u.UserID, Online: u.IsOnline})
		}
		return bus.Event{Kind: bus.KindPresenceSnapshot, Timestamp: now, Payload: snap}, true

	case evtNotificationReceived:
		var n model.Notification
		if !decode(&n) {
			return bus.Event{}, false
		}
		return bus.Event{Kind: bus.KindNotification, Timestamp: now, Payload: n}, true
	}

	if logger != nil {
		logger.Debug("unknown gateway event", zap.String("event", f.Event))
	}
	return bus.Event{}, false
}
