package bus

import (
	"time"

	"github.com/zawajapp/zawaj/internal/model"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds, namespaced by topic prefix so components can subscribe
// to exactly the slice of traffic they own.
const (
	// conn.* — connection lifecycle, published by the gateway manager.
	KindConnUp            = "conn.up"
	KindConnDown          = "conn.down"
	KindConnStatusChanged = "conn.status_changed"

	// message.* — inbound realtime message traffic.
	KindMessageReceived  = "message.received"
	KindMessageDelivered = "message.delivered"
	KindMessageRead      = "message.read"

	// presence.* — online/offline tracking.
	KindPresenceOnline   = "presence.online"
	KindPresenceOffline  = "presence.offline"
	KindPresenceChanged  = "presence.changed"
	KindPresenceSnapshot = "presence.snapshot"

	// typing.* — ephemeral typing signals.
	KindTypingUpdate = "typing.update"

	// notify.* — out-of-band platform notifications.
	KindNotification = "notify.received"
)

// MessageReceived is the payload for message.received.
type MessageReceived struct {
	ConversationID string
	Message        model.Message
	ClientMsgID    string
}

// MessageDelivered is the payload for message.delivered.
type MessageDelivered struct {
	ConversationID string
	MessageID      string
}

// MessageRead is the payload for message.read: the peer identified by
// ReadBy has read the conversation.
type MessageRead struct {
	ConversationID string
	ReadBy         string
}

// PresenceUpdate is the payload for presence.online, presence.offline
// and presence.changed.
type PresenceUpdate struct {
	UserID string
	Online bool
}

// PresenceSnapshot is the payload for presence.snapshot, the bulk
// online-users list delivered on connect.
type PresenceSnapshot struct {
	Users []PresenceUpdate
}

// TypingUpdate is the payload for typing.update.
type TypingUpdate struct {
	ConversationID string
	UserID         string
	IsTyping       bool
}
