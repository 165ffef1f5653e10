package gateway

import (
	"encoding/json"

	"github.com/zawajapp/zawaj/internal/model"
)

// Wire event names, client to server.
const (
	EvtJoinConversation  = "join_conversation"
	EvtLeaveConversation = "leave_conversation"
	EvtSendMessage       = "send_message"
	EvtTypingStart       = "typing_start"
	EvtTypingStop        = "typing_stop"
	EvtMessageRead       = "message_read"
	EvtPresenceSnapshot  = "presence_snapshot"
)

// Wire event names, server to client.
const (
	evtMessageReceived      = "message_received"
	evtMessageDelivered     = "message_delivered"
	evtMessageRead          = "message_read"
	evtUserTyping           = "user_typing"
	evtUserOnline           = "user_online"
	evtUserOffline          = "user_offline"
	evtUserStatusChanged    = "user_status_changed"
	evtOnlineUsersList      = "online_users_list"
	evtNotificationReceived = "notification_received"
	evtAck                  = "ack"
)

// Frame is the JSON envelope for every message on the channel.
// Client frames that expect an acknowledgment carry a nonzero AckID;
// the server answers with an "ack" frame bearing the same id.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID uint64          `json:"ackId,omitempty"`
}

// NewFrame marshals data into a frame for event.
func NewFrame(event string, data any) (Frame, error) {
	f := Frame{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Frame{}, err
		}
		f.Data = raw
	}
	return f, nil
}

// AckResult is the decoded data of an ack frame.
type AckResult struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Message *model.Message `json:"message,omitempty"`
}

// RoomPayload addresses a conversation room.
type RoomPayload struct {
	ConversationID string `json:"conversationId"`
}

// OutgoingMessage is the message body of a send_message command.
type OutgoingMessage struct {
	Content       string `json:"content"`
	MessageType   string `json:"messageType"`
	FileURL       string `json:"fileUrl,omitempty"`
	AudioDuration int    `json:"audioDuration,omitempty"`
}

// SendPayload is the data of a send_message command. ClientMsgID is a
// client-generated correlation token the server echoes back in the ack
// and broadcast, so optimistic entries reconcile without content
// matching.
type SendPayload struct {
	ConversationID string          `json:"conversationId"`
	Message        OutgoingMessage `json:"message"`
	ClientMsgID    string          `json:"clientMsgId"`
}

// Inbound payload shapes.

type messageReceivedPayload struct {
	Message        model.Message `json:"message"`
	ConversationID string        `json:"conversationId"`
	ClientMsgID    string        `json:"clientMsgId,omitempty"`
}

type messageDeliveredPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type messageReadPayload struct {
	ConversationID string `json:"conversationId"`
	ReadBy         string `json:"readBy"`
}

type userTypingPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type presencePayload struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

type onlineUsersPayload struct {
	Users []presencePayload `json:"users"`
}
