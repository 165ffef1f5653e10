package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType classifies message content.
type MessageType string

const (
	TypeText   MessageType = "text"
	TypeImage  MessageType = "image"
	TypeAudio  MessageType = "audio"
	TypeSystem MessageType = "system"
)

// MessageStatus is the delivery state of a message from the sender's
// perspective. Transitions are monotonic: sent -> delivered -> read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

var statusRank = map[MessageStatus]int{
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Rank returns the ordering weight of a status. Unknown statuses rank 0.
func (s MessageStatus) Rank() int {
	return statusRank[s]
}

// Upgrade returns the higher of the two statuses, never downgrading.
func (s MessageStatus) Upgrade(to MessageStatus) MessageStatus {
	if to.Rank() > s.Rank() {
		return to
	}
	return s
}

// LocalIDPrefix is the reserved namespace for optimistic message ids.
// Server ids are never produced with this prefix.
const LocalIDPrefix = "local:"

// NewLocalID returns a fresh optimistic message id.
func NewLocalID() string {
	return LocalIDPrefix + uuid.New().String()
}

// IsLocalID reports whether id belongs to the optimistic namespace.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// Message is a chat message within a conversation.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"messageType"`
	Status         MessageStatus `json:"status"`
	Deleted        bool          `json:"isDeleted,omitempty"`
	FileURL        string        `json:"fileUrl,omitempty"`
	AudioDuration  int           `json:"audioDuration,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt,omitempty"`
}

// Optimistic reports whether the message is a not-yet-acknowledged
// local insert.
func (m *Message) Optimistic() bool {
	return IsLocalID(m.ID)
}

// Conversation is a two-party chat thread.
type Conversation struct {
	ID            string    `json:"id"`
	ParticipantA  string    `json:"participantA"`
	ParticipantB  string    `json:"participantB"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int       `json:"unreadCount"`
}

// Other resolves the peer participant relative to selfID. Falls back
// to ParticipantA when selfID matches neither.
func (c *Conversation) Other(selfID string) string {
	if c.ParticipantA == selfID {
		return c.ParticipantB
	}
	if c.ParticipantB == selfID {
		return c.ParticipantA
	}
	return c.ParticipantA
}

// PresenceRecord is the tracked online state of one user.
type PresenceRecord struct {
	Online     bool
	LastUpdate time.Time
}

// Notification is an out-of-band platform notification (new match,
// new like, system notice).
type Notification struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
