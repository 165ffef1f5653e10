package cache

import (
	"time"

	"github.com/zawajapp/zawaj/internal/model"
)

// UpsertConversation inserts or updates a conversation record.
func (db *DB) UpsertConversation(c *model.Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, participant_a, participant_b, last_message, last_message_at, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			participant_a = excluded.participant_a,
			participant_b = excluded.participant_b,
			last_message = excluded.last_message,
			last_message_at = excluded.last_message_at,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at`,
		c.ID, c.ParticipantA, c.ParticipantB, c.LastMessage, c.LastMessageAt.UnixMilli(), c.UnreadCount, now)
	return err
}

// ListConversations returns cached conversations, most recent first.
func (db *DB) ListConversations(limit int) ([]model.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, participant_a, participant_b, last_message, last_message_at, unread_count
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Conversation
	for rows.Next() {
		var c model.Conversation
		var lastAt int64
		if err := rows.Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &c.LastMessage, &lastAt, &c.UnreadCount); err != nil {
			return nil, err
		}
		c.LastMessageAt = time.UnixMilli(lastAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConversation removes a conversation and its messages.
func (db *DB) DeleteConversation(id string) error {
	if _, err := db.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return err
	}
	_, err := db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	return err
}
