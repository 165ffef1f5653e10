package cache

import (
	"fmt"
	"time"

	"github.com/zawajapp/zawaj/internal/model"
)

// statusRank mirrors the in-memory status ordering so SQL updates
// stay monotonic: sent < delivered < read.
const statusRank = `CASE %s WHEN 'read' THEN 3 WHEN 'delivered' THEN 2 ELSE 1 END`

// UpsertMessage inserts or updates a message (idempotent on
// conversation_id + msg_id). Optimistic local ids are never cached,
// and a replay carrying a stale status never downgrades the row.
func (db *DB) UpsertMessage(m *model.Message) error {
	if m.Optimistic() {
		return nil
	}
	_, err := db.Exec(fmt.Sprintf(`
		INSERT INTO messages (conversation_id, msg_id, sender_id, content, message_type, status, deleted, file_url, audio_duration, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			content = excluded.content,
			status = CASE WHEN (%s) > (%s) THEN excluded.status ELSE messages.status END,
			deleted = excluded.deleted`,
		fmt.Sprintf(statusRank, "excluded.status"), fmt.Sprintf(statusRank, "messages.status")),
		m.ConversationID, m.ID, m.SenderID, m.Content, string(m.Type), string(m.Status), m.Deleted, m.FileURL, m.AudioDuration, m.CreatedAt.UnixMilli())
	return err
}

// SetMessageStatus upgrades a cached message's status. Receipts can
// arrive out of order; downgrades are ignored.
func (db *DB) SetMessageStatus(conversationID, msgID string, status model.MessageStatus) error {
	_, err := db.Exec(fmt.Sprintf(`
		UPDATE messages SET status = ?
		WHERE conversation_id = ? AND msg_id = ?
		  AND (%s) > (%s)`,
		fmt.Sprintf(statusRank, "?"), fmt.Sprintf(statusRank, "status")),
		string(status), conversationID, msgID, string(status))
	return err
}

// MarkSenderMessagesRead upgrades every cached message authored by
// senderID in a conversation to read.
func (db *DB) MarkSenderMessagesRead(conversationID, senderID string) error {
	_, err := db.Exec(`
		UPDATE messages SET status = 'read' WHERE conversation_id = ? AND sender_id = ?`,
		conversationID, senderID)
	return err
}

// ListMessages returns cached messages for a conversation in ascending
// creation order, newest capped at limit using keyset pagination.
func (db *DB) ListMessages(conversationID string, beforeTs int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT conversation_id, msg_id, sender_id, content, message_type, status, deleted, file_url, audio_duration, created_at
		FROM messages
		WHERE conversation_id = ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?`, conversationID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var msgType, status string
		var createdAt int64
		if err := rows.Scan(&m.ConversationID, &m.ID, &m.SenderID, &m.Content, &msgType, &status, &m.Deleted, &m.FileURL, &m.AudioDuration, &createdAt); err != nil {
			return nil, err
		}
		m.Type = model.MessageType(msgType)
		m.Status = model.MessageStatus(status)
		m.CreatedAt = time.UnixMilli(createdAt)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest-first; callers want ascending.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
