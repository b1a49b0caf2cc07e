package store

import (
	"time"

	"github.com/google/uuid"
)

// InsertMessage persists a message. A missing ID is generated and written
// back to m.
func (db *DB) InsertMessage(m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (id, contact_id, phone, direction, body, timestamp, delivery_status, sentiment_label, sentiment_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, nullIfEmpty(m.ContactID), m.Phone, m.Direction, m.Body, m.Timestamp,
		m.DeliveryStatus, m.SentimentLabel, m.SentimentScore, now)
	return err
}

// UpdateDeliveryStatus changes the only mutable field of a persisted message.
func (db *DB) UpdateDeliveryStatus(id, status string) error {
	_, err := db.Exec(`UPDATE messages SET delivery_status = ? WHERE id = ?`, status, id)
	return err
}

// ListMessages returns messages for a contact ordered by timestamp ascending.
func (db *DB) ListMessages(contactID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, COALESCE(contact_id, ''), phone, direction, body, timestamp, delivery_status, sentiment_label, sentiment_score
		FROM messages
		WHERE contact_id = ?
		ORDER BY timestamp ASC
		LIMIT ?`, contactID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ContactID, &m.Phone, &m.Direction, &m.Body, &m.Timestamp,
			&m.DeliveryStatus, &m.SentimentLabel, &m.SentimentScore); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// OrphanMessageCount returns how many messages have no resolvable contact.
func (db *DB) OrphanMessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE contact_id IS NULL`).Scan(&count)
	return count, err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
