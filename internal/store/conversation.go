package store

// ListConversations returns one row per contact that has at least one
// message, joined with its most recent message, ordered by that message's
// timestamp descending. Contacts with zero messages are omitted by the join;
// messages with no resolvable contact never match it.
func (db *DB) ListConversations() ([]ConversationRow, error) {
	rows, err := db.Query(`
		SELECT
			c.id, c.phone, c.display_name, c.unread_count, c.query_status, c.last_contacted_at,
			m.id, COALESCE(m.contact_id, ''), m.phone, m.direction, m.body, m.timestamp,
			m.delivery_status, m.sentiment_label, m.sentiment_score,
			(SELECT COUNT(*) FROM messages WHERE contact_id = c.id),
			COALESCE((
				SELECT sentiment_label FROM messages
				WHERE contact_id = c.id AND direction = 'inbound'
				ORDER BY timestamp DESC, id DESC LIMIT 1
			), 'neutral')
		FROM contacts c
		JOIN messages m ON m.id = (
			SELECT id FROM messages
			WHERE contact_id = c.id
			ORDER BY timestamp DESC, id DESC LIMIT 1
		)
		ORDER BY m.timestamp DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ConversationRow
	for rows.Next() {
		var r ConversationRow
		if err := rows.Scan(
			&r.Contact.ID, &r.Contact.Phone, &r.Contact.DisplayName,
			&r.Contact.UnreadCount, &r.Contact.QueryStatus, &r.Contact.LastContactedAt,
			&r.LastMessage.ID, &r.LastMessage.ContactID, &r.LastMessage.Phone,
			&r.LastMessage.Direction, &r.LastMessage.Body, &r.LastMessage.Timestamp,
			&r.LastMessage.DeliveryStatus, &r.LastMessage.SentimentLabel, &r.LastMessage.SentimentScore,
			&r.MessageCount, &r.LatestInbound,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
