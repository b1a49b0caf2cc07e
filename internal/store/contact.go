package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GetContactByPhone returns the contact with the given bare phone number,
// or nil if none exists.
func (db *DB) GetContactByPhone(phone string) (*Contact, error) {
	return db.scanContact(db.QueryRow(`
		SELECT id, phone, display_name, unread_count, query_status, last_contacted_at
		FROM contacts WHERE phone = ?`, phone))
}

// GetContactByID returns the contact with the given id, or nil if none exists.
func (db *DB) GetContactByID(id string) (*Contact, error) {
	return db.scanContact(db.QueryRow(`
		SELECT id, phone, display_name, unread_count, query_status, last_contacted_at
		FROM contacts WHERE id = ?`, id))
}

func (db *DB) scanContact(row *sql.Row) (*Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.Phone, &c.DisplayName, &c.UnreadCount, &c.QueryStatus, &c.LastContactedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateContact inserts a new contact. A missing ID is generated. Returns
// ErrPhoneExists if another contact already owns the phone number, so callers
// racing on first sight of a number can fall back to the update path.
func (db *DB) CreateContact(c *Contact) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.QueryStatus == "" {
		c.QueryStatus = StatusNew
	}
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO contacts (id, phone, display_name, unread_count, query_status, last_contacted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Phone, c.DisplayName, c.UnreadCount, c.QueryStatus, c.LastContactedAt, now, now)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrPhoneExists
	}
	return err
}

// ErrPhoneExists reports a CreateContact collision on the phone column.
var ErrPhoneExists = fmt.Errorf("contact phone already exists")

// TouchContactInbound applies the inbound-message contact update as a single
// atomic statement: increment unread_count, reopen a resolved/closed query,
// and stamp last_contacted_at. Returns false if no contact has that phone.
// The conditional single UPDATE is what keeps a concurrent outbound update
// from losing the unread increment.
func (db *DB) TouchContactInbound(phone string, ts int64) (bool, error) {
	res, err := db.Exec(`
		UPDATE contacts SET
			unread_count = unread_count + 1,
			query_status = CASE WHEN query_status IN ('resolved', 'closed') THEN 'new' ELSE query_status END,
			last_contacted_at = ?,
			updated_at = ?
		WHERE phone = ?`,
		ts, time.Now().UnixMilli(), phone)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// TouchContactOutbound applies the agent-responded contact update atomically:
// stamp last_contacted_at and move a 'new' query to 'in-progress'.
func (db *DB) TouchContactOutbound(id string, ts int64) error {
	_, err := db.Exec(`
		UPDATE contacts SET
			last_contacted_at = ?,
			query_status = CASE WHEN query_status = 'new' THEN 'in-progress' ELSE query_status END,
			updated_at = ?
		WHERE id = ?`,
		ts, time.Now().UnixMilli(), id)
	return err
}

// MarkContactRead resets the unread counter for a contact. This is the only
// path that decreases unread_count.
func (db *DB) MarkContactRead(phone string) (bool, error) {
	res, err := db.Exec(`
		UPDATE contacts SET unread_count = 0, updated_at = ? WHERE phone = ?`,
		time.Now().UnixMilli(), phone)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ContactCount returns the total number of contacts.
func (db *DB) ContactCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM contacts`).Scan(&count)
	return count, err
}
