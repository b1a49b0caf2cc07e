package store

// QueryStatus is the ticketing state of a contact's open query.
type QueryStatus string

const (
	StatusNew        QueryStatus = "new"
	StatusInProgress QueryStatus = "in-progress"
	StatusResolved   QueryStatus = "resolved"
	StatusClosed     QueryStatus = "closed"
)

// Direction says who originated a message.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Delivery statuses for a persisted message. Dispatch failures are never
// persisted, so a stored message only ever advances sent → delivered → read.
const (
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryRead      = "read"
)

// Contact is a CRM contact keyed by bare phone number (digits only).
// LastContactedAt is Unix milliseconds; 0 means never contacted.
type Contact struct {
	ID              string
	Phone           string
	DisplayName     string
	UnreadCount     int
	QueryStatus     QueryStatus
	LastContactedAt int64
}

// Message is one persisted message. ContactID may be empty if the contact
// could not be resolved at ingestion time. Immutable once written except
// DeliveryStatus.
type Message struct {
	ID             string
	ContactID      string
	Phone          string
	Direction      Direction
	Body           string
	Timestamp      int64
	DeliveryStatus string
	SentimentLabel string
	SentimentScore float64
}

// PlaceholderName builds a generic display name from the trailing digits of
// a phone number, for contacts created before any real name is known.
func PlaceholderName(phone string) string {
	tail := phone
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	return "WhatsApp " + tail
}

// ConversationRow is one row of the conversation scan: a contact joined with
// its most recent message and per-contact aggregates.
type ConversationRow struct {
	Contact       Contact
	LastMessage   Message
	MessageCount  int
	LatestInbound string // sentiment label of most recent inbound message, "neutral" if none
}
