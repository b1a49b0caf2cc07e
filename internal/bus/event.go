package bus

import "time"

// Kind identifies an event type. Kinds are dot-separated so subscribers can
// filter on a namespace prefix (e.g. "conn." for all transport lifecycle
// events).
type Kind string

// Transport lifecycle events published by the wa adapter and consumed by the
// connection manager.
const (
	KindQRIssued       Kind = "conn.qr_issued"       // payload: string (pairing code)
	KindAuthenticated  Kind = "conn.authenticated"   // payload: nil
	KindReady          Kind = "conn.ready"           // payload: nil
	KindAuthFailed     Kind = "conn.auth_failed"     // payload: string (reason)
	KindDisconnected   Kind = "conn.disconnected"    // payload: string (reason)
	KindTransportError Kind = "conn.transport_error" // payload: error
)

// Transport events consumed by the ingestion pipeline.
const (
	// KindInboundMessage carries an InboundMessage.
	KindInboundMessage Kind = "transport.message"
	// KindReceipt carries a Receipt for previously sent messages.
	KindReceipt Kind = "transport.receipt"
)

// Domain notifications.
const (
	KindStatusChanged   Kind = "session.status_changed"
	KindMessageIngested Kind = "message.ingested"
	KindMessageSent     Kind = "message.sent"
)

// InboundMessage is the payload of KindInboundMessage: one message event as
// surfaced by the transport, before any contact reconciliation.
type InboundMessage struct {
	SenderID  string // raw transport sender id (JID), not yet normalized
	Body      string
	Timestamp time.Time
}

// Receipt is the payload of KindReceipt: a delivery acknowledgement for one
// or more sent messages, identified by their provider message ids.
type Receipt struct {
	MessageIDs []string
	Status     string // "delivered" or "read"
}

// Event is a single occurrence published on the bus.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Payload   any
}
