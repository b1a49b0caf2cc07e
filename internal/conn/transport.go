package conn

import "context"

// ContactInfo is the transport's best-known identity for a recipient.
type ContactInfo struct {
	Name string
}

// Transport is the narrow capability interface the connection manager drives.
// Implementations publish lifecycle and message events on the bus (the
// conn.* and transport.* kinds); the manager never touches transport
// internals beyond these calls.
type Transport interface {
	// Initialize brings the connection up. For an unpaired session it must
	// surface pairing codes as KindQRIssued events before completing.
	Initialize(ctx context.Context) error
	// Send delivers a text message and returns the provider message id.
	Send(ctx context.Context, recipient, body string) (string, error)
	// Logout invalidates the remote session credentials.
	Logout(ctx context.Context) error
	// Destroy tears down the connection handle. Must be safe after Logout.
	Destroy() error
	// GetContactInfo looks up a contact by bare phone number.
	GetContactInfo(ctx context.Context, phone string) (ContactInfo, error)
}
