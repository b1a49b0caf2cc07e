package wa

import (
	"context"
	"fmt"

	"github.com/lfmelo/zapcrm/internal/bus"
	"github.com/lfmelo/zapcrm/internal/conn"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// Adapter implements conn.Transport on top of the whatsmeow client. It
// publishes lifecycle events (conn.*) and inbound messages
// (transport.message) on the bus; the connection manager reacts to those.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	bus       *bus.Bus
	logger    *zap.Logger
}

var _ conn.Transport = (*Adapter)(nil)

// NewAdapter creates a WhatsApp adapter backed by the credential store at
// dbPath.
func NewAdapter(ctx context.Context, dbPath string, b *bus.Bus, logger *zap.Logger) (*Adapter, error) {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("ZapCRM", [3]uint32{0, 1, 0})

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create credential store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	a := &Adapter{
		client:    whatsmeow.NewClient(deviceStore, nil),
		container: container,
		bus:       b,
		logger:    logger,
	}
	a.client.AddEventHandler(a.handleEvent)
	return a, nil
}

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// Initialize brings the connection up. For an unpaired device it starts the
// QR pairing flow and streams pairing codes to the bus.
func (a *Adapter) Initialize(ctx context.Context) error {
	if a.IsLoggedIn() {
		a.logger.Info("connecting with stored credentials")
		return a.client.Connect()
	}

	// GetQRChannel must be called before Connect.
	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get QR channel: %w", err)
	}
	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	go a.pumpQR(qrChan)
	return nil
}

func (a *Adapter) pumpQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			a.bus.Publish(bus.Event{Kind: bus.KindQRIssued, Payload: item.Code})
		case "success":
			a.bus.Publish(bus.Event{Kind: bus.KindAuthenticated})
			return
		case "timeout":
			a.bus.Publish(bus.Event{Kind: bus.KindAuthFailed, Payload: "pairing code timeout"})
			return
		default:
			if item.Error != nil {
				a.bus.Publish(bus.Event{Kind: bus.KindAuthFailed, Payload: item.Error.Error()})
				return
			}
		}
	}
}

// Send sends a text message to a bare phone number. Returns the server
// message ID.
func (a *Adapter) Send(ctx context.Context, recipient, body string) (string, error) {
	to := types.NewJID(recipient, types.DefaultUserServer)
	resp, err := a.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// Logout invalidates the session and removes credentials.
func (a *Adapter) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}

// Destroy drops the network connection. The credential store stays open so a
// later Initialize can reuse it; Close releases it at process shutdown.
func (a *Adapter) Destroy() error {
	a.client.Disconnect()
	return nil
}

// Close releases the credential store.
func (a *Adapter) Close() error {
	a.client.Disconnect()
	return a.container.Close()
}

// GetContactInfo looks up a contact name in the device store.
func (a *Adapter) GetContactInfo(ctx context.Context, phone string) (conn.ContactInfo, error) {
	jid := types.NewJID(phone, types.DefaultUserServer)
	info, err := a.client.Store.Contacts.GetContact(ctx, jid)
	if err != nil {
		return conn.ContactInfo{}, fmt.Errorf("get contact: %w", err)
	}
	if !info.Found {
		return conn.ContactInfo{}, fmt.Errorf("contact %s not found", phone)
	}
	name := info.FullName
	if name == "" {
		name = info.PushName
	}
	if name == "" {
		name = info.BusinessName
	}
	return conn.ContactInfo{Name: name}, nil
}

// PhoneNumber returns the paired phone number, or empty string.
func (a *Adapter) PhoneNumber() string {
	if a.client.Store.ID == nil {
		return ""
	}
	return a.client.Store.ID.User
}
