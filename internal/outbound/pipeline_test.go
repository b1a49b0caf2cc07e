package outbound

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/lfmelo/zapcrm/internal/bus"
	"github.com/lfmelo/zapcrm/internal/conn"
	"github.com/lfmelo/zapcrm/internal/store"
	"go.uber.org/zap"
)

// fakeSender records dispatches and returns configurable results.
type fakeSender struct {
	connected bool
	sendID    string
	sendErr   error
	sent      [][2]string
}

func (f *fakeSender) Send(_ context.Context, recipient, body string) (string, error) {
	f.sent = append(f.sent, [2]string{recipient, body})
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return f.sendID, nil
}

func (f *fakeSender) Status() conn.Status {
	return conn.Status{Connected: f.connected}
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testPipeline(t *testing.T, db *store.DB, sender Sender) *Pipeline {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return NewPipeline(db, sender, bus.New(), logger)
}

func TestSendRejectsWhenNotConnected(t *testing.T) {
	db := testDB(t)
	fs := &fakeSender{connected: false}
	p := testPipeline(t, db, fs)

	_, err := p.Send(context.Background(), Request{Phone: "15551234567", Body: "hi"})
	if !errors.Is(err, conn.ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
	if len(fs.sent) != 0 {
		t.Error("nothing should be dispatched when not connected")
	}
}

func TestSendValidation(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		body  string
		want  ValidationCode
	}{
		{"empty phone", "", "hi", EmptyPhone},
		{"non digits only", "abc-def", "hi", EmptyPhone},
		{"too short", "555123", "hi", TooShort},
		{"nine digits", "555123456", "hi", TooShort},
		{"too long", "1234567890123456", "hi", TooLong},
		{"empty message", "15551234567", "   ", EmptyMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testDB(t)
			fs := &fakeSender{connected: true, sendID: "MSG"}
			p := testPipeline(t, db, fs)

			_, err := p.Send(context.Background(), Request{Phone: tt.phone, Body: tt.body})
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if verr.Code != tt.want {
				t.Errorf("code = %s, want %s", verr.Code, tt.want)
			}
			if len(fs.sent) != 0 {
				t.Error("invalid request must be rejected before dispatch")
			}
			if n, _ := db.MessageCount(); n != 0 {
				t.Errorf("message count = %d, want 0", n)
			}
		})
	}
}

func TestSendNormalizesPhoneBeforeDispatch(t *testing.T) {
	db := testDB(t)
	fs := &fakeSender{connected: true, sendID: "MSG"}
	p := testPipeline(t, db, fs)

	if _, err := p.Send(context.Background(), Request{Phone: "+1 (234) 567-8901", Body: "hi"}); err != nil {
		t.Fatal(err)
	}
	if fs.sent[0][0] != "12345678901" {
		t.Errorf("dispatched to %q, want 12345678901", fs.sent[0][0])
	}
}

func TestSendSuccessPersistsMessageAndUpdatesContact(t *testing.T) {
	db := testDB(t)
	c := &store.Contact{Phone: "15551234567", QueryStatus: store.StatusNew, UnreadCount: 2}
	if err := db.CreateContact(c); err != nil {
		t.Fatal(err)
	}

	fs := &fakeSender{connected: true, sendID: "3EB0F0"}
	p := testPipeline(t, db, fs)

	res, err := p.Send(context.Background(), Request{Phone: "15551234567", Body: "on it"})
	if err != nil {
		t.Fatal(err)
	}
	if res.MessageID != "3EB0F0" {
		t.Errorf("message id = %q, want 3EB0F0", res.MessageID)
	}
	if res.ContactID != c.ID {
		t.Errorf("contact id = %q, want %q", res.ContactID, c.ID)
	}

	got, _ := db.GetContactByID(c.ID)
	if got.QueryStatus != store.StatusInProgress {
		t.Errorf("query_status = %s, want in-progress (agent responded)", got.QueryStatus)
	}
	if got.LastContactedAt == 0 {
		t.Error("last_contacted_at not set")
	}
	if got.UnreadCount != 2 {
		t.Errorf("unread_count = %d, want 2 (outbound send must not touch it)", got.UnreadCount)
	}

	msgs, _ := db.ListMessages(c.ID, 0)
	if len(msgs) != 1 {
		t.Fatalf("message count = %d, want 1", len(msgs))
	}
	if msgs[0].Direction != store.Outbound || msgs[0].DeliveryStatus != store.DeliverySent {
		t.Errorf("message = %+v", msgs[0])
	}
	if msgs[0].ID != "3EB0F0" {
		t.Errorf("message id = %q, want the provider id so receipts can find it", msgs[0].ID)
	}
}

func TestSendAutoCreatesPlaceholderContact(t *testing.T) {
	db := testDB(t)
	fs := &fakeSender{connected: true, sendID: "MSG"}
	p := testPipeline(t, db, fs)

	res, err := p.Send(context.Background(), Request{Phone: "15559876543", Body: "hello"})
	if err != nil {
		t.Fatal(err)
	}

	c, _ := db.GetContactByPhone("15559876543")
	if c == nil {
		t.Fatal("placeholder contact not created")
	}
	if c.ID != res.ContactID {
		t.Errorf("result contact = %q, stored %q", res.ContactID, c.ID)
	}
	if c.DisplayName != "WhatsApp 6543" {
		t.Errorf("display_name = %q", c.DisplayName)
	}
	if c.QueryStatus != store.StatusInProgress {
		t.Errorf("query_status = %s, want in-progress (new then agent-responded)", c.QueryStatus)
	}
}

func TestSendResolvesByContactID(t *testing.T) {
	db := testDB(t)
	c := &store.Contact{Phone: "15551234567"}
	if err := db.CreateContact(c); err != nil {
		t.Fatal(err)
	}
	fs := &fakeSender{connected: true, sendID: "MSG"}
	p := testPipeline(t, db, fs)

	res, err := p.Send(context.Background(), Request{Phone: "15551234567", Body: "hi", ContactID: c.ID})
	if err != nil {
		t.Fatal(err)
	}
	if res.ContactID != c.ID {
		t.Errorf("contact id = %q, want %q", res.ContactID, c.ID)
	}
}

func TestSendClassifiesDispatchFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureCode
	}{
		{"not registered", errors.New("recipient is not registered on whatsapp"), NotRegistered},
		{"session lost", errors.New("websocket not connected"), SessionLost},
		{"timeout", errors.New("send timed out after 30s"), Timeout},
		{"context deadline", context.DeadlineExceeded, Timeout},
		{"rate limited", errors.New("server returned rate-overlimit"), RateLimited},
		{"unknown", errors.New("something odd happened"), Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testDB(t)
			fs := &fakeSender{connected: true, sendErr: tt.err}
			p := testPipeline(t, db, fs)

			_, err := p.Send(context.Background(), Request{Phone: "15551234567", Body: "hi"})
			var serr *SendError
			if !errors.As(err, &serr) {
				t.Fatalf("err = %v, want *SendError", err)
			}
			if serr.Code != tt.want {
				t.Errorf("code = %s, want %s", serr.Code, tt.want)
			}
			// No side record on dispatch failure.
			if n, _ := db.MessageCount(); n != 0 {
				t.Errorf("message count = %d, want 0", n)
			}
			if n, _ := db.ContactCount(); n != 0 {
				t.Errorf("contact count = %d, want 0", n)
			}
		})
	}
}

func TestSendErrorHTTPMapping(t *testing.T) {
	tests := []struct {
		code FailureCode
		want int
	}{
		{NotRegistered, 400},
		{SessionLost, 503},
		{Timeout, 504},
		{RateLimited, 429},
		{Unknown, 500},
	}
	for _, tt := range tests {
		e := &SendError{Code: tt.code, Err: errors.New("x")}
		if got := e.HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
		if e.UserMessage() == "" {
			t.Errorf("UserMessage(%s) is empty", tt.code)
		}
	}
}

func TestValidateAcceptsE164Range(t *testing.T) {
	for _, digits := range []string{"1234567890", "123456789012345"} {
		if _, verr := Validate(digits, "body"); verr != nil {
			t.Errorf("Validate(%q) = %v, want accept", digits, verr)
		}
	}
}
