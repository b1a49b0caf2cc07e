package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/lfmelo/zapcrm/internal/bus"
	"github.com/lfmelo/zapcrm/internal/conn"
	"github.com/lfmelo/zapcrm/internal/store"
	"go.uber.org/zap"
)

// Sender is the slice of the connection manager the pipeline needs.
type Sender interface {
	Send(ctx context.Context, recipient, body string) (string, error)
	Status() conn.Status
}

// Request is a caller-initiated send.
type Request struct {
	Phone     string
	Body      string
	ContactID string // optional; resolved by phone when empty
}

// Result reports a successful dispatch. ContactID may be empty if the
// best-effort contact resolution failed after the message was delivered.
type Result struct {
	MessageID string // provider message id
	ContactID string
}

// Pipeline validates and dispatches outbound sends, classifies provider
// failures, and records the outcome. Persistence after a successful dispatch
// is best-effort: the transport accepted the message, so storage failures are
// logged without downgrading the result.
type Pipeline struct {
	db     *store.DB
	sender Sender
	bus    *bus.Bus
	logger *zap.Logger
}

// NewPipeline creates an outbound send pipeline.
func NewPipeline(db *store.DB, sender Sender, b *bus.Bus, logger *zap.Logger) *Pipeline {
	return &Pipeline{db: db, sender: sender, bus: b, logger: logger}
}

// Send runs the full outbound path. Error values are one of
// conn.ErrNotReady, *ValidationError, or *SendError.
func (p *Pipeline) Send(ctx context.Context, req Request) (*Result, error) {
	if !p.sender.Status().Connected {
		return nil, conn.ErrNotReady
	}

	phone, verr := Validate(req.Phone, req.Body)
	if verr != nil {
		return nil, verr
	}

	providerID, err := p.sender.Send(ctx, phone, req.Body)
	if err != nil {
		if errors.Is(err, conn.ErrNotReady) {
			return nil, conn.ErrNotReady
		}
		serr := ClassifySendError(err)
		p.logger.Error("dispatch failed",
			zap.String("phone", phone), zap.String("code", string(serr.Code)), zap.Error(err))
		return nil, serr
	}

	now := time.Now().UnixMilli()
	result := &Result{MessageID: providerID}

	contact := p.resolveContact(phone, req.ContactID)
	if contact != nil {
		result.ContactID = contact.ID
	}

	// Keyed by the provider id so delivery receipts can find the row.
	msg := &store.Message{
		ID:             providerID,
		Phone:          phone,
		Direction:      store.Outbound,
		Body:           req.Body,
		Timestamp:      now,
		DeliveryStatus: store.DeliverySent,
		SentimentLabel: "neutral",
		SentimentScore: 0.5,
	}
	if contact != nil {
		msg.ContactID = contact.ID
	}
	if err := p.db.InsertMessage(msg); err != nil {
		p.logger.Error("message delivered but not recorded", zap.Error(err), zap.String("provider_id", providerID))
	}
	if contact != nil {
		if err := p.db.TouchContactOutbound(contact.ID, now); err != nil {
			p.logger.Error("contact update failed after send", zap.Error(err), zap.String("contact_id", contact.ID))
		}
	}

	p.bus.Publish(bus.Event{
		Kind:    bus.KindMessageSent,
		Payload: map[string]string{"provider_id": providerID, "phone": phone},
	})
	return result, nil
}

// resolveContact finds the target contact by id, then by phone, creating a
// placeholder on first sight of the number. Returns nil only if every
// best-effort step fails.
func (p *Pipeline) resolveContact(phone, contactID string) *store.Contact {
	if contactID != "" {
		c, err := p.db.GetContactByID(contactID)
		if err != nil {
			p.logger.Warn("contact lookup by id failed", zap.Error(err))
		}
		if c != nil {
			return c
		}
	}

	c, err := p.db.GetContactByPhone(phone)
	if err != nil {
		p.logger.Warn("contact lookup by phone failed", zap.Error(err))
		return nil
	}
	if c != nil {
		return c
	}

	c = &store.Contact{
		Phone:       phone,
		DisplayName: store.PlaceholderName(phone),
		QueryStatus: store.StatusNew,
	}
	err = p.db.CreateContact(c)
	if err == store.ErrPhoneExists {
		c, err = p.db.GetContactByPhone(phone)
		if err != nil {
			return nil
		}
		return c
	}
	if err != nil {
		p.logger.Warn("placeholder contact create failed", zap.Error(err))
		return nil
	}
	return c
}
