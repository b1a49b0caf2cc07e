package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/lfmelo/zapcrm/internal/bus"
	"github.com/lfmelo/zapcrm/internal/conn"
	"github.com/lfmelo/zapcrm/internal/sentiment"
	"github.com/lfmelo/zapcrm/internal/store"
	"go.uber.org/zap"
)

// ContactEnricher looks up a display name for a phone number. The connection
// manager satisfies this.
type ContactEnricher interface {
	ContactInfo(ctx context.Context, phone string) (conn.ContactInfo, error)
}

// Pipeline consumes inbound transport messages from the bus, reconciles the
// contact record, classifies sentiment, and persists the message. Processing
// runs on its own goroutine so slow persistence never blocks the transport's
// dispatch loop. Failures are logged and the event dropped: ingestion is
// at-most-once, like the upstream transport's delivery.
type Pipeline struct {
	db     *store.DB
	enrich ContactEnricher
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(db *store.DB, enrich ContactEnricher, b *bus.Bus, logger *zap.Logger) *Pipeline {
	return &Pipeline{db: db, enrich: enrich, bus: b, logger: logger}
}

// Start subscribes to inbound transport messages on the bus.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	ch, unsub := p.bus.Subscribe("transport.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				p.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the pipeline.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Pipeline) handleEvent(ctx context.Context, evt bus.Event) {
	switch payload := evt.Payload.(type) {
	case bus.InboundMessage:
		if err := p.Ingest(ctx, payload); err != nil {
			p.logger.Error("inbound message dropped",
				zap.Error(err), zap.String("sender", payload.SenderID))
		}
	case bus.Receipt:
		p.applyReceipt(payload)
	}
}

// applyReceipt advances the delivery status of sent messages. Receipts for
// ids this store never recorded are harmless no-op updates.
func (p *Pipeline) applyReceipt(rcpt bus.Receipt) {
	for _, id := range rcpt.MessageIDs {
		if err := p.db.UpdateDeliveryStatus(id, rcpt.Status); err != nil {
			p.logger.Error("receipt not applied",
				zap.Error(err), zap.String("message_id", id))
		}
	}
}

// Ingest processes one inbound message to completion.
func (p *Pipeline) Ingest(ctx context.Context, msg bus.InboundMessage) error {
	phone := NormalizeSender(msg.SenderID)
	if phone == "" {
		return fmt.Errorf("sender %q has no phone number", msg.SenderID)
	}
	ts := msg.Timestamp.UnixMilli()

	contact, err := p.resolveContact(ctx, phone, ts)
	if err != nil {
		return fmt.Errorf("reconcile contact: %w", err)
	}

	label, score := sentiment.Classify(msg.Body)
	m := &store.Message{
		ContactID:      contact.ID,
		Phone:          phone,
		Direction:      store.Inbound,
		Body:           msg.Body,
		Timestamp:      ts,
		DeliveryStatus: store.DeliveryDelivered,
		SentimentLabel: string(label),
		SentimentScore: score,
	}
	if err := p.db.InsertMessage(m); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	p.bus.Publish(bus.Event{
		Kind:    bus.KindMessageIngested,
		Payload: map[string]string{"message_id": m.ID, "contact_id": contact.ID},
	})
	return nil
}

// resolveContact applies the inbound contact update, creating the contact on
// first sight of the phone number. The touch-first, create-on-miss order with
// a conflict fallback keeps the unread increment atomic even when two
// deliveries race on a brand-new number.
func (p *Pipeline) resolveContact(ctx context.Context, phone string, ts int64) (*store.Contact, error) {
	touched, err := p.db.TouchContactInbound(phone, ts)
	if err != nil {
		return nil, err
	}
	if touched {
		return p.db.GetContactByPhone(phone)
	}

	c := &store.Contact{
		Phone:           phone,
		DisplayName:     p.lookupName(ctx, phone),
		UnreadCount:     1,
		QueryStatus:     store.StatusNew,
		LastContactedAt: ts,
	}
	err = p.db.CreateContact(c)
	if err == store.ErrPhoneExists {
		// A concurrent delivery created the contact first; fall back to the
		// update path so this message's increment is not lost.
		if _, err := p.db.TouchContactInbound(phone, ts); err != nil {
			return nil, err
		}
		return p.db.GetContactByPhone(phone)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// lookupName asks the transport for a display name, falling back to a
// generic placeholder.
func (p *Pipeline) lookupName(ctx context.Context, phone string) string {
	if p.enrich != nil {
		info, err := p.enrich.ContactInfo(ctx, phone)
		if err == nil && info.Name != "" {
			return info.Name
		}
		if err != nil {
			p.logger.Debug("contact info lookup failed", zap.String("phone", phone), zap.Error(err))
		}
	}
	return store.PlaceholderName(phone)
}

// NormalizeSender reduces a transport sender id to a bare phone number:
// anything after the server or device separator is dropped, then non-digits
// are stripped ("15551234567:12@s.whatsapp.net" → "15551234567").
func NormalizeSender(senderID string) string {
	if i := strings.IndexAny(senderID, "@:."); i >= 0 {
		senderID = senderID[:i]
	}
	var b strings.Builder
	for _, r := range senderID {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
