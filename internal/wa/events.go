package wa

import (
	"fmt"

	"github.com/lfmelo/zapcrm/internal/bus"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// handleEvent translates whatsmeow events into typed bus events. The
// connection manager and ingestion pipeline subscribe independently; nothing
// here blocks the whatsmeow dispatch loop beyond a non-blocking publish.
func (a *Adapter) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		a.logger.Info("WhatsApp connected")
		a.bus.Publish(bus.Event{Kind: bus.KindReady})
	case *events.Disconnected:
		a.logger.Warn("WhatsApp disconnected")
		a.bus.Publish(bus.Event{Kind: bus.KindDisconnected, Payload: "connection closed"})
	case *events.LoggedOut:
		a.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		a.bus.Publish(bus.Event{Kind: bus.KindAuthFailed, Payload: "logged out: " + evt.Reason.String()})
	case *events.StreamError:
		a.bus.Publish(bus.Event{
			Kind:    bus.KindTransportError,
			Payload: fmt.Errorf("stream error: %s", evt.Code),
		})
	case *events.ConnectFailure:
		a.bus.Publish(bus.Event{
			Kind:    bus.KindTransportError,
			Payload: fmt.Errorf("connect failure: %s", evt.Reason.String()),
		})
	case *events.Message:
		a.handleMessage(evt)
	case *events.Receipt:
		a.handleReceipt(evt)
	}
}

// handleReceipt publishes delivery acknowledgements for sent messages.
// Retry and presence-style receipts are not delivery information and are
// dropped.
func (a *Adapter) handleReceipt(evt *events.Receipt) {
	status := receiptStatus(evt.Type)
	if status == "" || len(evt.MessageIDs) == 0 {
		return
	}
	a.bus.Publish(bus.Event{
		Kind:    bus.KindReceipt,
		Payload: bus.Receipt{MessageIDs: evt.MessageIDs, Status: status},
	})
}

func receiptStatus(t types.ReceiptType) string {
	switch t {
	case types.ReceiptTypeDelivered:
		return "delivered"
	case types.ReceiptTypeRead, types.ReceiptTypeReadSelf:
		return "read"
	default:
		return ""
	}
}

// handleMessage publishes inbound one-to-one text messages for ingestion.
// Own messages, group traffic, and non-text payloads are skipped.
func (a *Adapter) handleMessage(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}
	body := extractTextBody(evt.Message)
	if body == "" {
		return
	}
	a.bus.Publish(bus.Event{
		Kind: bus.KindInboundMessage,
		Payload: bus.InboundMessage{
			SenderID:  evt.Info.Sender.ToNonAD().String(),
			Body:      body,
			Timestamp: evt.Info.Timestamp,
		},
	})
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}
