package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lfmelo/zapcrm/internal/conn"
	"github.com/lfmelo/zapcrm/internal/convo"
	"github.com/lfmelo/zapcrm/internal/outbound"
	"github.com/lfmelo/zapcrm/internal/store"
	"go.uber.org/zap"
)

// Session is the slice of the connection manager the HTTP layer drives.
type Session interface {
	Status() conn.Status
	PairingArtifact(format string) conn.PairingArtifact
	Start()
	Stop(ctx context.Context)
	Reconnect(ctx context.Context)
}

// Sender dispatches an outbound message.
type Sender interface {
	Send(ctx context.Context, req outbound.Request) (*outbound.Result, error)
}

// Handler serves the CRM's HTTP API.
type Handler struct {
	session Session
	sender  Sender
	convos  *convo.Aggregator
	db      *store.DB
	logger  *zap.Logger
	settle  time.Duration

	// restartAfter schedules the automatic re-start after a disconnect
	// command. Swapped in tests to avoid real timers.
	restartAfter func(d time.Duration, fn func())
}

// NewHandler wires the HTTP layer. settle is the pause before the automatic
// re-start that follows a disconnect command.
func NewHandler(session Session, sender Sender, convos *convo.Aggregator, db *store.DB, settle time.Duration, logger *zap.Logger) *Handler {
	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &Handler{
		session: session,
		sender:  sender,
		convos:  convos,
		db:      db,
		logger:  logger,
		settle:  settle,
		restartAfter: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// Routes returns the API mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/pairing", h.handlePairing)
	mux.HandleFunc("/api/messages", h.handleSendMessage)
	mux.HandleFunc("/api/session/disconnect", h.handleDisconnect)
	mux.HandleFunc("/api/session/reconnect", h.handleReconnect)
	mux.HandleFunc("/api/contacts/", h.handleContactRoutes)
	mux.HandleFunc("/api/conversations", h.handleConversations)
	return mux
}

// SendMessageRequest is the JSON request body for POST /api/messages.
type SendMessageRequest struct {
	Phone     string `json:"phone"`
	Message   string `json:"message"`
	ContactID string `json:"contactId,omitempty"`
}

// SendMessageResponse is the JSON response for a successful send.
type SendMessageResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	ContactID string `json:"contactId,omitempty"`
	Message   string `json:"message"`
}

// PairingResponse is the JSON response for GET /api/pairing. Exactly one
// field is populated.
type PairingResponse struct {
	Status       string `json:"status,omitempty"`
	PairingCode  string `json:"pairingCode,omitempty"`
	PairingImage string `json:"pairingImage,omitempty"`
}

// ConversationsResponse is the JSON response for GET /api/conversations.
type ConversationsResponse struct {
	Conversations []convo.Summary `json:"conversations"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type ackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// handlePairing always answers with best-known state: a rendered image when
// requested and available, the raw code otherwise, or a status word when no
// pairing is pending.
func (h *Handler) handlePairing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.session.Status().Connected {
		writeJSON(w, http.StatusOK, PairingResponse{Status: "connected"})
		return
	}
	art := h.session.PairingArtifact(r.URL.Query().Get("format"))
	if art.Code == "" {
		writeJSON(w, http.StatusOK, PairingResponse{Status: "initializing"})
		return
	}
	if art.Image != nil {
		writeJSON(w, http.StatusOK, PairingResponse{
			PairingImage: "data:image/png;base64," + base64.StdEncoding.EncodeToString(art.Image),
		})
		return
	}
	writeJSON(w, http.StatusOK, PairingResponse{PairingCode: art.Code})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.sender.Send(r.Context(), outbound.Request{
		Phone:     req.Phone,
		Body:      req.Message,
		ContactID: req.ContactID,
	})
	if err != nil {
		h.writeSendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SendMessageResponse{
		Success:   true,
		MessageID: res.MessageID,
		ContactID: res.ContactID,
		Message:   "Message sent successfully",
	})
}

func (h *Handler) writeSendError(w http.ResponseWriter, err error) {
	if errors.Is(err, conn.ErrNotReady) {
		writeError(w, http.StatusBadRequest, "WhatsApp is not connected. Scan the QR code in Settings.")
		return
	}
	var verr *outbound.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Message)
		return
	}
	var serr *outbound.SendError
	if errors.As(err, &serr) {
		writeError(w, serr.HTTPStatus(), serr.UserMessage())
		return
	}
	h.logger.Error("send failed with unclassified error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Failed to send message.")
}

// handleDisconnect tears the session down and schedules an automatic
// re-start once the transport has had time to release its resources. It
// always reports success; teardown is best-effort.
func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.session.Stop(r.Context())
	h.restartAfter(h.settle, h.session.Start)
	writeJSON(w, http.StatusOK, ackResponse{Success: true, Message: "Disconnected. Session will restart shortly."})
}

func (h *Handler) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	go h.session.Reconnect(context.Background())
	writeJSON(w, http.StatusAccepted, ackResponse{Success: true, Message: "Reconnect in progress."})
}

// handleContactRoutes dispatches POST /api/contacts/{phone}/read.
func (h *Handler) handleContactRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/contacts/")
	phone, action, ok := strings.Cut(rest, "/")
	if !ok || action != "read" || phone == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	found, err := h.db.MarkContactRead(outbound.NormalizePhone(phone))
	if err != nil {
		h.logger.Error("mark read failed", zap.String("phone", phone), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to mark contact read")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "contact not found")
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Success: true})
}

func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	summaries, err := h.convos.List()
	if err != nil {
		h.logger.Error("conversation scan failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}
	writeJSON(w, http.StatusOK, ConversationsResponse{Conversations: summaries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}
