package conn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lfmelo/zapcrm/internal/bus"
	"github.com/lfmelo/zapcrm/internal/status"
	"go.uber.org/zap"
)

// Config holds the retry and teardown policy knobs.
type Config struct {
	MaxRetries  int           // automatic reconnect attempts before Failed
	BaseDelay   time.Duration // first backoff delay
	MaxDelay    time.Duration // backoff ceiling
	SettleDelay time.Duration // pause between Stop and Start on Reconnect
}

func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 2 * time.Second
	}
	return c
}

// Status is the externally visible connection summary.
type Status struct {
	Connected      bool `json:"connected"`
	HasPairingCode bool `json:"hasPairingCode"`
}

// PairingArtifact is the current pairing code, optionally rendered as a PNG.
type PairingArtifact struct {
	Code  string
	Image []byte // PNG bytes; nil when not rendered
}

// Manager owns the lifecycle of the single messaging session. It drives the
// transport through the narrow Transport interface, reacts to conn.* bus
// events published by the transport, and schedules cancellable backoff
// retries on non-fatal failures.
type Manager struct {
	transport Transport
	machine   *status.Machine
	bus       *bus.Bus
	logger    *zap.Logger
	cfg       Config
	renderQR  func(code string) ([]byte, error)

	mu          sync.Mutex
	retryCount  int
	pairingCode string
	lastError   error
	retry       *retryToken

	// The transport handle does not support concurrent sends; sendMu
	// serializes access.
	sendMu sync.Mutex

	cancel context.CancelFunc
}

// NewManager creates a connection manager. The machine must start in Idle.
func NewManager(transport Transport, machine *status.Machine, b *bus.Bus, logger *zap.Logger, cfg Config) *Manager {
	return &Manager{
		transport: transport,
		machine:   machine,
		bus:       b,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		renderQR:  renderPNG,
	}
}

// Run subscribes to transport lifecycle events and processes them until ctx
// is cancelled or Shutdown is called.
func (m *Manager) Run(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	ch, unsub := m.bus.Subscribe("conn.", 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				m.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the event loop. It does not tear down the session; call
// Stop for that.
func (m *Manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Start begins transport bring-up. It is a no-op unless the session is Idle,
// Failed, or Disconnected, which makes duplicate concurrent start requests
// harmless.
func (m *Manager) Start() {
	cur := m.machine.Current()
	if cur != status.Idle && cur != status.Failed && cur != status.Disconnected {
		m.logger.Debug("start ignored", zap.String("state", string(cur)))
		return
	}

	m.mu.Lock()
	m.retry.Cancel()
	m.retry = nil
	m.retryCount = 0
	m.lastError = nil
	m.mu.Unlock()

	if err := m.machine.Transition(status.Initializing); err != nil {
		m.logger.Debug("start raced with another transition", zap.Error(err))
		return
	}
	m.logger.Info("session starting")
	go m.initialize()
}

// Stop tears the session down: cancel any pending retry, best-effort logout
// and destroy, then return to Idle regardless of teardown errors.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	m.retry.Cancel()
	m.retry = nil
	m.retryCount = 0
	m.pairingCode = ""
	m.mu.Unlock()

	if err := m.transport.Logout(ctx); err != nil {
		m.logger.Warn("logout failed", zap.Error(err))
	}
	if err := m.transport.Destroy(); err != nil {
		m.logger.Warn("transport destroy failed", zap.Error(err))
	}
	_ = m.machine.Transition(status.Idle)
	m.logger.Info("session stopped")
}

// Reconnect is Stop followed by Start, with a settling delay so the prior
// transport instance can release its resources first.
func (m *Manager) Reconnect(ctx context.Context) {
	m.Stop(ctx)
	select {
	case <-time.After(m.cfg.SettleDelay):
	case <-ctx.Done():
		return
	}
	m.Start()
}

// Send dispatches a text message. Fails with ErrNotReady unless the session
// is Ready.
func (m *Manager) Send(ctx context.Context, recipient, body string) (string, error) {
	if m.machine.Current() != status.Ready {
		return "", ErrNotReady
	}
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	return m.transport.Send(ctx, recipient, body)
}

// ContactInfo is a passthrough to the transport's contact lookup, used by
// the ingestion pipeline to enrich new contacts.
func (m *Manager) ContactInfo(ctx context.Context, phone string) (ContactInfo, error) {
	return m.transport.GetContactInfo(ctx, phone)
}

// Status reports the externally visible connection summary.
func (m *Manager) Status() Status {
	m.mu.Lock()
	hasCode := m.pairingCode != ""
	m.mu.Unlock()
	return Status{
		Connected:      m.machine.Current() == status.Ready,
		HasPairingCode: hasCode,
	}
}

// State returns the current session state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// RetryCount returns the number of reconnect attempts since the last
// successful Ready transition.
func (m *Manager) RetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCount
}

// LastError returns the most recent transport failure, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// PairingArtifact returns the current pairing code. With format "image" the
// code is also rendered to PNG; render failures fall back to the raw code.
func (m *Manager) PairingArtifact(format string) PairingArtifact {
	m.mu.Lock()
	code := m.pairingCode
	m.mu.Unlock()

	art := PairingArtifact{Code: code}
	if code == "" || format != "image" || m.renderQR == nil {
		return art
	}
	img, err := m.renderQR(code)
	if err != nil {
		m.logger.Warn("pairing code render failed", zap.Error(err))
		return art
	}
	art.Image = img
	return art
}

func (m *Manager) initialize() {
	if err := m.transport.Initialize(context.Background()); err != nil {
		m.logger.Error("transport initialization failed", zap.Error(err))
		m.handleTransportError(err)
	}
}

func (m *Manager) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindQRIssued:
		code, _ := evt.Payload.(string)
		m.handleQRIssued(code)
	case bus.KindAuthenticated:
		m.handleAuthenticated()
	case bus.KindReady:
		m.handleReady()
	case bus.KindAuthFailed:
		reason, _ := evt.Payload.(string)
		m.handleAuthFailed(reason)
	case bus.KindDisconnected:
		reason, _ := evt.Payload.(string)
		m.handleDisconnected(reason)
	case bus.KindTransportError:
		err, _ := evt.Payload.(error)
		m.handleTransportError(err)
	}
}

func (m *Manager) handleQRIssued(code string) {
	m.mu.Lock()
	m.pairingCode = code
	m.mu.Unlock()
	_ = m.machine.Transition(status.AwaitingScan)
	m.logger.Info("pairing code issued")
}

func (m *Manager) handleAuthenticated() {
	m.mu.Lock()
	m.pairingCode = ""
	m.mu.Unlock()
	_ = m.machine.Transition(status.Initializing)
	m.logger.Info("pairing scan accepted")
}

func (m *Manager) handleReady() {
	m.mu.Lock()
	m.retry.Cancel()
	m.retry = nil
	m.pairingCode = ""
	m.retryCount = 0
	m.lastError = nil
	m.mu.Unlock()
	_ = m.machine.Transition(status.Ready)
	m.logger.Info("session ready")
}

func (m *Manager) handleAuthFailed(reason string) {
	m.mu.Lock()
	m.retry.Cancel()
	m.retry = nil
	m.lastError = fmt.Errorf("%w: %s", ErrAuthFailed, reason)
	m.mu.Unlock()
	_ = m.machine.Transition(status.Failed)
	m.logger.Error("authentication failed", zap.String("reason", reason))
}

func (m *Manager) handleDisconnected(reason string) {
	cur := m.machine.Current()
	if cur == status.Idle || cur == status.Failed {
		// The session was already torn down; nothing to recover.
		return
	}
	m.logger.Warn("transport disconnected", zap.String("reason", reason))
	_ = m.machine.Transition(status.Disconnected)
	m.scheduleReconnect(fmt.Errorf("disconnected: %s", reason))
}

func (m *Manager) handleTransportError(err error) {
	if err == nil {
		return
	}
	switch classifyTransportError(err) {
	case classAuth:
		m.handleAuthFailed(err.Error())
	case classBusy:
		if m.machine.Current() != status.Initializing {
			// Resource contention outside bring-up resolves on its own.
			m.logger.Warn("transient resource-busy error ignored", zap.Error(err))
			return
		}
		fallthrough
	default: // classProtocol
		cur := m.machine.Current()
		if cur == status.Idle || cur == status.Failed {
			return
		}
		m.logger.Warn("transport protocol failure", zap.Error(err))
		_ = m.machine.Transition(status.Disconnected)
		m.scheduleReconnect(err)
	}
}

// scheduleReconnect books the next automatic reconnect attempt with
// exponential backoff, or gives up into Failed once the budget is spent.
func (m *Manager) scheduleReconnect(cause error) {
	m.mu.Lock()
	m.lastError = cause
	if m.retry != nil {
		// A disconnect and its stream error report the same outage; the
		// attempt already booked covers both without spending another
		// retry-budget slot.
		m.mu.Unlock()
		m.logger.Debug("reconnect already scheduled", zap.Error(cause))
		return
	}
	m.retryCount++
	attempt := m.retryCount
	if attempt > m.cfg.MaxRetries {
		m.lastError = fmt.Errorf("%w: %v", ErrTransportFatal, cause)
		m.mu.Unlock()
		_ = m.machine.Transition(status.Failed)
		m.logger.Error("retry budget exhausted, session failed",
			zap.Int("attempts", m.cfg.MaxRetries), zap.Error(cause))
		return
	}
	delay := backoffDelay(m.cfg, attempt)
	m.retry = scheduleRetry(delay, func(token *retryToken) {
		m.attemptReconnect(attempt, token)
	})
	m.mu.Unlock()
	m.logger.Info("reconnect scheduled",
		zap.Int("attempt", attempt), zap.Duration("delay", delay))
}

func (m *Manager) attemptReconnect(attempt int, token *retryToken) {
	m.mu.Lock()
	if m.retry == token {
		// This attempt is no longer pending; a failure during it may book
		// the next one.
		m.retry = nil
	}
	m.mu.Unlock()
	if m.machine.Current() != status.Disconnected {
		// Stop or Reconnect won the race; do not resurrect the session.
		return
	}
	if err := m.machine.Transition(status.Initializing); err != nil {
		return
	}
	m.logger.Info("reconnect attempt", zap.Int("attempt", attempt))
	m.initialize()
}

// backoffDelay computes min(BaseDelay * 2^(attempt-1), MaxDelay).
func backoffDelay(cfg Config, attempt int) time.Duration {
	d := cfg.BaseDelay << (attempt - 1)
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}
