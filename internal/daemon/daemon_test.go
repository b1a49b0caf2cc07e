package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lfmelo/zapcrm/internal/api"
	"github.com/lfmelo/zapcrm/internal/bus"
	"github.com/lfmelo/zapcrm/internal/conn"
	"github.com/lfmelo/zapcrm/internal/convo"
	"github.com/lfmelo/zapcrm/internal/ingest"
	"github.com/lfmelo/zapcrm/internal/lock"
	"github.com/lfmelo/zapcrm/internal/outbound"
	"github.com/lfmelo/zapcrm/internal/status"
	"github.com/lfmelo/zapcrm/internal/store"
	"go.uber.org/zap"
)

// nullTransport satisfies conn.Transport without a real messaging backend.
type nullTransport struct{}

func (nullTransport) Initialize(context.Context) error { return nil }
func (nullTransport) Send(context.Context, string, string) (string, error) {
	return "", conn.ErrNotReady
}
func (nullTransport) Logout(context.Context) error { return nil }
func (nullTransport) Destroy() error { return nil }
func (nullTransport) GetContactInfo(context.Context, string) (conn.ContactInfo, error) {
	return conn.ContactInfo{}, nil
}

// TestDaemonLifecycle wires the real components (minus the transport) the
// way the fx module does and drives them over HTTP.
func TestDaemonLifecycle(t *testing.T) {
	tmpDir := t.TempDir()

	lk, err := lock.Acquire(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(filepath.Join(tmpDir, "zapcrm.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	logger, _ := zap.NewDevelopment()
	b := bus.New()
	machine := status.NewMachine(b)
	mgr := conn.NewManager(nullTransport{}, machine, b, logger, conn.Config{})
	ing := ingest.NewPipeline(db, mgr, b, logger)
	out := outbound.NewPipeline(db, mgr, b, logger)
	agg := convo.NewAggregator(db, 0, logger)
	handler := api.NewHandler(mgr, out, agg, db, time.Millisecond, logger)

	srv, err := NewServer("127.0.0.1:0", handler, logger)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Run(ctx)
	ing.Start(ctx)
	defer ing.Stop()

	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	base := "http://" + srv.Addr()

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health = %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st conn.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if st.Connected {
		t.Error("connected = true before any start")
	}

	// Sends are rejected while the session is down.
	resp, err = http.Post(base+"/api/messages", "application/json",
		strings.NewReader(`{"phone":"15551234567","message":"hi"}`))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("send while down = %d, want 400", resp.StatusCode)
	}
}

func TestServerRejectsBadAddress(t *testing.T) {
	logger := zap.NewNop()
	h := api.NewHandler(nil, nil, nil, nil, time.Second, logger)
	if _, err := NewServer("256.256.256.256:99999", h, logger); err == nil {
		t.Error("NewServer should fail on an unbindable address")
	}
}
