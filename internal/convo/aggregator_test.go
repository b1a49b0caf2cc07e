package convo

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lfmelo/zapcrm/internal/store"
	"go.uber.org/zap"
)

func TestComputeSLA(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	threshold := 120 * time.Minute

	tests := []struct {
		name        string
		elapsed     time.Duration
		wantOverdue bool
		wantUrgent  bool
		wantText    string
	}{
		{"comfortable", 89 * time.Minute, false, false, "0h 31m remaining"},
		{"urgent", 91 * time.Minute, false, true, "29m remaining"},
		{"overdue", 125 * time.Minute, true, true, "5m overdue"},
		{"exactly at threshold", 120 * time.Minute, true, true, "0m overdue"},
		{"urgent boundary", 90 * time.Minute, false, true, "30m remaining"},
		{"hours remaining", 5 * time.Minute, false, false, "1h 55m remaining"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last := now.Add(-tt.elapsed).UnixMilli()
			w := ComputeSLA(last, now, threshold)
			if w == nil {
				t.Fatal("window is nil")
			}
			if w.Overdue != tt.wantOverdue || w.Urgent != tt.wantUrgent {
				t.Errorf("overdue=%v urgent=%v, want %v %v", w.Overdue, w.Urgent, tt.wantOverdue, tt.wantUrgent)
			}
			if w.Text != tt.wantText {
				t.Errorf("text = %q, want %q", w.Text, tt.wantText)
			}
		})
	}
}

func TestComputeSLANeverContacted(t *testing.T) {
	if w := ComputeSLA(0, time.Now(), DefaultSLAThreshold); w != nil {
		t.Errorf("window = %+v, want nil", w)
	}
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

func seedMessage(t *testing.T, db *store.DB, contactID, phone string, dir store.Direction, body, sentiment string, ts int64) {
	t.Helper()
	err := db.InsertMessage(&store.Message{
		ContactID:      contactID,
		Phone:          phone,
		Direction:      dir,
		Body:           body,
		Timestamp:      ts,
		DeliveryStatus: store.DeliveryDelivered,
		SentimentLabel: sentiment,
		SentimentScore: 0.5,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestListBuildsSummaries(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	a := &store.Contact{Phone: "15551111111", DisplayName: "Ana", UnreadCount: 2,
		QueryStatus: store.StatusNew, LastContactedAt: now.Add(-91 * time.Minute).UnixMilli()}
	b := &store.Contact{Phone: "15552222222", DisplayName: "Bruno",
		QueryStatus: store.StatusInProgress, LastContactedAt: now.Add(-10 * time.Minute).UnixMilli()}
	for _, c := range []*store.Contact{a, b} {
		if err := db.CreateContact(c); err != nil {
			t.Fatal(err)
		}
	}

	t1 := now.Add(-91 * time.Minute).UnixMilli()
	t2 := now.Add(-10 * time.Minute).UnixMilli()
	seedMessage(t, db, a.ID, a.Phone, store.Inbound, "this is terrible", "negative", t1)
	seedMessage(t, db, a.ID, a.Phone, store.Outbound, "sorry, on it", "neutral", t1+1000)
	seedMessage(t, db, b.ID, b.Phone, store.Inbound, "thanks, great", "positive", t2)
	// Orphan message: excluded, only logged.
	seedMessage(t, db, "", "15553333333", store.Inbound, "lost", "neutral", t2)

	agg := NewAggregator(db, 0, zap.NewNop())
	agg.now = func() time.Time { return now }

	got, err := agg.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	// Most recently active first.
	if got[0].Phone != b.Phone || got[1].Phone != a.Phone {
		t.Fatalf("order = %s, %s", got[0].Phone, got[1].Phone)
	}

	bs := got[0]
	if bs.MessageCount != 1 || bs.UnreadCount != 0 || bs.LatestSentiment != "positive" {
		t.Errorf("bruno summary = %+v", bs)
	}
	if bs.SLA == nil || bs.SLA.Urgent || bs.SLA.Overdue {
		t.Errorf("bruno sla = %+v, want non-urgent window", bs.SLA)
	}

	as := got[1]
	if as.MessageCount != 2 || as.UnreadCount != 2 {
		t.Errorf("ana summary = %+v", as)
	}
	if as.LastMessage.Direction != string(store.Outbound) || as.LastMessage.Body != "sorry, on it" {
		t.Errorf("ana lastMessage = %+v", as.LastMessage)
	}
	if as.LatestSentiment != "negative" {
		t.Errorf("ana latestSentiment = %q, want negative (most recent inbound)", as.LatestSentiment)
	}
	if as.SLA == nil || !as.SLA.Urgent || as.SLA.Overdue || as.SLA.Text != "29m remaining" {
		t.Errorf("ana sla = %+v", as.SLA)
	}
}

func TestListOmitsContactsWithoutMessages(t *testing.T) {
	db := testDB(t)
	if err := db.CreateContact(&store.Contact{Phone: "15551111111"}); err != nil {
		t.Fatal(err)
	}
	agg := NewAggregator(db, 0, zap.NewNop())
	got, err := agg.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}
