package convo

import (
	"time"

	"github.com/lfmelo/zapcrm/internal/store"
	"go.uber.org/zap"
)

// MessageView is the wire shape of a message inside a conversation summary.
type MessageView struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// Summary is one conversation: a contact joined with aggregates derived from
// its message log. Recomputed on every read; nothing here is stored.
type Summary struct {
	ContactID       string      `json:"contactId"`
	Phone           string      `json:"phone"`
	DisplayName     string      `json:"displayName"`
	QueryStatus     string      `json:"queryStatus"`
	UnreadCount     int         `json:"unreadCount"`
	MessageCount    int         `json:"messageCount"`
	LastMessage     MessageView `json:"lastMessage"`
	SLA             *SLAWindow  `json:"sla,omitempty"`
	LatestSentiment string      `json:"latestSentiment"`
}

// Aggregator builds conversation summaries from the contact and message
// store. It holds no state of its own.
type Aggregator struct {
	db        *store.DB
	logger    *zap.Logger
	threshold time.Duration
	now       func() time.Time
}

func NewAggregator(db *store.DB, threshold time.Duration, logger *zap.Logger) *Aggregator {
	if threshold <= 0 {
		threshold = DefaultSLAThreshold
	}
	return &Aggregator{db: db, logger: logger, threshold: threshold, now: time.Now}
}

// List returns one summary per contact with at least one message, most
// recently active first. Messages whose contact was never resolved are
// excluded from every summary; their presence is logged so they are not
// silently invisible.
func (a *Aggregator) List() ([]Summary, error) {
	rows, err := a.db.ListConversations()
	if err != nil {
		return nil, err
	}

	if orphans, err := a.db.OrphanMessageCount(); err == nil && orphans > 0 {
		a.logger.Warn("messages without a resolved contact excluded from conversations",
			zap.Int64("count", orphans))
	}

	now := a.now()
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, Summary{
			ContactID:    r.Contact.ID,
			Phone:        r.Contact.Phone,
			DisplayName:  r.Contact.DisplayName,
			QueryStatus:  string(r.Contact.QueryStatus),
			UnreadCount:  r.Contact.UnreadCount,
			MessageCount: r.MessageCount,
			LastMessage: MessageView{
				ID:        r.LastMessage.ID,
				Direction: string(r.LastMessage.Direction),
				Body:      r.LastMessage.Body,
				Timestamp: r.LastMessage.Timestamp,
			},
			SLA:             ComputeSLA(r.Contact.LastContactedAt, now, a.threshold),
			LatestSentiment: r.LatestInbound,
		})
	}
	return out, nil
}
