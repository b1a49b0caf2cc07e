package convo

import (
	"fmt"
	"time"
)

// DefaultSLAThreshold is the response-time budget measured from the last
// contact with a customer.
const DefaultSLAThreshold = 120 * time.Minute

const urgentWithin = 30 * time.Minute

// SLAWindow is the remaining-or-overdue response budget for one contact.
// Minutes holds the magnitude: minutes overdue when Overdue, minutes
// remaining otherwise.
type SLAWindow struct {
	Overdue bool   `json:"overdue"`
	Urgent  bool   `json:"urgent"`
	Minutes int    `json:"minutes"`
	Text    string `json:"text"`
}

// ComputeSLA derives the window for a contact last heard from at
// lastContactedAt (Unix milliseconds). Returns nil if the contact has never
// been contacted.
func ComputeSLA(lastContactedAt int64, now time.Time, threshold time.Duration) *SLAWindow {
	if lastContactedAt == 0 {
		return nil
	}
	elapsed := now.Sub(time.UnixMilli(lastContactedAt))
	remaining := int(threshold.Minutes()) - int(elapsed.Minutes())

	switch {
	case remaining <= 0:
		over := -remaining
		return &SLAWindow{
			Overdue: true,
			Urgent:  true,
			Minutes: over,
			Text:    fmt.Sprintf("%dm overdue", over),
		}
	case remaining <= int(urgentWithin.Minutes()):
		return &SLAWindow{
			Urgent:  true,
			Minutes: remaining,
			Text:    fmt.Sprintf("%dm remaining", remaining),
		}
	default:
		return &SLAWindow{
			Minutes: remaining,
			Text:    fmt.Sprintf("%dh %dm remaining", remaining/60, remaining%60),
		}
	}
}
