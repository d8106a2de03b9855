package models

import (
	"time"
)

type FailureStatus string

const (
	FailureStatusFailed   FailureStatus = "failed"
	FailureStatusRetrying FailureStatus = "retrying"
	FailureStatusResolved FailureStatus = "resolved"
)

// MaxFailureAttempts caps automatic replays; an item at the cap surfaces only
// through the admin failure view for manual intervention.
const MaxFailureAttempts = 3

// AutomationFailure is one unit of failed automation work awaiting replay.
// Attempts only increase, and claim/finalize writes are conditional on the
// (status, attempts) pair read during selection.
type AutomationFailure struct {
	ID          string        `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	BookingID   string        `json:"booking_id" gorm:"not null;index"`
	BookingCode string        `json:"booking_code" gorm:"index"`
	Event       string        `json:"event" gorm:"not null;index"`
	Payload     JSON          `json:"payload" gorm:"type:jsonb"`
	Status      FailureStatus `json:"status" gorm:"not null;default:'failed';index"`
	Attempts    int           `json:"attempts" gorm:"not null;default:0"`
	LastError   string        `json:"last_error"`
	Meta        JSON          `json:"meta" gorm:"type:jsonb"`
	CreatedAt   time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// RetryHistory reads meta.retry_history, the append-only list of replay
// timestamps recorded at claim time.
func (f *AutomationFailure) RetryHistory() []string {
	if f.Meta == nil {
		return nil
	}
	raw, ok := f.Meta["retry_history"].([]interface{})
	if !ok {
		return nil
	}
	history := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			history = append(history, s)
		}
	}
	return history
}

type FailureFilter struct {
	BookingID   string
	BookingCode string
	Event       string
	Status      string
	Limit       int
	Offset      int
}

// RunSummary is the retry scheduler's per-invocation result, suitable as a
// heartbeat signal.
type RunSummary struct {
	Processed   int `json:"processed"`
	Resolved    int `json:"resolved"`
	StillFailed int `json:"still_failed"`
}
