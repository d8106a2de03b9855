package models

import (
	"fmt"
	"time"
)

type LockStatus string

const (
	LockStatusPending LockStatus = "pending"
	LockStatusSuccess LockStatus = "success"
	LockStatusFailed  LockStatus = "failed"
)

// SupplierActionLock turns a non-idempotent external call into an idempotent
// one: the unique idempotency key lets exactly one writer win the initial
// insert, and every other caller observes that writer's outcome instead of
// re-invoking the external system.
type SupplierActionLock struct {
	ID             string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	IdempotencyKey string     `json:"idempotency_key" gorm:"uniqueIndex;not null"`
	BookingID      string     `json:"booking_id" gorm:"not null;index"`
	Supplier       string     `json:"supplier" gorm:"not null"`
	Action         string     `json:"action" gorm:"not null"`
	ProviderRef    string     `json:"provider_ref" gorm:"not null"`
	RequestID      string     `json:"request_id"`
	Status         LockStatus `json:"status" gorm:"not null;default:'pending'"`
	Result         JSON       `json:"result" gorm:"type:jsonb"`
	LastError      string     `json:"last_error"`
	Meta           JSON       `json:"meta" gorm:"type:jsonb"`
	StartedAt      time.Time  `json:"started_at" gorm:"not null"`
	SettledAt      *time.Time `json:"settled_at"`
	CreatedAt      time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// ActionLockKey derives the idempotency key for a guarded supplier action.
// The key is built only from stable caller-supplied references so repeated
// legitimate attempts on the same offer collapse into one execution.
func ActionLockKey(bookingID, supplier, action, providerRef string) string {
	return fmt.Sprintf("booking:%s:%s:%s:%s", bookingID, supplier, action, providerRef)
}
