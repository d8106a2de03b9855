package models

import (
	"time"
)

type LifecycleStatus string
type PaymentStatus string
type SupplierStatus string

const (
	LifecycleCreated            LifecycleStatus = "created"
	LifecyclePaymentConfirmed   LifecycleStatus = "payment_confirmed"
	LifecycleSupplierConfirmed  LifecycleStatus = "supplier_confirmed"
	LifecycleDocumentsGenerated LifecycleStatus = "documents_generated"
	LifecycleCompleted          LifecycleStatus = "completed"

	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"

	SupplierStatusPending   SupplierStatus = "pending"
	SupplierStatusConfirmed SupplierStatus = "confirmed"
)

// lifecycleOrder fixes the forward-only fulfillment sequence. A transition
// request to a state at or behind the current one is absorbed as a no-op.
var lifecycleOrder = []LifecycleStatus{
	LifecycleCreated,
	LifecyclePaymentConfirmed,
	LifecycleSupplierConfirmed,
	LifecycleDocumentsGenerated,
	LifecycleCompleted,
}

// LifecycleRank returns the position of a status in the fulfillment sequence,
// or -1 for an unknown status.
func LifecycleRank(status LifecycleStatus) int {
	for i, s := range lifecycleOrder {
		if s == status {
			return i
		}
	}
	return -1
}

// StatesBefore returns every status strictly earlier than target in the
// sequence. Used as the WHERE guard for the forward-only lifecycle update.
func StatesBefore(target LifecycleStatus) []LifecycleStatus {
	rank := LifecycleRank(target)
	if rank <= 0 {
		return nil
	}
	return lifecycleOrder[:rank]
}

type Booking struct {
	ID                      string          `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Code                    string          `json:"code" gorm:"uniqueIndex;not null"`
	Supplier                string          `json:"supplier" gorm:"not null"`
	ProviderOfferRef        string          `json:"provider_offer_ref"`
	LifecycleStatus         LifecycleStatus `json:"lifecycle_status" gorm:"not null;default:'created'"`
	PaymentStatus           PaymentStatus   `json:"payment_status" gorm:"not null;default:'pending'"`
	SupplierStatus          SupplierStatus  `json:"supplier_status" gorm:"not null;default:'pending'"`
	SupplierConfirmationRef string          `json:"supplier_confirmation_ref"`
	Metadata                JSON            `json:"metadata" gorm:"type:jsonb"`
	CreatedAt               time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt               time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// LifecycleAudit records one applied lifecycle transition. The unique
// idempotency key collapses concurrent requests for the same logical
// transition into a single audit entry.
type LifecycleAudit struct {
	ID             string          `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	BookingID      string          `json:"booking_id" gorm:"not null;index"`
	FromStatus     LifecycleStatus `json:"from_status" gorm:"not null"`
	ToStatus       LifecycleStatus `json:"to_status" gorm:"not null"`
	ActorType      string          `json:"actor_type" gorm:"not null"`
	ActorID        string          `json:"actor_id"`
	Note           string          `json:"note"`
	IdempotencyKey string          `json:"idempotency_key" gorm:"uniqueIndex;not null"`
	CreatedAt      time.Time       `json:"created_at" gorm:"autoCreateTime"`
}
