package services

import (
	"context"
	"time"

	"github.com/voyago/fulfillment/models"
)

// BookingStore is the durable booking record this core mutates but does not
// own. Satisfied by stores.BookingStore.
type BookingStore interface {
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	GetByRef(ctx context.Context, ref string) (*models.Booking, error)
	AdvanceLifecycle(ctx context.Context, bookingID string, target models.LifecycleStatus) (bool, error)
	SetPaymentStatus(ctx context.Context, bookingID string, status models.PaymentStatus) error
	SetSupplierStatus(ctx context.Context, bookingID string, status models.SupplierStatus) error
	SetSupplierConfirmationRef(ctx context.Context, bookingID, ref string) error
	RecordAudit(ctx context.Context, audit *models.LifecycleAudit) error
}

// LockStore holds idempotency locks for guarded external actions. Satisfied
// by stores.ActionLockStore.
type LockStore interface {
	Insert(ctx context.Context, lock *models.SupplierActionLock) error
	GetByKey(ctx context.Context, key string) (*models.SupplierActionLock, error)
	MarkSucceeded(ctx context.Context, key string, result models.JSON) error
	MarkFailed(ctx context.Context, key, errMsg string) error
}

// FailureQueue holds pending and failed automation work items. Satisfied by
// stores.FailureStore.
type FailureQueue interface {
	Record(ctx context.Context, item *models.AutomationFailure) (*models.AutomationFailure, error)
	GetByID(ctx context.Context, id string) (*models.AutomationFailure, error)
	ListRetryable(ctx context.Context, scanLimit int) ([]*models.AutomationFailure, error)
	Claim(ctx context.Context, item *models.AutomationFailure, now time.Time) (bool, error)
	Finalize(ctx context.Context, id string, attempts int, status models.FailureStatus, errMsg string) (bool, error)
}

// EventHandler drives one automation event through the lifecycle and side
// effects. Satisfied by EventService.
type EventHandler interface {
	HandleEvent(ctx context.Context, req *models.EventRequest) error
}

// DocumentGenerator is the document generation collaborator. The core only
// inspects whether the failure list is non-empty.
type DocumentGenerator interface {
	Generate(ctx context.Context, bookingID, trigger string) (*DocumentReport, error)
}

type DocumentFailure struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type DocumentReport struct {
	Failed []DocumentFailure `json:"failed"`
}

// FailedTypes lists the document types that failed to generate.
func (r *DocumentReport) FailedTypes() []string {
	types := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		types = append(types, f.Type)
	}
	return types
}
