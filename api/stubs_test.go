package api

import (
	"context"
	"sync"
	"time"

	"github.com/voyago/fulfillment/models"
	"github.com/voyago/fulfillment/stores"
)

type stubEventHandler struct {
	mu       sync.Mutex
	requests []*models.EventRequest
	err      error
}

func (h *stubEventHandler) HandleEvent(_ context.Context, req *models.EventRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
	return h.err
}

func (h *stubEventHandler) lastRequest() *models.EventRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.requests) == 0 {
		return nil
	}
	return h.requests[len(h.requests)-1]
}

type stubBookingStore struct {
	booking *models.Booking
}

func (s *stubBookingStore) GetByID(context.Context, string) (*models.Booking, error) {
	if s.booking == nil {
		return nil, stores.ErrBookingNotFound
	}
	return s.booking, nil
}

func (s *stubBookingStore) GetByRef(context.Context, string) (*models.Booking, error) {
	if s.booking == nil {
		return nil, stores.ErrBookingNotFound
	}
	return s.booking, nil
}

func (s *stubBookingStore) AdvanceLifecycle(context.Context, string, models.LifecycleStatus) (bool, error) {
	return true, nil
}

func (s *stubBookingStore) SetPaymentStatus(context.Context, string, models.PaymentStatus) error {
	return nil
}

func (s *stubBookingStore) SetSupplierStatus(context.Context, string, models.SupplierStatus) error {
	return nil
}

func (s *stubBookingStore) SetSupplierConfirmationRef(context.Context, string, string) error {
	return nil
}

func (s *stubBookingStore) RecordAudit(context.Context, *models.LifecycleAudit) error {
	return nil
}

type stubFailureQueue struct {
	mu       sync.Mutex
	recorded []*models.AutomationFailure
	items    []*models.AutomationFailure
}

func (q *stubFailureQueue) Record(_ context.Context, item *models.AutomationFailure) (*models.AutomationFailure, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item.ID = "f-stub"
	q.recorded = append(q.recorded, item)
	return item, nil
}

func (q *stubFailureQueue) GetByID(context.Context, string) (*models.AutomationFailure, error) {
	return nil, stores.ErrFailureNotFound
}

func (q *stubFailureQueue) ListRetryable(context.Context, int) ([]*models.AutomationFailure, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items, nil
}

func (q *stubFailureQueue) Claim(context.Context, *models.AutomationFailure, time.Time) (bool, error) {
	return true, nil
}

func (q *stubFailureQueue) Finalize(context.Context, string, int, models.FailureStatus, string) (bool, error) {
	return true, nil
}

func (q *stubFailureQueue) recordedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.recorded)
}
