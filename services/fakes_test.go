package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/voyago/fulfillment/models"
	"github.com/voyago/fulfillment/providers"
	"github.com/voyago/fulfillment/stores"
)

// In-memory store fakes. They enforce the same conditional-write semantics as
// the real stores (unique-key inserts, compare-and-swap updates) so the
// concurrency properties can be exercised without a database.

type memBookingStore struct {
	mu       sync.Mutex
	bookings map[string]*models.Booking
	audits   map[string]*models.LifecycleAudit
}

func newMemBookingStore(bookings ...*models.Booking) *memBookingStore {
	s := &memBookingStore{
		bookings: make(map[string]*models.Booking),
		audits:   make(map[string]*models.LifecycleAudit),
	}
	for _, b := range bookings {
		s.bookings[b.ID] = b
	}
	return s
}

func (s *memBookingStore) GetByID(_ context.Context, id string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, stores.ErrBookingNotFound
	}
	copied := *b
	return &copied, nil
}

func (s *memBookingStore) GetByRef(ctx context.Context, ref string) (*models.Booking, error) {
	s.mu.Lock()
	for _, b := range s.bookings {
		if b.Code == ref {
			copied := *b
			s.mu.Unlock()
			return &copied, nil
		}
	}
	s.mu.Unlock()
	return s.GetByID(ctx, ref)
}

func (s *memBookingStore) AdvanceLifecycle(_ context.Context, bookingID string, target models.LifecycleStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return false, stores.ErrBookingNotFound
	}
	if models.LifecycleRank(b.LifecycleStatus) >= models.LifecycleRank(target) {
		return false, nil
	}
	b.LifecycleStatus = target
	return true, nil
}

func (s *memBookingStore) SetPaymentStatus(_ context.Context, bookingID string, status models.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[bookingID]; ok {
		b.PaymentStatus = status
	}
	return nil
}

func (s *memBookingStore) SetSupplierStatus(_ context.Context, bookingID string, status models.SupplierStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[bookingID]; ok {
		b.SupplierStatus = status
	}
	return nil
}

func (s *memBookingStore) SetSupplierConfirmationRef(_ context.Context, bookingID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[bookingID]; ok && b.SupplierConfirmationRef == "" {
		b.SupplierConfirmationRef = ref
	}
	return nil
}

func (s *memBookingStore) RecordAudit(_ context.Context, audit *models.LifecycleAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.audits[audit.IdempotencyKey]; exists {
		return nil
	}
	s.audits[audit.IdempotencyKey] = audit
	return nil
}

func (s *memBookingStore) auditCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audits)
}

type memLockStore struct {
	mu    sync.Mutex
	locks map[string]*models.SupplierActionLock
}

func newMemLockStore() *memLockStore {
	return &memLockStore{locks: make(map[string]*models.SupplierActionLock)}
}

func (s *memLockStore) Insert(_ context.Context, lock *models.SupplierActionLock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.locks[lock.IdempotencyKey]; exists {
		return stores.ErrLockExists
	}
	copied := *lock
	s.locks[lock.IdempotencyKey] = &copied
	return nil
}

func (s *memLockStore) GetByKey(_ context.Context, key string) (*models.SupplierActionLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		return nil, stores.ErrLockNotFound
	}
	copied := *lock
	return &copied, nil
}

func (s *memLockStore) MarkSucceeded(_ context.Context, key string, result models.JSON) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok || lock.Status != models.LockStatusPending {
		return nil
	}
	now := time.Now()
	lock.Status = models.LockStatusSuccess
	lock.Result = result
	lock.SettledAt = &now
	return nil
}

func (s *memLockStore) MarkFailed(_ context.Context, key, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok || lock.Status != models.LockStatusPending {
		return nil
	}
	now := time.Now()
	lock.Status = models.LockStatusFailed
	lock.LastError = errMsg
	lock.SettledAt = &now
	return nil
}

func (s *memLockStore) lockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

type memFailureQueue struct {
	mu    sync.Mutex
	items map[string]*models.AutomationFailure
	seq   int
}

func newMemFailureQueue(items ...*models.AutomationFailure) *memFailureQueue {
	q := &memFailureQueue{items: make(map[string]*models.AutomationFailure)}
	for _, item := range items {
		q.items[item.ID] = item
	}
	return q
}

func (q *memFailureQueue) Record(_ context.Context, item *models.AutomationFailure) (*models.AutomationFailure, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, existing := range q.items {
		if existing.BookingID == item.BookingID && existing.Event == item.Event &&
			existing.Status != models.FailureStatusResolved {
			existing.LastError = item.LastError
			existing.Payload = item.Payload
			return existing, nil
		}
	}
	q.seq++
	item.ID = fmt.Sprintf("failure-%d", q.seq)
	item.Status = models.FailureStatusFailed
	item.UpdatedAt = time.Now()
	q.items[item.ID] = item
	return item, nil
}

func (q *memFailureQueue) GetByID(_ context.Context, id string) (*models.AutomationFailure, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return nil, stores.ErrFailureNotFound
	}
	copied := *item
	return &copied, nil
}

func (q *memFailureQueue) ListRetryable(_ context.Context, scanLimit int) ([]*models.AutomationFailure, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var items []*models.AutomationFailure
	for _, item := range q.items {
		if item.Status == models.FailureStatusFailed && item.Attempts < models.MaxFailureAttempts {
			copied := *item
			items = append(items, &copied)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UpdatedAt.Before(items[j].UpdatedAt)
	})
	if len(items) > scanLimit {
		items = items[:scanLimit]
	}
	return items, nil
}

func (q *memFailureQueue) Claim(_ context.Context, item *models.AutomationFailure, now time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored, ok := q.items[item.ID]
	if !ok || stored.Status != models.FailureStatusFailed || stored.Attempts != item.Attempts {
		return false, nil
	}
	meta := models.JSON{}
	for k, v := range stored.Meta {
		meta[k] = v
	}
	history, _ := meta["retry_history"].([]interface{})
	meta["retry_history"] = append(history, now.UTC().Format(time.RFC3339))

	stored.Status = models.FailureStatusRetrying
	stored.Attempts++
	stored.Meta = meta
	stored.UpdatedAt = now

	item.Status = stored.Status
	item.Attempts = stored.Attempts
	item.Meta = meta
	return true, nil
}

func (q *memFailureQueue) Finalize(_ context.Context, id string, attempts int, status models.FailureStatus, errMsg string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored, ok := q.items[id]
	if !ok || stored.Status != models.FailureStatusRetrying || stored.Attempts != attempts {
		return false, nil
	}
	stored.Status = status
	stored.LastError = errMsg
	return true, nil
}

type fakeDocumentGenerator struct {
	mu       sync.Mutex
	calls    int
	triggers []string
	failures []DocumentFailure
	err      error
}

func (g *fakeDocumentGenerator) Generate(_ context.Context, _ string, trigger string) (*DocumentReport, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.triggers = append(g.triggers, trigger)
	if g.err != nil {
		return nil, g.err
	}
	return &DocumentReport{Failed: g.failures}, nil
}

type fakeSupplierProvider struct {
	mu     sync.Mutex
	name   string
	calls  int
	result *providers.OrderResult
	err    error
	delay  time.Duration
}

func (p *fakeSupplierProvider) Name() string {
	if p.name == "" {
		return "amadeus"
	}
	return p.name
}

func (p *fakeSupplierProvider) CreateOrder(ctx context.Context, _ *providers.OrderRequest) (*providers.OrderResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.result != nil {
		return p.result, nil
	}
	return &providers.OrderResult{ConfirmationRef: "SUP-REF-1", Status: "CONFIRMED"}, nil
}

func (p *fakeSupplierProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeEventHandler struct {
	mu       sync.Mutex
	requests []*models.EventRequest
	err      error
}

func (h *fakeEventHandler) HandleEvent(_ context.Context, req *models.EventRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
	return h.err
}
