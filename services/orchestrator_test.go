package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voyago/fulfillment/models"
	"github.com/voyago/fulfillment/providers"
	"github.com/voyago/fulfillment/utils"
)

type orchestratorFixture struct {
	bookings *memBookingStore
	locks    *memLockStore
	provider *fakeSupplierProvider
	docs     *fakeDocumentGenerator
	events   *EventService
}

func newOrchestratorFixture(t *testing.T, booking *models.Booking) *orchestratorFixture {
	t.Helper()

	bookings := newMemBookingStore(booking)
	locks := newMemLockStore()
	provider := &fakeSupplierProvider{}
	docs := &fakeDocumentGenerator{}

	registry := providers.NewRegistry(provider)
	lifecycle := NewLifecycleService(bookings)
	guard := NewActionGuard(locks, 5*time.Second)

	return &orchestratorFixture{
		bookings: bookings,
		locks:    locks,
		provider: provider,
		docs:     docs,
		events:   NewEventService(bookings, lifecycle, guard, docs, registry),
	}
}

func TestPaymentConfirmedDrivesFullChain(t *testing.T) {
	f := newOrchestratorFixture(t, &models.Booking{
		ID:               "b-1",
		Code:             "VG-1001",
		Supplier:         "amadeus",
		ProviderOfferRef: "offer-42",
		LifecycleStatus:  models.LifecycleCreated,
	})

	err := f.events.HandleEvent(context.Background(), &models.EventRequest{
		Event:          "payment.confirmed",
		BookingRef:     "VG-1001",
		ActorType:      models.ActorWebhook,
		IdempotencyKey: "stripe:evt_1",
	})
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}

	booking, _ := f.bookings.GetByID(context.Background(), "b-1")
	if booking.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("payment status = %q, want %q", booking.PaymentStatus, models.PaymentStatusPaid)
	}
	if booking.SupplierStatus != models.SupplierStatusConfirmed {
		t.Errorf("supplier status = %q, want %q", booking.SupplierStatus, models.SupplierStatusConfirmed)
	}
	if booking.SupplierConfirmationRef != "SUP-REF-1" {
		t.Errorf("confirmation ref = %q, want %q", booking.SupplierConfirmationRef, "SUP-REF-1")
	}
	if booking.LifecycleStatus != models.LifecycleDocumentsGenerated {
		t.Errorf("lifecycle = %q, want %q", booking.LifecycleStatus, models.LifecycleDocumentsGenerated)
	}
	if f.provider.callCount() != 1 {
		t.Errorf("supplier called %d times, want 1", f.provider.callCount())
	}
	if f.locks.lockCount() != 1 {
		t.Errorf("lock count = %d, want 1", f.locks.lockCount())
	}
}

func TestPaymentConfirmedReplayIsHarmless(t *testing.T) {
	f := newOrchestratorFixture(t, &models.Booking{
		ID:               "b-1",
		Code:             "VG-1001",
		Supplier:         "amadeus",
		ProviderOfferRef: "offer-42",
		LifecycleStatus:  models.LifecycleCreated,
	})

	req := &models.EventRequest{
		Event:          "payment.confirmed",
		BookingRef:     "VG-1001",
		ActorType:      models.ActorWebhook,
		IdempotencyKey: "stripe:evt_1",
	}

	if err := f.events.HandleEvent(context.Background(), req); err != nil {
		t.Fatalf("first delivery returned error: %v", err)
	}
	auditsAfterFirst := f.bookings.auditCount()

	if err := f.events.HandleEvent(context.Background(), req); err != nil {
		t.Fatalf("redelivery returned error: %v", err)
	}

	if f.provider.callCount() != 1 {
		t.Errorf("supplier called %d times across redelivery, want 1", f.provider.callCount())
	}
	if f.locks.lockCount() != 1 {
		t.Errorf("lock count = %d, want 1", f.locks.lockCount())
	}
	if got := f.bookings.auditCount(); got != auditsAfterFirst {
		t.Errorf("redelivery added audits: %d -> %d", auditsAfterFirst, got)
	}

	booking, _ := f.bookings.GetByID(context.Background(), "b-1")
	if booking.LifecycleStatus != models.LifecycleDocumentsGenerated {
		t.Errorf("lifecycle after redelivery = %q", booking.LifecycleStatus)
	}
}

func TestPaymentConfirmedWithoutOfferWaitsForWebhook(t *testing.T) {
	f := newOrchestratorFixture(t, &models.Booking{
		ID:              "b-1",
		Code:            "VG-1001",
		Supplier:        "amadeus",
		LifecycleStatus: models.LifecycleCreated,
	})

	err := f.events.HandleEvent(context.Background(), &models.EventRequest{
		Event:      "payment.confirmed",
		BookingRef: "VG-1001",
		ActorType:  models.ActorWebhook,
	})
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}

	booking, _ := f.bookings.GetByID(context.Background(), "b-1")
	if booking.LifecycleStatus != models.LifecyclePaymentConfirmed {
		t.Errorf("lifecycle = %q, want %q", booking.LifecycleStatus, models.LifecyclePaymentConfirmed)
	}
	if f.provider.callCount() != 0 {
		t.Errorf("supplier called %d times without a held offer", f.provider.callCount())
	}
}

func TestSupplierConfirmedStoresRefAndChains(t *testing.T) {
	f := newOrchestratorFixture(t, &models.Booking{
		ID:              "b-1",
		Code:            "VG-1001",
		Supplier:        "amadeus",
		LifecycleStatus: models.LifecyclePaymentConfirmed,
	})

	err := f.events.HandleEvent(context.Background(), &models.EventRequest{
		Event:      "supplier.confirmed",
		BookingRef: "VG-1001",
		Payload:    models.JSON{"confirmation_ref": "SUP-REF-9"},
		ActorType:  models.ActorWebhook,
	})
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}

	booking, _ := f.bookings.GetByID(context.Background(), "b-1")
	if booking.SupplierConfirmationRef != "SUP-REF-9" {
		t.Errorf("confirmation ref = %q, want %q", booking.SupplierConfirmationRef, "SUP-REF-9")
	}
	if booking.SupplierStatus != models.SupplierStatusConfirmed {
		t.Errorf("supplier status = %q", booking.SupplierStatus)
	}
	if booking.LifecycleStatus != models.LifecycleDocumentsGenerated {
		t.Errorf("lifecycle = %q, want %q", booking.LifecycleStatus, models.LifecycleDocumentsGenerated)
	}
	if f.docs.calls == 0 {
		t.Error("document generation was not triggered")
	}
}

func TestUnknownEventIsFatal(t *testing.T) {
	f := newOrchestratorFixture(t, &models.Booking{ID: "b-1", Code: "VG-1001"})

	err := f.events.HandleEvent(context.Background(), &models.EventRequest{
		Event:      "booking.cancelled",
		BookingRef: "VG-1001",
	})
	if err == nil {
		t.Fatal("expected error for unknown event")
	}
	if !utils.IsFatal(err) {
		t.Errorf("expected fatal error, got %v", err)
	}
}

func TestMissingBookingIsFatal(t *testing.T) {
	f := newOrchestratorFixture(t, &models.Booking{ID: "b-1", Code: "VG-1001"})

	err := f.events.HandleEvent(context.Background(), &models.EventRequest{
		Event:      "payment.confirmed",
		BookingRef: "VG-9999",
	})
	if err == nil {
		t.Fatal("expected error for missing booking")
	}
	if !utils.IsFatal(err) {
		t.Errorf("expected fatal error, got %v", err)
	}
}

func TestDocumentFailureIsRetryable(t *testing.T) {
	f := newOrchestratorFixture(t, &models.Booking{
		ID:              "b-1",
		Code:            "VG-1001",
		Supplier:        "amadeus",
		LifecycleStatus: models.LifecycleSupplierConfirmed,
	})
	f.docs.failures = []DocumentFailure{{Type: "voucher", Error: "renderer unavailable"}}

	err := f.events.HandleEvent(context.Background(), &models.EventRequest{
		Event:      "documents.generate",
		BookingRef: "VG-1001",
		ActorType:  models.ActorSystem,
	})
	if err == nil {
		t.Fatal("expected error when document generation fails")
	}
	if utils.IsFatal(err) {
		t.Errorf("document failure should be retryable, got fatal: %v", err)
	}

	booking, _ := f.bookings.GetByID(context.Background(), "b-1")
	if booking.LifecycleStatus != models.LifecycleSupplierConfirmed {
		t.Errorf("lifecycle advanced to %q despite document failure", booking.LifecycleStatus)
	}
}

func TestSupplierFailureSurfacesAsRetryable(t *testing.T) {
	f := newOrchestratorFixture(t, &models.Booking{
		ID:               "b-1",
		Code:             "VG-1001",
		Supplier:         "amadeus",
		ProviderOfferRef: "offer-42",
		LifecycleStatus:  models.LifecycleCreated,
	})
	f.provider.err = errors.New("supplier unavailable")

	err := f.events.HandleEvent(context.Background(), &models.EventRequest{
		Event:      "payment.confirmed",
		BookingRef: "VG-1001",
		ActorType:  models.ActorWebhook,
	})
	if err == nil {
		t.Fatal("expected error when supplier call fails")
	}
	if utils.IsFatal(err) {
		t.Errorf("supplier failure should be retryable, got fatal: %v", err)
	}

	booking, _ := f.bookings.GetByID(context.Background(), "b-1")
	if booking.LifecycleStatus != models.LifecyclePaymentConfirmed {
		t.Errorf("lifecycle = %q, want %q", booking.LifecycleStatus, models.LifecyclePaymentConfirmed)
	}
	if booking.SupplierConfirmationRef != "" {
		t.Errorf("confirmation ref stored despite failure: %q", booking.SupplierConfirmationRef)
	}
}
