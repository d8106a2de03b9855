package services

import (
	"context"
	"errors"
	"testing"

	"github.com/voyago/fulfillment/models"
	"github.com/voyago/fulfillment/utils"
)

func TestDispatchSuccessQueuesNothing(t *testing.T) {
	queue := newMemFailureQueue()
	bookings := newMemBookingStore(&models.Booking{ID: "b-1", Code: "VG-1001"})
	svc := NewAutomationService(&fakeEventHandler{}, queue, bookings)

	err := svc.Dispatch(context.Background(), &models.EventRequest{
		Event:      "payment.confirmed",
		BookingRef: "VG-1001",
	})
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if len(queue.items) != 0 {
		t.Errorf("failure queue has %d items after success", len(queue.items))
	}
}

func TestDispatchFatalErrorIsNotQueued(t *testing.T) {
	queue := newMemFailureQueue()
	bookings := newMemBookingStore(&models.Booking{ID: "b-1", Code: "VG-1001"})
	handler := &fakeEventHandler{err: utils.Fatalf("unsupported automation event")}
	svc := NewAutomationService(handler, queue, bookings)

	err := svc.Dispatch(context.Background(), &models.EventRequest{
		Event:      "booking.cancelled",
		BookingRef: "VG-1001",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !utils.IsFatal(err) {
		t.Errorf("expected fatal error, got %v", err)
	}
	if len(queue.items) != 0 {
		t.Errorf("fatal error queued %d failure items", len(queue.items))
	}
}

func TestDispatchRetryableErrorIsQueued(t *testing.T) {
	queue := newMemFailureQueue()
	bookings := newMemBookingStore(&models.Booking{ID: "b-1", Code: "VG-1001"})
	handler := &fakeEventHandler{err: errors.New("document generation failed")}
	svc := NewAutomationService(handler, queue, bookings)

	err := svc.Dispatch(context.Background(), &models.EventRequest{
		Event:      "DOCUMENTS_GENERATE",
		BookingRef: "VG-1001",
		Payload:    models.JSON{"trigger": "automation"},
	})
	if err == nil {
		t.Fatal("expected the retryable error to be returned")
	}

	if len(queue.items) != 1 {
		t.Fatalf("failure queue has %d items, want 1", len(queue.items))
	}
	var item *models.AutomationFailure
	for _, it := range queue.items {
		item = it
	}
	if item.BookingID != "b-1" || item.BookingCode != "VG-1001" {
		t.Errorf("item booking = %q/%q, want resolved id and code", item.BookingID, item.BookingCode)
	}
	if item.Event != "documents.generate" {
		t.Errorf("item event = %q, want the normalized name", item.Event)
	}
	if item.Status != models.FailureStatusFailed {
		t.Errorf("item status = %q, want %q", item.Status, models.FailureStatusFailed)
	}
	if item.LastError != "document generation failed" {
		t.Errorf("item last_error = %q", item.LastError)
	}
}

func TestDispatchRepeatedFailureRefreshesOpenItem(t *testing.T) {
	queue := newMemFailureQueue()
	bookings := newMemBookingStore(&models.Booking{ID: "b-1", Code: "VG-1001"})
	handler := &fakeEventHandler{err: errors.New("first cause")}
	svc := NewAutomationService(handler, queue, bookings)

	req := &models.EventRequest{Event: "documents.generate", BookingRef: "VG-1001"}
	if err := svc.Dispatch(context.Background(), req); err == nil {
		t.Fatal("expected error")
	}

	handler.err = errors.New("second cause")
	if err := svc.Dispatch(context.Background(), req); err == nil {
		t.Fatal("expected error")
	}

	if len(queue.items) != 1 {
		t.Fatalf("failure queue has %d items, want a single refreshed item", len(queue.items))
	}
	for _, item := range queue.items {
		if item.LastError != "second cause" {
			t.Errorf("item last_error = %q, want the latest cause", item.LastError)
		}
	}
}
