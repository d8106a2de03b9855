package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/voyago/fulfillment/models"
	"github.com/voyago/fulfillment/providers"
	"github.com/voyago/fulfillment/stores"
	"github.com/voyago/fulfillment/utils"
)

var (
	// ErrSupplierActionFailed means a previous guarded execution of the
	// supplier call failed and the guard will not re-run it. Resolved by an
	// event-level retry after an operator unlocks the failed lock.
	ErrSupplierActionFailed = errors.New("supplier action previously failed")

	// ErrSupplierActionInFlight means another process currently owns the
	// guarded call; this invocation backs off to the failure queue.
	ErrSupplierActionInFlight = errors.New("supplier action in flight")
)

const supplierBookAction = "book"

// EventService receives a named automation event, resolves the target booking
// and drives lifecycle transitions and side effects in order, chaining
// follow-up events under one idempotency root. It raises on failure and never
// persists failure items itself; the dispatch boundary does that.
type EventService struct {
	bookings  BookingStore
	lifecycle *LifecycleService
	guard     *ActionGuard
	documents DocumentGenerator
	suppliers *providers.Registry
	logger    *utils.Logger
}

func NewEventService(
	bookings BookingStore,
	lifecycle *LifecycleService,
	guard *ActionGuard,
	documents DocumentGenerator,
	suppliers *providers.Registry,
) *EventService {
	return &EventService{
		bookings:  bookings,
		lifecycle: lifecycle,
		guard:     guard,
		documents: documents,
		suppliers: suppliers,
		logger:    utils.NewLogger("orchestrator"),
	}
}

func (s *EventService) HandleEvent(ctx context.Context, req *models.EventRequest) error {
	event, err := models.ParseEvent(req.Event)
	if err != nil {
		return utils.NewFatalError(err)
	}

	booking, err := s.bookings.GetByRef(ctx, req.BookingRef)
	if err != nil {
		if errors.Is(err, stores.ErrBookingNotFound) {
			return utils.Fatalf("booking not found: %q", req.BookingRef)
		}
		return utils.WrapError(err, "failed to resolve booking")
	}

	// Every chained link derives a suffixed key from one root, so a retried
	// outer event cannot produce divergent inner idempotency keys.
	root := req.IdempotencyKey
	if root == "" {
		root = "evt-" + uuid.NewString()
	}

	s.logger.Info(ctx, "handling automation event", map[string]interface{}{
		"event":      string(event),
		"booking_id": booking.ID,
		"actor":      string(req.ActorType),
		"root":       root,
	})

	switch event {
	case models.EventPaymentConfirmed:
		return s.handlePaymentConfirmed(ctx, booking, req, root)
	case models.EventSupplierConfirmed:
		return s.handleSupplierConfirmed(ctx, booking, req, root)
	case models.EventDocumentsGenerate, models.EventDocumentsGenerated:
		return s.handleDocuments(ctx, booking, req, root)
	default:
		return utils.Fatalf("unsupported automation event: %q", event)
	}
}

func (s *EventService) handlePaymentConfirmed(ctx context.Context, booking *models.Booking, req *models.EventRequest, root string) error {
	if err := s.bookings.SetPaymentStatus(ctx, booking.ID, models.PaymentStatusPaid); err != nil {
		return utils.WrapError(err, "failed to mark payment status")
	}

	if models.LifecycleRank(booking.LifecycleStatus) < models.LifecycleRank(models.LifecycleSupplierConfirmed) {
		if err := s.transition(ctx, booking.ID, models.LifecyclePaymentConfirmed, req, root); err != nil {
			return err
		}
	}

	if err := s.generateDocuments(ctx, booking.ID, triggerLabel(req.Payload, "payment")); err != nil {
		return err
	}

	fresh, err := s.bookings.GetByID(ctx, booking.ID)
	if err != nil {
		return utils.WrapError(err, "failed to reload booking")
	}
	if models.LifecycleRank(fresh.LifecycleStatus) >= models.LifecycleRank(models.LifecycleDocumentsGenerated) {
		return nil
	}

	if fresh.SupplierConfirmationRef != "" {
		return s.handleSupplierConfirmed(ctx, fresh, req, root)
	}

	return s.bookWithSupplier(ctx, fresh, req, root)
}

// bookWithSupplier runs the one genuinely non-idempotent external call of the
// fulfillment sequence under the action guard. The lock key is derived from
// the held offer reference, so any retried payment event lands on the same
// lock row.
func (s *EventService) bookWithSupplier(ctx context.Context, booking *models.Booking, req *models.EventRequest, root string) error {
	if booking.ProviderOfferRef == "" {
		// No held offer to book; the supplier confirmation arrives by webhook.
		return nil
	}

	provider, err := s.suppliers.Get(booking.Supplier)
	if err != nil {
		return utils.NewFatalError(err)
	}

	outcome, err := s.guard.Run(ctx, &GuardRequest{
		BookingID:   booking.ID,
		Supplier:    booking.Supplier,
		Action:      supplierBookAction,
		ProviderRef: booking.ProviderOfferRef,
		RequestID:   root,
		Meta:        models.JSON{"event": req.Event, "actor": string(req.ActorType)},
	}, func(execCtx context.Context) (models.JSON, error) {
		order, orderErr := provider.CreateOrder(execCtx, &providers.OrderRequest{
			BookingID:   booking.ID,
			BookingCode: booking.Code,
			OfferRef:    booking.ProviderOfferRef,
		})
		if orderErr != nil {
			return nil, orderErr
		}
		return models.JSON{
			"confirmation_ref": order.ConfirmationRef,
			"status":           order.Status,
		}, nil
	})
	if err != nil {
		return utils.WrapError(err, "guarded supplier booking failed")
	}

	switch outcome.Status {
	case models.LockStatusSuccess:
		ref, _ := outcome.Result["confirmation_ref"].(string)
		if ref != "" {
			if err := s.bookings.SetSupplierConfirmationRef(ctx, booking.ID, ref); err != nil {
				return utils.WrapError(err, "failed to store supplier confirmation ref")
			}
		}
		return s.handleSupplierConfirmed(ctx, booking, req, root)
	case models.LockStatusFailed:
		return fmt.Errorf("%w: booking %s offer %s", ErrSupplierActionFailed, booking.Code, booking.ProviderOfferRef)
	default:
		return fmt.Errorf("%w: booking %s offer %s", ErrSupplierActionInFlight, booking.Code, booking.ProviderOfferRef)
	}
}

func (s *EventService) handleSupplierConfirmed(ctx context.Context, booking *models.Booking, req *models.EventRequest, root string) error {
	fresh, err := s.bookings.GetByID(ctx, booking.ID)
	if err != nil {
		return utils.WrapError(err, "failed to reload booking")
	}
	if models.LifecycleRank(fresh.LifecycleStatus) >= models.LifecycleRank(models.LifecycleDocumentsGenerated) {
		return nil
	}

	if err := s.bookings.SetSupplierStatus(ctx, fresh.ID, models.SupplierStatusConfirmed); err != nil {
		return utils.WrapError(err, "failed to mark supplier status")
	}

	if ref, ok := req.Payload["confirmation_ref"].(string); ok && ref != "" && fresh.SupplierConfirmationRef == "" {
		if err := s.bookings.SetSupplierConfirmationRef(ctx, fresh.ID, ref); err != nil {
			return utils.WrapError(err, "failed to store supplier confirmation ref")
		}
	}

	if err := s.transition(ctx, fresh.ID, models.LifecycleSupplierConfirmed, req, root); err != nil {
		return err
	}

	return s.handleDocuments(ctx, fresh, req, root)
}

func (s *EventService) handleDocuments(ctx context.Context, booking *models.Booking, req *models.EventRequest, root string) error {
	if err := s.generateDocuments(ctx, booking.ID, triggerLabel(req.Payload, "automation")); err != nil {
		return err
	}

	fresh, err := s.bookings.GetByID(ctx, booking.ID)
	if err != nil {
		return utils.WrapError(err, "failed to reload booking")
	}
	if fresh.LifecycleStatus == models.LifecycleCompleted {
		return nil
	}

	return s.transition(ctx, fresh.ID, models.LifecycleDocumentsGenerated, req, root)
}

func (s *EventService) generateDocuments(ctx context.Context, bookingID, trigger string) error {
	report, err := s.documents.Generate(ctx, bookingID, trigger)
	if err != nil {
		return utils.WrapError(err, "document generation failed")
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("document generation failed for types: %s", strings.Join(report.FailedTypes(), ", "))
	}
	return nil
}

func (s *EventService) transition(ctx context.Context, bookingID string, to models.LifecycleStatus, req *models.EventRequest, root string) error {
	_, err := s.lifecycle.Transition(ctx, &TransitionRequest{
		BookingID:      bookingID,
		To:             to,
		ActorType:      req.ActorType,
		ActorID:        req.ActorID,
		IdempotencyKey: fmt.Sprintf("%s:lifecycle:%s", root, to),
		Note:           fmt.Sprintf("automation event %s", req.Event),
	})
	return err
}

func triggerLabel(payload models.JSON, fallback string) string {
	if payload != nil {
		if trigger, ok := payload["trigger"].(string); ok && trigger != "" {
			return trigger
		}
	}
	return fallback
}
