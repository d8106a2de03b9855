package services

import (
	"context"
	"errors"

	"github.com/voyago/fulfillment/models"
	"github.com/voyago/fulfillment/stores"
	"github.com/voyago/fulfillment/utils"
)

// AutomationService is the outermost catch layer for webhook and admin
// triggers: it runs the orchestrator and converts retryable errors into
// durable failure-queue items. Fatal errors (unknown event, missing booking)
// are logged and surfaced without queueing. The retry scheduler bypasses this
// and manages its own rows.
type AutomationService struct {
	events   EventHandler
	failures FailureQueue
	bookings BookingStore
	logger   *utils.Logger
}

func NewAutomationService(events EventHandler, failures FailureQueue, bookings BookingStore) *AutomationService {
	return &AutomationService{
		events:   events,
		failures: failures,
		bookings: bookings,
		logger:   utils.NewLogger("automation"),
	}
}

func (s *AutomationService) Dispatch(ctx context.Context, req *models.EventRequest) error {
	err := s.events.HandleEvent(ctx, req)
	if err == nil {
		return nil
	}

	if utils.IsFatal(err) {
		utils.LogError(ctx, err, "automation event rejected", map[string]interface{}{
			"event":       req.Event,
			"booking_ref": req.BookingRef,
		})
		return err
	}

	s.recordFailure(ctx, req, err)
	return err
}

func (s *AutomationService) recordFailure(ctx context.Context, req *models.EventRequest, cause error) {
	item := &models.AutomationFailure{
		Event:     req.Event,
		Payload:   req.Payload,
		LastError: cause.Error(),
	}

	if event, err := models.ParseEvent(req.Event); err == nil {
		item.Event = string(event)
	}

	booking, err := s.bookings.GetByRef(ctx, req.BookingRef)
	if err != nil {
		if !errors.Is(err, stores.ErrBookingNotFound) {
			utils.LogError(ctx, err, "failed to resolve booking for failure record", map[string]interface{}{
				"booking_ref": req.BookingRef,
			})
		}
		item.BookingID = req.BookingRef
	} else {
		item.BookingID = booking.ID
		item.BookingCode = booking.Code
	}

	recorded, recordErr := s.failures.Record(ctx, item)
	if recordErr != nil {
		utils.LogError(ctx, recordErr, "failed to record automation failure", map[string]interface{}{
			"event":       req.Event,
			"booking_ref": req.BookingRef,
		})
		return
	}

	s.logger.Warn(ctx, "automation event failed, queued for retry", map[string]interface{}{
		"failure_id":  recorded.ID,
		"event":       recorded.Event,
		"booking_ref": req.BookingRef,
		"attempts":    recorded.Attempts,
		"error":       cause.Error(),
	})
}
