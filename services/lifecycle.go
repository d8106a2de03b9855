package services

import (
	"context"

	"github.com/voyago/fulfillment/models"
	"github.com/voyago/fulfillment/utils"
)

// LifecycleService applies forward-only transitions on a booking's lifecycle
// status. A request targeting a state at or behind the current one succeeds
// without mutation, which lets the orchestrator call transitions defensively
// on every replay.
type LifecycleService struct {
	bookings BookingStore
	logger   *utils.Logger
}

func NewLifecycleService(bookings BookingStore) *LifecycleService {
	return &LifecycleService{
		bookings: bookings,
		logger:   utils.NewLogger("lifecycle"),
	}
}

type TransitionRequest struct {
	BookingID      string
	To             models.LifecycleStatus
	ActorType      models.ActorType
	ActorID        string
	IdempotencyKey string
	Note           string
}

// TransitionResult separates the expected no-op (already at or beyond the
// target) from an applied transition; neither is an error.
type TransitionResult struct {
	Applied bool
	From    models.LifecycleStatus
}

func (s *LifecycleService) Transition(ctx context.Context, req *TransitionRequest) (*TransitionResult, error) {
	targetRank := models.LifecycleRank(req.To)
	if targetRank < 0 {
		return nil, utils.Fatalf("unknown lifecycle state: %q", req.To)
	}

	booking, err := s.bookings.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, utils.WrapError(err, "failed to load booking for transition")
	}

	current := booking.LifecycleStatus
	if models.LifecycleRank(current) >= targetRank {
		return &TransitionResult{Applied: false, From: current}, nil
	}

	// The audit row goes first: its unique idempotency key collapses
	// concurrent requests for the same logical transition, and the status
	// write below is idempotent on its own.
	audit := &models.LifecycleAudit{
		BookingID:      req.BookingID,
		FromStatus:     current,
		ToStatus:       req.To,
		ActorType:      string(req.ActorType),
		ActorID:        req.ActorID,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := s.bookings.RecordAudit(ctx, audit); err != nil {
		return nil, utils.WrapError(err, "failed to record transition audit")
	}

	applied, err := s.bookings.AdvanceLifecycle(ctx, req.BookingID, req.To)
	if err != nil {
		return nil, utils.WrapError(err, "failed to advance lifecycle status")
	}

	if applied {
		s.logger.Info(ctx, "lifecycle transition applied", map[string]interface{}{
			"booking_id": req.BookingID,
			"from":       current,
			"to":         req.To,
			"actor":      req.ActorType,
		})
	}

	return &TransitionResult{Applied: applied, From: current}, nil
}
