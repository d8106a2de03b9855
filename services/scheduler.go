package services

import (
	"context"
	"fmt"
	"time"

	"github.com/voyago/fulfillment/models"
	"github.com/voyago/fulfillment/utils"
)

const (
	defaultScanLimit    = 200
	defaultProcessLimit = 10
)

// retryBackoff keys the minimum quiet period before a replay on the item's
// attempt count: 5m after the original failure, then 15m, then 45m.
var retryBackoff = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	45 * time.Minute,
}

// RetryService is the polling retry scheduler. Each run scans the failure
// queue, claims eligible items under compare-and-swap and replays them through
// the orchestrator. Overlapping runs across process instances are safe: a lost
// claim race is skipped silently.
type RetryService struct {
	failures     FailureQueue
	handler      EventHandler
	scanLimit    int
	processLimit int
	logger       *utils.Logger
	now          func() time.Time
}

func NewRetryService(failures FailureQueue, handler EventHandler, scanLimit, processLimit int) *RetryService {
	if scanLimit <= 0 {
		scanLimit = defaultScanLimit
	}
	if processLimit <= 0 {
		processLimit = defaultProcessLimit
	}
	return &RetryService{
		failures:     failures,
		handler:      handler,
		scanLimit:    scanLimit,
		processLimit: processLimit,
		logger:       utils.NewLogger("retry-scheduler"),
		now:          time.Now,
	}
}

func (s *RetryService) Run(ctx context.Context) (*models.RunSummary, error) {
	summary := &models.RunSummary{}

	items, err := s.failures.ListRetryable(ctx, s.scanLimit)
	if err != nil {
		return summary, utils.WrapError(err, "failed to scan failure queue")
	}

	for _, item := range items {
		if summary.Processed >= s.processLimit {
			break
		}
		if !s.eligible(item) {
			continue
		}

		claimed, err := s.failures.Claim(ctx, item, s.now())
		if err != nil {
			utils.LogError(ctx, err, "failed to claim failure item", map[string]interface{}{
				"failure_id": item.ID,
			})
			continue
		}
		if !claimed {
			// Another scheduler instance won the claim; not an error.
			continue
		}

		summary.Processed++
		s.replay(ctx, item, summary)
	}

	s.logger.Info(ctx, "retry run finished", map[string]interface{}{
		"processed":    summary.Processed,
		"resolved":     summary.Resolved,
		"still_failed": summary.StillFailed,
	})

	return summary, nil
}

// RetryItem replays a single failure item on operator request. It uses the
// same claim/finalize protocol as a scheduled run but skips the backoff gate
// and the attempt cap: a manual retry is the explicit intervention an
// exhausted item is waiting for.
func (s *RetryService) RetryItem(ctx context.Context, id string) (*models.AutomationFailure, error) {
	item, err := s.failures.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.FailureStatusFailed {
		return nil, fmt.Errorf("failure item %s is %s, only failed items can be retried", id, item.Status)
	}

	claimed, err := s.failures.Claim(ctx, item, s.now())
	if err != nil {
		return nil, utils.WrapError(err, "failed to claim failure item")
	}
	if !claimed {
		return nil, fmt.Errorf("failure item %s was claimed concurrently", id)
	}

	summary := &models.RunSummary{Processed: 1}
	s.replay(ctx, item, summary)

	return s.failures.GetByID(ctx, id)
}

func (s *RetryService) replay(ctx context.Context, item *models.AutomationFailure, summary *models.RunSummary) {
	bookingRef := item.BookingCode
	if bookingRef == "" {
		bookingRef = item.BookingID
	}

	replayErr := s.handler.HandleEvent(ctx, &models.EventRequest{
		Event:      item.Event,
		BookingRef: bookingRef,
		Payload:    item.Payload,
		ActorType:  models.ActorSystem,
		ActorID:    "retry-scheduler",
		// Derived from the item id so the replay is idempotent with respect
		// to the lifecycle and guard layers.
		IdempotencyKey: fmt.Sprintf("retry:%s:%d", item.ID, item.Attempts),
	})

	status := models.FailureStatusResolved
	errMsg := ""
	if replayErr != nil {
		status = models.FailureStatusFailed
		errMsg = replayErr.Error()
	}

	finalized, err := s.failures.Finalize(ctx, item.ID, item.Attempts, status, errMsg)
	if err != nil || !finalized {
		// Deliberately left retrying: visible and safe, never guessed into a
		// terminal state.
		fields := map[string]interface{}{
			"failure_id": item.ID,
			"attempts":   item.Attempts,
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		s.logger.Warn(ctx, "failed to finalize failure item, left retrying", fields)
		return
	}

	if replayErr == nil {
		summary.Resolved++
	} else {
		summary.StillFailed++
		utils.LogError(ctx, replayErr, "failure item replay failed", map[string]interface{}{
			"failure_id": item.ID,
			"event":      item.Event,
			"attempts":   item.Attempts,
		})
	}
}

func (s *RetryService) eligible(item *models.AutomationFailure) bool {
	idx := item.Attempts
	if idx >= len(retryBackoff) {
		idx = len(retryBackoff) - 1
	}
	return s.now().Sub(item.UpdatedAt) > retryBackoff[idx]
}
