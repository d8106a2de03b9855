package stores

import (
	"context"
	"errors"
	"time"

	"github.com/voyago/fulfillment/models"
	"gorm.io/gorm"
)

var ErrFailureNotFound = errors.New("failure item not found")

type FailureStore struct {
	BaseStore
}

func CreateFailureStore(db *gorm.DB) *FailureStore {
	return &FailureStore{BaseStore: BaseStore{db: db}}
}

// Record creates a failure item for a booking/event pair, or refreshes the
// error text on an item that is still open. A resolved item is never reopened;
// a later independent failure creates a fresh row.
func (s *FailureStore) Record(ctx context.Context, item *models.AutomationFailure) (*models.AutomationFailure, error) {
	var existing models.AutomationFailure
	err := s.GetDB(ctx).
		Where("booking_id = ? AND event = ? AND status IN ?",
			item.BookingID, item.Event,
			[]models.FailureStatus{models.FailureStatusFailed, models.FailureStatusRetrying}).
		First(&existing).Error

	if err == nil {
		updateErr := s.GetDB(ctx).
			Model(&models.AutomationFailure{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"last_error": item.LastError,
				"payload":    item.Payload,
			}).Error
		if updateErr != nil {
			return nil, updateErr
		}
		existing.LastError = item.LastError
		existing.Payload = item.Payload
		return &existing, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	item.Status = models.FailureStatusFailed
	if err := s.GetDB(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (s *FailureStore) GetByID(ctx context.Context, id string) (*models.AutomationFailure, error) {
	var item models.AutomationFailure
	if err := s.GetDB(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFailureNotFound
		}
		return nil, err
	}
	return &item, nil
}

// ListRetryable returns failed items still under the attempt cap, oldest
// updated first. Backoff eligibility is the scheduler's concern; the scan
// limit bounds work per invocation.
func (s *FailureStore) ListRetryable(ctx context.Context, scanLimit int) ([]*models.AutomationFailure, error) {
	var items []*models.AutomationFailure
	err := s.GetDB(ctx).
		Where("status = ? AND attempts < ?", models.FailureStatusFailed, models.MaxFailureAttempts).
		Order("updated_at ASC").
		Limit(scanLimit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Claim transitions failed->retrying only if the row still carries the
// (status, attempts) pair read during selection. Zero rows affected means
// another scheduler instance won the claim; the caller skips silently. The
// same write bumps the attempt counter and appends the replay timestamp to
// meta.retry_history.
func (s *FailureStore) Claim(ctx context.Context, item *models.AutomationFailure, now time.Time) (bool, error) {
	meta := models.JSON{}
	for k, v := range item.Meta {
		meta[k] = v
	}
	history := append(historySlice(meta), now.UTC().Format(time.RFC3339))
	meta["retry_history"] = history

	result := s.GetDB(ctx).
		Model(&models.AutomationFailure{}).
		Where("id = ? AND status = ? AND attempts = ?", item.ID, models.FailureStatusFailed, item.Attempts).
		Updates(map[string]interface{}{
			"status":     models.FailureStatusRetrying,
			"attempts":   item.Attempts + 1,
			"meta":       meta,
			"updated_at": now,
		})

	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	item.Status = models.FailureStatusRetrying
	item.Attempts++
	item.Meta = meta
	return true, nil
}

// Finalize settles a claimed item, keyed on the now-claimed retrying state and
// the post-claim attempt count. If this write fails the item stays retrying --
// visible and safe, never guessed into a terminal state.
func (s *FailureStore) Finalize(ctx context.Context, id string, attempts int, status models.FailureStatus, errMsg string) (bool, error) {
	result := s.GetDB(ctx).
		Model(&models.AutomationFailure{}).
		Where("id = ? AND status = ? AND attempts = ?", id, models.FailureStatusRetrying, attempts).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": errMsg,
		})
	return result.RowsAffected > 0, result.Error
}

func (s *FailureStore) List(ctx context.Context, filter models.FailureFilter) ([]*models.AutomationFailure, int64, error) {
	var items []*models.AutomationFailure
	var total int64

	query := s.GetDB(ctx).Model(&models.AutomationFailure{})

	if filter.BookingID != "" {
		query = query.Where("booking_id = ?", filter.BookingID)
	}
	if filter.BookingCode != "" {
		query = query.Where("booking_code = ?", filter.BookingCode)
	}
	if filter.Event != "" {
		query = query.Where("event = ?", filter.Event)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Order("updated_at DESC").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func historySlice(meta models.JSON) []interface{} {
	raw, ok := meta["retry_history"].([]interface{})
	if !ok {
		return nil
	}
	return raw
}
