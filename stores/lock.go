package stores

import (
	"context"
	"errors"
	"time"

	"github.com/voyago/fulfillment/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrLockExists   = errors.New("action lock already exists")
	ErrLockNotFound = errors.New("action lock not found")
)

type ActionLockStore struct {
	BaseStore
}

func CreateActionLockStore(db *gorm.DB) *ActionLockStore {
	return &ActionLockStore{BaseStore: BaseStore{db: db}}
}

// Insert attempts to create the pending lock row. The unique index on the
// idempotency key acts as the distributed mutex: exactly one writer wins, all
// others get ErrLockExists and must read the winner's row instead.
func (s *ActionLockStore) Insert(ctx context.Context, lock *models.SupplierActionLock) error {
	result := s.GetDB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(lock)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLockExists
	}
	return nil
}

func (s *ActionLockStore) GetByKey(ctx context.Context, key string) (*models.SupplierActionLock, error) {
	var lock models.SupplierActionLock
	if err := s.GetDB(ctx).Where("idempotency_key = ?", key).First(&lock).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLockNotFound
		}
		return nil, err
	}
	return &lock, nil
}

func (s *ActionLockStore) MarkSucceeded(ctx context.Context, key string, result models.JSON) error {
	now := time.Now()
	return s.GetDB(ctx).
		Model(&models.SupplierActionLock{}).
		Where("idempotency_key = ? AND status = ?", key, models.LockStatusPending).
		Updates(map[string]interface{}{
			"status":     models.LockStatusSuccess,
			"result":     result,
			"settled_at": now,
		}).Error
}

func (s *ActionLockStore) MarkFailed(ctx context.Context, key, errMsg string) error {
	now := time.Now()
	return s.GetDB(ctx).
		Model(&models.SupplierActionLock{}).
		Where("idempotency_key = ? AND status = ?", key, models.LockStatusPending).
		Updates(map[string]interface{}{
			"status":     models.LockStatusFailed,
			"last_error": errMsg,
			"settled_at": now,
		}).Error
}

func (s *ActionLockStore) ListByBooking(ctx context.Context, bookingID string) ([]*models.SupplierActionLock, error) {
	var locks []*models.SupplierActionLock
	if err := s.GetDB(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at DESC").
		Find(&locks).Error; err != nil {
		return nil, err
	}
	return locks, nil
}

// Unlock removes a settled-failed or stale-pending lock so an operator can
// allow the guarded action to execute again. Pending locks younger than
// staleAfter are in flight and stay untouched.
func (s *ActionLockStore) Unlock(ctx context.Context, key string, staleAfter time.Duration) (bool, error) {
	cutoff := time.Now().Add(-staleAfter)
	result := s.GetDB(ctx).
		Where("idempotency_key = ? AND (status = ? OR (status = ? AND started_at < ?))",
			key, models.LockStatusFailed, models.LockStatusPending, cutoff).
		Delete(&models.SupplierActionLock{})
	return result.RowsAffected > 0, result.Error
}
