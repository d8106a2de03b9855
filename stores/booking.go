package stores

import (
	"context"
	"errors"

	"github.com/voyago/fulfillment/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrBookingNotFound = errors.New("booking not found")

type BookingStore struct {
	BaseStore
}

func CreateBookingStore(db *gorm.DB) *BookingStore {
	return &BookingStore{BaseStore: BaseStore{db: db}}
}

func (s *BookingStore) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	if err := s.GetDB(ctx).First(&booking, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &booking, nil
}

func (s *BookingStore) GetByCode(ctx context.Context, code string) (*models.Booking, error) {
	var booking models.Booking
	if err := s.GetDB(ctx).Where("code = ?", code).First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &booking, nil
}

// GetByRef resolves a booking by its human-readable code first, then by id.
func (s *BookingStore) GetByRef(ctx context.Context, ref string) (*models.Booking, error) {
	booking, err := s.GetByCode(ctx, ref)
	if err == nil {
		return booking, nil
	}
	if !errors.Is(err, ErrBookingNotFound) {
		return nil, err
	}
	return s.GetByID(ctx, ref)
}

// AdvanceLifecycle moves the booking to target only if it currently sits at a
// strictly earlier state. Zero rows affected means the booking already reached
// target (or beyond), which callers treat as an idempotent no-op.
func (s *BookingStore) AdvanceLifecycle(ctx context.Context, bookingID string, target models.LifecycleStatus) (bool, error) {
	earlier := models.StatesBefore(target)
	if len(earlier) == 0 {
		return false, nil
	}

	result := s.GetDB(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND lifecycle_status IN ?", bookingID, earlier).
		Update("lifecycle_status", target)

	return result.RowsAffected > 0, result.Error
}

func (s *BookingStore) SetPaymentStatus(ctx context.Context, bookingID string, status models.PaymentStatus) error {
	return s.GetDB(ctx).
		Model(&models.Booking{}).
		Where("id = ?", bookingID).
		Update("payment_status", status).Error
}

func (s *BookingStore) SetSupplierStatus(ctx context.Context, bookingID string, status models.SupplierStatus) error {
	return s.GetDB(ctx).
		Model(&models.Booking{}).
		Where("id = ?", bookingID).
		Update("supplier_status", status).Error
}

// SetSupplierConfirmationRef records the supplier's confirmation reference
// only if none is set yet; the first writer wins.
func (s *BookingStore) SetSupplierConfirmationRef(ctx context.Context, bookingID, ref string) error {
	return s.GetDB(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND (supplier_confirmation_ref IS NULL OR supplier_confirmation_ref = '')", bookingID).
		Update("supplier_confirmation_ref", ref).Error
}

// RecordAudit inserts the audit entry for an applied transition. Conflicts on
// the idempotency key are silently dropped so concurrent callers of the same
// logical transition never produce divergent entries.
func (s *BookingStore) RecordAudit(ctx context.Context, audit *models.LifecycleAudit) error {
	return s.GetDB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(audit).Error
}

func (s *BookingStore) ListAudit(ctx context.Context, bookingID string, limit int) ([]*models.LifecycleAudit, error) {
	var entries []*models.LifecycleAudit
	query := s.GetDB(ctx).Where("booking_id = ?", bookingID).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
