package db

import (
	"fmt"

	"github.com/voyago/fulfillment/models"
	"gorm.io/gorm"
)

// Migrate creates the tables this core owns, plus the booking table it
// mutates. The unique indexes on supplier_action_locks.idempotency_key and
// lifecycle_audits.idempotency_key are load-bearing: the at-most-once
// guarantees depend on them, not on application logic.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&models.Booking{},
		&models.LifecycleAudit{},
		&models.SupplierActionLock{},
		&models.AutomationFailure{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
