package stores

import (
	"context"

	"gorm.io/gorm"
)

// BaseStore holds the shared gorm handle. Every invariant in this core is
// enforced through single-row conditional writes, so stores never open
// multi-row transactions.
type BaseStore struct {
	db *gorm.DB
}

func (s *BaseStore) GetDB(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}
