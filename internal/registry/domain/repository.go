package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts product or refreshes its descriptive and last-token
	// columns. is_active and the deactivation columns are left untouched.
	Upsert(ctx context.Context, db *gorm.DB, product *Product) error
	// UpsertState inserts product or overwrites only its activation columns.
	UpsertState(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, productID string) (*Product, error)
	List(ctx context.Context, db *gorm.DB, filter ListRequest) ([]*Product, error)
}
