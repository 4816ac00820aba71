package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *ScanEvent) error
	CountValidSince(ctx context.Context, db *gorm.DB, productID string, since time.Time) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*ScanEvent, error)
	CountByOutcome(ctx context.Context, db *gorm.DB, productID string) ([]OutcomeCount, error)
	CountDistinctClients(ctx context.Context, db *gorm.DB, productID string) (int64, error)
	// ScanBounds returns the first and last scan times, or nils without scans.
	ScanBounds(ctx context.Context, db *gorm.DB, productID string) (*time.Time, *time.Time, error)
}
