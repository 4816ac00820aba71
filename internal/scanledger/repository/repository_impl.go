package repository

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/trustmark/internal/scanledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.ScanEvent) error {
	if event == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO scan_events (
			id, product_id, outcome, reason, risk_level_at_scan, ip_address, user_agent,
			client_fingerprint, token_fingerprint, key_id, metadata, scanned_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.ProductID,
		event.Outcome,
		event.Reason,
		event.RiskLevelAtScan,
		event.IPAddress,
		event.UserAgent,
		event.ClientFingerprint,
		event.TokenFingerprint,
		event.KeyID,
		event.Metadata,
		event.ScannedAt,
	).Error
}

func (r *repo) CountValidSince(ctx context.Context, db *gorm.DB, productID string, since time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM scan_events
		 WHERE product_id = ? AND outcome = ? AND scanned_at >= ?`,
		productID,
		string(domain.OutcomeValid),
		since.UTC(),
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.ScanEvent, error) {
	var events []*domain.ScanEvent
	stmt := db.WithContext(ctx).Model(&domain.ScanEvent{}).
		Where("product_id = ?", filter.ProductID)

	if outcome := strings.TrimSpace(filter.Outcome); outcome != "" {
		stmt = stmt.Where("outcome = ?", outcome)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("((scanned_at < ?) OR (scanned_at = ? AND id < ?))",
			filter.Cursor.ScannedAt,
			filter.Cursor.ScannedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("scanned_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) CountByOutcome(ctx context.Context, db *gorm.DB, productID string) ([]domain.OutcomeCount, error) {
	var rows []domain.OutcomeCount
	err := db.WithContext(ctx).Raw(
		`SELECT outcome, COUNT(*) AS total FROM scan_events
		 WHERE product_id = ? GROUP BY outcome`,
		productID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) CountDistinctClients(ctx context.Context, db *gorm.DB, productID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(DISTINCT client_fingerprint) FROM scan_events
		 WHERE product_id = ? AND client_fingerprint IS NOT NULL`,
		productID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) ScanBounds(ctx context.Context, db *gorm.DB, productID string) (*time.Time, *time.Time, error) {
	first, err := r.boundary(ctx, db, productID, "asc")
	if err != nil || first == nil {
		return nil, nil, err
	}
	last, err := r.boundary(ctx, db, productID, "desc")
	if err != nil {
		return nil, nil, err
	}
	return first, last, nil
}

func (r *repo) boundary(ctx context.Context, db *gorm.DB, productID, direction string) (*time.Time, error) {
	var event domain.ScanEvent
	err := db.WithContext(ctx).Model(&domain.ScanEvent{}).
		Select("id", "scanned_at").
		Where("product_id = ?", productID).
		Order("scanned_at " + direction).
		Limit(1).
		Find(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == 0 {
		return nil, nil
	}
	at := event.ScannedAt.UTC()
	return &at, nil
}
