package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/trustmark/internal/registry/domain"
	"github.com/smallbiznis/trustmark/pkg/db/option"
	"github.com/smallbiznis/trustmark/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	if product == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"batch",
			"last_token_fingerprint",
			"last_token_issued_at",
			"last_token_expires_at",
			"last_key_id",
			"updated_at",
		}),
	}).Create(product).Error
}

func (r *repo) UpsertState(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	if product == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_active",
			"deactivated_at",
			"deactivation_reason",
			"updated_at",
		}),
	}).Create(product).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, productID string) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT product_id, name, batch, is_active, deactivated_at, deactivation_reason,
		        last_token_fingerprint, last_token_issued_at, last_token_expires_at, last_key_id,
		        created_at, updated_at
		 FROM products WHERE product_id = ?`,
		productID,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ProductID == "" {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListRequest) ([]*domain.Product, error) {
	opts := []option.QueryOption{
		option.WithSortBy(option.WithQuerySortBy(filter.SortBy, filter.OrderBy, map[string]bool{
			"created_at": true,
			"updated_at": true,
			"product_id": true,
			"name":       true,
		})),
	}
	if batch := strings.TrimSpace(filter.Batch); batch != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "batch", Operator: option.EQ, Value: batch}))
	}
	if filter.Active != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "is_active", Operator: option.EQ, Value: *filter.Active}))
	}
	opts = append(opts, option.ApplyPagination(filter.PageSize, filter.Offset))

	return repository.ProvideKeyedStore[domain.Product](db, "product_id").Find(ctx, nil, opts...)
}
