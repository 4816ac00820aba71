// Package repository provides a generic gorm-backed store for simple tables.
package repository

import (
	"context"

	"github.com/smallbiznis/trustmark/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a typed CRUD store. Zero-valued fields of the query struct
// are ignored when filtering.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID string, resource any) error
	Delete(ctx context.Context, resourceID string) error
	Count(ctx context.Context, query *T) (int64, error)
	BatchCreate(ctx context.Context, resources []*T) error
	BatchUpdate(ctx context.Context, resources []*T) error
}
