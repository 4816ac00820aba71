// Package option holds composable query modifiers for repositories.
package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// QuerySortBy orders results by SortBy when it is in Allow. The default is
// created_at descending.
type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

func WithQuerySortBy(sortBy, orderBy string, allow map[string]bool) QuerySortBy {
	return QuerySortBy{
		SortBy:  strings.ToLower(strings.TrimSpace(sortBy)),
		OrderBy: strings.ToLower(strings.TrimSpace(orderBy)),
		Allow:   allow,
	}
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		column := "created_at"
		if sort.SortBy != "" && sort.Allow[sort.SortBy] {
			column = sort.SortBy
		}
		direction := "desc"
		if sort.OrderBy == "asc" {
			direction = "asc"
		}
		return db.Order(fmt.Sprintf("%s %s", column, direction))
	})
}

// ApplyOperator adds a comparison on a trusted column name.
func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		op := cond.Operator
		switch op {
		case EQ, NEQ, GT, GTE, LT, LTE:
		default:
			op = EQ
		}
		return db.Where(fmt.Sprintf("%s %s ?", cond.Field, op), cond.Value)
	})
}

func ApplyPagination(limit, offset int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit > 0 {
			db = db.Limit(limit)
		}
		if offset > 0 {
			db = db.Offset(offset)
		}
		return db
	})
}
