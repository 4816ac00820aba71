package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Upsert(ctx context.Context, req UpsertRequest) (*Response, error)
	SetActive(ctx context.Context, req SetActiveRequest) (*Response, error)
	// IsActive reports whether productID may verify. Unknown products are active.
	IsActive(ctx context.Context, productID string) (bool, error)
	Get(ctx context.Context, productID string) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
}

type UpsertRequest struct {
	ProductID string
	Name      string
	Batch     string

	LastTokenFingerprint string
	LastTokenIssuedAt    *time.Time
	LastTokenExpiresAt   *time.Time
	LastKeyID            string
}

type SetActiveRequest struct {
	ProductID string `json:"-"`
	Active    bool   `json:"-"`
	Name      string `json:"name"`
	Reason    string `json:"reason"`
}

type ListRequest struct {
	Batch    string
	Active   *bool
	SortBy   string
	OrderBy  string
	PageSize int
	Offset   int
}

type Response struct {
	ProductID            string     `json:"product_id"`
	Name                 string     `json:"name"`
	Batch                string     `json:"batch,omitempty"`
	IsActive             bool       `json:"is_active"`
	DeactivatedAt        *time.Time `json:"deactivated_at,omitempty"`
	DeactivationReason   string     `json:"deactivation_reason,omitempty"`
	LastTokenFingerprint string     `json:"last_token_fingerprint,omitempty"`
	LastTokenIssuedAt    *time.Time `json:"last_token_issued_at,omitempty"`
	LastTokenExpiresAt   *time.Time `json:"last_token_expires_at,omitempty"`
	LastKeyID            string     `json:"last_key_id,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

var (
	ErrInvalidProductID = errors.New("invalid_product_id")
	ErrInvalidName      = errors.New("invalid_name")
	ErrNotFound         = errors.New("not_found")
)
