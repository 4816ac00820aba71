package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	List(ctx context.Context) ([]Response, error)
	Create(ctx context.Context, req CreateRequest) (*SecretResponse, error)
	Rotate(ctx context.Context, keyID string) (*SecretResponse, error)
	Revoke(ctx context.Context, keyID string) error
	// Authenticate resolves a raw bearer key to its principal.
	Authenticate(ctx context.Context, raw string) (*Principal, error)
}

type CreateRequest struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

type Response struct {
	KeyID            string     `json:"key_id"`
	Name             string     `json:"name"`
	Roles            []string   `json:"roles"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	LastUsedAt       *time.Time `json:"last_used_at"`
	ExpiresAt        *time.Time `json:"expires_at"`
	RotatedFromKeyID *string    `json:"rotated_from_key_id"`
}

type SecretResponse struct {
	KeyID  string   `json:"key_id"`
	APIKey string   `json:"api_key"`
	Roles  []string `json:"roles"`
}

// Principal is the authenticated caller behind an API key.
type Principal struct {
	ID    string
	KeyID string
	Name  string
	Roles []string
}

var (
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidKeyID  = errors.New("invalid_key_id")
	ErrNotFound      = errors.New("not_found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidAPIKey = errors.New("invalid_api_key")
)
