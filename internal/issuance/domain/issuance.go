package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/trustmark/internal/token"
)

// SignRequest is the issuer's input. ExpiresInSeconds nil uses the configured
// default; 0 issues a token without expiry.
type SignRequest struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Batch            string         `json:"batch"`
	Metadata         map[string]any `json:"metadata"`
	ExpiresInSeconds *int64         `json:"expires_in_seconds"`
	Compression      string         `json:"compression"`
}

type SignResponse struct {
	Token           string          `json:"token"`
	VerificationURL string          `json:"verification_url"`
	KeyID           string          `json:"key_id"`
	Algorithm       token.Algorithm `json:"algorithm"`
	Payload         token.Payload   `json:"payload"`
	Fingerprint     string          `json:"fingerprint"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
}

type Service interface {
	Sign(ctx context.Context, req SignRequest) (*SignResponse, error)
}

var (
	ErrInvalidExpiry      = errors.New("invalid_expiry")
	ErrInvalidCompression = errors.New("invalid_compression")
)
