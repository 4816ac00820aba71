package domain

import (
	"context"
	"errors"

	riskdomain "github.com/smallbiznis/trustmark/internal/risk/domain"
	"github.com/smallbiznis/trustmark/internal/token"
)

// Reason codes returned with valid=false.
const (
	ReasonMalformedToken   = "malformed_token"
	ReasonExpired          = "expired"
	ReasonInvalidSignature = "invalid_signature"
	ReasonDeactivated      = "deactivated"
)

type Request struct {
	Token     string
	IPAddress string
	UserAgent string
}

// Result is the caller-facing outcome. Invalid tokens are a Result, not an error.
type Result struct {
	Valid     bool             `json:"valid"`
	Reason    string           `json:"reason,omitempty"`
	Payload   *token.Payload   `json:"payload,omitempty"`
	Risk      riskdomain.Level `json:"risk,omitempty"`
	ScanCount *int64           `json:"scanCount,omitempty"`
}

type Service interface {
	// Verify checks raw and records the scan. The error is non-nil only when
	// the registry cannot be consulted.
	Verify(ctx context.Context, req Request) (*Result, error)
}

var ErrRegistryUnavailable = errors.New("registry_unavailable")

// ReasonFor maps a token verification error to its reason code.
func ReasonFor(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ReasonExpired
	case errors.Is(err, token.ErrInvalidSignature):
		return ReasonInvalidSignature
	default:
		return ReasonMalformedToken
	}
}
