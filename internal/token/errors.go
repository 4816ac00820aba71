package token

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedToken       = errors.New("malformed_token")
	ErrExpired              = errors.New("expired")
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrUnsupportedAlgorithm = errors.New("unsupported_algorithm")
	ErrKeyMismatch          = errors.New("key_algorithm_mismatch")
	ErrMissingPrivateKey    = errors.New("missing_private_key")
	ErrInvalidPayload       = errors.New("invalid_payload")
)

// SigningError is returned by Sign when a token cannot be produced.
type SigningError struct {
	Op  string
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("token: sign %s: %v", e.Op, e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedToken, fmt.Sprintf(format, args...))
}
