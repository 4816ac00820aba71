// Package token issues and verifies signed product identity tokens.
//
// A token carries the canonical payload bytes, the signature over them and
// an optional expiry. Verification needs only the issuer's public key.
package token

import (
	"crypto"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/trustmark/internal/canonical"
	"github.com/zeebo/blake3"
)

// Version is the only wire format version this package reads or writes.
const Version uint8 = 1

// maxOpaqueLen bounds the encoded token before any decoding happens.
const maxOpaqueLen = (maxBodySize+2)*4/3 + 4

// Token is a decoded token. It is immutable once issued.
type Token struct {
	Version      uint8
	Algorithm    Algorithm
	KeyID        string
	Payload      Payload
	PayloadBytes []byte
	Signature    []byte
	ExpiresAt    *int64
	Compression  Compression

	// Raw is the opaque string form.
	Raw string
}

// SignOptions controls issuance. A zero ExpiresIn issues a token that never
// expires; a zero Now uses the wall clock.
type SignOptions struct {
	ExpiresIn   time.Duration
	Now         time.Time
	Compression Compression
}

// signedContent is the exact structure the signature covers.
type signedContent struct {
	Version   uint8  `cbor:"1,keyasint"`
	Algorithm string `cbor:"2,keyasint"`
	Payload   []byte `cbor:"3,keyasint"`
	ExpiresAt *int64 `cbor:"4,keyasint,omitempty"`
}

// bundle is the wire body.
type bundle struct {
	Version   uint8  `cbor:"1,keyasint"`
	Algorithm string `cbor:"2,keyasint"`
	KeyID     string `cbor:"3,keyasint"`
	Payload   []byte `cbor:"4,keyasint"`
	Signature []byte `cbor:"5,keyasint"`
	ExpiresAt *int64 `cbor:"6,keyasint,omitempty"`
}

// Sign issues a token for payload. IssuedAt is always overwritten.
func Sign(payload Payload, keys *KeyPair, opts SignOptions) (*Token, error) {
	if keys == nil || !keys.CanSign() {
		return nil, &SigningError{Op: "key", Err: ErrMissingPrivateKey}
	}

	payload.ID = strings.TrimSpace(payload.ID)
	payload.Name = strings.TrimSpace(payload.Name)
	if err := payload.Validate(); err != nil {
		return nil, &SigningError{Op: "validate", Err: err}
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	payload.IssuedAt = now.Unix()

	payloadBytes, err := payload.Canonical()
	if err != nil {
		return nil, &SigningError{Op: "encode", Err: err}
	}
	// Hand back the normalized metadata so callers see what was signed.
	if len(payload.Metadata) > 0 {
		normalized, err := canonical.Normalize(payload.Metadata)
		if err != nil {
			return nil, &SigningError{Op: "encode", Err: err}
		}
		payload.Metadata = normalized.(map[string]any)
	}

	var expiresAt *int64
	if opts.ExpiresIn > 0 {
		exp := now.Add(opts.ExpiresIn).Unix()
		expiresAt = &exp
	}

	message, err := signingInput(keys.Algorithm, payloadBytes, expiresAt)
	if err != nil {
		return nil, &SigningError{Op: "encode", Err: err}
	}
	signature, err := signDigest(keys.Algorithm, keys.Private, message)
	if err != nil {
		return nil, &SigningError{Op: "signature", Err: err}
	}

	tok := &Token{
		Version:      Version,
		Algorithm:    keys.Algorithm,
		KeyID:        keys.KeyID,
		Payload:      payload,
		PayloadBytes: payloadBytes,
		Signature:    signature,
		ExpiresAt:    expiresAt,
	}
	raw, tag, err := tok.encode(opts.Compression)
	if err != nil {
		return nil, &SigningError{Op: "wire", Err: err}
	}
	tok.Raw = raw
	tok.Compression = tag
	return tok, nil
}

// Parse decodes the opaque form and its payload without checking the
// signature or expiry. Every structural problem is reported as
// ErrMalformedToken.
func Parse(raw string) (*Token, error) {
	tok, err := parseBundle(raw)
	if err != nil {
		return nil, err
	}
	if tok.Payload, err = decodePayload(tok.PayloadBytes); err != nil {
		return nil, err
	}
	return tok, nil
}

// parseBundle decodes the wire bundle only. The payload bytes are left
// undecoded so that a mutated payload is caught by the signature check.
func parseBundle(raw string) (*Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, malformed("empty token")
	}
	if len(raw) > maxOpaqueLen {
		return nil, malformed("token too long")
	}

	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, malformed("base64: %v", err)
	}
	if len(data) < 3 {
		return nil, malformed("token too short")
	}
	if data[0] != Version {
		return nil, malformed("unsupported version %d", data[0])
	}

	tag := Compression(data[1])
	body, err := decompressBody(data[2:], tag)
	if err != nil {
		return nil, err
	}

	var b bundle
	if err := canonical.Unmarshal(body, &b); err != nil {
		return nil, malformed("bundle: %v", err)
	}
	if b.Version != Version {
		return nil, malformed("bundle version %d", b.Version)
	}
	alg, err := ParseAlgorithm(b.Algorithm)
	if err != nil || string(alg) != b.Algorithm {
		return nil, malformed("algorithm %q", b.Algorithm)
	}
	if len(b.Payload) == 0 || len(b.Signature) == 0 {
		return nil, malformed("missing payload or signature")
	}

	return &Token{
		Version:      b.Version,
		Algorithm:    alg,
		KeyID:        b.KeyID,
		PayloadBytes: b.Payload,
		Signature:    b.Signature,
		ExpiresAt:    b.ExpiresAt,
		Compression:  tag,
		Raw:          raw,
	}, nil
}

// Verify parses raw and checks it against public at the current time.
func Verify(raw string, public crypto.PublicKey) (*Token, error) {
	return VerifyAt(raw, public, time.Now())
}

// VerifyAt decodes raw and checks expiry then signature at now, decoding
// the payload only once its bytes are known to be signed. When a check
// fails the token is still returned, with its payload filled in if it
// happens to decode, so callers can attribute the failure to a product.
func VerifyAt(raw string, public crypto.PublicKey, now time.Time) (*Token, error) {
	tok, err := parseBundle(raw)
	if err != nil {
		return nil, err
	}
	if err := tok.Check(public, now); err != nil {
		if payload, perr := decodePayload(tok.PayloadBytes); perr == nil {
			tok.Payload = payload
		}
		return tok, err
	}
	if tok.Payload, err = decodePayload(tok.PayloadBytes); err != nil {
		return nil, err
	}
	return tok, nil
}

// Check validates expiry and signature of an already parsed token.
func (t *Token) Check(public crypto.PublicKey, now time.Time) error {
	if t.Expired(now) {
		return ErrExpired
	}
	if public == nil {
		return ErrInvalidSignature
	}
	// The key id is not covered by the signature, so it must name the key
	// doing the verification.
	if kid, err := KeyID(public); err != nil || kid != t.KeyID {
		return ErrInvalidSignature
	}
	message, err := signingInput(t.Algorithm, t.PayloadBytes, t.ExpiresAt)
	if err != nil {
		return ErrInvalidSignature
	}
	if !verifyDigest(t.Algorithm, public, message, t.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// Expired reports whether now is past the token's expiry.
func (t *Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.Unix() > *t.ExpiresAt
}

// ExpiresAtTime returns the expiry as a UTC time, or nil.
func (t *Token) ExpiresAtTime() *time.Time {
	if t.ExpiresAt == nil {
		return nil
	}
	at := time.Unix(*t.ExpiresAt, 0).UTC()
	return &at
}

// IssuedAtTime returns the issuance time in UTC.
func (t *Token) IssuedAtTime() time.Time {
	return time.Unix(t.Payload.IssuedAt, 0).UTC()
}

// Fingerprint identifies this token: blake3 over payload and signature.
func (t *Token) Fingerprint() string {
	h := blake3.New()
	_, _ = h.Write(t.PayloadBytes)
	_, _ = h.Write(t.Signature)
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// VerificationURL appends the token to base as the t query parameter.
func VerificationURL(base, raw string) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", fmt.Errorf("verification base url is empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse verification base url: %w", err)
	}
	q := u.Query()
	q.Set("t", raw)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *Token) encode(preferred Compression) (string, Compression, error) {
	body, err := canonical.Marshal(bundle{
		Version:   t.Version,
		Algorithm: string(t.Algorithm),
		KeyID:     t.KeyID,
		Payload:   t.PayloadBytes,
		Signature: t.Signature,
		ExpiresAt: t.ExpiresAt,
	})
	if err != nil {
		return "", 0, err
	}

	tag, packed, err := compressBody(body, preferred)
	if err != nil {
		return "", 0, err
	}
	if len(body) > maxBodySize {
		return "", 0, fmt.Errorf("token body is %d bytes, limit is %d", len(body), maxBodySize)
	}

	out := make([]byte, 0, len(packed)+2)
	out = append(out, Version, byte(tag))
	out = append(out, packed...)
	return base64.RawURLEncoding.EncodeToString(out), tag, nil
}

func signingInput(alg Algorithm, payload []byte, expiresAt *int64) ([]byte, error) {
	return canonical.Marshal(signedContent{
		Version:   Version,
		Algorithm: string(alg),
		Payload:   payload,
		ExpiresAt: expiresAt,
	})
}
