package token

import (
	"fmt"
	"math"
	"strings"

	"github.com/smallbiznis/trustmark/internal/canonical"
)

const (
	fieldID       = "id"
	fieldName     = "name"
	fieldBatch    = "batch"
	fieldMetadata = "metadata"
	fieldIssuedAt = "issuedAt"
)

// Payload is the signed product identity carried by a token.
type Payload struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Batch    string         `json:"batch,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	IssuedAt int64          `json:"issuedAt"`
}

// Validate checks required fields and that metadata stays inside the
// canonical value variant.
func (p Payload) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPayload)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPayload)
	}
	if len(p.Metadata) > 0 {
		if _, err := canonical.Normalize(p.Metadata); err != nil {
			return err
		}
	}
	return nil
}

// Fields returns the payload as the field map fed to the canonical encoder.
// Empty batch and metadata are left out.
func (p Payload) Fields() map[string]any {
	fields := map[string]any{
		fieldID:       p.ID,
		fieldName:     p.Name,
		fieldIssuedAt: p.IssuedAt,
	}
	if p.Batch != "" {
		fields[fieldBatch] = p.Batch
	}
	if len(p.Metadata) > 0 {
		fields[fieldMetadata] = p.Metadata
	}
	return fields
}

// Canonical returns the deterministic encoding of the payload.
func (p Payload) Canonical() ([]byte, error) {
	return canonical.Encode(p.Fields())
}

// decodePayload parses canonical payload bytes. Bytes that decode but are
// not the canonical encoding of what they decode to are rejected, which
// also rules out unknown fields.
func decodePayload(data []byte) (Payload, error) {
	var raw map[string]any
	if err := canonical.Unmarshal(data, &raw); err != nil {
		return Payload{}, malformed("payload: %v", err)
	}

	var p Payload
	var ok bool
	if p.ID, ok = raw[fieldID].(string); !ok || strings.TrimSpace(p.ID) == "" {
		return Payload{}, malformed("payload: missing id")
	}
	if p.Name, ok = raw[fieldName].(string); !ok || strings.TrimSpace(p.Name) == "" {
		return Payload{}, malformed("payload: missing name")
	}
	issuedAt, err := asInt64(raw[fieldIssuedAt])
	if err != nil {
		return Payload{}, malformed("payload: issuedAt: %v", err)
	}
	p.IssuedAt = issuedAt

	if v, present := raw[fieldBatch]; present {
		if p.Batch, ok = v.(string); !ok {
			return Payload{}, malformed("payload: batch is not a string")
		}
	}
	if v, present := raw[fieldMetadata]; present {
		normalized, err := canonical.Normalize(v)
		if err != nil {
			return Payload{}, malformed("payload: metadata: %v", err)
		}
		if p.Metadata, ok = normalized.(map[string]any); !ok {
			return Payload{}, malformed("payload: metadata is not a map")
		}
	}

	reencoded, err := p.Canonical()
	if err != nil {
		return Payload{}, malformed("payload: %v", err)
	}
	if string(reencoded) != string(data) {
		return Payload{}, malformed("payload: non-canonical encoding")
	}
	return p, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("out of range")
		}
		return int64(n), nil
	case nil:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
