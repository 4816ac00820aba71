package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// KeyPrefix starts every issued key.
const KeyPrefix = "tm_live_"

// HashAPIKey hashes the raw API key using the same strategy as key creation.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
