package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	apikeydomain "github.com/smallbiznis/trustmark/internal/apikey/domain"
	"github.com/smallbiznis/trustmark/pkg/db"
	"gorm.io/gorm"
)

const (
	defaultBootstrapKeyName = "bootstrap-admin"
	minBootstrapKeyLength   = 32
)

var ErrInvalidBootstrapKey = errors.New("invalid_bootstrap_api_key")

// EnsureBootstrapAdminKey registers raw as an active admin API key unless a
// key with the same hash already exists. It reports whether a row was created.
func EnsureBootstrapAdminKey(conn *gorm.DB, node *snowflake.Node, name string, raw string) (bool, error) {
	if conn == nil {
		return false, errors.New("seed database handle is required")
	}
	if node == nil {
		return false, errors.New("seed id generator is required")
	}

	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, apikeydomain.KeyPrefix) || len(raw) < minBootstrapKeyLength {
		return false, ErrInvalidBootstrapKey
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultBootstrapKeyName
	}

	hash := apikeydomain.HashAPIKey(raw)
	ctx := context.Background()
	created := false
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing apikeydomain.APIKey
		err := tx.WithContext(ctx).Where("key_hash = ?", hash).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		id := node.Generate()
		key := apikeydomain.APIKey{
			ID:        id,
			KeyID:     "key_bootstrap_" + id.Base36(),
			Name:      name,
			Roles:     pq.StringArray{apikeydomain.RoleAdmin},
			KeyHash:   hash,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.WithContext(ctx).Create(&key).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	// Another replica seeded the same key first.
	if db.IsDuplicateKeyErr(err) {
		return false, nil
	}
	return created, err
}
