package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/smallbiznis/trustmark/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/trustmark/internal/audit/domain"
	"github.com/smallbiznis/trustmark/internal/audit/masking"
	"github.com/smallbiznis/trustmark/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	apiKeySecretBytes         = 32
	apiKeyRotationGracePeriod = 24 * time.Hour
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     apikeydomain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
	Clock    clock.Clock         `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     apikeydomain.Repository
	genID    *snowflake.Node
	auditSvc auditdomain.Service
	clock    clock.Clock
}

func New(p Params) apikeydomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("apikey.service"),
		repo:     p.Repo,
		genID:    p.GenID,
		auditSvc: p.AuditSvc,
		clock:    clk,
	}
}

func (s *Service) List(ctx context.Context) ([]apikeydomain.Response, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}

	resp := make([]apikeydomain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, s.toResponse(item))
	}
	return resp, nil
}

func (s *Service) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}
	roles, err := normalizeRoles(req.Roles)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	keyID := NewKeyID(id)
	plain, hash, err := generateAPIKey(keyID)
	if err != nil {
		return nil, err
	}

	key := &apikeydomain.APIKey{
		ID:        id,
		KeyID:     keyID,
		Name:      name,
		Roles:     roles,
		KeyHash:   hash,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	s.audit(ctx, auditdomain.ActionAPIKeyCreated, keyID, map[string]any{
		"name":     name,
		"roles":    []string(roles),
		"key_hint": masking.MaskSecret(plain),
	})
	return &apikeydomain.SecretResponse{KeyID: keyID, APIKey: plain, Roles: roles}, nil
}

// Rotate issues a replacement key with the same name and roles. The old key
// keeps working for the grace period.
func (s *Service) Rotate(ctx context.Context, keyID string) (*apikeydomain.SecretResponse, error) {
	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return nil, apikeydomain.ErrInvalidKeyID
	}

	var (
		result *apikeydomain.SecretResponse
		plain  string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByKeyID(ctx, tx, trimmed)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if !current.Usable(now) {
			return apikeydomain.ErrNotFound
		}

		graceEnd := now.Add(apiKeyRotationGracePeriod)
		if current.ExpiresAt == nil || current.ExpiresAt.After(graceEnd) {
			current.ExpiresAt = &graceEnd
		}
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}

		id := s.genID.Generate()
		nextKeyID := NewKeyID(id)
		var hash string
		plain, hash, err = generateAPIKey(nextKeyID)
		if err != nil {
			return err
		}

		rotatedFrom := current.KeyID
		next := &apikeydomain.APIKey{
			ID:               id,
			KeyID:            nextKeyID,
			Name:             current.Name,
			Roles:            current.Roles,
			KeyHash:          hash,
			IsActive:         true,
			CreatedAt:        now,
			UpdatedAt:        now,
			RotatedFromKeyID: &rotatedFrom,
		}
		if err := s.repo.Insert(ctx, tx, next); err != nil {
			return err
		}

		result = &apikeydomain.SecretResponse{KeyID: next.KeyID, APIKey: plain, Roles: next.Roles}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, auditdomain.ActionAPIKeyRotated, result.KeyID, map[string]any{
		"rotated_from": trimmed,
		"key_hint":     masking.MaskSecret(plain),
	})
	return result, nil
}

func (s *Service) Revoke(ctx context.Context, keyID string) error {
	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return apikeydomain.ErrInvalidKeyID
	}

	key, err := s.repo.FindByKeyID(ctx, s.db, trimmed)
	if err != nil {
		return err
	}
	if key == nil {
		return apikeydomain.ErrNotFound
	}

	now := s.clock.Now()
	key.IsActive = false
	key.UpdatedAt = now
	if key.ExpiresAt == nil || key.ExpiresAt.After(now) {
		key.ExpiresAt = &now
	}
	if err := s.repo.Update(ctx, s.db, key); err != nil {
		return err
	}

	s.audit(ctx, auditdomain.ActionAPIKeyRevoked, trimmed, nil)
	return nil
}

func (s *Service) Authenticate(ctx context.Context, raw string) (*apikeydomain.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apikeydomain.ErrInvalidAPIKey
	}

	hash := apikeydomain.HashAPIKey(raw)
	key, err := s.repo.FindByHash(ctx, s.db, hash)
	if err != nil {
		return nil, err
	}
	if key == nil || subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return nil, apikeydomain.ErrUnauthorized
	}

	now := s.clock.Now()
	if !key.Usable(now) {
		return nil, apikeydomain.ErrUnauthorized
	}

	if err := s.repo.TouchLastUsed(ctx, s.db, key.ID, now); err != nil {
		s.log.Warn("failed to update api key last_used_at",
			zap.String("key_id", key.KeyID),
			zap.Error(err),
		)
	}

	return &apikeydomain.Principal{
		ID:    key.ID.String(),
		KeyID: key.KeyID,
		Name:  key.Name,
		Roles: append([]string(nil), key.Roles...),
	}, nil
}

func (s *Service) audit(ctx context.Context, action, keyID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "api_key", &keyID, metadata); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("key_id", keyID),
			zap.Error(err),
		)
	}
}

func (s *Service) toResponse(key *apikeydomain.APIKey) apikeydomain.Response {
	return apikeydomain.Response{
		KeyID:            key.KeyID,
		Name:             key.Name,
		Roles:            append([]string(nil), key.Roles...),
		IsActive:         key.IsActive,
		CreatedAt:        key.CreatedAt,
		LastUsedAt:       key.LastUsedAt,
		ExpiresAt:        key.ExpiresAt,
		RotatedFromKeyID: key.RotatedFromKeyID,
	}
}

func normalizeRoles(input []string) ([]string, error) {
	if len(input) == 0 {
		return []string{apikeydomain.RoleIssuer}, nil
	}
	seen := make(map[string]struct{}, len(input))
	roles := make([]string, 0, len(input))
	for _, raw := range input {
		role := strings.ToLower(strings.TrimSpace(raw))
		switch role {
		case apikeydomain.RoleIssuer, apikeydomain.RoleAdmin:
		default:
			return nil, apikeydomain.ErrInvalidRole
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	return roles, nil
}

func generateAPIKey(keyID string) (string, string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	secretPart := hex.EncodeToString(secret)
	trimmed := strings.ToLower(strings.TrimPrefix(keyID, "key_"))
	plain := fmt.Sprintf("%s%s_%s", apikeydomain.KeyPrefix, trimmed, secretPart)
	return plain, apikeydomain.HashAPIKey(plain), nil
}

// NewKeyID derives the public key identifier from a snowflake id.
func NewKeyID(id snowflake.ID) string {
	return "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
}
