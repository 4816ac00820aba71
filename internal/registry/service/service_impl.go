package service

import (
	"context"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/trustmark/internal/audit/domain"
	"github.com/smallbiznis/trustmark/internal/registry/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxProductIDLength = 255

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("registry.service"),
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (*domain.Response, error) {
	productID, err := normalizeProductID(req.ProductID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := time.Now().UTC()
	p := &domain.Product{
		ProductID:            productID,
		Name:                 name,
		Batch:                optionalString(req.Batch),
		IsActive:             true,
		LastTokenFingerprint: optionalString(req.LastTokenFingerprint),
		LastTokenIssuedAt:    utcPtr(req.LastTokenIssuedAt),
		LastTokenExpiresAt:   utcPtr(req.LastTokenExpiresAt),
		LastKeyID:            optionalString(req.LastKeyID),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Upsert(ctx, s.db, p); err != nil {
		return nil, err
	}

	return s.Get(ctx, productID)
}

func (s *Service) SetActive(ctx context.Context, req domain.SetActiveRequest) (*domain.Response, error) {
	productID, err := normalizeProductID(req.ProductID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = productID
	}

	now := time.Now().UTC()
	p := &domain.Product{
		ProductID: productID,
		Name:      name,
		IsActive:  req.Active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	reason := strings.TrimSpace(req.Reason)
	if !req.Active {
		p.DeactivatedAt = &now
		p.DeactivationReason = optionalString(reason)
	}

	if err := s.repo.UpsertState(ctx, s.db, p); err != nil {
		return nil, err
	}

	action := auditdomain.ActionProductActivated
	if !req.Active {
		action = auditdomain.ActionProductDeactivated
	}
	s.log.Info("product state changed",
		zap.String("product_id", productID),
		zap.Bool("is_active", req.Active),
		zap.String("reason", reason),
	)
	if s.auditSvc != nil {
		metadata := map[string]any{}
		if reason != "" {
			metadata["reason"] = reason
		}
		_ = s.auditSvc.AuditLog(ctx, "", nil, action, "product", &productID, metadata)
	}

	return s.Get(ctx, productID)
}

func (s *Service) IsActive(ctx context.Context, productID string) (bool, error) {
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return true, nil
	}
	item, err := s.repo.FindByID(ctx, s.db, trimmed)
	if err != nil {
		return false, err
	}
	if item == nil {
		return true, nil
	}
	return item.IsActive, nil
}

func (s *Service) Get(ctx context.Context, productID string) (*domain.Response, error) {
	trimmed, err := normalizeProductID(productID)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindByID(ctx, s.db, trimmed)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	resp := s.toResponse(item)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	filter := domain.ListRequest{
		Batch:    strings.TrimSpace(req.Batch),
		Active:   req.Active,
		SortBy:   strings.TrimSpace(req.SortBy),
		OrderBy:  strings.TrimSpace(req.OrderBy),
		PageSize: req.PageSize,
		Offset:   req.Offset,
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, s.toResponse(item))
	}
	return resp, nil
}

func (s *Service) toResponse(p *domain.Product) domain.Response {
	return domain.Response{
		ProductID:            p.ProductID,
		Name:                 p.Name,
		Batch:                derefString(p.Batch),
		IsActive:             p.IsActive,
		DeactivatedAt:        p.DeactivatedAt,
		DeactivationReason:   derefString(p.DeactivationReason),
		LastTokenFingerprint: derefString(p.LastTokenFingerprint),
		LastTokenIssuedAt:    p.LastTokenIssuedAt,
		LastTokenExpiresAt:   p.LastTokenExpiresAt,
		LastKeyID:            derefString(p.LastKeyID),
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

func normalizeProductID(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || len(trimmed) > maxProductIDLength {
		return "", domain.ErrInvalidProductID
	}
	return trimmed, nil
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
