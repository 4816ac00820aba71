package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/trustmark/internal/audit/domain"
	"github.com/smallbiznis/trustmark/internal/clock"
	"github.com/smallbiznis/trustmark/internal/config"
	"github.com/smallbiznis/trustmark/internal/issuance/domain"
	"github.com/smallbiznis/trustmark/internal/observability/logger"
	"github.com/smallbiznis/trustmark/internal/observability/metrics"
	registrydomain "github.com/smallbiznis/trustmark/internal/registry/domain"
	"github.com/smallbiznis/trustmark/internal/token"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxExpiry = 10 * 365 * 24 * time.Hour

type Params struct {
	fx.In

	Config              config.Config
	Log                 *zap.Logger
	Keys                *token.KeyPair
	Registry            registrydomain.Service
	AuditSvc            auditdomain.Service          `optional:"true"`
	Clock               clock.Clock                  `optional:"true"`
	Metrics             *metrics.Metrics             `optional:"true"`
	VerificationMetrics *metrics.VerificationMetrics `optional:"true"`
}

type Service struct {
	log                *zap.Logger
	keys               *token.KeyPair
	registry           registrydomain.Service
	auditSvc           auditdomain.Service
	clock              clock.Clock
	metrics            *metrics.Metrics
	vmetrics           *metrics.VerificationMetrics
	verifyBaseURL      string
	defaultExpiry      time.Duration
	defaultCompression token.Compression
}

func New(p Params) (domain.Service, error) {
	compression, err := token.ParseCompression(p.Config.Signing.Compression)
	if err != nil {
		return nil, err
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:                p.Log.Named("issuance.service"),
		keys:               p.Keys,
		registry:           p.Registry,
		auditSvc:           p.AuditSvc,
		clock:              clk,
		metrics:            p.Metrics,
		vmetrics:           p.VerificationMetrics,
		verifyBaseURL:      p.Config.VerifyBaseURL,
		defaultExpiry:      p.Config.Signing.DefaultExpiry,
		defaultCompression: compression,
	}, nil
}

func (s *Service) Sign(ctx context.Context, req domain.SignRequest) (*domain.SignResponse, error) {
	expiresIn := s.defaultExpiry
	if req.ExpiresInSeconds != nil {
		// Bound seconds before converting; the multiplication overflows.
		if *req.ExpiresInSeconds < 0 || *req.ExpiresInSeconds > int64(maxExpiry/time.Second) {
			return nil, domain.ErrInvalidExpiry
		}
		expiresIn = time.Duration(*req.ExpiresInSeconds) * time.Second
	}
	if expiresIn > maxExpiry {
		return nil, domain.ErrInvalidExpiry
	}

	compression := s.defaultCompression
	if strings.TrimSpace(req.Compression) != "" {
		parsed, err := token.ParseCompression(req.Compression)
		if err != nil {
			return nil, domain.ErrInvalidCompression
		}
		compression = parsed
	}

	tok, err := token.Sign(token.Payload{
		ID:       req.ID,
		Name:     req.Name,
		Batch:    strings.TrimSpace(req.Batch),
		Metadata: req.Metadata,
	}, s.keys, token.SignOptions{
		ExpiresIn:   expiresIn,
		Now:         s.clock.Now(),
		Compression: compression,
	})
	if err != nil {
		return nil, err
	}

	verificationURL, err := token.VerificationURL(s.verifyBaseURL, tok.Raw)
	if err != nil {
		return nil, err
	}

	issuedAt := tok.IssuedAtTime()
	fingerprint := tok.Fingerprint()
	if _, err := s.registry.Upsert(ctx, registrydomain.UpsertRequest{
		ProductID:            tok.Payload.ID,
		Name:                 tok.Payload.Name,
		Batch:                tok.Payload.Batch,
		LastTokenFingerprint: fingerprint,
		LastTokenIssuedAt:    &issuedAt,
		LastTokenExpiresAt:   tok.ExpiresAtTime(),
		LastKeyID:            tok.KeyID,
	}); err != nil {
		return nil, fmt.Errorf("registry upsert: %w", err)
	}

	s.metrics.RecordTokenIssued(ctx, string(tok.Algorithm))
	s.vmetrics.IncTokenIssued(string(tok.Algorithm))

	if s.auditSvc != nil {
		productID := tok.Payload.ID
		metadata := map[string]any{
			"key_id":      tok.KeyID,
			"algorithm":   string(tok.Algorithm),
			"fingerprint": fingerprint,
			"compression": tok.Compression.String(),
		}
		if tok.ExpiresAt != nil {
			metadata["expires_at"] = *tok.ExpiresAt
		}
		_ = s.auditSvc.AuditLog(ctx, "", nil, auditdomain.ActionTokenIssued, "product", &productID, metadata)
	}

	logger.WithContext(ctx, s.log).Info("token issued",
		zap.String("product_id", tok.Payload.ID),
		zap.String("key_id", tok.KeyID),
		zap.String("fingerprint", fingerprint),
	)

	return &domain.SignResponse{
		Token:           tok.Raw,
		VerificationURL: verificationURL,
		KeyID:           tok.KeyID,
		Algorithm:       tok.Algorithm,
		Payload:         tok.Payload,
		Fingerprint:     fingerprint,
		ExpiresAt:       tok.ExpiresAtTime(),
	}, nil
}
