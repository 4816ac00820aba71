package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/trustmark/internal/auditcontext"
	"github.com/smallbiznis/trustmark/internal/clock"
	"github.com/smallbiznis/trustmark/internal/observability/logger"
	"github.com/smallbiznis/trustmark/internal/observability/metrics"
	"github.com/smallbiznis/trustmark/internal/observability/tracing"
	registrydomain "github.com/smallbiznis/trustmark/internal/registry/domain"
	riskdomain "github.com/smallbiznis/trustmark/internal/risk/domain"
	scanledgerdomain "github.com/smallbiznis/trustmark/internal/scanledger/domain"
	"github.com/smallbiznis/trustmark/internal/token"
	"github.com/smallbiznis/trustmark/internal/verification/domain"
	"github.com/smallbiznis/trustmark/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const outcomeError = "error"

type Params struct {
	fx.In

	Log                 *zap.Logger
	Keys                *token.KeyPair
	Registry            registrydomain.Service
	Ledger              scanledgerdomain.Service
	Risk                riskdomain.Service
	Clock               clock.Clock                  `optional:"true"`
	Metrics             *metrics.Metrics             `optional:"true"`
	VerificationMetrics *metrics.VerificationMetrics `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	keys     *token.KeyPair
	registry registrydomain.Service
	ledger   scanledgerdomain.Service
	risk     riskdomain.Service
	clock    clock.Clock
	metrics  *metrics.Metrics
	vmetrics *metrics.VerificationMetrics
	tracer   trace.Tracer
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:      p.Log.Named("verification.service"),
		keys:     p.Keys,
		registry: p.Registry,
		ledger:   p.Ledger,
		risk:     p.Risk,
		clock:    clk,
		metrics:  p.Metrics,
		vmetrics: p.VerificationMetrics,
		tracer:   otel.Tracer("trustmark/verification"),
	}
}

func (s *Service) Verify(ctx context.Context, req domain.Request) (*domain.Result, error) {
	ctx, _ = correlation.EnsureCorrelationID(ctx)
	ctx, span := s.tracer.Start(ctx, "verification.Verify")
	defer span.End()

	now := s.clock.Now()
	raw := strings.TrimSpace(req.Token)

	tok, err := token.VerifyAt(raw, s.keys.Public, now)
	if err != nil {
		reason := domain.ReasonFor(err)
		result := &domain.Result{Valid: false, Reason: reason}
		if tok != nil {
			// Attributable failures still feed scan stats.
			s.recordScan(ctx, req, tok, scanledgerdomain.OutcomeInvalid, reason, "")
		}
		s.finish(ctx, span, now, result)
		return result, nil
	}

	productID := tok.Payload.ID
	ctx = auditcontext.WithProductID(ctx, productID)
	span.SetAttributes(tracing.SafeAttributes(attribute.String("product_id", productID))...)

	active, err := s.registry.IsActive(ctx, productID)
	if err != nil {
		s.vmetrics.IncRegistryError()
		s.vmetrics.ObserveVerification(outcomeError, "registry", s.clock.Now().Sub(now))
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "registry lookup failed")
		logger.WithContext(ctx, s.log).Error("registry lookup failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	}

	payload := tok.Payload
	if !active {
		result := &domain.Result{Valid: false, Reason: domain.ReasonDeactivated, Payload: &payload}
		s.recordScan(ctx, req, tok, scanledgerdomain.OutcomeDeactivated, domain.ReasonDeactivated, "")
		s.finish(ctx, span, now, result)
		return result, nil
	}

	result := &domain.Result{Valid: true, Payload: &payload}
	assessment, err := s.risk.ScoreWithPending(ctx, productID, 1)
	if err != nil {
		s.ledgerFailure(ctx, "count", productID, err)
	} else {
		count := assessment.ScanCount
		result.Risk = assessment.Level
		result.ScanCount = &count
	}
	s.recordScan(ctx, req, tok, scanledgerdomain.OutcomeValid, "", string(result.Risk))

	s.finish(ctx, span, now, result)
	return result, nil
}

// recordScan appends a scan event. Failures are logged and counted only.
func (s *Service) recordScan(ctx context.Context, req domain.Request, tok *token.Token, outcome scanledgerdomain.Outcome, reason, riskLevel string) {
	productID := strings.TrimSpace(tok.Payload.ID)
	if productID == "" {
		return
	}
	_, err := s.ledger.Record(ctx, scanledgerdomain.RecordRequest{
		ProductID:        productID,
		Outcome:          outcome,
		Reason:           reason,
		RiskLevel:        riskLevel,
		IPAddress:        firstNonEmpty(req.IPAddress, auditcontext.IPAddressFromContext(ctx)),
		UserAgent:        firstNonEmpty(req.UserAgent, auditcontext.UserAgentFromContext(ctx)),
		TokenFingerprint: tok.Fingerprint(),
		KeyID:            tok.KeyID,
		Metadata:         correlation.EventMetadata(ctx),
		ScannedAt:        s.clock.Now(),
	})
	if err != nil {
		s.ledgerFailure(ctx, "record", productID, err)
	}
}

func (s *Service) ledgerFailure(ctx context.Context, op, productID string, err error) {
	s.vmetrics.IncLedgerWriteFailure(err)
	s.metrics.RecordLedgerWriteFailure(ctx, metrics.ClassifyLedgerError(err))
	logger.WithContext(ctx, s.log).Warn("ledger_write_failure",
		zap.String("op", op),
		zap.String("product_id", productID),
		zap.Error(err),
	)
}

func (s *Service) finish(ctx context.Context, span trace.Span, started time.Time, result *domain.Result) {
	outcome := "invalid"
	if result.Valid {
		outcome = "valid"
	}
	span.SetAttributes(
		attribute.String("verification.outcome", outcome),
		attribute.String("verification.reason", result.Reason),
		attribute.String("verification.risk", string(result.Risk)),
	)

	s.vmetrics.ObserveVerification(outcome, result.Reason, s.clock.Now().Sub(started))
	if result.Risk != "" {
		s.vmetrics.IncRiskLevel(string(result.Risk))
	}
	s.metrics.RecordVerification(ctx, outcome, string(result.Risk))

	logger.WithContext(ctx, s.log).Debug("token verified",
		zap.Bool("valid", result.Valid),
		zap.String("reason", result.Reason),
		zap.String("risk", string(result.Risk)),
	)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
