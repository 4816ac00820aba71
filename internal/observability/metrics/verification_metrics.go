package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	LedgerFailureDeadlineExceeded     = "deadline_exceeded"
	LedgerFailureDBLockTimeout        = "db_lock_timeout"
	LedgerFailureSerializationFailure = "serialization_failure"
	LedgerFailureUniqueViolation      = "unique_violation"
	LedgerFailureDB                   = "db"
	LedgerFailureUnknown              = "unknown"
)

// VerificationMetrics captures verification health for the /metrics endpoint.
type VerificationMetrics struct {
	verifications       *prometheus.CounterVec
	riskLevels          *prometheus.CounterVec
	verifyDuration      *prometheus.HistogramVec
	ledgerWriteFailures *prometheus.CounterVec
	registryErrors      prometheus.Counter
	tokensIssued        *prometheus.CounterVec
}

var (
	verificationMetricsOnce sync.Once
	verificationMetrics     *VerificationMetrics
)

// Verification returns the process-wide verification metrics.
func Verification() *VerificationMetrics {
	return VerificationWithConfig(Config{})
}

// VerificationWithConfig returns the process-wide verification metrics using
// config labels. Only the first call's config takes effect.
func VerificationWithConfig(cfg Config) *VerificationMetrics {
	verificationMetricsOnce.Do(func() {
		verificationMetrics = newVerificationMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return verificationMetrics
}

// NewVerificationMetrics registers a fresh set of collectors on registerer.
func NewVerificationMetrics(registerer prometheus.Registerer, cfg Config) *VerificationMetrics {
	return newVerificationMetrics(registerer, cfg)
}

func newVerificationMetrics(registerer prometheus.Registerer, cfg Config) *VerificationMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	constLabels := constLabelsFor(cfg)

	m := &VerificationMetrics{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "trustmark_verifications_total",
			Help:        "Token verifications by outcome and reason.",
			ConstLabels: constLabels,
		}, []string{"outcome", "reason"}),
		riskLevels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "trustmark_scan_risk_total",
			Help:        "Risk level assigned to valid scans.",
			ConstLabels: constLabels,
		}, []string{"level"}),
		verifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "trustmark_verify_duration_seconds",
			Help:        "End-to-end verification latency including ledger and registry access.",
			Buckets:     []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		ledgerWriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "trustmark_ledger_write_failures_total",
			Help:        "Scan events that could not be recorded. Verification results are unaffected.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		registryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "trustmark_registry_errors_total",
			Help:        "Registry lookups that failed and aborted a verification.",
			ConstLabels: constLabels,
		}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "trustmark_tokens_issued_total",
			Help:        "Tokens issued by algorithm.",
			ConstLabels: constLabels,
		}, []string{"algorithm"}),
	}

	registerer.MustRegister(
		m.verifications,
		m.riskLevels,
		m.verifyDuration,
		m.ledgerWriteFailures,
		m.registryErrors,
		m.tokensIssued,
	)
	return m
}

func constLabelsFor(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "trustmark"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

// ObserveVerification records one finished verification.
func (m *VerificationMetrics) ObserveVerification(outcome, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	m.verifications.WithLabelValues(outcome, normalizeLabel(reason)).Inc()
	m.verifyDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *VerificationMetrics) IncRiskLevel(level string) {
	if m == nil {
		return
	}
	m.riskLevels.WithLabelValues(normalizeLabel(level)).Inc()
}

func (m *VerificationMetrics) IncLedgerWriteFailure(err error) {
	if m == nil {
		return
	}
	m.ledgerWriteFailures.WithLabelValues(ClassifyLedgerError(err)).Inc()
}

func (m *VerificationMetrics) IncRegistryError() {
	if m == nil {
		return
	}
	m.registryErrors.Inc()
}

func (m *VerificationMetrics) IncTokenIssued(algorithm string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(normalizeLabel(algorithm)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "none"
	}
	return value
}

// ClassifyLedgerError maps storage errors to low-cardinality reasons.
func ClassifyLedgerError(err error) string {
	if err == nil {
		return LedgerFailureUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return LedgerFailureDeadlineExceeded
	}
	if isDBLockTimeout(err) {
		return LedgerFailureDBLockTimeout
	}
	if isSerializationFailure(err) {
		return LedgerFailureSerializationFailure
	}
	if isUniqueViolation(err) {
		return LedgerFailureUniqueViolation
	}
	if isDBError(err) {
		return LedgerFailureDB
	}
	return LedgerFailureUnknown
}

func isDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func isSerializationFailure(err error) bool {
	return hasPGCode(err, "40001")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrInvalidValue) ||
		errors.Is(err, gorm.ErrNotImplemented) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
