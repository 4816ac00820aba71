package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyLedgerError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  fmt.Errorf("insert scan: %w", context.DeadlineExceeded),
			want: LedgerFailureDeadlineExceeded,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: LedgerFailureDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: LedgerFailureSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: LedgerFailureUniqueViolation,
		},
		{
			name: "other_pg_error",
			err:  &pgconn.PgError{Code: "53300"},
			want: LedgerFailureDB,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: LedgerFailureUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyLedgerError(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestObserveVerification(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewVerificationMetrics(registry, Config{
		ServiceName: "trustmark",
		Environment: "test",
	})

	m.ObserveVerification("valid", "", 5*time.Millisecond)
	m.ObserveVerification("valid", "", 7*time.Millisecond)
	m.ObserveVerification("invalid", "expired", time.Millisecond)
	m.IncRiskLevel("medium")
	m.IncLedgerWriteFailure(&pgconn.PgError{Code: "40001"})

	if got := testutil.ToFloat64(m.verifications.WithLabelValues("valid", "none")); got != 2 {
		t.Fatalf("expected 2 valid verifications, got %v", got)
	}
	if got := testutil.ToFloat64(m.verifications.WithLabelValues("invalid", "expired")); got != 1 {
		t.Fatalf("expected 1 expired verification, got %v", got)
	}
	if got := testutil.ToFloat64(m.riskLevels.WithLabelValues("medium")); got != 1 {
		t.Fatalf("expected 1 medium risk scan, got %v", got)
	}
	if got := testutil.ToFloat64(m.ledgerWriteFailures.WithLabelValues(LedgerFailureSerializationFailure)); got != 1 {
		t.Fatalf("expected 1 ledger failure, got %v", got)
	}
}

func TestNilVerificationMetricsAreSafe(t *testing.T) {
	var m *VerificationMetrics
	m.ObserveVerification("valid", "", time.Millisecond)
	m.IncRiskLevel("low")
	m.IncLedgerWriteFailure(errors.New("boom"))
	m.IncRegistryError()
	m.IncTokenIssued("ES256")
}
