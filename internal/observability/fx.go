package observability

import (
	"github.com/smallbiznis/trustmark/internal/observability/logger"
	"github.com/smallbiznis/trustmark/internal/observability/metrics"
	"github.com/smallbiznis/trustmark/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module provides the logger, tracer and meter providers plus the
// prometheus collectors behind /metrics.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Logger,
		Config.Tracing,
		Config.Metrics,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.VerificationWithConfig,
	),
	// Nothing else depends on the tracer provider; force its lifecycle hooks.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
