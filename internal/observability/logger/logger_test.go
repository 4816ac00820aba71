package logger

import (
	"context"
	"testing"

	"github.com/smallbiznis/trustmark/internal/auditcontext"
	obscontext "github.com/smallbiznis/trustmark/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsRequestFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, "api_key", "key_abc")
	ctx = auditcontext.WithProductID(ctx, "SKU-42")

	WithContext(ctx, base).Info("scan")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "api_key", fields["actor_type"])
	assert.Equal(t, "key_abc", fields["actor_id"])
	assert.Equal(t, "SKU-42", fields["product_id"])
}

func TestWithContextNilSafe(t *testing.T) {
	assert.Nil(t, WithContext(context.Background(), nil))
}

func TestNormalizeFormat(t *testing.T) {
	assert.Equal(t, "console", normalizeFormat(" Console "))
	assert.Equal(t, "json", normalizeFormat("logfmt"))
}
