package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRiskPolicyDefaultsWhenFileMissing(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewRiskPolicyHolder("", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultRiskPolicy(), holder.Get())
}

func TestRiskPolicyFromFileAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.yml")
	require.NoError(t, os.WriteFile(path, []byte("window: 12h\nlowMax: 2\nmediumMax: 6\n"), 0o644))

	holder, err := NewRiskPolicyHolder(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, RiskPolicy{Window: 12 * time.Hour, LowMax: 2, MediumMax: 6}, holder.Get())

	// Invalid content is ignored.
	require.NoError(t, os.WriteFile(path, []byte("window: 12h\nlowMax: 9\nmediumMax: 1\n"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int64(2), holder.Get().LowMax)

	require.NoError(t, os.WriteFile(path, []byte("window: 1h\nlowMax: 5\nmediumMax: 20\n"), 0o644))
	assert.Eventually(t, func() bool {
		return holder.Get() == RiskPolicy{Window: time.Hour, LowMax: 5, MediumMax: 20}
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRiskPolicyEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.yml")
	require.NoError(t, os.WriteFile(path, []byte("lowMax: 2\nmediumMax: 6\n"), 0o644))
	t.Setenv("RISK_MEDIUMMAX", "8")

	holder, err := NewRiskPolicyHolder(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, int64(8), holder.Get().MediumMax)
	assert.Equal(t, 24*time.Hour, holder.Get().Window)
}

func TestValidateRiskPolicy(t *testing.T) {
	assert.NoError(t, ValidateRiskPolicy(DefaultRiskPolicy()))
	assert.Error(t, ValidateRiskPolicy(RiskPolicy{Window: 0, LowMax: 1, MediumMax: 2}))
	assert.Error(t, ValidateRiskPolicy(RiskPolicy{Window: time.Hour, LowMax: -1, MediumMax: 2}))
	assert.Error(t, ValidateRiskPolicy(RiskPolicy{Window: time.Hour, LowMax: 5, MediumMax: 2}))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SIGNING_ALGORITHM", "RS256")
	t.Setenv("ISSUER_AUTH_REQUIRED", "off")
	t.Setenv("SIGNING_DEFAULT_EXPIRY", "720h")

	cfg := Load()
	assert.Equal(t, "rs256", cfg.Signing.Algorithm)
	assert.False(t, cfg.IssuerAuthRequired)
	assert.Equal(t, 720*time.Hour, cfg.Signing.DefaultExpiry)
}
