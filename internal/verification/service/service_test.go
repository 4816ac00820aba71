package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trustmark/internal/clock"
	"github.com/smallbiznis/trustmark/internal/config"
	"github.com/smallbiznis/trustmark/internal/dbtest"
	registrydomain "github.com/smallbiznis/trustmark/internal/registry/domain"
	registryrepo "github.com/smallbiznis/trustmark/internal/registry/repository"
	registrysvc "github.com/smallbiznis/trustmark/internal/registry/service"
	riskdomain "github.com/smallbiznis/trustmark/internal/risk/domain"
	risksvc "github.com/smallbiznis/trustmark/internal/risk/service"
	scanledgerdomain "github.com/smallbiznis/trustmark/internal/scanledger/domain"
	scanledgerrepo "github.com/smallbiznis/trustmark/internal/scanledger/repository"
	scanledgersvc "github.com/smallbiznis/trustmark/internal/scanledger/service"
	"github.com/smallbiznis/trustmark/internal/token"
	"github.com/smallbiznis/trustmark/internal/verification/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc      domain.Service
	keys     *token.KeyPair
	registry registrydomain.Service
	ledger   scanledgerdomain.Service
	clock    *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	keys, err := token.GenerateKeyPair(token.AlgorithmES256)
	require.NoError(t, err)

	log := zap.NewNop()
	clk := clock.NewFakeClock(testNow)
	registry := registrysvc.New(registrysvc.Params{DB: db, Log: log, Repo: registryrepo.Provide()})
	ledger := scanledgersvc.New(scanledgersvc.Params{DB: db, Log: log, GenID: node, Repo: scanledgerrepo.Provide(), Clock: clk})
	risk := risksvc.New(risksvc.Params{Log: log, Ledger: ledger, Policy: config.NewStaticRiskPolicyHolder(config.DefaultRiskPolicy())})

	return &fixture{
		svc: New(Params{
			Log:      log,
			Keys:     keys,
			Registry: registry,
			Ledger:   ledger,
			Risk:     risk,
			Clock:    clk,
		}),
		keys:     keys,
		registry: registry,
		ledger:   ledger,
		clock:    clk,
	}
}

func (f *fixture) sign(t *testing.T, id string, expiresIn time.Duration) string {
	t.Helper()
	tok, err := token.Sign(token.Payload{ID: id, Name: "Widget"}, f.keys, token.SignOptions{Now: f.clock.Now(), ExpiresIn: expiresIn})
	require.NoError(t, err)
	return tok.Raw
}

func TestVerifyValidTokenRecordsScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Verify(ctx, domain.Request{Token: f.sign(t, "SKU-42", 0), IPAddress: "203.0.113.9", UserAgent: "scanner"})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Reason)
	require.NotNil(t, result.Payload)
	assert.Equal(t, "SKU-42", result.Payload.ID)
	assert.Equal(t, riskdomain.LevelLow, result.Risk)
	require.NotNil(t, result.ScanCount)
	assert.Equal(t, int64(1), *result.ScanCount)

	scans, err := f.ledger.List(ctx, scanledgerdomain.ListRequest{ProductID: "SKU-42"})
	require.NoError(t, err)
	require.Len(t, scans.Scans, 1)
	event := scans.Scans[0]
	assert.Equal(t, "valid", event.Outcome)
	require.NotNil(t, event.RiskLevelAtScan)
	assert.Equal(t, "low", *event.RiskLevelAtScan)
	require.NotNil(t, event.ClientFingerprint)
	assert.NotNil(t, event.TokenFingerprint)
	assert.NotEmpty(t, event.Metadata["correlation_id"])
}

func TestVerifyRiskEscalates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raw := f.sign(t, "SKU-7", 0)

	levels := map[int]riskdomain.Level{}
	for i := 1; i <= 15; i++ {
		result, err := f.svc.Verify(ctx, domain.Request{Token: raw})
		require.NoError(t, err)
		require.True(t, result.Valid)
		require.Equal(t, int64(i), *result.ScanCount)
		levels[i] = result.Risk
	}
	assert.Equal(t, riskdomain.LevelLow, levels[2])
	assert.Equal(t, riskdomain.LevelMedium, levels[5])
	assert.Equal(t, riskdomain.LevelHigh, levels[15])
}

func TestVerifyFailureReasons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Verify(ctx, domain.Request{Token: "not a token"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, domain.ReasonMalformedToken, result.Reason)
	assert.Nil(t, result.Payload)

	expiring := f.sign(t, "SKU-EXP", time.Minute)
	f.clock.Advance(2 * time.Minute)
	result, err = f.svc.Verify(ctx, domain.Request{Token: expiring})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, domain.ReasonExpired, result.Reason)

	otherKeys, err := token.GenerateKeyPair(token.AlgorithmES256)
	require.NoError(t, err)
	forged, err := token.Sign(token.Payload{ID: "SKU-FORGED", Name: "Widget"}, otherKeys, token.SignOptions{Now: f.clock.Now()})
	require.NoError(t, err)
	result, err = f.svc.Verify(ctx, domain.Request{Token: forged.Raw})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, domain.ReasonInvalidSignature, result.Reason)
	assert.Nil(t, result.ScanCount)

	// Attributable failures are recorded but never count toward risk.
	stats, err := f.ledger.Stats(ctx, "SKU-FORGED")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByOutcome["invalid"])
	count, err := f.ledger.CountSince(ctx, "SKU-FORGED", time.Hour)
	require.NoError(t, err)
	assert.Zero(t, count)

	stats, err = f.ledger.Stats(ctx, "SKU-EXP")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByOutcome["invalid"])
}

func TestVerifyDeactivatedOverridesValidSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raw := f.sign(t, "SKU-42", 0)

	_, err := f.registry.SetActive(ctx, registrydomain.SetActiveRequest{ProductID: "SKU-42", Active: false, Reason: "recall"})
	require.NoError(t, err)

	result, err := f.svc.Verify(ctx, domain.Request{Token: raw})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, domain.ReasonDeactivated, result.Reason)
	require.NotNil(t, result.Payload)
	assert.Equal(t, "SKU-42", result.Payload.ID)

	stats, err := f.ledger.Stats(ctx, "SKU-42")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByOutcome["deactivated"])
}

func TestConcurrentVerificationsRecordEveryScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raw := f.sign(t, "SKU-42", 0)

	const k = 20
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.svc.Verify(ctx, domain.Request{Token: raw})
			assert.NoError(t, err)
			assert.True(t, result.Valid)
		}()
	}
	wg.Wait()

	count, err := f.ledger.CountSince(ctx, "SKU-42", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(k), count)
}

type registryMock struct {
	mock.Mock
	registrydomain.Service
}

func (m *registryMock) IsActive(ctx context.Context, productID string) (bool, error) {
	args := m.Called(ctx, productID)
	return args.Bool(0), args.Error(1)
}

type ledgerMock struct {
	mock.Mock
	scanledgerdomain.Service
}

func (m *ledgerMock) Record(ctx context.Context, req scanledgerdomain.RecordRequest) (snowflake.ID, error) {
	args := m.Called(ctx, req)
	return snowflake.ID(0), args.Error(1)
}

func (m *ledgerMock) CountSince(ctx context.Context, productID string, window time.Duration) (int64, error) {
	args := m.Called(ctx, productID, window)
	return args.Get(0).(int64), args.Error(1)
}

func TestVerifyFailsClosedOnRegistryError(t *testing.T) {
	keys, err := token.GenerateKeyPair(token.AlgorithmES256)
	require.NoError(t, err)
	tok, err := token.Sign(token.Payload{ID: "SKU-1", Name: "Widget"}, keys, token.SignOptions{})
	require.NoError(t, err)

	registry := &registryMock{}
	registry.On("IsActive", mock.Anything, "SKU-1").Return(false, assert.AnError)
	ledger := &ledgerMock{}

	svc := New(Params{Log: zap.NewNop(), Keys: keys, Registry: registry, Ledger: ledger})
	result, err := svc.Verify(context.Background(), domain.Request{Token: tok.Raw})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrRegistryUnavailable)
	ledger.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestVerifyFailsOpenOnLedgerError(t *testing.T) {
	keys, err := token.GenerateKeyPair(token.AlgorithmRS256)
	require.NoError(t, err)
	tok, err := token.Sign(token.Payload{ID: "SKU-1", Name: "Widget"}, keys, token.SignOptions{})
	require.NoError(t, err)

	registry := &registryMock{}
	registry.On("IsActive", mock.Anything, "SKU-1").Return(true, nil)
	ledger := &ledgerMock{}
	ledger.On("CountSince", mock.Anything, "SKU-1", 24*time.Hour).Return(int64(0), assert.AnError)
	ledger.On("Record", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	risk := risksvc.New(risksvc.Params{Log: zap.NewNop(), Ledger: ledger})
	svc := New(Params{Log: zap.NewNop(), Keys: keys, Registry: registry, Ledger: ledger, Risk: risk})

	result, err := svc.Verify(context.Background(), domain.Request{Token: tok.Raw})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Risk)
	assert.Nil(t, result.ScanCount)
	ledger.AssertCalled(t, "Record", mock.Anything, mock.Anything)
}
