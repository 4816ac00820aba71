package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/trustmark/internal/dbtest"
	"github.com/smallbiznis/trustmark/internal/registry/domain"
	"github.com/smallbiznis/trustmark/internal/registry/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()
	return New(Params{
		DB:   dbtest.Open(t),
		Log:  zap.NewNop(),
		Repo: repository.Provide(),
	})
}

func TestIsActiveDefaultsToTrueForUnknownProduct(t *testing.T) {
	svc := newTestService(t)

	active, err := svc.IsActive(context.Background(), "SKU-UNKNOWN")
	require.NoError(t, err)
	assert.True(t, active)

	_, err = svc.Get(context.Background(), "SKU-UNKNOWN")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpsertKeepsActivationState(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	issuedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	created, err := svc.Upsert(ctx, domain.UpsertRequest{
		ProductID:            " SKU-42 ",
		Name:                 "Widget",
		Batch:                "B1",
		LastTokenFingerprint: "aa",
		LastTokenIssuedAt:    &issuedAt,
		LastKeyID:            "kid-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "SKU-42", created.ProductID)
	assert.True(t, created.IsActive)
	assert.Equal(t, "B1", created.Batch)
	require.NotNil(t, created.LastTokenIssuedAt)
	assert.True(t, issuedAt.Equal(*created.LastTokenIssuedAt))

	_, err = svc.SetActive(ctx, domain.SetActiveRequest{ProductID: "SKU-42", Active: false, Reason: "recall"})
	require.NoError(t, err)

	refreshed, err := svc.Upsert(ctx, domain.UpsertRequest{
		ProductID:            "SKU-42",
		Name:                 "Widget v2",
		LastTokenFingerprint: "bb",
		LastKeyID:            "kid-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Widget v2", refreshed.Name)
	assert.Equal(t, "bb", refreshed.LastTokenFingerprint)
	assert.False(t, refreshed.IsActive)
	assert.Equal(t, "recall", refreshed.DeactivationReason)
	assert.True(t, created.CreatedAt.Equal(refreshed.CreatedAt))
}

func TestSetActiveCreatesMissingProduct(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	resp, err := svc.SetActive(ctx, domain.SetActiveRequest{ProductID: "SKU-7", Active: false, Reason: "counterfeit wave"})
	require.NoError(t, err)
	assert.Equal(t, "SKU-7", resp.Name)
	assert.False(t, resp.IsActive)
	assert.NotNil(t, resp.DeactivatedAt)

	active, err := svc.IsActive(ctx, "SKU-7")
	require.NoError(t, err)
	assert.False(t, active)

	resp, err = svc.SetActive(ctx, domain.SetActiveRequest{ProductID: "SKU-7", Active: true})
	require.NoError(t, err)
	assert.True(t, resp.IsActive)
	assert.Nil(t, resp.DeactivatedAt)
	assert.Empty(t, resp.DeactivationReason)
}

func TestValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, domain.UpsertRequest{ProductID: " ", Name: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidProductID)

	_, err = svc.Upsert(ctx, domain.UpsertRequest{ProductID: "SKU-1", Name: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.SetActive(ctx, domain.SetActiveRequest{ProductID: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidProductID)
}

func TestListFiltersAndSorts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"SKU-3", "SKU-1", "SKU-2"} {
		_, err := svc.Upsert(ctx, domain.UpsertRequest{ProductID: id, Name: "Widget " + id, Batch: "B1"})
		require.NoError(t, err)
	}
	_, err := svc.Upsert(ctx, domain.UpsertRequest{ProductID: "SKU-9", Name: "Other", Batch: "B2"})
	require.NoError(t, err)
	_, err = svc.SetActive(ctx, domain.SetActiveRequest{ProductID: "SKU-2", Active: false})
	require.NoError(t, err)

	items, err := svc.List(ctx, domain.ListRequest{Batch: "B1", SortBy: "product_id", OrderBy: "asc"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"SKU-1", "SKU-2", "SKU-3"}, []string{items[0].ProductID, items[1].ProductID, items[2].ProductID})

	inactive := false
	items, err = svc.List(ctx, domain.ListRequest{Active: &inactive})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "SKU-2", items[0].ProductID)

	items, err = svc.List(ctx, domain.ListRequest{SortBy: "product_id", OrderBy: "asc", PageSize: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "SKU-3", items[0].ProductID)
	assert.Equal(t, "SKU-9", items[1].ProductID)
}
