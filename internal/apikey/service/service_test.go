package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/smallbiznis/trustmark/internal/apikey/domain"
	"github.com/smallbiznis/trustmark/internal/apikey/repository"
	auditdomain "github.com/smallbiznis/trustmark/internal/audit/domain"
	auditrepository "github.com/smallbiznis/trustmark/internal/audit/repository"
	auditservice "github.com/smallbiznis/trustmark/internal/audit/service"
	"github.com/smallbiznis/trustmark/internal/clock"
	"github.com/smallbiznis/trustmark/internal/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (apikeydomain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(testNow)

	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
	})
	svc := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repository.Provide(),
		AuditSvc: audit,
		Clock:    clk,
	})
	return svc, db, clk
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, apikeydomain.CreateRequest{Name: "factory-line-1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.APIKey, apikeydomain.KeyPrefix))
	assert.Equal(t, []string{apikeydomain.RoleIssuer}, created.Roles)

	principal, err := svc.Authenticate(ctx, created.APIKey)
	require.NoError(t, err)
	assert.Equal(t, created.KeyID, principal.KeyID)
	assert.Equal(t, "factory-line-1", principal.Name)
	assert.Equal(t, []string{apikeydomain.RoleIssuer}, principal.Roles)

	var stored apikeydomain.APIKey
	require.NoError(t, db.Where("key_id = ?", created.KeyID).First(&stored).Error)
	assert.NotEqual(t, created.APIKey, stored.KeyHash)
	require.NotNil(t, stored.LastUsedAt)

	var logs []auditdomain.AuditLog
	require.NoError(t, db.Where("action = ?", auditdomain.ActionAPIKeyCreated).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.NotContains(t, logs[0].Metadata["key_hint"], created.APIKey[len(apikeydomain.KeyPrefix):len(created.APIKey)-4])
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, apikeydomain.CreateRequest{Name: "  "})
	assert.ErrorIs(t, err, apikeydomain.ErrInvalidName)

	_, err = svc.Create(ctx, apikeydomain.CreateRequest{Name: "ops", Roles: []string{"owner"}})
	assert.ErrorIs(t, err, apikeydomain.ErrInvalidRole)

	created, err := svc.Create(ctx, apikeydomain.CreateRequest{Name: "ops", Roles: []string{"Admin", "admin", "issuer"}})
	require.NoError(t, err)
	assert.Equal(t, []string{apikeydomain.RoleAdmin, apikeydomain.RoleIssuer}, created.Roles)
}

func TestAuthenticateRejectsUnknownKey(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, apikeydomain.ErrInvalidAPIKey)

	_, err = svc.Authenticate(context.Background(), "tm_live_doesnotexist")
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthorized)
}

func TestRotateKeepsOldKeyForGracePeriod(t *testing.T) {
	svc, _, clk := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, apikeydomain.CreateRequest{Name: "line", Roles: []string{"issuer"}})
	require.NoError(t, err)

	rotated, err := svc.Rotate(ctx, created.KeyID)
	require.NoError(t, err)
	assert.NotEqual(t, created.KeyID, rotated.KeyID)
	assert.Equal(t, created.Roles, rotated.Roles)

	_, err = svc.Authenticate(ctx, created.APIKey)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, rotated.APIKey)
	require.NoError(t, err)

	clk.Advance(apiKeyRotationGracePeriod + time.Minute)
	_, err = svc.Authenticate(ctx, created.APIKey)
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthorized)
	_, err = svc.Authenticate(ctx, rotated.APIKey)
	require.NoError(t, err)

	keys, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	var found bool
	for _, k := range keys {
		if k.KeyID == rotated.KeyID {
			found = true
			require.NotNil(t, k.RotatedFromKeyID)
			assert.Equal(t, created.KeyID, *k.RotatedFromKeyID)
		}
	}
	assert.True(t, found)
}

func TestRevoke(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, apikeydomain.CreateRequest{Name: "temp"})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, created.KeyID))
	_, err = svc.Authenticate(ctx, created.APIKey)
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthorized)

	_, err = svc.Rotate(ctx, created.KeyID)
	assert.ErrorIs(t, err, apikeydomain.ErrNotFound)

	assert.ErrorIs(t, svc.Revoke(ctx, "key_MISSING"), apikeydomain.ErrNotFound)
	assert.ErrorIs(t, svc.Revoke(ctx, " "), apikeydomain.ErrInvalidKeyID)
}
