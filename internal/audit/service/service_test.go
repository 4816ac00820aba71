package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trustmark/internal/auditcontext"
	"github.com/smallbiznis/trustmark/internal/clock"
	"github.com/smallbiznis/trustmark/internal/dbtest"
	auditdomain "github.com/smallbiznis/trustmark/internal/audit/domain"
	"github.com/smallbiznis/trustmark/internal/audit/repository"
	"github.com/smallbiznis/trustmark/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (auditdomain.Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clock.SystemClock{},
	})
	return svc, db
}

func TestAuditLogUsesContextActorAndMasksSecrets(t *testing.T) {
	svc, db := newTestService(t)

	ctx := auditcontext.WithActor(context.Background(), string(auditdomain.ActorTypeAPIKey), "key_ABC")
	ctx = auditcontext.WithIPAddress(ctx, "203.0.113.7")
	ctx = auditcontext.WithRequestID(ctx, "req-1")

	target := "SKU-42"
	err := svc.AuditLog(ctx, "", nil, auditdomain.ActionProductDeactivated, "product", &target, map[string]any{
		"reason":  "recall",
		"api_key": "tm_live_0123456789abcdef",
	})
	require.NoError(t, err)

	var stored auditdomain.AuditLog
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, "api_key", stored.ActorType)
	require.NotNil(t, stored.ActorID)
	assert.Equal(t, "key_ABC", *stored.ActorID)
	require.NotNil(t, stored.IPAddress)
	assert.Equal(t, "203.0.113.7", *stored.IPAddress)
	assert.Equal(t, "recall", stored.Metadata["reason"])
	assert.Equal(t, "tm_live_****cdef", stored.Metadata["api_key"])
	require.NotNil(t, stored.RequestID)
	assert.Equal(t, "req-1", *stored.RequestID)

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{RequestID: "req-1", ActorID: "key_ABC"})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 1)
	resp, err = svc.List(ctx, auditdomain.ListAuditLogRequest{ActorID: "key_other"})
	require.NoError(t, err)
	assert.Empty(t, resp.AuditLogs)
}

func TestAuditLogDefaultsToSystemActor(t *testing.T) {
	svc, db := newTestService(t)

	ctx := auditcontext.WithProductID(context.Background(), "SKU-7")
	require.NoError(t, svc.AuditLog(ctx, "", nil, auditdomain.ActionAPIKeyCreated, "", nil, nil))

	var stored auditdomain.AuditLog
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, "system", stored.ActorType)
	assert.Equal(t, "unknown", stored.TargetType)
	assert.Nil(t, stored.ActorID)
	assert.Nil(t, stored.RequestID)
	assert.Equal(t, "SKU-7", stored.Metadata["product_id"])
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.AuditLog(context.Background(), "", nil, "  ", "product", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPaginates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.AuditLog(ctx, "", nil, auditdomain.ActionTokenIssued, "product", nil, nil))
		time.Sleep(2 * time.Millisecond)
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: auditdomain.ActionTokenIssued, Pagination: paginationOf("", 3)})
	require.NoError(t, err)
	assert.Len(t, first.AuditLogs, 3)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: auditdomain.ActionTokenIssued, Pagination: paginationOf(first.NextPageToken, 3)})
	require.NoError(t, err)
	assert.Len(t, second.AuditLogs, 2)
	assert.False(t, second.HasMore)

	seen := map[snowflake.ID]bool{}
	for _, entry := range append(first.AuditLogs, second.AuditLogs...) {
		assert.False(t, seen[entry.ID])
		seen[entry.ID] = true
	}
}

func TestListRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: paginationOf("not-a-token", 0)})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)

	start := time.Now()
	end := start.Add(-time.Hour)
	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}

func paginationOf(token string, size int) pagination.Pagination {
	return pagination.Pagination{PageToken: token, PageSize: size}
}
