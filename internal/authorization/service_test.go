package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/trustmark/internal/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewEnforcer(dbtest.Open(t))
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestIssuerCanSignButNotAdminister(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	issuer := Actor{Type: "api_key", ID: "key_ISSUER", Roles: []string{RoleIssuer}}

	assert.NoError(t, svc.Authorize(ctx, issuer, ObjectToken, ActionTokenSign))
	assert.NoError(t, svc.Authorize(ctx, issuer, ObjectProduct, ActionProductView))
	assert.NoError(t, svc.Authorize(ctx, issuer, ObjectScan, ActionScanView))
	assert.ErrorIs(t, svc.Authorize(ctx, issuer, ObjectProduct, ActionProductDeactivate), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, issuer, ObjectAPIKey, ActionAPIKeyCreate), ErrForbidden)
}

func TestAdminCanDoEverything(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	admin := Actor{Type: "api_key", ID: "key_ADMIN", Roles: []string{RoleAdmin}}

	cases := []struct{ object, action string }{
		{ObjectToken, ActionTokenSign},
		{ObjectProduct, ActionProductActivate},
		{ObjectProduct, ActionProductDeactivate},
		{ObjectAPIKey, ActionAPIKeyRotate},
		{ObjectAPIKey, ActionAPIKeyRevoke},
		{ObjectAuditLog, ActionAuditLogView},
	}
	for _, tc := range cases {
		assert.NoError(t, svc.Authorize(ctx, admin, tc.object, tc.action), tc.action)
	}
}

func TestRoleChangesTakeEffect(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	actor := Actor{Type: "api_key", ID: "key_X", Roles: []string{RoleAdmin}}
	require.NoError(t, svc.Authorize(ctx, actor, ObjectAPIKey, ActionAPIKeyView))

	actor.Roles = []string{RoleIssuer}
	assert.ErrorIs(t, svc.Authorize(ctx, actor, ObjectAPIKey, ActionAPIKeyView), ErrForbidden)
	assert.NoError(t, svc.Authorize(ctx, actor, ObjectToken, ActionTokenSign))

	actor.Roles = nil
	assert.ErrorIs(t, svc.Authorize(ctx, actor, ObjectToken, ActionTokenSign), ErrForbidden)
}

func TestAuthorizeValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, Actor{}, ObjectToken, ActionTokenSign), ErrInvalidActor)
	valid := Actor{Type: "api_key", ID: "key_Y", Roles: []string{RoleIssuer}}
	assert.ErrorIs(t, svc.Authorize(ctx, valid, "", ActionTokenSign), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, valid, ObjectToken, " "), ErrInvalidAction)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Type: "api_key", ID: "key_Z", Roles: []string{"owner"}}, ObjectToken, ActionTokenSign), ErrInvalidRole)
}
