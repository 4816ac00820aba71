package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/trustmark/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectToken    = "token"
	ObjectProduct  = "product"
	ObjectScan     = "scan"
	ObjectAPIKey   = "api_key"
	ObjectAuditLog = "audit_log"
)

const (
	ActionTokenSign = "token.sign"

	ActionProductView       = "product.view"
	ActionProductActivate   = "product.activate"
	ActionProductDeactivate = "product.deactivate"

	ActionScanView = "scan.view"

	ActionAPIKeyView   = "api_key.view"
	ActionAPIKeyCreate = "api_key.create"
	ActionAPIKeyRotate = "api_key.rotate"
	ActionAPIKeyRevoke = "api_key.revoke"

	ActionAuditLogView = "audit_log.view"
)

const (
	RoleIssuer = "issuer"
	RoleAdmin  = "admin"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads the persisted policy and seeds the built-in role grants.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor Actor, object string, action string) error {
	subject, err := actorSubject(actor)
	if err != nil {
		return err
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roles, err := roleNames(actor.Roles)
	if err != nil {
		s.auditDenied(ctx, actor, object, action)
		return err
	}
	if err := s.syncGrouping(subject, roles); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}
	return nil
}

// syncGrouping makes the subject's role links match roles exactly, so a
// key whose roles changed loses stale grants.
func (s *ServiceImpl) syncGrouping(subject string, roles []string) error {
	want := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		want[role] = struct{}{}
	}

	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if _, ok := want[rule[1]]; ok {
			delete(want, rule[1])
			continue
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(rule[0], rule[1]); err != nil {
			return err
		}
	}
	for role := range want {
		if _, err := s.enforcer.AddGroupingPolicy(subject, role); err != nil {
			return err
		}
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor Actor, object string, action string) {
	s.log.Warn("authorization denied",
		zap.String("actor_type", actor.Type),
		zap.String("actor_id", actor.ID),
		zap.String("object", object),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	var actorID *string
	if id := strings.TrimSpace(actor.ID); id != "" {
		actorID = &id
	}
	targetID := object
	_ = s.auditSvc.AuditLog(ctx, actor.Type, actorID, auditdomain.ActionAuthorizationDenied, "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
		"roles":  actor.Roles,
	})
}

func actorSubject(actor Actor) (string, error) {
	actorType := strings.TrimSpace(actor.Type)
	actorID := strings.TrimSpace(actor.ID)
	if actorType == "" || actorID == "" {
		return "", ErrInvalidActor
	}
	return actorType + ":" + actorID, nil
}

func roleNames(roles []string) ([]string, error) {
	out := make([]string, 0, len(roles))
	for _, raw := range roles {
		role := strings.ToLower(strings.TrimSpace(raw))
		switch role {
		case RoleIssuer, RoleAdmin:
			out = append(out, "role:"+role)
		default:
			return nil, ErrInvalidRole
		}
	}
	return out, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Issuer permissions
		{"role:issuer", ObjectToken, ActionTokenSign},
		{"role:issuer", ObjectProduct, ActionProductView},
		{"role:issuer", ObjectScan, ActionScanView},

		// Admin permissions
		{"role:admin", ObjectToken, ActionTokenSign},
		{"role:admin", ObjectProduct, ActionProductView},
		{"role:admin", ObjectProduct, ActionProductActivate},
		{"role:admin", ObjectProduct, ActionProductDeactivate},
		{"role:admin", ObjectScan, ActionScanView},
		{"role:admin", ObjectAPIKey, ActionAPIKeyView},
		{"role:admin", ObjectAPIKey, ActionAPIKeyCreate},
		{"role:admin", ObjectAPIKey, ActionAPIKeyRotate},
		{"role:admin", ObjectAPIKey, ActionAPIKeyRevoke},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
