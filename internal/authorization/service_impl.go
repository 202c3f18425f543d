package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/lms/internal/audit/domain"
	authdomain "github.com/smallbiznis/lms/internal/auth/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectEnrollment     = "enrollment"
	ObjectReconciliation = "reconciliation"
)

const (
	ActionEnrollmentInitiate = "enrollment.initiate"
	ActionEnrollmentCapture  = "enrollment.capture"
	ActionEnrollmentList     = "enrollment.list"

	ActionReconciliationView    = "reconciliation.view"
	ActionReconciliationResolve = "reconciliation.resolve"
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

// NewEnforcer backs the policy table with casbin_rule through gorm-adapter
// and tops it up with any missing default rules.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("casbin adapter: %w", err)
	}
	return buildEnforcer(adapter)
}

// NewMemoryEnforcer holds the default rules in memory only.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	return buildEnforcer(nil)
}

func buildEnforcer(adapter persist.Adapter) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("casbin model: %w", err)
	}

	params := []interface{}{m}
	if adapter != nil {
		params = append(params, adapter)
	}
	enforcer, err := casbin.NewSyncedEnforcer(params...)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(adapter != nil)

	if err := seedPolicies(enforcer); err != nil {
		return nil, fmt.Errorf("seed policies: %w", err)
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

// Authorize checks the caller's role against the policy table. Roles come
// from the verified token, so the role itself is the casbin subject and no
// per-user links are stored.
func (s *ServiceImpl) Authorize(ctx context.Context, caller authdomain.Caller, object string, action string) error {
	if caller.IsZero() || !authdomain.ValidRole(caller.Role) {
		return ErrInvalidActor
	}
	object, action = strings.TrimSpace(object), strings.TrimSpace(action)
	switch {
	case object == "":
		return ErrInvalidObject
	case action == "":
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(roleSubject(caller.Role), object, action)
	if err != nil {
		return fmt.Errorf("enforce %s/%s: %w", object, action, err)
	}
	if !allowed {
		s.auditDenied(ctx, caller, object, action)
		return ErrForbidden
	}
	return nil
}

func roleSubject(role string) string {
	return "role:" + role
}

func (s *ServiceImpl) auditDenied(ctx context.Context, caller authdomain.Caller, object string, action string) {
	s.log.Info("authorization denied",
		zap.String("actor_id", caller.ID.String()),
		zap.String("role", caller.Role),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    caller.ID.String(),
		Action:     auditdomain.ActionAuthorizationDenied,
		TargetType: object,
		Metadata: map[string]any{
			"action": action,
			"role":   caller.Role,
		},
	})
}

// defaultPolicies grants students the paid enrollment flow and admins the
// roster and reconciliation queue. Instructors hold no grants.
var defaultPolicies = [][]string{
	{roleSubject(authdomain.RoleStudent), ObjectEnrollment, ActionEnrollmentInitiate},
	{roleSubject(authdomain.RoleStudent), ObjectEnrollment, ActionEnrollmentCapture},
	{roleSubject(authdomain.RoleAdmin), ObjectEnrollment, ActionEnrollmentList},
	{roleSubject(authdomain.RoleAdmin), ObjectReconciliation, ActionReconciliationView},
	{roleSubject(authdomain.RoleAdmin), ObjectReconciliation, ActionReconciliationResolve},
}

// seedPolicies adds whichever default rules are missing. Rules already
// persisted, including operator additions, are left alone.
func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	var missing [][]string
	for _, rule := range defaultPolicies {
		has, err := enforcer.HasPolicy(rule)
		if err != nil {
			return err
		}
		if !has {
			missing = append(missing, rule)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	_, err := enforcer.AddPolicies(missing)
	return err
}
