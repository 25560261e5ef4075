package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
	"github.com/smallbiznis/opsledger/internal/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectAccessCode  = "access_code"
	ObjectRevenue     = "revenue"
	ObjectBalance     = "balance"
	ObjectPayment     = "payment"
	ObjectMission     = "mission"
	ObjectProvider    = "provider"
	ObjectAccount     = "account"
	ObjectExpense     = "expense"
	ObjectTransaction = "transaction"
	ObjectDashboard   = "dashboard"
	ObjectIsolation   = "isolation"
	ObjectEmployee    = "employee"
	ObjectAuditLog    = "audit_log"
)

const (
	ActionView        = "view"
	ActionManage      = "manage"
	ActionCreate      = "create"
	ActionIssue       = "issue"
	ActionList        = "list"
	ActionRevoke      = "revoke"
	ActionConfirm     = "confirm"
	ActionCancel      = "cancel"
	ActionSettle      = "settle"
	ActionRecalculate = "recalculate"
	ActionReview      = "review"
	ActionAudit       = "audit"
)

const (
	RoleAdmin    = "role:admin"
	RoleUser     = "role:user"
	RoleProvider = "role:provider"
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

// NewEnforcer loads policies through the gorm adapter and seeds the
// built-in role grants.
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

func (s *ServiceImpl) Authorize(ctx context.Context, object string, action string) error {
	sess, err := session.Require(ctx)
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

	subject := SubjectFor(sess)
	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, sess, object, action)
		return ErrForbidden
	}
	return nil
}

// SubjectFor maps a session to its casbin role. Admins outrank the
// provider user type.
func SubjectFor(sess *session.Session) string {
	switch {
	case sess.Role == profiledomain.RoleAdmin:
		return RoleAdmin
	case sess.UserType == profiledomain.UserTypeProvider:
		return RoleProvider
	default:
		return RoleUser
	}
}

func (s *ServiceImpl) auditDenied(ctx context.Context, sess *session.Session, object string, action string) {
	if s.auditSvc == nil || !sess.HasCompany() {
		return
	}
	companyID := sess.CompanyID
	actorID := sess.UserID.String()
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, &companyID, "user", &actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Members of a company
		{RoleUser, ObjectMission, ActionView},
		{RoleUser, ObjectProvider, ActionView},
		{RoleUser, ObjectRevenue, ActionView},
		{RoleUser, ObjectPayment, ActionView},
		{RoleUser, ObjectAccount, ActionView},
		{RoleUser, ObjectExpense, ActionCreate},
		{RoleUser, ObjectExpense, ActionView},
		{RoleUser, ObjectTransaction, ActionView},
		{RoleUser, ObjectDashboard, ActionView},
		{RoleUser, ObjectEmployee, ActionView},

		// Service providers
		{RoleProvider, ObjectMission, ActionView},
		{RoleProvider, ObjectPayment, ActionView},
		{RoleProvider, ObjectBalance, ActionView},
		{RoleProvider, ObjectExpense, ActionCreate},
		{RoleProvider, ObjectExpense, ActionView},

		// Admin permissions
		{RoleAdmin, ObjectAccessCode, ActionIssue},
		{RoleAdmin, ObjectAccessCode, ActionList},
		{RoleAdmin, ObjectAccessCode, ActionRevoke},
		{RoleAdmin, ObjectRevenue, ActionCreate},
		{RoleAdmin, ObjectRevenue, ActionConfirm},
		{RoleAdmin, ObjectRevenue, ActionCancel},
		{RoleAdmin, ObjectBalance, ActionView},
		{RoleAdmin, ObjectBalance, ActionSettle},
		{RoleAdmin, ObjectBalance, ActionRecalculate},
		{RoleAdmin, ObjectPayment, ActionManage},
		{RoleAdmin, ObjectMission, ActionManage},
		{RoleAdmin, ObjectProvider, ActionManage},
		{RoleAdmin, ObjectAccount, ActionManage},
		{RoleAdmin, ObjectExpense, ActionReview},
		{RoleAdmin, ObjectTransaction, ActionManage},
		{RoleAdmin, ObjectIsolation, ActionAudit},
		{RoleAdmin, ObjectEmployee, ActionManage},
		{RoleAdmin, ObjectAuditLog, ActionView},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	if _, err := enforcer.AddGroupingPolicy(RoleAdmin, RoleUser); err != nil {
		return err
	}
	return nil
}
