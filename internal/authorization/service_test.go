package authorization_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/opsledger/internal/authorization"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
	"github.com/smallbiznis/opsledger/internal/session"
	dbpkg "github.com/smallbiznis/opsledger/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) authorization.Service {
	t.Helper()
	enforcer, err := authorization.NewEnforcer(dbpkg.NewTest(t))
	require.NoError(t, err)
	return authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func ctxFor(role, userType string) context.Context {
	return session.WithSession(context.Background(), &session.Session{
		UserID:    10,
		CompanyID: 20,
		Role:      role,
		UserType:  userType,
	})
}

func TestAdminInheritsMemberGrants(t *testing.T) {
	svc := newService(t)
	ctx := ctxFor(profiledomain.RoleAdmin, profiledomain.UserTypeAdmin)

	assert.NoError(t, svc.Authorize(ctx, authorization.ObjectRevenue, authorization.ActionConfirm))
	assert.NoError(t, svc.Authorize(ctx, authorization.ObjectMission, authorization.ActionView))
	assert.NoError(t, svc.Authorize(ctx, authorization.ObjectIsolation, authorization.ActionAudit))
}

func TestMemberCannotManage(t *testing.T) {
	svc := newService(t)
	ctx := ctxFor(profiledomain.RoleUser, profiledomain.UserTypeUser)

	assert.NoError(t, svc.Authorize(ctx, authorization.ObjectExpense, authorization.ActionCreate))
	assert.ErrorIs(t, svc.Authorize(ctx, authorization.ObjectBalance, authorization.ActionSettle), authorization.ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, authorization.ObjectAccessCode, authorization.ActionIssue), authorization.ErrForbidden)
}

func TestProviderSeesOwnBalanceOnly(t *testing.T) {
	svc := newService(t)
	ctx := ctxFor(profiledomain.RoleUser, profiledomain.UserTypeProvider)

	assert.NoError(t, svc.Authorize(ctx, authorization.ObjectBalance, authorization.ActionView))
	assert.ErrorIs(t, svc.Authorize(ctx, authorization.ObjectTransaction, authorization.ActionView), authorization.ErrForbidden)
}

func TestAuthorizeRequiresSession(t *testing.T) {
	svc := newService(t)

	err := svc.Authorize(context.Background(), authorization.ObjectMission, authorization.ActionView)
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestSeedingTwiceIsIdempotent(t *testing.T) {
	db := dbpkg.NewTest(t)
	_, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	_, err = authorization.NewEnforcer(db)
	require.NoError(t, err)
}
