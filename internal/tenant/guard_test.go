package tenant_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	auditrepo "github.com/smallbiznis/opsledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/opsledger/internal/audit/service"
	"github.com/smallbiznis/opsledger/internal/clock"
	companydomain "github.com/smallbiznis/opsledger/internal/company/domain"
	"github.com/smallbiznis/opsledger/internal/config"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
	profilerepo "github.com/smallbiznis/opsledger/internal/profile/repository"
	"github.com/smallbiznis/opsledger/internal/session"
	"github.com/smallbiznis/opsledger/internal/tenant"
	dbpkg "github.com/smallbiznis/opsledger/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newGuard(t *testing.T) (*tenant.Guard, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db := dbpkg.NewTest(t, &profiledomain.Profile{}, &companydomain.Company{}, &auditdomain.AuditLog{})
	for _, table := range tenant.ScopedTables {
		require.NoError(t, db.Exec(fmt.Sprintf("CREATE TABLE %s (id INTEGER PRIMARY KEY, company_id INTEGER)", table)).Error)
	}
	clk := clock.NewFakeClock(time.Date(2026, 1, 5, 7, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	loader := session.NewLoader(session.Params{
		DB:      db,
		Log:     log,
		Store:   session.NewMemoryStoreWithClock(clk.Now),
		Profile: profilerepo.Provide(),
		Policy:  config.NewStaticPolicyHolder(config.DefaultPolicy()),
		Clock:   clk,
	})
	guard := tenant.NewGuard(tenant.Params{
		DB:     db,
		Log:    log,
		Loader: loader,
		Audit: auditservice.NewService(auditservice.Params{
			DB: db, Log: log, GenID: node, Repo: auditrepo.Provide(), Clock: clk,
		}),
	})
	return guard, db, node
}

func TestAssertAccess(t *testing.T) {
	assert.NoError(t, tenant.AssertAccess(7, 7))
	assert.NoError(t, tenant.AssertAccess(7, 0))
	assert.ErrorIs(t, tenant.AssertAccess(0, 7), tenant.ErrTenantMismatch)
	assert.ErrorIs(t, tenant.AssertAccess(0, 0), tenant.ErrTenantMismatch)
	assert.ErrorIs(t, tenant.AssertAccess(7, 8), tenant.ErrTenantMismatch)
}

func TestAssertVisibleHidesForeignRecords(t *testing.T) {
	notFound := apperr.New(apperr.KindNotFound, "thing_not_found")

	assert.NoError(t, tenant.AssertVisible(7, 7, notFound))
	assert.ErrorIs(t, tenant.AssertVisible(7, 8, notFound), notFound)
	assert.ErrorIs(t, tenant.AssertVisible(0, 8, notFound), tenant.ErrTenantMismatch)
}

func TestResolveFreshSeesNewCompany(t *testing.T) {
	guard, db, node := newGuard(t)
	ctx := context.Background()

	profile := profiledomain.Profile{
		ID: node.Generate(), Email: "eve@example.com", Name: "Eve",
		Role: profiledomain.RoleUser, UserType: profiledomain.UserTypeUser,
		Active: true, PasswordHash: "x",
	}
	require.NoError(t, db.Create(&profile).Error)

	companyID, err := guard.ResolveTenant(ctx, profile.ID)
	require.NoError(t, err)
	assert.Zero(t, companyID)

	company := companydomain.Company{ID: node.Generate(), Name: "Eve Co", Slug: "eve-co"}
	require.NoError(t, db.Create(&company).Error)
	require.NoError(t, db.Model(&profile).Update("company_id", company.ID).Error)

	cached, err := guard.ResolveTenant(ctx, profile.ID)
	require.NoError(t, err)
	assert.Zero(t, cached)

	fresh, err := guard.ResolveTenantFresh(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, company.ID, fresh)

	sess, err := guard.Resolve(ctx, profile.ID, false)
	require.NoError(t, err)
	assert.Equal(t, company.ID, sess.CompanyID)
}

func TestAuditIsolationReportsForeignRows(t *testing.T) {
	guard, db, node := newGuard(t)
	mine, theirs := node.Generate(), node.Generate()

	require.NoError(t, db.Exec("INSERT INTO providers (id, company_id) VALUES (1, ?), (2, ?), (3, NULL)", mine, mine).Error)
	require.NoError(t, db.Exec("INSERT INTO payments (id, company_id) VALUES (1, ?)", theirs).Error)

	ctx := session.WithSession(context.Background(), &session.Session{
		UserID: 1, Role: profiledomain.RoleAdmin, CompanyID: mine,
	})
	report, err := guard.AuditIsolation(ctx, mine)
	require.NoError(t, err)
	assert.Equal(t, int64(4), report.TotalRecords)
	assert.Equal(t, int64(2), report.CompanyRecords)
	assert.Equal(t, int64(1), report.OrphanRecords)
	assert.Equal(t, int64(1), report.ForeignRecords)
	assert.True(t, report.Violation)
	assert.Len(t, report.Tables, len(tenant.ScopedTables))

	var audits int64
	require.NoError(t, db.Model(&auditdomain.AuditLog{}).Where("action = ?", "tenant.isolation_violation").Count(&audits).Error)
	assert.Equal(t, int64(1), audits)

	_, err = guard.AuditIsolation(ctx, theirs)
	assert.ErrorIs(t, err, tenant.ErrTenantMismatch)

	member := session.WithSession(context.Background(), &session.Session{
		UserID: 2, Role: profiledomain.RoleUser, CompanyID: mine,
	})
	_, err = guard.AuditIsolation(member, mine)
	assert.ErrorIs(t, err, session.ErrNotAdmin)
}
