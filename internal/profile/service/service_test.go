package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	auditrepo "github.com/smallbiznis/opsledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/opsledger/internal/audit/service"
	"github.com/smallbiznis/opsledger/internal/clock"
	companydomain "github.com/smallbiznis/opsledger/internal/company/domain"
	"github.com/smallbiznis/opsledger/internal/config"
	"github.com/smallbiznis/opsledger/internal/profile/domain"
	"github.com/smallbiznis/opsledger/internal/profile/repository"
	"github.com/smallbiznis/opsledger/internal/profile/service"
	"github.com/smallbiznis/opsledger/internal/session"
	dbpkg "github.com/smallbiznis/opsledger/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	svc       domain.Service
	loader    *session.Loader
	node      *snowflake.Node
	clock     *clock.FakeClock
	companyID snowflake.ID
	admin     context.Context
	adminID   snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbpkg.NewTest(t, &domain.Profile{}, &companydomain.Company{}, &auditdomain.AuditLog{})
	clk := clock.NewFakeClock(time.Date(2026, 5, 11, 16, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	loader := session.NewLoader(session.Params{
		DB:      db,
		Log:     log,
		Store:   session.NewMemoryStoreWithClock(clk.Now),
		Profile: repository.Provide(),
		Policy:  config.NewStaticPolicyHolder(config.DefaultPolicy()),
		Clock:   clk,
	})
	svc := service.New(service.Params{
		DB:     db,
		Log:    log,
		Repo:   repository.Provide(),
		Loader: loader,
		Audit: auditservice.NewService(auditservice.Params{
			DB: db, Log: log, GenID: node, Repo: auditrepo.Provide(), Clock: clk,
		}),
		Clock: clk,
	})

	f := &fixture{db: db, svc: svc, loader: loader, node: node, clock: clk, companyID: node.Generate()}
	require.NoError(t, db.Create(&companydomain.Company{
		ID: f.companyID, Name: "Acme", Slug: "acme", CreatedAt: clk.Now(), UpdatedAt: clk.Now(),
	}).Error)
	f.adminID = f.member(t, f.companyID, "owner@example.com", domain.RoleAdmin)
	f.admin = session.WithSession(context.Background(), &session.Session{
		UserID: f.adminID, Role: domain.RoleAdmin, CompanyID: f.companyID,
	})
	return f
}

func (f *fixture) member(t *testing.T, companyID snowflake.ID, email, role string) snowflake.ID {
	t.Helper()
	p := domain.Profile{
		ID: f.node.Generate(), Email: email, Name: email,
		Role: role, UserType: domain.UserTypeUser,
		Active: true, PasswordHash: "x", CompanyID: &companyID,
		CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&p).Error)
	return p.ID
}

func TestListEmployeesIsCompanyScoped(t *testing.T) {
	f := newFixture(t)
	f.member(t, f.companyID, "dora@example.com", domain.RoleUser)
	f.member(t, f.node.Generate(), "stranger@example.com", domain.RoleUser)

	employees, err := f.svc.ListEmployees(f.admin)
	require.NoError(t, err)
	require.Len(t, employees, 2)
	for _, e := range employees {
		assert.NotEqual(t, "stranger@example.com", e.Email)
	}
}

func TestDeactivateDropsSession(t *testing.T) {
	f := newFixture(t)
	dora := f.member(t, f.companyID, "dora@example.com", domain.RoleUser)

	_, err := f.loader.Load(context.Background(), dora, false)
	require.NoError(t, err)

	require.NoError(t, f.svc.Deactivate(f.admin, dora.String()))

	_, err = f.loader.Load(context.Background(), dora, false)
	assert.ErrorIs(t, err, session.ErrNoSession)

	var audits int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", "employee.deactivate").Count(&audits).Error)
	assert.Equal(t, int64(1), audits)
}

func TestDeactivateRules(t *testing.T) {
	f := newFixture(t)
	stranger := f.member(t, f.node.Generate(), "stranger@example.com", domain.RoleUser)

	assert.ErrorIs(t, f.svc.Deactivate(f.admin, f.adminID.String()), domain.ErrSelfDeactivate)
	assert.ErrorIs(t, f.svc.Deactivate(f.admin, stranger.String()), domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.Deactivate(f.admin, "nope"), domain.ErrInvalidProfile)

	dora := f.member(t, f.companyID, "dora@example.com", domain.RoleUser)
	member := session.WithSession(context.Background(), &session.Session{
		UserID: dora, Role: domain.RoleUser, CompanyID: f.companyID,
	})
	assert.ErrorIs(t, f.svc.Deactivate(member, f.adminID.String()), session.ErrNotAdmin)
}
