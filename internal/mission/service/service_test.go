package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	auditrepo "github.com/smallbiznis/opsledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/opsledger/internal/audit/service"
	"github.com/smallbiznis/opsledger/internal/clock"
	"github.com/smallbiznis/opsledger/internal/mission/domain"
	"github.com/smallbiznis/opsledger/internal/mission/repository"
	"github.com/smallbiznis/opsledger/internal/mission/service"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
	providerdomain "github.com/smallbiznis/opsledger/internal/provider/domain"
	providerrepo "github.com/smallbiznis/opsledger/internal/provider/repository"
	revenuedomain "github.com/smallbiznis/opsledger/internal/revenue/domain"
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
	node      *snowflake.Node
	clock     *clock.FakeClock
	companyID snowflake.ID
	admin     context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbpkg.NewTest(t,
		&domain.Mission{}, &domain.MissionProvider{},
		&providerdomain.Provider{}, &auditdomain.AuditLog{},
		&revenuedomain.PendingRevenue{},
	)
	clk := clock.NewFakeClock(time.Date(2026, 2, 20, 8, 30, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	svc := service.New(service.Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Repo:         repository.Provide(),
		ProviderRepo: providerrepo.Provide(),
		Audit: auditservice.NewService(auditservice.Params{
			DB: db, Log: log, GenID: node, Repo: auditrepo.Provide(), Clock: clk,
		}),
		Clock: clk,
	})

	f := &fixture{db: db, svc: svc, node: node, clock: clk, companyID: node.Generate()}
	f.admin = f.adminOf(f.companyID)
	return f
}

func (f *fixture) adminOf(companyID snowflake.ID) context.Context {
	return session.WithSession(context.Background(), &session.Session{
		UserID: 1, Role: profiledomain.RoleAdmin, CompanyID: companyID,
	})
}

func (f *fixture) provider(t *testing.T, companyID snowflake.ID, active bool) string {
	t.Helper()
	p := providerdomain.Provider{
		ID: f.node.Generate(), CompanyID: companyID, Name: "Tech", Active: true,
		CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&p).Error)
	if !active {
		require.NoError(t, f.db.Model(&p).Update("active", false).Error)
	}
	return p.ID.String()
}

func TestCreateComputesSplit(t *testing.T) {
	f := newFixture(t)
	p1, p2 := f.provider(t, f.companyID, true), f.provider(t, f.companyID, true)

	m, err := f.svc.Create(f.admin, domain.CreateRequest{
		Title:             "  Solar panel install ",
		ServiceValue:      1000,
		CompanyPercentage: decimal.NewFromInt(30),
		AssignedProviders: []string{p1, p2, p1},
	})
	require.NoError(t, err)
	assert.Equal(t, "Solar panel install", m.Title)
	assert.Equal(t, domain.StatusPlanning, m.Status)
	assert.Equal(t, int64(300), m.CompanyValue)
	assert.Equal(t, int64(700), m.ProviderValue)
	assert.False(t, m.IsApproved)
	require.Len(t, m.AssignedProviders, 2)
	assert.Equal(t, p1, m.AssignedProviders[0].String())

	got, err := f.svc.Get(f.admin, m.ID.String())
	require.NoError(t, err)
	assert.Equal(t, m.AssignedProviders, got.AssignedProviders)
}

func TestCreateRejectsForeignOrInactiveProvider(t *testing.T) {
	f := newFixture(t)
	foreign := f.provider(t, f.node.Generate(), true)
	inactive := f.provider(t, f.companyID, false)

	for _, id := range []string{foreign, inactive, "not-an-id"} {
		_, err := f.svc.Create(f.admin, domain.CreateRequest{
			Title:             "Job",
			ServiceValue:      100,
			CompanyPercentage: decimal.NewFromInt(10),
			ProviderID:        id,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidProvider)
	}

	var count int64
	require.NoError(t, f.db.Model(&domain.Mission{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(f.admin, domain.CreateRequest{Title: " ", ServiceValue: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidTitle)

	_, err = f.svc.Create(f.admin, domain.CreateRequest{Title: "Job", ServiceValue: 10, Status: "done"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = f.svc.Create(f.admin, domain.CreateRequest{Title: "Job", ServiceValue: 10, CompanyPercentage: decimal.NewFromInt(150)})
	assert.ErrorIs(t, err, domain.ErrInvalidPercentage)
}

func TestApproveOnce(t *testing.T) {
	f := newFixture(t)
	m, err := f.svc.Create(f.admin, domain.CreateRequest{Title: "Job", ServiceValue: 500, CompanyPercentage: decimal.NewFromInt(20)})
	require.NoError(t, err)

	approved, err := f.svc.Approve(f.admin, m.ID.String())
	require.NoError(t, err)
	assert.True(t, approved.IsApproved)

	_, err = f.svc.Approve(f.admin, m.ID.String())
	assert.ErrorIs(t, err, domain.ErrAlreadyApproved)

	var audits int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", "mission.approve").Count(&audits).Error)
	assert.Equal(t, int64(1), audits)
}

func TestUpdateStatusAndAssign(t *testing.T) {
	f := newFixture(t)
	m, err := f.svc.Create(f.admin, domain.CreateRequest{Title: "Job", ServiceValue: 500, CompanyPercentage: decimal.NewFromInt(20)})
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(f.admin, m.ID.String(), domain.StatusNoShowClient)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNoShowClient, updated.Status)

	_, err = f.svc.UpdateStatus(f.admin, m.ID.String(), "cancelled")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	p1, p2 := f.provider(t, f.companyID, true), f.provider(t, f.companyID, true)
	assigned, err := f.svc.AssignProviders(f.admin, m.ID.String(), []string{p2, p1})
	require.NoError(t, err)
	require.Len(t, assigned.AssignedProviders, 2)
	assert.Equal(t, p2, assigned.AssignedProviders[0].String())

	got, err := f.svc.Get(f.admin, m.ID.String())
	require.NoError(t, err)
	assert.Equal(t, p2, got.AssignedProviders[0].String())
	assert.Equal(t, p1, got.AssignedProviders[1].String())
}

func TestAssignProvidersLockedByRevenue(t *testing.T) {
	f := newFixture(t)
	p1, p2 := f.provider(t, f.companyID, true), f.provider(t, f.companyID, true)
	m, err := f.svc.Create(f.admin, domain.CreateRequest{
		Title: "Job", ProviderID: p1, ServiceValue: 1000, CompanyPercentage: decimal.NewFromInt(30),
	})
	require.NoError(t, err)
	_, err = f.svc.Approve(f.admin, m.ID.String())
	require.NoError(t, err)

	revenue := revenuedomain.PendingRevenue{
		ID: f.node.Generate(), CompanyID: f.companyID, MissionID: m.ID,
		TotalAmount: 1000, CompanyAmount: 300, ProviderAmount: 700,
		DueDate: f.clock.Now(), Status: revenuedomain.StatusCancelled,
	}
	require.NoError(t, f.db.Create(&revenue).Error)

	// A cancelled revenue generated no payments.
	_, err = f.svc.AssignProviders(f.admin, m.ID.String(), []string{p1})
	require.NoError(t, err)

	for _, status := range []string{revenuedomain.StatusPending, revenuedomain.StatusReceived} {
		require.NoError(t, f.db.Model(&revenue).Update("status", status).Error)

		_, err = f.svc.AssignProviders(f.admin, m.ID.String(), []string{p2})
		assert.ErrorIs(t, err, domain.ErrProvidersLocked, status)
	}

	got, err := f.svc.Get(f.admin, m.ID.String())
	require.NoError(t, err)
	require.Len(t, got.AssignedProviders, 1)
	assert.Equal(t, p1, got.AssignedProviders[0].String())
}

func TestOtherCompanyCannotSeeMission(t *testing.T) {
	f := newFixture(t)
	m, err := f.svc.Create(f.admin, domain.CreateRequest{Title: "Job", ServiceValue: 500, CompanyPercentage: decimal.NewFromInt(20)})
	require.NoError(t, err)

	other := f.adminOf(f.node.Generate())
	_, err = f.svc.Get(other, m.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Approve(other, m.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := f.svc.List(other, domain.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, list.Missions)
}
