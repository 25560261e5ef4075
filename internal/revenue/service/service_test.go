package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/opsledger/internal/account/domain"
	accountrepo "github.com/smallbiznis/opsledger/internal/account/repository"
	accountservice "github.com/smallbiznis/opsledger/internal/account/service"
	"github.com/smallbiznis/opsledger/internal/apperr"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	auditrepo "github.com/smallbiznis/opsledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/opsledger/internal/audit/service"
	"github.com/smallbiznis/opsledger/internal/clock"
	eventdomain "github.com/smallbiznis/opsledger/internal/events/domain"
	"github.com/smallbiznis/opsledger/internal/events/outbox"
	missiondomain "github.com/smallbiznis/opsledger/internal/mission/domain"
	missionrepo "github.com/smallbiznis/opsledger/internal/mission/repository"
	paymentdomain "github.com/smallbiznis/opsledger/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/opsledger/internal/payment/repository"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
	"github.com/smallbiznis/opsledger/internal/ratelimit"
	"github.com/smallbiznis/opsledger/internal/revenue/domain"
	"github.com/smallbiznis/opsledger/internal/revenue/repository"
	"github.com/smallbiznis/opsledger/internal/revenue/service"
	"github.com/smallbiznis/opsledger/internal/session"
	transactiondomain "github.com/smallbiznis/opsledger/internal/transaction/domain"
	transactionrepo "github.com/smallbiznis/opsledger/internal/transaction/repository"
	transactionservice "github.com/smallbiznis/opsledger/internal/transaction/service"
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
	accountID snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbpkg.NewTest(t,
		&domain.PendingRevenue{}, &domain.ConfirmedRevenue{},
		&missiondomain.Mission{}, &missiondomain.MissionProvider{},
		&paymentdomain.Payment{}, &accountdomain.Account{},
		&transactiondomain.Transaction{}, &eventdomain.DomainEvent{},
		&auditdomain.AuditLog{},
	)
	clk := clock.NewFakeClock(time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	ob := outbox.New(node, clk)

	svc := service.New(service.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Repo:        repository.Provide(),
		MissionRepo: missionrepo.Provide(),
		PaymentRepo: paymentrepo.Provide(),
		AccountSvc: accountservice.New(accountservice.Params{
			DB: db, Log: log, GenID: node, Repo: accountrepo.Provide(), Clock: clk,
		}),
		TransactionSvc: transactionservice.New(transactionservice.Params{
			DB: db, Log: log, GenID: node, Repo: transactionrepo.Provide(),
			MissionRepo: missionrepo.Provide(), Outbox: ob, Clock: clk,
		}),
		Outbox: ob,
		Locker: ratelimit.NewLocalLocker(),
		Audit: auditservice.NewService(auditservice.Params{
			DB: db, Log: log, GenID: node, Repo: auditrepo.Provide(), Clock: clk,
		}),
		Clock: clk,
	})

	f := &fixture{db: db, svc: svc, node: node, clock: clk, companyID: node.Generate()}
	f.accountID = node.Generate()
	require.NoError(t, db.Create(&accountdomain.Account{
		ID: f.accountID, CompanyID: f.companyID, Type: "bank", Name: "Main",
		CreatedAt: clk.Now(), UpdatedAt: clk.Now(),
	}).Error)
	return f
}

func (f *fixture) adminCtx(companyID snowflake.ID) context.Context {
	return session.WithSession(context.Background(), &session.Session{
		UserID:    1,
		Email:     "owner@example.com",
		Role:      profiledomain.RoleAdmin,
		CompanyID: companyID,
	})
}

func (f *fixture) seedMission(t *testing.T, approved bool, providers ...snowflake.ID) *missiondomain.Mission {
	t.Helper()
	companyValue, providerValue, err := missiondomain.SplitValue(1000, decimal.NewFromInt(30))
	require.NoError(t, err)

	m := &missiondomain.Mission{
		ID:                f.node.Generate(),
		CompanyID:         f.companyID,
		Title:             "Rooftop install",
		ServiceValue:      1000,
		CompanyPercentage: decimal.NewFromInt(30),
		CompanyValue:      companyValue,
		ProviderValue:     providerValue,
		IsApproved:        approved,
		Status:            missiondomain.StatusCompleted,
		CreatedAt:         f.clock.Now(),
		UpdatedAt:         f.clock.Now(),
	}
	require.NoError(t, f.db.Create(m).Error)
	for i, id := range providers {
		require.NoError(t, f.db.Create(&missiondomain.MissionProvider{
			MissionID: m.ID, ProviderID: id, CompanyID: f.companyID, Position: i,
		}).Error)
	}
	return m
}

func (f *fixture) confirm(ctx context.Context, pendingID string) (*domain.ConfirmResult, error) {
	return f.svc.Confirm(ctx, domain.ConfirmRequest{
		PendingRevenueID: pendingID,
		AccountID:        f.accountID.String(),
		AccountType:      "bank",
		PaymentMethod:    "transfer",
	})
}

func TestConfirmSplitsProviderShare(t *testing.T) {
	f := newFixture(t)
	ctx := f.adminCtx(f.companyID)
	p1, p2 := f.node.Generate(), f.node.Generate()
	m := f.seedMission(t, true, p1, p2)

	pending, err := f.svc.CreatePending(ctx, domain.CreatePendingRequest{
		MissionID: m.ID.String(),
		DueDate:   f.clock.Now().Add(72 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), pending.TotalAmount)
	assert.Equal(t, int64(300), pending.CompanyAmount)
	assert.Equal(t, int64(700), pending.ProviderAmount)

	res, err := f.confirm(ctx, pending.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Revenue.TotalAmount)
	require.Len(t, res.Payments, 2)

	var sum int64
	for _, p := range res.Payments {
		assert.Equal(t, int64(350), p.Amount)
		assert.Equal(t, paymentdomain.StatusPending, p.Status)
		sum += p.Amount
	}
	assert.Equal(t, pending.ProviderAmount, sum)
	assert.Equal(t, p1, res.Payments[0].ProviderID)
	assert.Equal(t, p2, res.Payments[1].ProviderID)

	var stored domain.PendingRevenue
	require.NoError(t, f.db.First(&stored, "id = ?", pending.ID).Error)
	assert.Equal(t, domain.StatusReceived, stored.Status)

	var account accountdomain.Account
	require.NoError(t, f.db.First(&account, "id = ?", f.accountID).Error)
	assert.Equal(t, int64(1000), account.Balance)

	var income transactiondomain.Transaction
	require.NoError(t, f.db.First(&income, "id = ?", res.Revenue.TransactionID).Error)
	assert.Equal(t, transactiondomain.TypeIncome, income.Type)
	assert.Equal(t, int64(1000), income.Amount)

	var events int64
	require.NoError(t, f.db.Model(&eventdomain.DomainEvent{}).Where("event_type = ?", eventdomain.TypeRevenueConfirmed).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestConfirmRemainderGoesToFirstProvider(t *testing.T) {
	f := newFixture(t)
	ctx := f.adminCtx(f.companyID)
	p1, p2, p3 := f.node.Generate(), f.node.Generate(), f.node.Generate()
	m := f.seedMission(t, true, p1, p2, p3)

	pending, err := f.svc.CreatePending(ctx, domain.CreatePendingRequest{MissionID: m.ID.String(), DueDate: f.clock.Now()})
	require.NoError(t, err)

	res, err := f.confirm(ctx, pending.ID.String())
	require.NoError(t, err)
	require.Len(t, res.Payments, 3)
	assert.Equal(t, int64(234), res.Payments[0].Amount)
	assert.Equal(t, int64(233), res.Payments[1].Amount)
	assert.Equal(t, int64(233), res.Payments[2].Amount)
}

func TestConfirmTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := f.adminCtx(f.companyID)
	m := f.seedMission(t, true, f.node.Generate())

	pending, err := f.svc.CreatePending(ctx, domain.CreatePendingRequest{MissionID: m.ID.String(), DueDate: f.clock.Now()})
	require.NoError(t, err)

	_, err = f.confirm(ctx, pending.ID.String())
	require.NoError(t, err)

	_, err = f.confirm(ctx, pending.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotPending)

	var payments int64
	require.NoError(t, f.db.Model(&paymentdomain.Payment{}).Count(&payments).Error)
	assert.Equal(t, int64(1), payments)
}

func TestConfirmForeignRevenueIsNotFound(t *testing.T) {
	f := newFixture(t)
	m := f.seedMission(t, true, f.node.Generate())

	pending, err := f.svc.CreatePending(f.adminCtx(f.companyID), domain.CreatePendingRequest{MissionID: m.ID.String(), DueDate: f.clock.Now()})
	require.NoError(t, err)

	other := f.adminCtx(f.node.Generate())
	_, err = f.confirm(other, pending.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.GetPending(other, pending.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreatePendingRules(t *testing.T) {
	f := newFixture(t)
	ctx := f.adminCtx(f.companyID)

	unapproved := f.seedMission(t, false, f.node.Generate())
	_, err := f.svc.CreatePending(ctx, domain.CreatePendingRequest{MissionID: unapproved.ID.String(), DueDate: f.clock.Now()})
	assert.ErrorIs(t, err, domain.ErrMissionNotApproved)

	approved := f.seedMission(t, true, f.node.Generate())
	_, err = f.svc.CreatePending(ctx, domain.CreatePendingRequest{MissionID: approved.ID.String(), DueDate: f.clock.Now()})
	require.NoError(t, err)
	_, err = f.svc.CreatePending(ctx, domain.CreatePendingRequest{MissionID: approved.ID.String(), DueDate: f.clock.Now()})
	assert.ErrorIs(t, err, domain.ErrRevenueExists)

	_, err = f.svc.CreatePending(ctx, domain.CreatePendingRequest{MissionID: approved.ID.String()})
	assert.ErrorIs(t, err, domain.ErrInvalidDueDate)
}

func TestConfirmWithoutProvidersIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := f.adminCtx(f.companyID)
	m := f.seedMission(t, true)

	pending, err := f.svc.CreatePending(ctx, domain.CreatePendingRequest{MissionID: m.ID.String(), DueDate: f.clock.Now()})
	require.NoError(t, err)

	_, err = f.confirm(ctx, pending.ID.String())
	assert.ErrorIs(t, err, domain.ErrNoAssignedProviders)

	var stored domain.PendingRevenue
	require.NoError(t, f.db.First(&stored, "id = ?", pending.ID).Error)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestCancelThenConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := f.adminCtx(f.companyID)
	m := f.seedMission(t, true, f.node.Generate())

	pending, err := f.svc.CreatePending(ctx, domain.CreatePendingRequest{MissionID: m.ID.String(), DueDate: f.clock.Now()})
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, pending.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	_, err = f.confirm(ctx, pending.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotPending)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestConfirmRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := session.WithSession(context.Background(), &session.Session{
		UserID: 2, Role: profiledomain.RoleUser, CompanyID: f.companyID,
	})

	_, err := f.confirm(ctx, f.node.Generate().String())
	assert.ErrorIs(t, err, session.ErrNotAdmin)
}
