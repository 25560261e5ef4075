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
	"github.com/smallbiznis/opsledger/internal/balance/domain"
	"github.com/smallbiznis/opsledger/internal/balance/service"
	"github.com/smallbiznis/opsledger/internal/clock"
	eventdomain "github.com/smallbiznis/opsledger/internal/events/domain"
	"github.com/smallbiznis/opsledger/internal/events/outbox"
	missiondomain "github.com/smallbiznis/opsledger/internal/mission/domain"
	missionrepo "github.com/smallbiznis/opsledger/internal/mission/repository"
	paymentdomain "github.com/smallbiznis/opsledger/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/opsledger/internal/payment/repository"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
	providerdomain "github.com/smallbiznis/opsledger/internal/provider/domain"
	providerrepo "github.com/smallbiznis/opsledger/internal/provider/repository"
	"github.com/smallbiznis/opsledger/internal/ratelimit"
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
	db         *gorm.DB
	svc        domain.Service
	node       *snowflake.Node
	clock      *clock.FakeClock
	companyID  snowflake.ID
	providerID snowflake.ID
	ctx        context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbpkg.NewTest(t,
		&providerdomain.Provider{},
		&missiondomain.Mission{}, &missiondomain.MissionProvider{},
		&paymentdomain.Payment{}, &transactiondomain.Transaction{},
		&eventdomain.DomainEvent{}, &auditdomain.AuditLog{},
	)
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	ob := outbox.New(node, clk)

	svc := service.New(service.Params{
		DB:           db,
		Log:          log,
		ProviderRepo: providerrepo.Provide(),
		MissionRepo:  missionrepo.Provide(),
		PaymentRepo:  paymentrepo.Provide(),
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

	f := &fixture{db: db, svc: svc, node: node, clock: clk, companyID: node.Generate(), providerID: node.Generate()}
	f.ctx = session.WithSession(context.Background(), &session.Session{
		UserID: 1, Role: profiledomain.RoleAdmin, CompanyID: f.companyID,
	})
	require.NoError(t, db.Create(&providerdomain.Provider{
		ID: f.providerID, CompanyID: f.companyID, Name: "Bruno", Active: true,
		CreatedAt: clk.Now(), UpdatedAt: clk.Now(),
	}).Error)
	return f
}

// seedEarnings books an approved mission worth providerValue to the provider
// plus one pending payment per amount, oldest due date first.
func (f *fixture) seedEarnings(t *testing.T, providerValue int64, amounts ...int64) []paymentdomain.Payment {
	t.Helper()
	providerID := f.providerID
	m := missiondomain.Mission{
		ID:                f.node.Generate(),
		CompanyID:         f.companyID,
		Title:             "Service call",
		ProviderID:        &providerID,
		ServiceValue:      providerValue,
		CompanyPercentage: decimal.Zero,
		ProviderValue:     providerValue,
		IsApproved:        true,
		Status:            missiondomain.StatusCompleted,
		CreatedAt:         f.clock.Now(),
		UpdatedAt:         f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&m).Error)

	payments := make([]paymentdomain.Payment, 0, len(amounts))
	for i, amount := range amounts {
		p := paymentdomain.Payment{
			ID:         f.node.Generate(),
			CompanyID:  f.companyID,
			ProviderID: f.providerID,
			MissionID:  &m.ID,
			Amount:     amount,
			Status:     paymentdomain.StatusPending,
			Type:       paymentdomain.TypeFull,
			DueDate:    f.clock.Now().AddDate(0, 0, i+1),
			CreatedAt:  f.clock.Now(),
			UpdatedAt:  f.clock.Now(),
		}
		require.NoError(t, f.db.Create(&p).Error)
		payments = append(payments, p)
	}
	return payments
}

func (f *fixture) payment(t *testing.T, id snowflake.ID) paymentdomain.Payment {
	t.Helper()
	var p paymentdomain.Payment
	require.NoError(t, f.db.First(&p, "id = ?", id).Error)
	return p
}

func TestSettlePendingOldestFirst(t *testing.T) {
	f := newFixture(t)
	payments := f.seedEarnings(t, 180, 100, 50, 30)

	res, err := f.svc.SettlePending(f.ctx, domain.SettleRequest{
		ProviderID:  f.providerID.String(),
		Amount:      120,
		PaymentDate: f.clock.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SettledCount)
	assert.Equal(t, int64(120), res.Applied)
	assert.Equal(t, payments[1].ID.String(), res.PartialPaymentID)
	assert.NotEmpty(t, res.TransactionID)

	first := f.payment(t, payments[0].ID)
	assert.Equal(t, paymentdomain.StatusCompleted, first.Status)
	assert.Equal(t, int64(100), first.PaidAmount)
	require.NotNil(t, first.PaymentDate)

	second := f.payment(t, payments[1].ID)
	assert.Equal(t, paymentdomain.StatusPartial, second.Status)
	assert.Equal(t, int64(20), second.PaidAmount)

	third := f.payment(t, payments[2].ID)
	assert.Equal(t, paymentdomain.StatusPending, third.Status)
	assert.Zero(t, third.PaidAmount)
	assert.Nil(t, third.PaymentDate)

	var expense transactiondomain.Transaction
	require.NoError(t, f.db.First(&expense, "id = ?", res.TransactionID).Error)
	assert.Equal(t, transactiondomain.TypeExpense, expense.Type)
	assert.Equal(t, int64(120), expense.Amount)
}

func TestSettlePendingCoversEverything(t *testing.T) {
	f := newFixture(t)
	payments := f.seedEarnings(t, 180, 100, 50, 30)

	res, err := f.svc.SettlePending(f.ctx, domain.SettleRequest{
		ProviderID:  f.providerID.String(),
		Amount:      180,
		PaymentDate: f.clock.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.SettledCount)
	assert.Empty(t, res.PartialPaymentID)
	assert.Zero(t, res.CurrentBalance)

	for _, p := range payments {
		assert.Equal(t, paymentdomain.StatusCompleted, f.payment(t, p.ID).Status)
	}
}

func TestSettlePendingPartialThenRest(t *testing.T) {
	f := newFixture(t)
	payments := f.seedEarnings(t, 100, 100)

	_, err := f.svc.SettlePending(f.ctx, domain.SettleRequest{ProviderID: f.providerID.String(), Amount: 40, PaymentDate: f.clock.Now()})
	require.NoError(t, err)

	res, err := f.svc.SettlePending(f.ctx, domain.SettleRequest{ProviderID: f.providerID.String(), Amount: 60, PaymentDate: f.clock.Now()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SettledCount)

	p := f.payment(t, payments[0].ID)
	assert.Equal(t, paymentdomain.StatusCompleted, p.Status)
	assert.Equal(t, int64(100), p.PaidAmount)
}

func TestSettlePendingRejectsOverpayment(t *testing.T) {
	f := newFixture(t)
	payments := f.seedEarnings(t, 180, 100, 50, 30)

	_, err := f.svc.SettlePending(f.ctx, domain.SettleRequest{
		ProviderID:  f.providerID.String(),
		Amount:      181,
		PaymentDate: f.clock.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrExceedsOutstanding)

	for _, p := range payments {
		assert.Equal(t, paymentdomain.StatusPending, f.payment(t, p.ID).Status)
	}
	var txns int64
	require.NoError(t, f.db.Model(&transactiondomain.Transaction{}).Count(&txns).Error)
	assert.Zero(t, txns)
}

func TestSettlePendingValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SettlePending(f.ctx, domain.SettleRequest{ProviderID: f.providerID.String(), Amount: 0, PaymentDate: f.clock.Now()})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.SettlePending(f.ctx, domain.SettleRequest{ProviderID: f.providerID.String(), Amount: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidDate)

	_, err = f.svc.SettlePending(f.ctx, domain.SettleRequest{ProviderID: "abc", Amount: 10, PaymentDate: f.clock.Now()})
	assert.ErrorIs(t, err, domain.ErrInvalidProvider)

	other := session.WithSession(context.Background(), &session.Session{
		UserID: 9, Role: profiledomain.RoleAdmin, CompanyID: f.node.Generate(),
	})
	_, err = f.svc.SettlePending(other, domain.SettleRequest{ProviderID: f.providerID.String(), Amount: 10, PaymentDate: f.clock.Now()})
	assert.ErrorIs(t, err, providerdomain.ErrNotFound)
}

func TestComputeAndRecalculate(t *testing.T) {
	f := newFixture(t)
	payments := f.seedEarnings(t, 300, 120, 180)
	require.NoError(t, f.db.Model(&paymentdomain.Payment{}).
		Where("id = ?", payments[0].ID).
		Updates(map[string]any{"status": paymentdomain.StatusCompleted, "paid_amount": 120}).Error)

	unapproved := missiondomain.Mission{
		ID: f.node.Generate(), CompanyID: f.companyID, Title: "Next week",
		ProviderID: &f.providerID, ServiceValue: 50, CompanyPercentage: decimal.Zero,
		ProviderValue: 50, Status: missiondomain.StatusPlanning,
		CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&unapproved).Error)

	balance, err := f.svc.ComputeBalance(f.ctx, f.providerID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance.TotalEarned)
	assert.Equal(t, int64(120), balance.TotalPaid)
	assert.Equal(t, int64(180), balance.CurrentBalance)
	assert.Equal(t, int64(50), balance.PendingBalance)
	assert.Equal(t, 1, balance.MissionsCount)
	assert.Equal(t, 1, balance.PendingMissionsCount)

	// Computing writes nothing, so a second call sees the same state.
	again, err := f.svc.ComputeBalance(f.ctx, f.providerID.String())
	require.NoError(t, err)
	assert.Equal(t, balance, again)

	var cached providerdomain.Provider
	require.NoError(t, f.db.First(&cached, "id = ?", f.providerID).Error)
	assert.Zero(t, cached.CurrentBalance)

	current, err := f.svc.Recalculate(f.ctx, f.providerID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(180), current)

	require.NoError(t, f.db.First(&cached, "id = ?", f.providerID).Error)
	assert.Equal(t, int64(180), cached.CurrentBalance)
}
