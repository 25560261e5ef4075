package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/opsledger/internal/apperr"
	"github.com/smallbiznis/opsledger/internal/dashboard/domain"
	expensedomain "github.com/smallbiznis/opsledger/internal/expense/domain"
	missiondomain "github.com/smallbiznis/opsledger/internal/mission/domain"
	paymentdomain "github.com/smallbiznis/opsledger/internal/payment/domain"
	revenuedomain "github.com/smallbiznis/opsledger/internal/revenue/domain"
	"github.com/smallbiznis/opsledger/internal/session"
	transactiondomain "github.com/smallbiznis/opsledger/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	TransactionRepo transactiondomain.Repository
	RevenueRepo     revenuedomain.Repository
	PaymentRepo     paymentdomain.Repository
	MissionRepo     missiondomain.Repository
	ExpenseRepo     expensedomain.Repository
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	transactionRepo transactiondomain.Repository
	revenueRepo     revenuedomain.Repository
	paymentRepo     paymentdomain.Repository
	missionRepo     missiondomain.Repository
	expenseRepo     expensedomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("dashboard.service"),
		transactionRepo: p.TransactionRepo,
		revenueRepo:     p.RevenueRepo,
		paymentRepo:     p.PaymentRepo,
		missionRepo:     p.MissionRepo,
		expenseRepo:     p.ExpenseRepo,
	}
}

var hundred = decimal.NewFromInt(100)

// Summary aggregates the company's figures. Income and expense come from
// completed transactions in [from, to]; the other figures are current.
func (s *Service) Summary(ctx context.Context, from, to *time.Time) (domain.Summary, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	if from != nil && to != nil && from.After(*to) {
		return domain.Summary{}, domain.ErrInvalidTimeRange
	}
	companyID := sess.CompanyID

	summary := domain.Summary{From: from, To: to}

	totals, err := s.transactionRepo.SumCompleted(ctx, s.db, companyID, from, to)
	if err != nil {
		return domain.Summary{}, apperr.Remote("sum transactions", err)
	}
	summary.TotalIncome = totals.Income
	summary.TotalExpense = totals.Expense
	summary.Net = totals.Net

	if summary.PendingRevenue, err = s.revenueRepo.SumPending(ctx, s.db, companyID); err != nil {
		return domain.Summary{}, apperr.Remote("sum pending revenue", err)
	}
	if summary.ConfirmedRevenue, err = s.revenueRepo.SumConfirmed(ctx, s.db, companyID, from, to); err != nil {
		return domain.Summary{}, apperr.Remote("sum confirmed revenue", err)
	}
	if summary.OutstandingPayments, err = s.paymentRepo.SumOutstanding(ctx, s.db, companyID); err != nil {
		return domain.Summary{}, apperr.Remote("sum outstanding payments", err)
	}
	if summary.MissionsByStatus, err = s.missionRepo.CountByStatus(ctx, s.db, companyID); err != nil {
		return domain.Summary{}, apperr.Remote("count missions", err)
	}
	if summary.PendingExpenses, err = s.expenseRepo.CountByStatus(ctx, s.db, companyID, expensedomain.StatusPending); err != nil {
		return domain.Summary{}, apperr.Remote("count pending expenses", err)
	}

	summary.MarginPercentage = decimal.Zero
	if summary.TotalIncome > 0 {
		summary.MarginPercentage = decimal.NewFromInt(summary.Net).
			Mul(hundred).
			DivRound(decimal.NewFromInt(summary.TotalIncome), 2)
	}
	return summary, nil
}
