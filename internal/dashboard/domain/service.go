package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/opsledger/internal/apperr"
)

type Summary struct {
	From                *time.Time       `json:"from,omitempty"`
	To                  *time.Time       `json:"to,omitempty"`
	TotalIncome         int64            `json:"total_income"`
	TotalExpense        int64            `json:"total_expense"`
	Net                 int64            `json:"net"`
	PendingRevenue      int64            `json:"pending_revenue"`
	ConfirmedRevenue    int64            `json:"confirmed_revenue"`
	OutstandingPayments int64            `json:"outstanding_payments"`
	MissionsByStatus    map[string]int64 `json:"missions_by_status"`
	PendingExpenses     int64            `json:"pending_expenses"`
	// MarginPercentage is Net over TotalIncome, two decimals; zero without income.
	MarginPercentage decimal.Decimal `json:"margin_percentage"`
}

type Service interface {
	Summary(ctx context.Context, from, to *time.Time) (Summary, error)
}

var ErrInvalidTimeRange = apperr.New(apperr.KindValidation, "invalid_time_range")
