package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/opsledger/internal/apperr"
)

// Balance is derived on demand from missions and payments; nothing in it is
// stored except the cached CurrentBalance on the provider row.
type Balance struct {
	ProviderID           string `json:"provider_id"`
	CurrentBalance       int64  `json:"current_balance"`
	PendingBalance       int64  `json:"pending_balance"`
	TotalEarned          int64  `json:"total_earned"`
	TotalPaid            int64  `json:"total_paid"`
	MissionsCount        int    `json:"missions_count"`
	PendingMissionsCount int    `json:"pending_missions_count"`
}

type SettleRequest struct {
	ProviderID  string    `json:"providerId"`
	Amount      int64     `json:"amount"`
	PaymentDate time.Time `json:"date"`
}

type SettleResult struct {
	SettledCount     int    `json:"settled_count"`
	PartialPaymentID string `json:"partial_payment_id,omitempty"`
	Applied          int64  `json:"applied"`
	TransactionID    string `json:"transaction_id"`
	CurrentBalance   int64  `json:"current_balance"`
}

type Service interface {
	ComputeBalance(ctx context.Context, providerID string) (Balance, error)
	// Recalculate refreshes the provider's cached balance and returns it.
	Recalculate(ctx context.Context, providerID string) (int64, error)
	SettlePending(ctx context.Context, req SettleRequest) (SettleResult, error)
}

var (
	ErrInvalidProvider    = apperr.New(apperr.KindValidation, "invalid_provider")
	ErrInvalidAmount      = apperr.New(apperr.KindValidation, "invalid_amount")
	ErrInvalidDate        = apperr.New(apperr.KindValidation, "invalid_date")
	ErrExceedsOutstanding = apperr.New(apperr.KindValidation, "settlement_exceeds_outstanding")
)
