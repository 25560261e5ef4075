package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Payment) error
	InsertBatch(ctx context.Context, db *gorm.DB, items []Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]Payment, error)
	// ListSettleable returns pending, partial and overdue payments of a provider,
	// excluding balance payments, oldest due date first.
	ListSettleable(ctx context.Context, db *gorm.DB, companyID, providerID snowflake.ID) ([]Payment, error)
	ListByConfirmedRevenue(ctx context.Context, db *gorm.DB, confirmedRevenueID snowflake.ID) ([]Payment, error)
	SumCompleted(ctx context.Context, db *gorm.DB, companyID, providerID snowflake.ID) (int64, error)
	SumOutstanding(ctx context.Context, db *gorm.DB, companyID snowflake.ID) (int64, error)
	ApplySettlement(ctx context.Context, db *gorm.DB, p *Payment) error
	// Transition moves a payment from one status to another; false when the
	// stored status was no longer from.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to string, now time.Time) (bool, error)
	MarkOverdue(ctx context.Context, db *gorm.DB, asOf time.Time, limit int) ([]Payment, error)
}

type Service interface {
	Get(ctx context.Context, id string) (*Payment, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	CreateAdvance(ctx context.Context, req CreateAdvanceRequest) (*Payment, error)
	UpdateStatus(ctx context.Context, id string, status string) (*Payment, error)
	// MarkOverdue flags pending payments past their due date. It runs
	// without a session on behalf of every company.
	MarkOverdue(ctx context.Context) (int, error)
}

type ListFilter struct {
	ProviderID snowflake.ID
	Status     string
	Type       string
}

type ListRequest struct {
	pagination.Pagination
	ProviderID string `form:"provider_id"`
	Status     string `form:"status"`
	Type       string `form:"type"`
}

type ListResponse struct {
	PageInfo pagination.PageInfo `json:"page_info"`
	Payments []Payment           `json:"payments"`
}

type CreateAdvanceRequest struct {
	ProviderID  string    `json:"provider_id"`
	MissionID   string    `json:"mission_id"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	PaymentDate time.Time `json:"payment_date"`
	Notes       string    `json:"notes"`
}

var (
	ErrInvalidID         = apperr.New(apperr.KindValidation, "invalid_payment_id")
	ErrInvalidProvider   = apperr.New(apperr.KindValidation, "invalid_provider")
	ErrInvalidMission    = apperr.New(apperr.KindValidation, "invalid_mission")
	ErrInvalidStatus     = apperr.New(apperr.KindValidation, "invalid_status")
	ErrInvalidType       = apperr.New(apperr.KindValidation, "invalid_payment_type")
	ErrInvalidAmount     = apperr.New(apperr.KindValidation, "invalid_amount")
	ErrInvalidDate       = apperr.New(apperr.KindValidation, "invalid_date")
	ErrInvalidPageToken  = apperr.New(apperr.KindValidation, "invalid_page_token")
	ErrNotFound          = apperr.New(apperr.KindNotFound, "payment_not_found")
	ErrInvalidTransition = apperr.New(apperr.KindConflict, "invalid_status_transition")
)

// transitions lists the manual status changes an admin may make. Completion
// only happens through settlement.
var transitions = map[string][]string{
	StatusPending: {StatusOverdue, StatusCancelled},
	StatusOverdue: {StatusPending, StatusCancelled},
}

func CanTransition(from, to string) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
