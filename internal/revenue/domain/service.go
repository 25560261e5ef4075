package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	paymentdomain "github.com/smallbiznis/opsledger/internal/payment/domain"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPending(ctx context.Context, db *gorm.DB, r *PendingRevenue) error
	FindPending(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PendingRevenue, error)
	// HasActiveForMission reports a pending or received revenue for the mission.
	HasActiveForMission(ctx context.Context, db *gorm.DB, missionID snowflake.ID) (bool, error)
	// TransitionPending moves a pending row to status; false when it was not pending.
	TransitionPending(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, now time.Time) (bool, error)
	ListPending(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter PendingFilter, page pagination.Pagination) ([]PendingRevenue, error)
	InsertConfirmed(ctx context.Context, db *gorm.DB, r *ConfirmedRevenue) error
	FindConfirmed(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ConfirmedRevenue, error)
	ListConfirmed(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter ConfirmedFilter, page pagination.Pagination) ([]ConfirmedRevenue, error)
	SumPending(ctx context.Context, db *gorm.DB, companyID snowflake.ID) (int64, error)
	SumConfirmed(ctx context.Context, db *gorm.DB, companyID snowflake.ID, from, to *time.Time) (int64, error)
}

type Service interface {
	CreatePending(ctx context.Context, req CreatePendingRequest) (*PendingRevenue, error)
	GetPending(ctx context.Context, id string) (*PendingRevenue, error)
	ListPending(ctx context.Context, req ListPendingRequest) (ListPendingResponse, error)
	Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error)
	Cancel(ctx context.Context, id string) (*PendingRevenue, error)
	GetConfirmed(ctx context.Context, id string) (*ConfirmedRevenue, error)
	ListConfirmed(ctx context.Context, req ListConfirmedRequest) (ListConfirmedResponse, error)
}

type PendingFilter struct {
	Status    string
	MissionID snowflake.ID
}

type ConfirmedFilter struct {
	MissionID snowflake.ID
	From      *time.Time
	To        *time.Time
}

type CreatePendingRequest struct {
	MissionID string    `json:"mission_id"`
	DueDate   time.Time `json:"due_date"`
}

type ConfirmRequest struct {
	PendingRevenueID string `json:"pendingRevenueId"`
	AccountID        string `json:"accountId"`
	AccountType      string `json:"accountType"`
	PaymentMethod    string `json:"paymentMethod"`
}

type ConfirmResult struct {
	Revenue  ConfirmedRevenue        `json:"revenue"`
	Payments []paymentdomain.Payment `json:"payments"`
}

type ListPendingRequest struct {
	pagination.Pagination
	Status    string `form:"status"`
	MissionID string `form:"mission_id"`
}

type ListPendingResponse struct {
	PageInfo pagination.PageInfo `json:"page_info"`
	Revenues []PendingRevenue    `json:"pending_revenues"`
}

type ListConfirmedRequest struct {
	pagination.Pagination
	MissionID string     `form:"mission_id"`
	From      *time.Time `form:"from" time_format:"2006-01-02"`
	To        *time.Time `form:"to" time_format:"2006-01-02"`
}

type ListConfirmedResponse struct {
	PageInfo pagination.PageInfo `json:"page_info"`
	Revenues []ConfirmedRevenue  `json:"confirmed_revenues"`
}

var (
	ErrInvalidID            = apperr.New(apperr.KindValidation, "invalid_revenue_id")
	ErrInvalidMission       = apperr.New(apperr.KindValidation, "invalid_mission")
	ErrInvalidDueDate       = apperr.New(apperr.KindValidation, "invalid_due_date")
	ErrInvalidAccount       = apperr.New(apperr.KindValidation, "invalid_account")
	ErrInvalidPaymentMethod = apperr.New(apperr.KindValidation, "invalid_payment_method")
	ErrInvalidStatus        = apperr.New(apperr.KindValidation, "invalid_status")
	ErrInvalidTimeRange     = apperr.New(apperr.KindValidation, "invalid_time_range")
	ErrInvalidPageToken     = apperr.New(apperr.KindValidation, "invalid_page_token")
	ErrMissionNotApproved   = apperr.New(apperr.KindValidation, "mission_not_approved")
	ErrNoAssignedProviders  = apperr.New(apperr.KindValidation, "no_assigned_providers")
	ErrNotFound             = apperr.New(apperr.KindNotFound, "revenue_not_found")
	ErrNotPending           = apperr.New(apperr.KindConflict, "revenue_not_pending")
	ErrRevenueExists        = apperr.New(apperr.KindConflict, "mission_revenue_exists")
)
