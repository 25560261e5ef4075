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
	Insert(ctx context.Context, db *gorm.DB, e *Expense) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Expense, error)
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]Expense, error)
	// Transition moves an expense from one status to another; false when the
	// stored status was no longer from.
	Transition(ctx context.Context, db *gorm.DB, e *Expense, from string) (bool, error)
	CountByStatus(ctx context.Context, db *gorm.DB, companyID snowflake.ID, status string) (int64, error)
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) (*Expense, error)
	Get(ctx context.Context, id string) (*Expense, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Approve(ctx context.Context, id string) (*Expense, error)
	Reject(ctx context.Context, id string) (*Expense, error)
	Reimburse(ctx context.Context, id string) (*Expense, error)
}

type ListFilter struct {
	Status     string
	EmployeeID snowflake.ID
	MissionID  snowflake.ID
}

type AccommodationInput struct {
	ActualCost          int64  `json:"actual_cost"`
	ReimbursementAmount int64  `json:"reimbursement_amount"`
	OutsourcingCompany  string `json:"outsourcing_company"`
	InvoiceNumber       string `json:"invoice_number"`
}

type RecordRequest struct {
	MissionID     string              `json:"mission_id"`
	Category      string              `json:"category"`
	Amount        int64               `json:"amount"`
	Date          time.Time           `json:"date"`
	Description   string              `json:"description"`
	Accommodation *AccommodationInput `json:"accommodation"`
}

type ListRequest struct {
	pagination.Pagination
	Status    string `form:"status"`
	MissionID string `form:"mission_id"`
}

type ListResponse struct {
	PageInfo pagination.PageInfo `json:"page_info"`
	Expenses []Expense           `json:"expenses"`
}

var (
	ErrInvalidID            = apperr.New(apperr.KindValidation, "invalid_expense_id")
	ErrInvalidCategory      = apperr.New(apperr.KindValidation, "invalid_category")
	ErrInvalidAmount        = apperr.New(apperr.KindValidation, "invalid_amount")
	ErrInvalidDate          = apperr.New(apperr.KindValidation, "invalid_date")
	ErrInvalidMission       = apperr.New(apperr.KindValidation, "invalid_mission")
	ErrInvalidStatus        = apperr.New(apperr.KindValidation, "invalid_status")
	ErrInvalidAccommodation = apperr.New(apperr.KindValidation, "invalid_accommodation")
	ErrInvalidPageToken     = apperr.New(apperr.KindValidation, "invalid_page_token")
	ErrNotFound             = apperr.New(apperr.KindNotFound, "expense_not_found")
	ErrInvalidTransition    = apperr.New(apperr.KindConflict, "invalid_status_transition")
)
