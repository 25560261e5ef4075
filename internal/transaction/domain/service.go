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
	Insert(ctx context.Context, db *gorm.DB, t *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]Transaction, error)
	// Transition moves a pending row to status; false when it was not pending.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, now time.Time) (bool, error)
	SumCompleted(ctx context.Context, db *gorm.DB, companyID snowflake.ID, from, to *time.Time) (Totals, error)
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) (*Transaction, error)
	// RecordTx appends a transaction inside the caller's database transaction.
	RecordTx(ctx context.Context, tx *gorm.DB, in RecordInput) (*Transaction, error)
	Get(ctx context.Context, id string) (*Transaction, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Complete(ctx context.Context, id string) (*Transaction, error)
	Cancel(ctx context.Context, id string) (*Transaction, error)
	Totals(ctx context.Context, from, to *time.Time) (Totals, error)
}

type RecordRequest struct {
	Type        string    `json:"type"`
	Category    string    `json:"category"`
	Amount      int64     `json:"amount"`
	Date        time.Time `json:"date"`
	Method      string    `json:"method"`
	MissionID   string    `json:"mission_id"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
}

type RecordInput struct {
	CompanyID     snowflake.ID
	UserID        snowflake.ID
	Type          string
	Category      string
	Amount        int64
	Date          time.Time
	Method        string
	Status        string
	MissionID     *snowflake.ID
	Description   string
	ReferenceType string
	ReferenceID   *snowflake.ID
}

type ListFilter struct {
	Type      string
	Status    string
	MissionID snowflake.ID
	From      *time.Time
	To        *time.Time
}

type ListRequest struct {
	pagination.Pagination
	Type      string     `form:"type"`
	Status    string     `form:"status"`
	MissionID string     `form:"mission_id"`
	From      *time.Time `form:"from" time_format:"2006-01-02"`
	To        *time.Time `form:"to" time_format:"2006-01-02"`
}

type ListResponse struct {
	PageInfo     pagination.PageInfo `json:"page_info"`
	Transactions []Transaction       `json:"transactions"`
}

// Totals sums completed transactions. A row counts toward exactly one side.
type Totals struct {
	Income  int64 `json:"income"`
	Expense int64 `json:"expense"`
	Net     int64 `json:"net"`
}

var (
	ErrInvalidID        = apperr.New(apperr.KindValidation, "invalid_transaction_id")
	ErrInvalidType      = apperr.New(apperr.KindValidation, "invalid_transaction_type")
	ErrInvalidStatus    = apperr.New(apperr.KindValidation, "invalid_status")
	ErrInvalidCategory  = apperr.New(apperr.KindValidation, "invalid_category")
	ErrInvalidAmount    = apperr.New(apperr.KindValidation, "invalid_amount")
	ErrInvalidDate      = apperr.New(apperr.KindValidation, "invalid_date")
	ErrInvalidMission   = apperr.New(apperr.KindValidation, "invalid_mission")
	ErrInvalidTimeRange = apperr.New(apperr.KindValidation, "invalid_time_range")
	ErrInvalidPageToken = apperr.New(apperr.KindValidation, "invalid_page_token")
	ErrNotFound         = apperr.New(apperr.KindNotFound, "transaction_not_found")
	ErrNotPending       = apperr.New(apperr.KindConflict, "transaction_not_pending")
)
