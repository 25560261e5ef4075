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
	Insert(ctx context.Context, db *gorm.DB, c *AccessCode) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*AccessCode, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*AccessCode, error)
	// MarkUsed consumes an unused code; false when it was already used.
	MarkUsed(ctx context.Context, db *gorm.DB, id, userID snowflake.ID, now time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, status string, now time.Time, page pagination.Pagination) ([]AccessCode, error)
	// DeleteUnused removes a code that was never redeemed; false otherwise.
	DeleteUnused(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}

type Service interface {
	Issue(ctx context.Context, req IssueRequest) (*AccessCode, error)
	Redeem(ctx context.Context, code string) (*RedeemResult, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Revoke(ctx context.Context, id string) error
}

// CodeGenerator builds candidate codes; the unique index decides.
type CodeGenerator interface {
	Generate(prefix string, now time.Time, attempt int) string
}

type IssueRequest struct {
	EmployeeName  string `json:"employee_name"`
	EmployeeEmail string `json:"employee_email"`
}

type RedeemResult struct {
	CompanyID    string `json:"companyId"`
	EmployeeName string `json:"employeeName"`
}

type ListRequest struct {
	pagination.Pagination
	Status string `form:"status"`
}

type ListResponse struct {
	PageInfo    pagination.PageInfo `json:"page_info"`
	AccessCodes []AccessCode        `json:"access_codes"`
}

var (
	ErrInvalidCompany   = apperr.New(apperr.KindValidation, "invalid_company")
	ErrInvalidName      = apperr.New(apperr.KindValidation, "invalid_employee_name")
	ErrInvalidEmail     = apperr.New(apperr.KindValidation, "invalid_employee_email")
	ErrInvalidStatus    = apperr.New(apperr.KindValidation, "invalid_status")
	ErrInvalidID        = apperr.New(apperr.KindValidation, "invalid_access_code_id")
	ErrInvalidPageToken = apperr.New(apperr.KindValidation, "invalid_page_token")
	// ErrNotFound covers both a missing code and an email mismatch.
	ErrNotFound      = apperr.New(apperr.KindNotFound, "invalid_access_code")
	ErrAlreadyUsed   = apperr.New(apperr.KindAlreadyUsed, "access_code_used")
	ErrExpired       = apperr.New(apperr.KindExpired, "access_code_expired")
	ErrCodeNotFound  = apperr.New(apperr.KindNotFound, "access_code_not_found")
	ErrCannotRevoke  = apperr.New(apperr.KindConflict, "access_code_used")
	ErrCodeExhausted = apperr.New(apperr.KindConflict, "access_code_generation_failed")
)
