package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, a *Account) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, accountType string) ([]Account, error)
	AddBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64, now time.Time) error
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Account, error)
	Get(ctx context.Context, id string) (*Account, error)
	List(ctx context.Context, accountType string) ([]Account, error)
	// Credit adds amount to an account inside the caller's transaction.
	Credit(ctx context.Context, tx *gorm.DB, companyID, accountID snowflake.ID, accountType string, amount int64) error
}

type CreateRequest struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

var (
	ErrInvalidID     = apperr.New(apperr.KindValidation, "invalid_account_id")
	ErrInvalidType   = apperr.New(apperr.KindValidation, "invalid_account_type")
	ErrInvalidName   = apperr.New(apperr.KindValidation, "invalid_name")
	ErrInvalidAmount = apperr.New(apperr.KindValidation, "invalid_amount")
	ErrTypeMismatch  = apperr.New(apperr.KindValidation, "account_type_mismatch")
	ErrNotFound      = apperr.New(apperr.KindNotFound, "account_not_found")
)
