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
	Insert(ctx context.Context, db *gorm.DB, p *Provider) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Provider, error)
	FindByIDs(ctx context.Context, db *gorm.DB, companyID snowflake.ID, ids []snowflake.ID) ([]Provider, error)
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]Provider, error)
	Update(ctx context.Context, db *gorm.DB, p *Provider) error
	SetBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, balance int64, now time.Time) error
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Provider, error)
	Get(ctx context.Context, id string) (*Provider, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Provider, error)
	Deactivate(ctx context.Context, id string) (*Provider, error)
}

type ListFilter struct {
	Name       string
	ActiveOnly bool
}

type CreateRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Document string `json:"document"`
}

type UpdateRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Document *string `json:"document"`
}

type ListRequest struct {
	pagination.Pagination
	Name       string `form:"name"`
	ActiveOnly bool   `form:"active_only"`
}

type ListResponse struct {
	PageInfo  pagination.PageInfo `json:"page_info"`
	Providers []Provider          `json:"providers"`
}

var (
	ErrInvalidID        = apperr.New(apperr.KindValidation, "invalid_provider_id")
	ErrInvalidName      = apperr.New(apperr.KindValidation, "invalid_name")
	ErrInvalidEmail     = apperr.New(apperr.KindValidation, "invalid_email")
	ErrInvalidPageToken = apperr.New(apperr.KindValidation, "invalid_page_token")
	ErrNotFound         = apperr.New(apperr.KindNotFound, "provider_not_found")
)
