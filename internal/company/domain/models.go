// Package domain contains the tenant model.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	"gorm.io/gorm"
)

// Company is the tenant every business record belongs to.
type Company struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex:ux_companies_slug" json:"slug"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Company) TableName() string { return "companies" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, c *Company) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Company, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Current(ctx context.Context) (*Response, error)
}

type CreateRequest struct {
	Name string `json:"name"`
}

type Response struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrInvalidName     = apperr.New(apperr.KindValidation, "invalid_name")
	ErrAlreadyAssigned = apperr.New(apperr.KindConflict, "profile_already_assigned")
	ErrNotFound        = apperr.New(apperr.KindNotFound, "company_not_found")
)
