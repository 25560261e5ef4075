package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Profile, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Profile, error)
	Insert(ctx context.Context, db *gorm.DB, p *Profile) error
	// AssignCompany sets company_id only while it is still null.
	AssignCompany(ctx context.Context, db *gorm.DB, id, companyID snowflake.ID, role, userType string, now time.Time) (bool, error)
	ListByCompany(ctx context.Context, db *gorm.DB, companyID snowflake.ID) ([]Profile, error)
	SetActive(ctx context.Context, db *gorm.DB, id, companyID snowflake.ID, active bool, now time.Time) (bool, error)
	UpdatePasswordHash(ctx context.Context, db *gorm.DB, id snowflake.ID, hash string, now time.Time) error
}

type Service interface {
	ListEmployees(ctx context.Context) ([]Employee, error)
	Deactivate(ctx context.Context, id string) error
}

// Employee is the company-scoped view of a profile.
type Employee struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	UserType  string    `json:"user_type"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrInvalidProfile = apperr.New(apperr.KindValidation, "invalid_profile")
	ErrNotFound       = apperr.New(apperr.KindNotFound, "profile_not_found")
	ErrSelfDeactivate = apperr.New(apperr.KindConflict, "cannot_deactivate_self")
)
