package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/opsledger/internal/apperr"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, m *Mission) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Mission, error)
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]Mission, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, now time.Time) error
	Approve(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	ReplaceProviders(ctx context.Context, db *gorm.DB, m *Mission, providerIDs []snowflake.ID) error
	ListProviders(ctx context.Context, db *gorm.DB, missionIDs []snowflake.ID) ([]MissionProvider, error)
	// ListForProvider returns the company's missions where providerID is the
	// sole provider or a member of the assigned set.
	ListForProvider(ctx context.Context, db *gorm.DB, companyID, providerID snowflake.ID) ([]Mission, error)
	CountByStatus(ctx context.Context, db *gorm.DB, companyID snowflake.ID) (map[string]int64, error)
	// HasActiveRevenue reports whether a pending or received revenue exists
	// for the mission.
	HasActiveRevenue(ctx context.Context, db *gorm.DB, missionID snowflake.ID) (bool, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Mission, error)
	Get(ctx context.Context, id string) (*Mission, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	UpdateStatus(ctx context.Context, id string, status string) (*Mission, error)
	Approve(ctx context.Context, id string) (*Mission, error)
	AssignProviders(ctx context.Context, id string, providerIDs []string) (*Mission, error)
}

type ListFilter struct {
	Status     string
	Approved   *bool
	ProviderID snowflake.ID
}

type CreateRequest struct {
	Title             string          `json:"title"`
	ClientName        string          `json:"client_name"`
	ScheduledDate     *time.Time      `json:"scheduled_date"`
	ProviderID        string          `json:"provider_id"`
	AssignedProviders []string        `json:"assigned_providers"`
	ServiceValue      int64           `json:"service_value"`
	CompanyPercentage decimal.Decimal `json:"company_percentage"`
	Status            string          `json:"status"`
}

type ListRequest struct {
	pagination.Pagination
	Status     string `form:"status"`
	Approved   *bool  `form:"approved"`
	ProviderID string `form:"provider_id"`
}

type ListResponse struct {
	PageInfo pagination.PageInfo `json:"page_info"`
	Missions []Mission           `json:"missions"`
}

var (
	ErrInvalidID           = apperr.New(apperr.KindValidation, "invalid_mission_id")
	ErrInvalidTitle        = apperr.New(apperr.KindValidation, "invalid_title")
	ErrInvalidStatus       = apperr.New(apperr.KindValidation, "invalid_status")
	ErrInvalidServiceValue = apperr.New(apperr.KindValidation, "invalid_service_value")
	ErrInvalidPercentage   = apperr.New(apperr.KindValidation, "invalid_company_percentage")
	ErrInvalidProvider     = apperr.New(apperr.KindValidation, "invalid_provider")
	ErrInvalidPageToken    = apperr.New(apperr.KindValidation, "invalid_page_token")
	ErrNotFound            = apperr.New(apperr.KindNotFound, "mission_not_found")
	ErrAlreadyApproved     = apperr.New(apperr.KindConflict, "mission_already_approved")
	ErrProvidersLocked     = apperr.New(apperr.KindConflict, "providers_locked")
)
