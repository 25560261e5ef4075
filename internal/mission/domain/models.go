package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const (
	StatusPlanning         = "planning"
	StatusInProgress       = "in-progress"
	StatusCompleted        = "completed"
	StatusNoShowClient     = "no-show-client"
	StatusNoShowTechnician = "no-show-technician"
	StatusPending          = "pending"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusPlanning, StatusInProgress, StatusCompleted,
		StatusNoShowClient, StatusNoShowTechnician, StatusPending:
		return true
	}
	return false
}

// Mission is a dispatched service job. CompanyValue and ProviderValue are
// derived from ServiceValue and CompanyPercentage and always sum to
// ServiceValue.
type Mission struct {
	ID                snowflake.ID    `gorm:"primaryKey" json:"id"`
	CompanyID         snowflake.ID    `gorm:"not null;index" json:"company_id"`
	Title             string          `gorm:"type:text;not null" json:"title"`
	ClientName        string          `gorm:"type:text" json:"client_name,omitempty"`
	ScheduledDate     *time.Time      `json:"scheduled_date,omitempty"`
	ProviderID        *snowflake.ID   `gorm:"index" json:"provider_id,omitempty"`
	ServiceValue      int64           `gorm:"not null" json:"service_value"`
	CompanyPercentage decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"company_percentage"`
	CompanyValue      int64           `gorm:"not null" json:"company_value"`
	ProviderValue     int64           `gorm:"not null" json:"provider_value"`
	IsApproved        bool            `gorm:"not null;default:false" json:"is_approved"`
	Status            string          `gorm:"type:text;not null;default:'planning'" json:"status"`
	CreatedAt         time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	AssignedProviders []snowflake.ID `gorm:"-" json:"assigned_providers"`
}

func (Mission) TableName() string { return "missions" }

// MissionProvider is one entry of a mission's assigned provider set.
// Position fixes the order used when splitting amounts.
type MissionProvider struct {
	MissionID  snowflake.ID `gorm:"primaryKey" json:"mission_id"`
	ProviderID snowflake.ID `gorm:"primaryKey;index" json:"provider_id"`
	CompanyID  snowflake.ID `gorm:"not null;index" json:"company_id"`
	Position   int          `gorm:"not null" json:"position"`
}

func (MissionProvider) TableName() string { return "mission_providers" }
