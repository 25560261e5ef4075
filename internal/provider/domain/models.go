package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Provider is a technician or contractor paid a share of mission value.
// CurrentBalance is a cached copy of the computed balance, refreshed by
// explicit recalculation.
type Provider struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyID      snowflake.ID `gorm:"not null;index" json:"company_id"`
	Name           string       `gorm:"type:text;not null" json:"name"`
	Email          string       `gorm:"type:text" json:"email,omitempty"`
	Phone          string       `gorm:"type:text" json:"phone,omitempty"`
	Document       string       `gorm:"type:text" json:"document,omitempty"`
	Active         bool         `gorm:"not null;default:true" json:"active"`
	CurrentBalance int64        `gorm:"not null;default:0" json:"current_balance"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Provider) TableName() string { return "providers" }
