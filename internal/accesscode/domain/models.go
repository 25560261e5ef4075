package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusAll     = "all"
	StatusUnused  = "unused"
	StatusUsed    = "used"
	StatusExpired = "expired"
)

// AccessCode binds one email address to a company until it is redeemed.
// IsUsed flips from false to true exactly once.
type AccessCode struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	CompanyID     snowflake.ID  `gorm:"not null;index" json:"company_id"`
	Code          string        `gorm:"type:text;not null;uniqueIndex:ux_access_codes_code" json:"code"`
	EmployeeName  string        `gorm:"type:text;not null" json:"employee_name"`
	EmployeeEmail string        `gorm:"type:text;not null" json:"employee_email"`
	IsUsed        bool          `gorm:"not null;default:false" json:"is_used"`
	UsedAt        *time.Time    `json:"used_at,omitempty"`
	UsedBy        *snowflake.ID `json:"used_by,omitempty"`
	ExpiresAt     time.Time     `gorm:"not null" json:"expires_at"`
	CreatedBy     snowflake.ID  `gorm:"not null" json:"created_by"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (AccessCode) TableName() string { return "access_codes" }

func (c *AccessCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
