package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	TypeBank = "bank"
	TypeCash = "cash"
)

func ValidType(t string) bool {
	return t == TypeBank || t == TypeCash
}

// Account is a settlement account confirmed revenue is credited to.
type Account struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyID snowflake.ID `gorm:"not null;index" json:"company_id"`
	Type      string       `gorm:"type:text;not null" json:"type"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Balance   int64        `gorm:"not null;default:0" json:"balance"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }
