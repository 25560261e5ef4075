package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	TypeIncome  = "income"
	TypeExpense = "expense"

	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"

	CategoryMissionRevenue       = "mission_revenue"
	CategoryProviderSettlement   = "provider_settlement"
	CategoryExpenseReimbursement = "expense_reimbursement"
	CategoryProviderAdvance      = "provider_advance"
)

func ValidType(t string) bool {
	return t == TypeIncome || t == TypeExpense
}

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Transaction is a cash movement. Rows are append only; the status may move
// from pending to completed or cancelled and nothing else changes.
type Transaction struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	CompanyID     snowflake.ID  `gorm:"not null;index" json:"company_id"`
	Type          string        `gorm:"type:text;not null" json:"type"`
	Category      string        `gorm:"type:text;not null" json:"category"`
	Amount        int64         `gorm:"not null" json:"amount"`
	Date          time.Time     `gorm:"not null;index" json:"date"`
	Method        string        `gorm:"type:text" json:"method,omitempty"`
	Status        string        `gorm:"type:text;not null" json:"status"`
	UserID        snowflake.ID  `gorm:"not null" json:"user_id"`
	MissionID     *snowflake.ID `gorm:"index" json:"mission_id,omitempty"`
	Description   string        `gorm:"type:text" json:"description,omitempty"`
	ReferenceType string        `gorm:"type:text" json:"reference_type,omitempty"`
	ReferenceID   *snowflake.ID `json:"reference_id,omitempty"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }
