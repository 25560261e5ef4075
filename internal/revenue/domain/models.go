package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusPending   = "pending"
	StatusReceived  = "received"
	StatusCancelled = "cancelled"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusReceived, StatusCancelled:
		return true
	}
	return false
}

// PendingRevenue is income expected from a mission. It moves from pending to
// received or cancelled exactly once; both are terminal.
type PendingRevenue struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyID      snowflake.ID `gorm:"not null;index" json:"company_id"`
	MissionID      snowflake.ID `gorm:"not null;uniqueIndex:ux_pending_revenues_active_mission,where:status <> 'cancelled'" json:"mission_id"`
	TotalAmount    int64        `gorm:"not null" json:"total_amount"`
	CompanyAmount  int64        `gorm:"not null" json:"company_amount"`
	ProviderAmount int64        `gorm:"not null" json:"provider_amount"`
	DueDate        time.Time    `gorm:"not null;index" json:"due_date"`
	Status         string       `gorm:"type:text;not null;index" json:"status"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PendingRevenue) TableName() string { return "pending_revenues" }

// ConfirmedRevenue is income actually received. Each one comes from exactly
// one PendingRevenue and is never changed afterwards.
type ConfirmedRevenue struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyID        snowflake.ID `gorm:"not null;index" json:"company_id"`
	PendingRevenueID snowflake.ID `gorm:"not null;uniqueIndex:ux_confirmed_revenues_pending" json:"pending_revenue_id"`
	MissionID        snowflake.ID `gorm:"not null;index" json:"mission_id"`
	TotalAmount      int64        `gorm:"not null" json:"total_amount"`
	CompanyAmount    int64        `gorm:"not null" json:"company_amount"`
	ProviderAmount   int64        `gorm:"not null" json:"provider_amount"`
	ReceivedDate     time.Time    `gorm:"not null" json:"received_date"`
	PaymentMethod    string       `gorm:"type:text;not null" json:"payment_method"`
	AccountID        snowflake.ID `gorm:"not null" json:"account_id"`
	TransactionID    snowflake.ID `gorm:"not null" json:"transaction_id"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ConfirmedRevenue) TableName() string { return "confirmed_revenues" }
