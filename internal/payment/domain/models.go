package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	StatusPending   = "pending"
	StatusPartial   = "partial"
	StatusCompleted = "completed"
	StatusOverdue   = "overdue"
	StatusCancelled = "cancelled"

	TypeFull           = "full"
	TypeInstallment    = "installment"
	TypeAdvance        = "advance"
	TypeBalancePayment = "balance_payment"
	TypeAdvancePayment = "advance_payment"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusPartial, StatusCompleted, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

func ValidType(t string) bool {
	switch t {
	case TypeFull, TypeInstallment, TypeAdvance, TypeBalancePayment, TypeAdvancePayment:
		return true
	}
	return false
}

// Payment is money owed to, or paid to, a provider. PaidAmount tracks
// partial settlement; a completed payment has PaidAmount == Amount.
type Payment struct {
	ID                 snowflake.ID  `gorm:"primaryKey" json:"id"`
	CompanyID          snowflake.ID  `gorm:"not null;index" json:"company_id"`
	ProviderID         snowflake.ID  `gorm:"not null;index" json:"provider_id"`
	MissionID          *snowflake.ID `gorm:"index" json:"mission_id,omitempty"`
	ConfirmedRevenueID *snowflake.ID `gorm:"index" json:"confirmed_revenue_id,omitempty"`
	Amount             int64         `gorm:"not null" json:"amount"`
	PaidAmount         int64         `gorm:"not null;default:0" json:"paid_amount"`
	Status             string        `gorm:"type:text;not null" json:"status"`
	Type               string        `gorm:"type:text;not null" json:"type"`
	DueDate            time.Time     `gorm:"not null;index" json:"due_date"`
	PaymentDate        *time.Time    `json:"payment_date,omitempty"`
	Notes              string        `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt          time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// Outstanding is what is still owed on the payment.
func (p *Payment) Outstanding() int64 {
	if p.Status == StatusCompleted || p.Status == StatusCancelled {
		return 0
	}
	return p.Amount - p.PaidAmount
}

// AfterFind coerces unknown stored enums to safe defaults so callers only
// ever see valid values.
func (p *Payment) AfterFind(tx *gorm.DB) error {
	if !ValidStatus(p.Status) {
		warnCoerced(p.ID, "status", p.Status, StatusPending)
		p.Status = StatusPending
	}
	if !ValidType(p.Type) {
		warnCoerced(p.ID, "type", p.Type, TypeFull)
		p.Type = TypeFull
	}
	return nil
}

func warnCoerced(id snowflake.ID, field, got, want string) {
	zap.L().Named("payment.domain").Warn("coerced invalid payment enum",
		zap.String("payment_id", id.String()),
		zap.String("field", field),
		zap.String("value", got),
		zap.String("coerced_to", want),
	)
}
