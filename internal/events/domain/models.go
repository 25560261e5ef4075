// Package domain contains the transactional outbox model.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TypeAccessCodeRedeemed    = "access_code.redeemed"
	TypeRevenueConfirmed      = "revenue.confirmed"
	TypeRevenueCancelled      = "revenue.cancelled"
	TypePaymentsSettled       = "payments.settled"
	TypePaymentsOverdue       = "payments.overdue"
	TypeExpenseStatusChanged  = "expense.status_changed"
	TypeTransactionRecorded   = "transaction.recorded"
	TypeProviderBalanceUpdate = "provider.balance_updated"
)

// DomainEvent is written in the same transaction as the change it describes.
type DomainEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	CompanyID   snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_domain_events_dedupe,priority:1" json:"company_id"`
	EventType   string            `gorm:"type:text;not null" json:"event_type"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null" json:"payload"`
	DedupeKey   *string           `gorm:"type:text;uniqueIndex:ux_domain_events_dedupe,priority:2" json:"-"`
	Published   bool              `gorm:"not null;default:false;index" json:"-"`
	PublishedAt *time.Time        `json:"-"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (DomainEvent) TableName() string { return "domain_events" }

// Outbox appends events inside the caller's transaction.
type Outbox interface {
	Append(ctx context.Context, tx *gorm.DB, companyID snowflake.ID, eventType, dedupeKey string, payload map[string]any) error
}

// Publisher delivers committed events to one destination.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, event DomainEvent) error
}
