package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActorTypeUser   = "user"
	ActorTypeSystem = "system"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	CompanyID  *snowflake.ID     `gorm:"index" json:"company_id"`
	ActorType  string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:text" json:"actor_id"`
	Action     string            `gorm:"type:text;not null;index" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"target_type"`
	TargetID   *string           `gorm:"type:text" json:"target_id"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	RequestID  *string           `gorm:"type:text" json:"request_id"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// ListFilter narrows a company's audit trail. An Action ending in "." is a
// namespace and matches every action under it, so "payment." finds
// payment.create and payment.status_update.
type ListFilter struct {
	CompanyID  snowflake.ID
	Action     string
	ActorID    string
	TargetType string
	TargetID   string
	RequestID  string
	StartAt    *time.Time
	EndAt      *time.Time
}
