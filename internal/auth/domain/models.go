// Package domain contains core types for local authentication.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Session is a persisted login. Only the SHA-256 of the raw token is stored.
type Session struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	ProfileID  snowflake.ID `gorm:"not null;index" json:"profile_id"`
	TokenHash  string       `gorm:"type:text;not null;uniqueIndex:ux_auth_sessions_token_hash" json:"-"`
	UserAgent  string       `gorm:"type:text" json:"-"`
	IPAddress  string       `gorm:"type:text" json:"-"`
	ExpiresAt  time.Time    `gorm:"not null;index" json:"expires_at"`
	RevokedAt  *time.Time   `json:"revoked_at,omitempty"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	LastSeenAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"last_seen_at"`
}

func (Session) TableName() string { return "auth_sessions" }
