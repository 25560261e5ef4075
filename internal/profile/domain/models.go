// Package domain contains the profile model shared by auth, session and tenant code.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	UserTypeAdmin    = "admin"
	UserTypeUser     = "user"
	UserTypeProvider = "provider"
)

// Profile is an authenticated person. CompanyID is nil until the profile
// creates a company or redeems an access code.
type Profile struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	Email        string        `gorm:"type:text;not null;uniqueIndex:ux_profiles_email" json:"email"`
	Name         string        `gorm:"type:text;not null" json:"name"`
	Role         string        `gorm:"type:text;not null;default:'user'" json:"role"`
	UserType     string        `gorm:"type:text;not null;default:'user'" json:"user_type"`
	CompanyID    *snowflake.ID `gorm:"index" json:"company_id"`
	Active       bool          `gorm:"not null;default:true" json:"active"`
	PasswordHash string        `gorm:"type:text;not null" json:"-"`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

func ValidUserType(t string) bool {
	switch t {
	case UserTypeAdmin, UserTypeUser, UserTypeProvider:
		return true
	}
	return false
}
