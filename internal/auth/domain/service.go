package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
	"gorm.io/gorm"
)

type Repository interface {
	CreateSession(ctx context.Context, db *gorm.DB, s *Session) error
	FindSessionByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*Session, error)
	UpdateLastSeen(ctx context.Context, db *gorm.DB, id snowflake.ID, lastSeen time.Time) error
	RevokeSession(ctx context.Context, db *gorm.DB, id snowflake.ID, revokedAt time.Time) (bool, error)
}

type Service interface {
	Signup(ctx context.Context, req SignupRequest) (*profiledomain.Profile, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	Authenticate(ctx context.Context, rawToken string) (*Session, error)
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	UserAgent string `json:"-"`
	IPAddress string `json:"-"`
}

type LoginResult struct {
	RawToken  string
	ExpiresAt time.Time
	SessionID snowflake.ID
	ProfileID snowflake.ID
}

var (
	ErrInvalidCredentials = apperr.New(apperr.KindUnauthorized, "invalid_credentials")
	ErrWeakPassword       = apperr.New(apperr.KindValidation, "weak_password")
	ErrInvalidEmail       = apperr.New(apperr.KindValidation, "invalid_email")
	ErrEmailTaken         = apperr.New(apperr.KindConflict, "email_taken")
	ErrInvalidSession     = apperr.New(apperr.KindUnauthorized, "invalid_session")
	ErrSessionExpired     = apperr.New(apperr.KindUnauthorized, "session_expired")
	ErrSessionRevoked     = apperr.New(apperr.KindUnauthorized, "session_revoked")
)
