// Package session holds the per-request identity every service reads from.
//
// A Session is built from the profile and company rows, cached for a short
// fixed TTL, and dropped on sign-out, access-code redemption and any other
// tenant change.
package session

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
)

type Session struct {
	UserID      snowflake.ID `json:"user_id"`
	Email       string       `json:"email"`
	Name        string       `json:"name"`
	Role        string       `json:"role"`
	UserType    string       `json:"user_type"`
	CompanyID   snowflake.ID `json:"company_id"`
	CompanyName string       `json:"company_name,omitempty"`
	LoadedAt    time.Time    `json:"loaded_at"`
}

func (s *Session) HasCompany() bool {
	return s != nil && s.CompanyID != 0
}

func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == profiledomain.RoleAdmin
}

var (
	ErrNoSession = apperr.New(apperr.KindUnauthorized, "unauthenticated")
	ErrNoCompany = apperr.New(apperr.KindForbidden, "no_company")
	ErrNotAdmin  = apperr.New(apperr.KindForbidden, "admin_required")
)

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}

// Require returns the caller's session or ErrNoSession.
func Require(ctx context.Context) (*Session, error) {
	s, ok := FromContext(ctx)
	if !ok || s.UserID == 0 {
		return nil, ErrNoSession
	}
	return s, nil
}

// RequireCompany returns the session of a caller that belongs to a company.
func RequireCompany(ctx context.Context) (*Session, error) {
	s, err := Require(ctx)
	if err != nil {
		return nil, err
	}
	if !s.HasCompany() {
		return nil, ErrNoCompany
	}
	return s, nil
}

// RequireAdmin returns the session of a company admin.
func RequireAdmin(ctx context.Context) (*Session, error) {
	s, err := RequireCompany(ctx)
	if err != nil {
		return nil, err
	}
	if !s.IsAdmin() {
		return nil, ErrNotAdmin
	}
	return s, nil
}
