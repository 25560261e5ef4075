package session

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	"github.com/smallbiznis/opsledger/internal/clock"
	companydomain "github.com/smallbiznis/opsledger/internal/company/domain"
	"github.com/smallbiznis/opsledger/internal/config"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Store   Store
	Profile profiledomain.Repository
	Policy  *config.PolicyHolder
	Clock   clock.Clock
}

// Loader builds sessions from the database and keeps the cache coherent.
type Loader struct {
	db      *gorm.DB
	log     *zap.Logger
	store   Store
	profile profiledomain.Repository
	policy  *config.PolicyHolder
	clock   clock.Clock
}

func NewLoader(p Params) *Loader {
	return &Loader{
		db:      p.DB,
		log:     p.Log.Named("session.loader"),
		store:   p.Store,
		profile: p.Profile,
		policy:  p.Policy,
		clock:   p.Clock,
	}
}

// Load returns the session for userID. fresh skips the cache; the result
// is written back either way. Inactive or missing profiles are unauthorized.
func (l *Loader) Load(ctx context.Context, userID snowflake.ID, fresh bool) (*Session, error) {
	if userID == 0 {
		return nil, ErrNoSession
	}
	if !fresh {
		s, ok, err := l.store.Get(ctx, userID)
		if err != nil {
			l.log.Warn("session cache read failed", zap.Int64("user_id", userID.Int64()), zap.Error(err))
		}
		if ok {
			return s, nil
		}
	}

	p, err := l.profile.FindByID(ctx, l.db, userID)
	if err != nil {
		return nil, apperr.Remote("load profile", err)
	}
	if p == nil || !p.Active {
		_ = l.store.Invalidate(ctx, userID)
		return nil, ErrNoSession
	}

	s := &Session{
		UserID:   p.ID,
		Email:    p.Email,
		Name:     p.Name,
		Role:     p.Role,
		UserType: p.UserType,
		LoadedAt: l.clock.Now(),
	}
	if p.CompanyID != nil && *p.CompanyID != 0 {
		var company companydomain.Company
		err := l.db.WithContext(ctx).Where("id = ?", *p.CompanyID).Take(&company).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			l.log.Error("profile references missing company",
				zap.Int64("user_id", p.ID.Int64()),
				zap.Int64("company_id", p.CompanyID.Int64()),
			)
		case err != nil:
			return nil, apperr.Remote("load company", err)
		default:
			s.CompanyID = company.ID
			s.CompanyName = company.Name
		}
	}

	if err := l.store.Set(ctx, s, l.policy.Get().Session.ProfileCacheTTL); err != nil {
		l.log.Warn("session cache write failed", zap.Int64("user_id", userID.Int64()), zap.Error(err))
	}
	return s, nil
}

// Invalidate drops the cached session so the next Load reads the database.
func (l *Loader) Invalidate(ctx context.Context, userID snowflake.ID) {
	if err := l.store.Invalidate(ctx, userID); err != nil {
		l.log.Error("session cache invalidation failed", zap.Int64("user_id", userID.Int64()), zap.Error(err))
	}
}
