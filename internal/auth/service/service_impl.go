package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	"github.com/smallbiznis/opsledger/internal/auth/domain"
	"github.com/smallbiznis/opsledger/internal/auth/password"
	"github.com/smallbiznis/opsledger/internal/clock"
	"github.com/smallbiznis/opsledger/internal/config"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
	"github.com/smallbiznis/opsledger/internal/session"
	"github.com/smallbiznis/opsledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sessionTokenBytes = 32
	minPasswordLength = 8
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Config      config.Config
	GenID       *snowflake.Node
	Repo        domain.Repository
	ProfileRepo profiledomain.Repository
	Loader      *session.Loader
	Clock       clock.Clock
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         config.Config
	genID       *snowflake.Node
	repo        domain.Repository
	profileRepo profiledomain.Repository
	loader      *session.Loader
	clock       clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("auth.service"),
		cfg:         p.Config,
		genID:       p.GenID,
		repo:        p.Repo,
		profileRepo: p.ProfileRepo,
		loader:      p.Loader,
		clock:       p.Clock,
	}
}

// Signup creates a profile that belongs to no company yet.
func (s *Service) Signup(ctx context.Context, req domain.SignupRequest) (*profiledomain.Profile, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	if len(strings.TrimSpace(req.Password)) < minPasswordLength {
		return nil, domain.ErrWeakPassword
	}

	existing, err := s.profileRepo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return nil, apperr.Remote("find profile", err)
	}
	if existing != nil {
		return nil, domain.ErrEmailTaken
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, apperr.Remote("hash password", err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultName(email)
	}
	now := s.clock.Now()
	profile := &profiledomain.Profile{
		ID:           s.genID.Generate(),
		Email:        email,
		Name:         name,
		Role:         profiledomain.RoleUser,
		UserType:     profiledomain.UserTypeUser,
		Active:       true,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.profileRepo.Insert(ctx, s.db, profile); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrEmailTaken
		}
		return nil, apperr.Remote("insert profile", err)
	}

	s.log.Info("profile signed up", zap.Int64("profile_id", profile.ID.Int64()))
	return profile, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil || strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	profile, err := s.profileRepo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return nil, apperr.Remote("find profile", err)
	}
	if profile == nil || !profile.Active {
		s.log.Debug("login rejected", zap.Bool("known_email", profile != nil))
		return nil, domain.ErrInvalidCredentials
	}
	ok, stale := password.Verify(req.Password, profile.PasswordHash)
	if !ok {
		s.log.Debug("login rejected", zap.Bool("known_email", true))
		return nil, domain.ErrInvalidCredentials
	}
	if stale {
		s.upgradeHash(ctx, profile.ID, req.Password)
	}

	rawToken, err := newSessionToken()
	if err != nil {
		return nil, apperr.Remote("generate session token", err)
	}

	now := s.clock.Now()
	sess := &domain.Session{
		ID:         s.genID.Generate(),
		ProfileID:  profile.ID,
		TokenHash:  hashToken(rawToken),
		UserAgent:  strings.TrimSpace(req.UserAgent),
		IPAddress:  strings.TrimSpace(req.IPAddress),
		ExpiresAt:  now.Add(s.cfg.SessionTTL),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.repo.CreateSession(ctx, s.db, sess); err != nil {
		return nil, apperr.Remote("create session", err)
	}

	return &domain.LoginResult{
		RawToken:  rawToken,
		ExpiresAt: sess.ExpiresAt,
		SessionID: sess.ID,
		ProfileID: profile.ID,
	}, nil
}

// upgradeHash rewrites a hash made with old cost parameters. Failure only
// costs another upgrade attempt on the next login.
func (s *Service) upgradeHash(ctx context.Context, profileID snowflake.ID, plain string) {
	hashed, err := password.Hash(plain)
	if err == nil {
		err = s.profileRepo.UpdatePasswordHash(ctx, s.db, profileID, hashed, s.clock.Now())
	}
	if err != nil {
		s.log.Warn("password rehash failed", zap.Int64("profile_id", profileID.Int64()), zap.Error(err))
	}
}

// Logout revokes the session and drops the cached profile so the next
// request from any other device re-reads it.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	sess, err := s.lookup(ctx, rawToken)
	if err != nil {
		return err
	}
	if _, err := s.repo.RevokeSession(ctx, s.db, sess.ID, s.clock.Now()); err != nil {
		return apperr.Remote("revoke session", err)
	}
	s.loader.Invalidate(ctx, sess.ProfileID)
	return nil
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Session, error) {
	sess, err := s.lookup(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if sess.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if now.After(sess.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	if err := s.repo.UpdateLastSeen(ctx, s.db, sess.ID, now); err != nil {
		s.log.Warn("update session last seen failed", zap.Int64("session_id", sess.ID.Int64()), zap.Error(err))
	}
	return sess, nil
}

func (s *Service) lookup(ctx context.Context, rawToken string) (*domain.Session, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}
	sess, err := s.repo.FindSessionByTokenHash(ctx, s.db, hashToken(token))
	if err != nil {
		return nil, apperr.Remote("find session", err)
	}
	if sess == nil {
		return nil, domain.ErrInvalidSession
	}
	return sess, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func defaultName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if strings.TrimSpace(local) != "" {
		return local
	}
	return email
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
