package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/accesscode/domain"
	"github.com/smallbiznis/opsledger/internal/apperr"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	"github.com/smallbiznis/opsledger/internal/audit/masking"
	"github.com/smallbiznis/opsledger/internal/clock"
	companydomain "github.com/smallbiznis/opsledger/internal/company/domain"
	"github.com/smallbiznis/opsledger/internal/config"
	eventdomain "github.com/smallbiznis/opsledger/internal/events/domain"
	"github.com/smallbiznis/opsledger/internal/observability/metrics"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
	"github.com/smallbiznis/opsledger/internal/ratelimit"
	"github.com/smallbiznis/opsledger/internal/session"
	"github.com/smallbiznis/opsledger/internal/tenant"
	"github.com/smallbiznis/opsledger/pkg/db"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"github.com/smallbiznis/opsledger/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxIssueAttempts = 3
	redeemLockTTL    = 15 * time.Second
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	ProfileRepo profiledomain.Repository
	Loader      *session.Loader
	Outbox      eventdomain.Outbox
	Locker      ratelimit.Locker
	Limiter     *ratelimit.RedeemLimiter
	Policy      *config.PolicyHolder
	Audit       auditdomain.Service
	Metrics     *metrics.Metrics     `optional:"true"`
	Generator   domain.CodeGenerator `optional:"true"`
	Clock       clock.Clock
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	profileRepo profiledomain.Repository
	loader      *session.Loader
	outbox      eventdomain.Outbox
	locker      ratelimit.Locker
	limiter     *ratelimit.RedeemLimiter
	policy      *config.PolicyHolder
	audit       auditdomain.Service
	metrics     *metrics.Metrics
	generator   domain.CodeGenerator
	clock       clock.Clock
}

func New(p Params) domain.Service {
	generator := p.Generator
	if generator == nil {
		generator = TimeCodeGenerator{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("accesscode.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		profileRepo: p.ProfileRepo,
		loader:      p.Loader,
		outbox:      p.Outbox,
		locker:      p.Locker,
		limiter:     p.Limiter,
		policy:      p.Policy,
		audit:       p.Audit,
		metrics:     p.Metrics,
		generator:   generator,
		clock:       p.Clock,
	}
}

// Issue creates a one-time code for an employee of the caller's company.
func (s *Service) Issue(ctx context.Context, req domain.IssueRequest) (*domain.AccessCode, error) {
	sess, err := session.Require(ctx)
	if err != nil {
		return nil, err
	}
	if !sess.HasCompany() {
		return nil, domain.ErrInvalidCompany
	}
	if !sess.IsAdmin() {
		return nil, session.ErrNotAdmin
	}

	name := strings.TrimSpace(req.EmployeeName)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	email := strings.ToLower(strings.TrimSpace(req.EmployeeEmail))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, domain.ErrInvalidEmail
	}

	policy := s.policy.Get().AccessCode
	now := s.clock.Now()
	code := domain.AccessCode{
		ID:            s.genID.Generate(),
		CompanyID:     sess.CompanyID,
		EmployeeName:  name,
		EmployeeEmail: email,
		ExpiresAt:     now.Add(policy.TTL),
		CreatedBy:     sess.UserID,
		CreatedAt:     now,
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		code.Code = s.generator.Generate(policy.Prefix, now, attempt)
		err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
			return s.repo.Insert(ctx, tx, &code)
		})
		if err == nil {
			break
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, apperr.Remote("issue access code", err)
		}
		s.log.Warn("access code collision, retrying", zap.Int("attempt", attempt+1))
	}
	if err != nil {
		return nil, domain.ErrCodeExhausted
	}

	targetID := code.ID.String()
	_ = s.audit.AuditLog(ctx, nil, "", nil, "access_code.issue", "access_code", &targetID, map[string]any{
		"code":           masking.MaskCode(code.Code),
		"employee_email": masking.MaskEmail(code.EmployeeEmail),
		"expires_at":     code.ExpiresAt,
	})
	return &code, nil
}

// Redeem consumes code for the caller and moves the caller into the code's
// company. The caller's email comes from the session; a code issued to a
// different email is reported exactly like a missing one.
func (s *Service) Redeem(ctx context.Context, code string) (*domain.RedeemResult, error) {
	sess, err := session.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Check(ctx, sess.UserID.String()); err != nil {
		s.metrics.RecordRedemption(ctx, "rate_limited")
		return nil, err
	}

	result, err := s.redeem(ctx, sess, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		s.metrics.RecordRedemption(ctx, outcome(err))
		s.log.Debug("access code redemption rejected",
			zap.String("user_id", sess.UserID.String()),
			zap.String("code", masking.MaskCode(code)),
			zap.String("reason", apperr.CodeOf(err)),
		)
		return nil, err
	}

	s.loader.Invalidate(ctx, sess.UserID)
	s.metrics.RecordRedemption(ctx, "ok")
	return result, nil
}

func (s *Service) redeem(ctx context.Context, sess *session.Session, code string) (*domain.RedeemResult, error) {
	if code == "" {
		return nil, domain.ErrNotFound
	}

	var result *domain.RedeemResult
	err := ratelimit.WithLock(ctx, s.locker, "access_code:redeem:"+code, redeemLockTTL, func() error {
		item, err := s.repo.FindByCode(ctx, s.db, code)
		if err != nil {
			return apperr.Remote("find access code", err)
		}
		if item == nil {
			return domain.ErrNotFound
		}
		if !strings.EqualFold(strings.TrimSpace(item.EmployeeEmail), strings.TrimSpace(sess.Email)) {
			return domain.ErrNotFound
		}
		if item.IsUsed {
			return domain.ErrAlreadyUsed
		}
		now := s.clock.Now()
		if item.Expired(now) {
			return domain.ErrExpired
		}

		profile, err := s.profileRepo.FindByID(ctx, s.db, sess.UserID)
		if err != nil {
			return apperr.Remote("load profile", err)
		}
		if profile == nil {
			return session.ErrNoSession
		}
		if profile.CompanyID != nil && *profile.CompanyID != 0 {
			return companydomain.ErrAlreadyAssigned
		}

		err = rls.Transaction(s.db.WithContext(ctx), item.CompanyID, func(tx *gorm.DB) error {
			ok, err := s.repo.MarkUsed(ctx, tx, item.ID, sess.UserID, now)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrAlreadyUsed
			}
			assigned, err := s.profileRepo.AssignCompany(ctx, tx, sess.UserID, item.CompanyID, "", "", now)
			if err != nil {
				return err
			}
			if !assigned {
				return companydomain.ErrAlreadyAssigned
			}
			return s.outbox.Append(ctx, tx, item.CompanyID, eventdomain.TypeAccessCodeRedeemed, "access_code.redeemed:"+item.ID.String(), map[string]any{
				"access_code_id": item.ID.String(),
				"profile_id":     sess.UserID.String(),
				"employee_name":  item.EmployeeName,
			})
		})
		if err != nil {
			return apperr.Remote("redeem access code", err)
		}

		targetID := item.ID.String()
		_ = s.audit.AuditLog(ctx, &item.CompanyID, auditdomain.ActorTypeUser, nil, "access_code.redeem", "access_code", &targetID, map[string]any{
			"code": masking.MaskCode(item.Code),
		})
		result = &domain.RedeemResult{CompanyID: item.CompanyID.String(), EmployeeName: item.EmployeeName}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return domain.ListResponse{}, err
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	switch status {
	case "":
		status = domain.StatusAll
	case domain.StatusAll, domain.StatusUnused, domain.StatusUsed, domain.StatusExpired:
	default:
		return domain.ListResponse{}, domain.ErrInvalidStatus
	}

	items, err := s.repo.List(ctx, s.db, sess.CompanyID, status, s.clock.Now(), req.Pagination)
	if err != nil {
		return domain.ListResponse{}, apperr.Remote("list access codes", err)
	}
	codes, pageInfo := pagination.BuildCursorPageInfo(items, req.Pagination.Limit(), func(c domain.AccessCode) string {
		return c.ID.String()
	})
	if codes == nil {
		codes = []domain.AccessCode{}
	}
	return domain.ListResponse{PageInfo: pageInfo, AccessCodes: codes}, nil
}

func (s *Service) Revoke(ctx context.Context, id string) error {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return err
	}
	codeID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || codeID == 0 {
		return domain.ErrInvalidID
	}

	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		item, err := s.repo.FindByID(ctx, tx, codeID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrCodeNotFound
		}
		if err := tenant.AssertVisible(sess.CompanyID, item.CompanyID, domain.ErrCodeNotFound); err != nil {
			return err
		}
		ok, err := s.repo.DeleteUnused(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrCannotRevoke
		}
		return nil
	})
	if err != nil {
		return apperr.Remote("revoke access code", err)
	}

	targetID := codeID.String()
	_ = s.audit.AuditLog(ctx, nil, "", nil, "access_code.revoke", "access_code", &targetID, nil)
	return nil
}

func outcome(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindAlreadyUsed:
		return "already_used"
	case apperr.KindExpired:
		return "expired"
	case apperr.KindConflict:
		return "conflict"
	case apperr.KindRateLimited:
		return "rate_limited"
	default:
		return "error"
	}
}
