package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	"github.com/smallbiznis/opsledger/internal/clock"
	"github.com/smallbiznis/opsledger/internal/profile/domain"
	"github.com/smallbiznis/opsledger/internal/session"
	"github.com/smallbiznis/opsledger/internal/tenant"
	"github.com/smallbiznis/opsledger/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Repo   domain.Repository
	Loader *session.Loader
	Audit  auditdomain.Service
	Clock  clock.Clock
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   domain.Repository
	loader *session.Loader
	audit  auditdomain.Service
	clock  clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("profile.service"),
		repo:   p.Repo,
		loader: p.Loader,
		audit:  p.Audit,
		clock:  p.Clock,
	}
}

func (s *Service) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return nil, err
	}

	profiles, err := s.repo.ListByCompany(ctx, s.db, sess.CompanyID)
	if err != nil {
		s.log.Error("list employees failed", zap.Int64("company_id", sess.CompanyID.Int64()), zap.Error(err))
		return nil, apperr.Remote("list employees", err)
	}

	items := make([]domain.Employee, 0, len(profiles))
	for i := range profiles {
		items = append(items, toEmployee(&profiles[i]))
	}
	return items, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) error {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return err
	}
	profileID, err := snowflake.ParseString(id)
	if err != nil || profileID == 0 {
		return domain.ErrInvalidProfile
	}
	if profileID == sess.UserID {
		return domain.ErrSelfDeactivate
	}

	target, err := s.repo.FindByID(ctx, s.db, profileID)
	if err != nil {
		return apperr.Remote("load profile", err)
	}
	if target == nil || target.CompanyID == nil {
		return domain.ErrNotFound
	}
	if err := tenant.AssertVisible(sess.CompanyID, *target.CompanyID, domain.ErrNotFound); err != nil {
		return err
	}

	var updated bool
	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		updated, err = s.repo.SetActive(ctx, tx, profileID, sess.CompanyID, false, s.clock.Now())
		return err
	})
	if err != nil {
		return apperr.Remote("deactivate profile", err)
	}
	if !updated {
		return domain.ErrNotFound
	}

	s.loader.Invalidate(ctx, profileID)

	targetID := profileID.String()
	_ = s.audit.AuditLog(ctx, nil, "", nil, "employee.deactivate", "profile", &targetID, nil)
	return nil
}

func toEmployee(p *domain.Profile) domain.Employee {
	return domain.Employee{
		ID:        p.ID.String(),
		Email:     p.Email,
		Name:      p.Name,
		Role:      p.Role,
		UserType:  p.UserType,
		Active:    p.Active,
		CreatedAt: p.CreatedAt,
	}
}
