package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/opsledger/internal/apperr"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	"github.com/smallbiznis/opsledger/internal/clock"
	"github.com/smallbiznis/opsledger/internal/company/domain"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
	"github.com/smallbiznis/opsledger/internal/session"
	"github.com/smallbiznis/opsledger/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	ProfileRepo profiledomain.Repository
	Loader      *session.Loader
	Audit       auditdomain.Service
	Clock       clock.Clock
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	profileRepo profiledomain.Repository
	loader      *session.Loader
	audit       auditdomain.Service
	clock       clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("company.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		profileRepo: p.ProfileRepo,
		loader:      p.Loader,
		audit:       p.Audit,
		clock:       p.Clock,
	}
}

// Create opens a company and makes the caller its admin. Only a profile
// without a company may do this.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	sess, err := session.Require(ctx)
	if err != nil {
		return nil, err
	}
	if sess.HasCompany() {
		return nil, domain.ErrAlreadyAssigned
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	company := domain.Company{
		ID:        s.genID.Generate(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = rls.Transaction(s.db.WithContext(ctx), company.ID, func(tx *gorm.DB) error {
		companySlug, err := s.uniqueSlug(ctx, tx, name, company.ID)
		if err != nil {
			return err
		}
		company.Slug = companySlug
		if err := s.repo.Insert(ctx, tx, &company); err != nil {
			return err
		}
		ok, err := s.profileRepo.AssignCompany(ctx, tx, sess.UserID, company.ID, profiledomain.RoleAdmin, profiledomain.UserTypeAdmin, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyAssigned
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Remote("create company", err)
	}

	s.loader.Invalidate(ctx, sess.UserID)

	targetID := company.ID.String()
	_ = s.audit.AuditLog(ctx, &company.ID, "", nil, "company.create", "company", &targetID, map[string]any{
		"name": company.Name,
	})
	return toResponse(&company), nil
}

func (s *Service) Current(ctx context.Context) (*domain.Response, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return nil, err
	}
	company, err := s.repo.FindByID(ctx, s.db, sess.CompanyID)
	if err != nil {
		return nil, apperr.Remote("load company", err)
	}
	if company == nil {
		return nil, domain.ErrNotFound
	}
	return toResponse(company), nil
}

// uniqueSlug falls back to a suffix from the company id when the plain
// slug is taken.
func (s *Service) uniqueSlug(ctx context.Context, db *gorm.DB, name string, id snowflake.ID) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "company"
	}
	taken, err := s.repo.SlugExists(ctx, db, base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}
	return base + "-" + strings.ToLower(id.Base36()), nil
}

func toResponse(c *domain.Company) *domain.Response {
	return &domain.Response{
		ID:        c.ID.String(),
		Name:      c.Name,
		Slug:      c.Slug,
		CreatedAt: c.CreatedAt,
	}
}
