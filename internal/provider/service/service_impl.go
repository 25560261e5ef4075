package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	"github.com/smallbiznis/opsledger/internal/clock"
	"github.com/smallbiznis/opsledger/internal/provider/domain"
	"github.com/smallbiznis/opsledger/internal/session"
	"github.com/smallbiznis/opsledger/internal/tenant"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"github.com/smallbiznis/opsledger/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Audit auditdomain.Service
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	audit auditdomain.Service
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("provider.service"),
		genID: p.GenID,
		repo:  p.Repo,
		audit: p.Audit,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Provider, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email != "" && !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}

	now := s.clock.Now()
	provider := domain.Provider{
		ID:        s.genID.Generate(),
		CompanyID: sess.CompanyID,
		Name:      name,
		Email:     email,
		Phone:     strings.TrimSpace(req.Phone),
		Document:  strings.TrimSpace(req.Document),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		return s.repo.Insert(ctx, tx, &provider)
	})
	if err != nil {
		return nil, apperr.Remote("create provider", err)
	}

	targetID := provider.ID.String()
	_ = s.audit.AuditLog(ctx, nil, "", nil, "provider.create", "provider", &targetID, map[string]any{
		"name": provider.Name,
	})
	return &provider, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Provider, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return nil, err
	}
	providerID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, sess.CompanyID, providerID)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return domain.ListResponse{}, err
	}

	items, err := s.repo.List(ctx, s.db, sess.CompanyID, domain.ListFilter{
		Name:       req.Name,
		ActiveOnly: req.ActiveOnly,
	}, req.Pagination)
	if err != nil {
		if apperr.IsKind(err, apperr.KindValidation) {
			return domain.ListResponse{}, err
		}
		return domain.ListResponse{}, apperr.Remote("list providers", err)
	}

	providers, pageInfo := pagination.BuildCursorPageInfo(items, req.Pagination.Limit(), func(p domain.Provider) string {
		return p.ID.String()
	})
	if providers == nil {
		providers = []domain.Provider{}
	}
	return domain.ListResponse{PageInfo: pageInfo, Providers: providers}, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateRequest) (*domain.Provider, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	providerID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	provider, err := s.load(ctx, sess.CompanyID, providerID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		provider.Name = name
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email != "" && !strings.Contains(email, "@") {
			return nil, domain.ErrInvalidEmail
		}
		provider.Email = email
	}
	if req.Phone != nil {
		provider.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Document != nil {
		provider.Document = strings.TrimSpace(*req.Document)
	}
	provider.UpdatedAt = s.clock.Now()

	if err := s.save(ctx, provider); err != nil {
		return nil, err
	}
	return provider, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) (*domain.Provider, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	providerID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	provider, err := s.load(ctx, sess.CompanyID, providerID)
	if err != nil {
		return nil, err
	}
	if !provider.Active {
		return provider, nil
	}

	provider.Active = false
	provider.UpdatedAt = s.clock.Now()
	if err := s.save(ctx, provider); err != nil {
		return nil, err
	}

	targetID := provider.ID.String()
	_ = s.audit.AuditLog(ctx, nil, "", nil, "provider.deactivate", "provider", &targetID, nil)
	return provider, nil
}

func (s *Service) load(ctx context.Context, companyID, id snowflake.ID) (*domain.Provider, error) {
	provider, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, apperr.Remote("load provider", err)
	}
	if provider == nil {
		return nil, domain.ErrNotFound
	}
	if err := tenant.AssertVisible(companyID, provider.CompanyID, domain.ErrNotFound); err != nil {
		s.log.Warn("provider outside caller company", zap.String("provider_id", id.String()))
		return nil, err
	}
	return provider, nil
}

func (s *Service) save(ctx context.Context, provider *domain.Provider) error {
	err := rls.Transaction(s.db.WithContext(ctx), provider.CompanyID, func(tx *gorm.DB) error {
		return s.repo.Update(ctx, tx, provider)
	})
	if err != nil {
		return apperr.Remote("update provider", err)
	}
	return nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
