package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	"github.com/smallbiznis/opsledger/internal/clock"
	"github.com/smallbiznis/opsledger/internal/mission/domain"
	providerdomain "github.com/smallbiznis/opsledger/internal/provider/domain"
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

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         domain.Repository
	ProviderRepo providerdomain.Repository
	Audit        auditdomain.Service
	Clock        clock.Clock
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	providerRepo providerdomain.Repository
	audit        auditdomain.Service
	clock        clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("mission.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		providerRepo: p.ProviderRepo,
		audit:        p.Audit,
		clock:        p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Mission, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, domain.ErrInvalidTitle
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = domain.StatusPlanning
	}
	if !domain.ValidStatus(status) {
		return nil, domain.ErrInvalidStatus
	}
	companyValue, providerValue, err := domain.SplitValue(req.ServiceValue, req.CompanyPercentage)
	if err != nil {
		return nil, err
	}

	var soleProvider *snowflake.ID
	if strings.TrimSpace(req.ProviderID) != "" {
		id, err := parseProviderID(req.ProviderID)
		if err != nil {
			return nil, err
		}
		soleProvider = &id
	}
	assigned, err := parseProviderIDs(req.AssignedProviders)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	mission := domain.Mission{
		ID:                s.genID.Generate(),
		CompanyID:         sess.CompanyID,
		Title:             title,
		ClientName:        strings.TrimSpace(req.ClientName),
		ScheduledDate:     req.ScheduledDate,
		ProviderID:        soleProvider,
		ServiceValue:      req.ServiceValue,
		CompanyPercentage: req.CompanyPercentage,
		CompanyValue:      companyValue,
		ProviderValue:     providerValue,
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		check := assigned
		if soleProvider != nil {
			check = append([]snowflake.ID{*soleProvider}, assigned...)
		}
		if err := s.ensureProviders(ctx, tx, sess.CompanyID, check); err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, tx, &mission); err != nil {
			return err
		}
		return s.repo.ReplaceProviders(ctx, tx, &mission, assigned)
	})
	if err != nil {
		return nil, apperr.Remote("create mission", err)
	}

	mission.AssignedProviders = assignedOrSole(assigned, soleProvider)
	return &mission, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Mission, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return nil, err
	}
	missionID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, s.db, sess.CompanyID, missionID)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return domain.ListResponse{}, err
	}

	filter := domain.ListFilter{Status: strings.TrimSpace(req.Status), Approved: req.Approved}
	if filter.Status != "" && !domain.ValidStatus(filter.Status) {
		return domain.ListResponse{}, domain.ErrInvalidStatus
	}
	if strings.TrimSpace(req.ProviderID) != "" {
		providerID, err := parseProviderID(req.ProviderID)
		if err != nil {
			return domain.ListResponse{}, err
		}
		filter.ProviderID = providerID
	}

	items, err := s.repo.List(ctx, s.db, sess.CompanyID, filter, req.Pagination)
	if err != nil {
		return domain.ListResponse{}, apperr.Remote("list missions", err)
	}

	missions, pageInfo := pagination.BuildCursorPageInfo(items, req.Pagination.Limit(), func(m domain.Mission) string {
		return m.ID.String()
	})
	if missions == nil {
		missions = []domain.Mission{}
	}
	return domain.ListResponse{PageInfo: pageInfo, Missions: missions}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id string, status string) (*domain.Mission, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	missionID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	status = strings.TrimSpace(status)
	if !domain.ValidStatus(status) {
		return nil, domain.ErrInvalidStatus
	}

	var mission *domain.Mission
	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		m, err := s.load(ctx, tx, sess.CompanyID, missionID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, m.ID, status, now); err != nil {
			return err
		}
		m.Status = status
		m.UpdatedAt = now
		mission = m
		return nil
	})
	if err != nil {
		return nil, apperr.Remote("update mission status", err)
	}
	return mission, nil
}

func (s *Service) Approve(ctx context.Context, id string) (*domain.Mission, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	missionID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var mission *domain.Mission
	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		m, err := s.load(ctx, tx, sess.CompanyID, missionID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		ok, err := s.repo.Approve(ctx, tx, m.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyApproved
		}
		m.IsApproved = true
		m.UpdatedAt = now
		mission = m
		return nil
	})
	if err != nil {
		return nil, apperr.Remote("approve mission", err)
	}

	targetID := mission.ID.String()
	_ = s.audit.AuditLog(ctx, nil, "", nil, "mission.approve", "mission", &targetID, map[string]any{
		"provider_value": mission.ProviderValue,
	})
	return mission, nil
}

// AssignProviders replaces the mission's provider set. The order given is
// the order used to split payments. Once the mission has a pending or
// received revenue the set can no longer change.
func (s *Service) AssignProviders(ctx context.Context, id string, providerIDs []string) (*domain.Mission, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	missionID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	assigned, err := parseProviderIDs(providerIDs)
	if err != nil {
		return nil, err
	}

	var mission *domain.Mission
	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		m, err := s.load(ctx, tx, sess.CompanyID, missionID)
		if err != nil {
			return err
		}
		// Provider payments are fixed when revenue is confirmed and balances
		// are derived from the current set, so the set is frozen from then on.
		locked, err := s.repo.HasActiveRevenue(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		if locked {
			return domain.ErrProvidersLocked
		}
		if err := s.ensureProviders(ctx, tx, sess.CompanyID, assigned); err != nil {
			return err
		}
		if err := s.repo.ReplaceProviders(ctx, tx, m, assigned); err != nil {
			return err
		}
		m.AssignedProviders = assignedOrSole(assigned, m.ProviderID)
		mission = m
		return nil
	})
	if err != nil {
		return nil, apperr.Remote("assign mission providers", err)
	}
	return mission, nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.Mission, error) {
	mission, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, apperr.Remote("load mission", err)
	}
	if mission == nil {
		return nil, domain.ErrNotFound
	}
	if err := tenant.AssertVisible(companyID, mission.CompanyID, domain.ErrNotFound); err != nil {
		s.log.Warn("mission outside caller company", zap.String("mission_id", id.String()))
		return nil, err
	}
	return mission, nil
}

// ensureProviders checks that every id names an active provider of companyID.
func (s *Service) ensureProviders(ctx context.Context, db *gorm.DB, companyID snowflake.ID, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.providerRepo.FindByIDs(ctx, db, companyID, ids)
	if err != nil {
		return err
	}
	active := make(map[snowflake.ID]struct{}, len(found))
	for _, p := range found {
		if p.Active {
			active[p.ID] = struct{}{}
		}
	}
	for _, id := range ids {
		if _, ok := active[id]; !ok {
			return domain.ErrInvalidProvider
		}
	}
	return nil
}

func assignedOrSole(assigned []snowflake.ID, sole *snowflake.ID) []snowflake.ID {
	if len(assigned) > 0 {
		return assigned
	}
	if sole != nil && *sole != 0 {
		return []snowflake.ID{*sole}
	}
	return nil
}

func parseProviderIDs(values []string) ([]snowflake.ID, error) {
	ids := make([]snowflake.ID, 0, len(values))
	seen := make(map[snowflake.ID]struct{}, len(values))
	for _, value := range values {
		id, err := parseProviderID(value)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseProviderID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidProvider
	}
	return id, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
