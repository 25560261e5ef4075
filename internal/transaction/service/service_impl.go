package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	"github.com/smallbiznis/opsledger/internal/clock"
	eventdomain "github.com/smallbiznis/opsledger/internal/events/domain"
	missiondomain "github.com/smallbiznis/opsledger/internal/mission/domain"
	"github.com/smallbiznis/opsledger/internal/session"
	"github.com/smallbiznis/opsledger/internal/tenant"
	"github.com/smallbiznis/opsledger/internal/transaction/domain"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
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
	MissionRepo missiondomain.Repository
	Outbox      eventdomain.Outbox
	Clock       clock.Clock
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	missionRepo missiondomain.Repository
	outbox      eventdomain.Outbox
	clock       clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("transaction.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		missionRepo: p.MissionRepo,
		outbox:      p.Outbox,
		clock:       p.Clock,
	}
}

func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (*domain.Transaction, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return nil, err
	}

	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = domain.StatusPending
	}
	if status != domain.StatusPending && status != domain.StatusCompleted {
		return nil, domain.ErrInvalidStatus
	}

	in := domain.RecordInput{
		CompanyID:   sess.CompanyID,
		UserID:      sess.UserID,
		Type:        strings.ToLower(strings.TrimSpace(req.Type)),
		Category:    req.Category,
		Amount:      req.Amount,
		Date:        req.Date,
		Method:      req.Method,
		Status:      status,
		Description: req.Description,
	}
	if strings.TrimSpace(req.MissionID) != "" {
		missionID, err := snowflake.ParseString(strings.TrimSpace(req.MissionID))
		if err != nil || missionID == 0 {
			return nil, domain.ErrInvalidMission
		}
		in.MissionID = &missionID
	}

	var recorded *domain.Transaction
	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		if in.MissionID != nil {
			mission, err := s.missionRepo.FindByID(ctx, tx, *in.MissionID)
			if err != nil {
				return err
			}
			if mission == nil || tenant.AssertAccess(sess.CompanyID, mission.CompanyID) != nil {
				return domain.ErrInvalidMission
			}
		}
		t, err := s.RecordTx(ctx, tx, in)
		if err != nil {
			return err
		}
		recorded = t
		return nil
	})
	if err != nil {
		return nil, apperr.Remote("record transaction", err)
	}
	return recorded, nil
}

func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, in domain.RecordInput) (*domain.Transaction, error) {
	if in.CompanyID == 0 {
		return nil, session.ErrNoCompany
	}
	if !domain.ValidType(in.Type) {
		return nil, domain.ErrInvalidType
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return nil, domain.ErrInvalidCategory
	}
	if in.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if in.Date.IsZero() {
		return nil, domain.ErrInvalidDate
	}
	status := in.Status
	if status == "" {
		status = domain.StatusPending
	}
	if !domain.ValidStatus(status) {
		return nil, domain.ErrInvalidStatus
	}

	now := s.clock.Now()
	t := domain.Transaction{
		ID:            s.genID.Generate(),
		CompanyID:     in.CompanyID,
		Type:          in.Type,
		Category:      category,
		Amount:        in.Amount,
		Date:          in.Date.UTC(),
		Method:        strings.TrimSpace(in.Method),
		Status:        status,
		UserID:        in.UserID,
		MissionID:     in.MissionID,
		Description:   strings.TrimSpace(in.Description),
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, tx, &t); err != nil {
		return nil, err
	}
	if err := s.outbox.Append(ctx, tx, t.CompanyID, eventdomain.TypeTransactionRecorded, "transaction:"+t.ID.String(), map[string]any{
		"transaction_id": t.ID.String(),
		"type":           t.Type,
		"category":       t.Category,
		"amount":         t.Amount,
		"status":         t.Status,
	}); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return nil, err
	}
	transactionID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, s.db, sess.CompanyID, transactionID)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return domain.ListResponse{}, err
	}

	filter := domain.ListFilter{
		Type:   strings.ToLower(strings.TrimSpace(req.Type)),
		Status: strings.TrimSpace(req.Status),
		From:   req.From,
		To:     req.To,
	}
	if filter.Type != "" && !domain.ValidType(filter.Type) {
		return domain.ListResponse{}, domain.ErrInvalidType
	}
	if filter.Status != "" && !domain.ValidStatus(filter.Status) {
		return domain.ListResponse{}, domain.ErrInvalidStatus
	}
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return domain.ListResponse{}, domain.ErrInvalidTimeRange
	}
	if strings.TrimSpace(req.MissionID) != "" {
		missionID, err := snowflake.ParseString(strings.TrimSpace(req.MissionID))
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidMission
		}
		filter.MissionID = missionID
	}

	items, err := s.repo.List(ctx, s.db, sess.CompanyID, filter, req.Pagination)
	if err != nil {
		return domain.ListResponse{}, apperr.Remote("list transactions", err)
	}
	transactions, pageInfo := pagination.BuildCursorPageInfo(items, req.Pagination.Limit(), func(t domain.Transaction) string {
		return t.ID.String()
	})
	if transactions == nil {
		transactions = []domain.Transaction{}
	}
	return domain.ListResponse{PageInfo: pageInfo, Transactions: transactions}, nil
}

func (s *Service) Complete(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.transition(ctx, id, domain.StatusCompleted)
}

func (s *Service) Cancel(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.transition(ctx, id, domain.StatusCancelled)
}

func (s *Service) Totals(ctx context.Context, from, to *time.Time) (domain.Totals, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return domain.Totals{}, err
	}
	if from != nil && to != nil && from.After(*to) {
		return domain.Totals{}, domain.ErrInvalidTimeRange
	}
	totals, err := s.repo.SumCompleted(ctx, s.db, sess.CompanyID, from, to)
	if err != nil {
		return domain.Totals{}, apperr.Remote("sum transactions", err)
	}
	return totals, nil
}

func (s *Service) transition(ctx context.Context, id string, status string) (*domain.Transaction, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	transactionID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var updated *domain.Transaction
	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		t, err := s.load(ctx, tx, sess.CompanyID, transactionID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		ok, err := s.repo.Transition(ctx, tx, t.ID, status, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotPending
		}
		t.Status = status
		t.UpdatedAt = now
		updated = t
		return nil
	})
	if err != nil {
		return nil, apperr.Remote("transition transaction", err)
	}
	return updated, nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.Transaction, error) {
	t, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, apperr.Remote("load transaction", err)
	}
	if t == nil {
		return nil, domain.ErrNotFound
	}
	if err := tenant.AssertVisible(companyID, t.CompanyID, domain.ErrNotFound); err != nil {
		return nil, err
	}
	return t, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
