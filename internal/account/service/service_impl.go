package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/account/domain"
	"github.com/smallbiznis/opsledger/internal/apperr"
	"github.com/smallbiznis/opsledger/internal/clock"
	"github.com/smallbiznis/opsledger/internal/session"
	"github.com/smallbiznis/opsledger/internal/tenant"
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
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("account.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Account, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	accountType := strings.ToLower(strings.TrimSpace(req.Type))
	if !domain.ValidType(accountType) {
		return nil, domain.ErrInvalidType
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	account := domain.Account{
		ID:        s.genID.Generate(),
		CompanyID: sess.CompanyID,
		Type:      accountType,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		return s.repo.Insert(ctx, tx, &account)
	})
	if err != nil {
		return nil, apperr.Remote("create account", err)
	}
	return &account, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Account, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return nil, err
	}
	accountID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || accountID == 0 {
		return nil, domain.ErrInvalidID
	}
	account, err := s.repo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return nil, apperr.Remote("load account", err)
	}
	if account == nil {
		return nil, domain.ErrNotFound
	}
	if err := tenant.AssertVisible(sess.CompanyID, account.CompanyID, domain.ErrNotFound); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Service) List(ctx context.Context, accountType string) ([]domain.Account, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return nil, err
	}
	accountType = strings.ToLower(strings.TrimSpace(accountType))
	if accountType != "" && !domain.ValidType(accountType) {
		return nil, domain.ErrInvalidType
	}
	items, err := s.repo.List(ctx, s.db, sess.CompanyID, accountType)
	if err != nil {
		return nil, apperr.Remote("list accounts", err)
	}
	if items == nil {
		items = []domain.Account{}
	}
	return items, nil
}

func (s *Service) Credit(ctx context.Context, tx *gorm.DB, companyID, accountID snowflake.ID, accountType string, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	account, err := s.repo.FindByID(ctx, tx, accountID)
	if err != nil {
		return apperr.Remote("load account", err)
	}
	if account == nil {
		return domain.ErrNotFound
	}
	if err := tenant.AssertAccess(companyID, account.CompanyID); err != nil {
		s.log.Warn("credit to account of another company",
			zap.String("account_id", accountID.String()),
			zap.String("company_id", companyID.String()),
		)
		return err
	}
	if !strings.EqualFold(strings.TrimSpace(accountType), account.Type) {
		return domain.ErrTypeMismatch
	}
	if amount == 0 {
		return nil
	}
	if err := s.repo.AddBalance(ctx, tx, account.ID, amount, s.clock.Now()); err != nil {
		return apperr.Remote("credit account", err)
	}
	return nil
}
