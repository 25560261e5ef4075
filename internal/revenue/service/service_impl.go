package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/opsledger/internal/account/domain"
	"github.com/smallbiznis/opsledger/internal/apperr"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	"github.com/smallbiznis/opsledger/internal/clock"
	eventdomain "github.com/smallbiznis/opsledger/internal/events/domain"
	missiondomain "github.com/smallbiznis/opsledger/internal/mission/domain"
	"github.com/smallbiznis/opsledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/opsledger/internal/payment/domain"
	"github.com/smallbiznis/opsledger/internal/ratelimit"
	"github.com/smallbiznis/opsledger/internal/revenue/domain"
	"github.com/smallbiznis/opsledger/internal/session"
	"github.com/smallbiznis/opsledger/internal/tenant"
	transactiondomain "github.com/smallbiznis/opsledger/internal/transaction/domain"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"github.com/smallbiznis/opsledger/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const confirmLockTTL = 30 * time.Second

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Repo           domain.Repository
	MissionRepo    missiondomain.Repository
	PaymentRepo    paymentdomain.Repository
	AccountSvc     accountdomain.Service
	TransactionSvc transactiondomain.Service
	Outbox         eventdomain.Outbox
	Locker         ratelimit.Locker
	Audit          auditdomain.Service
	Metrics        *metrics.Metrics `optional:"true"`
	Clock          clock.Clock
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	repo           domain.Repository
	missionRepo    missiondomain.Repository
	paymentRepo    paymentdomain.Repository
	accountSvc     accountdomain.Service
	transactionSvc transactiondomain.Service
	outbox         eventdomain.Outbox
	locker         ratelimit.Locker
	audit          auditdomain.Service
	metrics        *metrics.Metrics
	clock          clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("revenue.service"),
		genID:          p.GenID,
		repo:           p.Repo,
		missionRepo:    p.MissionRepo,
		paymentRepo:    p.PaymentRepo,
		accountSvc:     p.AccountSvc,
		transactionSvc: p.TransactionSvc,
		outbox:         p.Outbox,
		locker:         p.Locker,
		audit:          p.Audit,
		metrics:        p.Metrics,
		clock:          p.Clock,
	}
}

// CreatePending books the expected income of an approved mission, copying
// its split.
func (s *Service) CreatePending(ctx context.Context, req domain.CreatePendingRequest) (*domain.PendingRevenue, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	missionID, err := snowflake.ParseString(strings.TrimSpace(req.MissionID))
	if err != nil || missionID == 0 {
		return nil, domain.ErrInvalidMission
	}
	if req.DueDate.IsZero() {
		return nil, domain.ErrInvalidDueDate
	}

	var pending domain.PendingRevenue
	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		mission, err := s.missionRepo.FindByID(ctx, tx, missionID)
		if err != nil {
			return err
		}
		if mission == nil {
			return missiondomain.ErrNotFound
		}
		if err := tenant.AssertVisible(sess.CompanyID, mission.CompanyID, missiondomain.ErrNotFound); err != nil {
			return err
		}
		if !mission.IsApproved {
			return domain.ErrMissionNotApproved
		}
		exists, err := s.repo.HasActiveForMission(ctx, tx, mission.ID)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrRevenueExists
		}

		now := s.clock.Now()
		pending = domain.PendingRevenue{
			ID:             s.genID.Generate(),
			CompanyID:      sess.CompanyID,
			MissionID:      mission.ID,
			TotalAmount:    mission.ServiceValue,
			CompanyAmount:  mission.CompanyValue,
			ProviderAmount: mission.ProviderValue,
			DueDate:        req.DueDate.UTC(),
			Status:         domain.StatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return s.repo.InsertPending(ctx, tx, &pending)
	})
	if err != nil {
		return nil, apperr.Remote("create pending revenue", err)
	}
	return &pending, nil
}

func (s *Service) GetPending(ctx context.Context, id string) (*domain.PendingRevenue, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return nil, err
	}
	revenueID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.loadPending(ctx, s.db, sess.CompanyID, revenueID)
}

func (s *Service) ListPending(ctx context.Context, req domain.ListPendingRequest) (domain.ListPendingResponse, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return domain.ListPendingResponse{}, err
	}
	filter := domain.PendingFilter{Status: strings.TrimSpace(req.Status)}
	if filter.Status != "" && !domain.ValidStatus(filter.Status) {
		return domain.ListPendingResponse{}, domain.ErrInvalidStatus
	}
	if strings.TrimSpace(req.MissionID) != "" {
		missionID, err := snowflake.ParseString(strings.TrimSpace(req.MissionID))
		if err != nil {
			return domain.ListPendingResponse{}, domain.ErrInvalidMission
		}
		filter.MissionID = missionID
	}

	items, err := s.repo.ListPending(ctx, s.db, sess.CompanyID, filter, req.Pagination)
	if err != nil {
		return domain.ListPendingResponse{}, apperr.Remote("list pending revenues", err)
	}
	revenues, pageInfo := pagination.BuildCursorPageInfo(items, req.Pagination.Limit(), func(r domain.PendingRevenue) string {
		return r.ID.String()
	})
	if revenues == nil {
		revenues = []domain.PendingRevenue{}
	}
	return domain.ListPendingResponse{PageInfo: pageInfo, Revenues: revenues}, nil
}

// Confirm converts a pending revenue into a confirmed one. Marking it
// received, inserting the confirmed row and the provider payments, crediting
// the account and recording the income transaction happen in one database
// transaction.
func (s *Service) Confirm(ctx context.Context, req domain.ConfirmRequest) (*domain.ConfirmResult, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	pendingID, err := parseID(req.PendingRevenueID)
	if err != nil {
		return nil, err
	}
	accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
	if err != nil || accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	accountType := strings.ToLower(strings.TrimSpace(req.AccountType))
	if !accountdomain.ValidType(accountType) {
		return nil, domain.ErrInvalidAccount
	}
	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		return nil, domain.ErrInvalidPaymentMethod
	}

	var result domain.ConfirmResult
	err = ratelimit.WithLock(ctx, s.locker, "revenue:confirm:"+pendingID.String(), confirmLockTTL, func() error {
		return rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
			res, err := s.confirmTx(ctx, tx, sess, pendingID, accountID, accountType, method)
			if err != nil {
				return err
			}
			result = *res
			return nil
		})
	})
	if err != nil {
		s.log.Warn("confirm pending revenue failed",
			zap.String("pending_revenue_id", pendingID.String()),
			zap.String("company_id", sess.CompanyID.String()),
			zap.Error(err),
		)
		return nil, apperr.Remote("confirm pending revenue", err)
	}

	s.metrics.RecordRevenueConfirmed(ctx, sess.CompanyID.String(), len(result.Payments))
	targetID := result.Revenue.ID.String()
	_ = s.audit.AuditLog(ctx, nil, "", nil, "revenue.confirm", "confirmed_revenue", &targetID, map[string]any{
		"pending_revenue_id": pendingID.String(),
		"total_amount":       result.Revenue.TotalAmount,
		"payments":           len(result.Payments),
	})
	return &result, nil
}

func (s *Service) confirmTx(ctx context.Context, tx *gorm.DB, sess *session.Session, pendingID, accountID snowflake.ID, accountType, method string) (*domain.ConfirmResult, error) {
	pending, err := s.loadPending(ctx, tx, sess.CompanyID, pendingID)
	if err != nil {
		return nil, err
	}
	if pending.Status != domain.StatusPending {
		return nil, domain.ErrNotPending
	}

	mission, err := s.missionRepo.FindByID(ctx, tx, pending.MissionID)
	if err != nil {
		return nil, err
	}
	if mission == nil {
		return nil, missiondomain.ErrNotFound
	}
	providers := mission.AssignedProviders
	if len(providers) == 0 && pending.ProviderAmount > 0 {
		return nil, domain.ErrNoAssignedProviders
	}

	now := s.clock.Now()
	ok, err := s.repo.TransitionPending(ctx, tx, pending.ID, domain.StatusReceived, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotPending
	}

	if err := s.accountSvc.Credit(ctx, tx, sess.CompanyID, accountID, accountType, pending.TotalAmount); err != nil {
		return nil, err
	}

	confirmedID := s.genID.Generate()
	income, err := s.transactionSvc.RecordTx(ctx, tx, transactiondomain.RecordInput{
		CompanyID:     sess.CompanyID,
		UserID:        sess.UserID,
		Type:          transactiondomain.TypeIncome,
		Category:      transactiondomain.CategoryMissionRevenue,
		Amount:        pending.TotalAmount,
		Date:          now,
		Method:        method,
		Status:        transactiondomain.StatusCompleted,
		MissionID:     &mission.ID,
		ReferenceType: "confirmed_revenue",
		ReferenceID:   &confirmedID,
	})
	if err != nil {
		return nil, err
	}

	confirmed := domain.ConfirmedRevenue{
		ID:               confirmedID,
		CompanyID:        sess.CompanyID,
		PendingRevenueID: pending.ID,
		MissionID:        mission.ID,
		TotalAmount:      pending.TotalAmount,
		CompanyAmount:    pending.CompanyAmount,
		ProviderAmount:   pending.ProviderAmount,
		ReceivedDate:     now,
		PaymentMethod:    method,
		AccountID:        accountID,
		TransactionID:    income.ID,
		CreatedAt:        now,
	}
	if err := s.repo.InsertConfirmed(ctx, tx, &confirmed); err != nil {
		return nil, err
	}

	payments := make([]paymentdomain.Payment, 0, len(providers))
	for i, amount := range missiondomain.SplitAmount(pending.ProviderAmount, len(providers)) {
		if amount == 0 {
			continue
		}
		payments = append(payments, paymentdomain.Payment{
			ID:                 s.genID.Generate(),
			CompanyID:          sess.CompanyID,
			ProviderID:         providers[i],
			MissionID:          &mission.ID,
			ConfirmedRevenueID: &confirmed.ID,
			Amount:             amount,
			Status:             paymentdomain.StatusPending,
			Type:               paymentdomain.TypeFull,
			DueDate:            pending.DueDate,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}
	if err := s.paymentRepo.InsertBatch(ctx, tx, payments); err != nil {
		return nil, err
	}

	providerIDs := make([]string, 0, len(providers))
	for _, id := range providers {
		providerIDs = append(providerIDs, id.String())
	}
	if err := s.outbox.Append(ctx, tx, sess.CompanyID, eventdomain.TypeRevenueConfirmed, "revenue.confirmed:"+pending.ID.String(), map[string]any{
		"pending_revenue_id":   pending.ID.String(),
		"confirmed_revenue_id": confirmed.ID.String(),
		"mission_id":           mission.ID.String(),
		"total_amount":         confirmed.TotalAmount,
		"provider_amount":      confirmed.ProviderAmount,
		"provider_ids":         providerIDs,
	}); err != nil {
		return nil, err
	}

	return &domain.ConfirmResult{Revenue: confirmed, Payments: payments}, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (*domain.PendingRevenue, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	pendingID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var pending *domain.PendingRevenue
	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		p, err := s.loadPending(ctx, tx, sess.CompanyID, pendingID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		ok, err := s.repo.TransitionPending(ctx, tx, p.ID, domain.StatusCancelled, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotPending
		}
		p.Status = domain.StatusCancelled
		p.UpdatedAt = now
		pending = p
		return s.outbox.Append(ctx, tx, sess.CompanyID, eventdomain.TypeRevenueCancelled, "revenue.cancelled:"+p.ID.String(), map[string]any{
			"pending_revenue_id": p.ID.String(),
			"mission_id":         p.MissionID.String(),
		})
	})
	if err != nil {
		return nil, apperr.Remote("cancel pending revenue", err)
	}

	targetID := pending.ID.String()
	_ = s.audit.AuditLog(ctx, nil, "", nil, "revenue.cancel", "pending_revenue", &targetID, nil)
	return pending, nil
}

func (s *Service) GetConfirmed(ctx context.Context, id string) (*domain.ConfirmedRevenue, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return nil, err
	}
	revenueID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	confirmed, err := s.repo.FindConfirmed(ctx, s.db, revenueID)
	if err != nil {
		return nil, apperr.Remote("load confirmed revenue", err)
	}
	if confirmed == nil {
		return nil, domain.ErrNotFound
	}
	if err := tenant.AssertVisible(sess.CompanyID, confirmed.CompanyID, domain.ErrNotFound); err != nil {
		return nil, err
	}
	return confirmed, nil
}

func (s *Service) ListConfirmed(ctx context.Context, req domain.ListConfirmedRequest) (domain.ListConfirmedResponse, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return domain.ListConfirmedResponse{}, err
	}
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return domain.ListConfirmedResponse{}, domain.ErrInvalidTimeRange
	}
	filter := domain.ConfirmedFilter{From: req.From, To: req.To}
	if strings.TrimSpace(req.MissionID) != "" {
		missionID, err := snowflake.ParseString(strings.TrimSpace(req.MissionID))
		if err != nil {
			return domain.ListConfirmedResponse{}, domain.ErrInvalidMission
		}
		filter.MissionID = missionID
	}

	items, err := s.repo.ListConfirmed(ctx, s.db, sess.CompanyID, filter, req.Pagination)
	if err != nil {
		return domain.ListConfirmedResponse{}, apperr.Remote("list confirmed revenues", err)
	}
	revenues, pageInfo := pagination.BuildCursorPageInfo(items, req.Pagination.Limit(), func(r domain.ConfirmedRevenue) string {
		return r.ID.String()
	})
	if revenues == nil {
		revenues = []domain.ConfirmedRevenue{}
	}
	return domain.ListConfirmedResponse{PageInfo: pageInfo, Revenues: revenues}, nil
}

// loadPending hides revenues of other companies behind ErrNotFound.
func (s *Service) loadPending(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.PendingRevenue, error) {
	pending, err := s.repo.FindPending(ctx, db, id)
	if err != nil {
		return nil, apperr.Remote("load pending revenue", err)
	}
	if pending == nil {
		return nil, domain.ErrNotFound
	}
	if err := tenant.AssertVisible(companyID, pending.CompanyID, domain.ErrNotFound); err != nil {
		s.log.Warn("pending revenue outside caller company", zap.String("pending_revenue_id", id.String()))
		return nil, err
	}
	return pending, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
