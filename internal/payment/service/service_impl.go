package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	"github.com/smallbiznis/opsledger/internal/clock"
	eventdomain "github.com/smallbiznis/opsledger/internal/events/domain"
	missiondomain "github.com/smallbiznis/opsledger/internal/mission/domain"
	"github.com/smallbiznis/opsledger/internal/payment/domain"
	providerdomain "github.com/smallbiznis/opsledger/internal/provider/domain"
	"github.com/smallbiznis/opsledger/internal/session"
	"github.com/smallbiznis/opsledger/internal/tenant"
	transactiondomain "github.com/smallbiznis/opsledger/internal/transaction/domain"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"github.com/smallbiznis/opsledger/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const overdueBatchSize = 200

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Repo           domain.Repository
	ProviderRepo   providerdomain.Repository
	MissionRepo    missiondomain.Repository
	TransactionSvc transactiondomain.Service
	Outbox         eventdomain.Outbox
	Audit          auditdomain.Service
	Clock          clock.Clock
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	repo           domain.Repository
	providerRepo   providerdomain.Repository
	missionRepo    missiondomain.Repository
	transactionSvc transactiondomain.Service
	outbox         eventdomain.Outbox
	audit          auditdomain.Service
	clock          clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("payment.service"),
		genID:          p.GenID,
		repo:           p.Repo,
		providerRepo:   p.ProviderRepo,
		missionRepo:    p.MissionRepo,
		transactionSvc: p.TransactionSvc,
		outbox:         p.Outbox,
		audit:          p.Audit,
		clock:          p.Clock,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Payment, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return nil, err
	}
	paymentID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, s.db, sess.CompanyID, paymentID)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return domain.ListResponse{}, err
	}

	filter := domain.ListFilter{
		Status: strings.TrimSpace(req.Status),
		Type:   strings.TrimSpace(req.Type),
	}
	if filter.Status != "" && !domain.ValidStatus(filter.Status) {
		return domain.ListResponse{}, domain.ErrInvalidStatus
	}
	if filter.Type != "" && !domain.ValidType(filter.Type) {
		return domain.ListResponse{}, domain.ErrInvalidType
	}
	if strings.TrimSpace(req.ProviderID) != "" {
		providerID, err := snowflake.ParseString(strings.TrimSpace(req.ProviderID))
		if err != nil || providerID == 0 {
			return domain.ListResponse{}, domain.ErrInvalidProvider
		}
		filter.ProviderID = providerID
	}

	items, err := s.repo.List(ctx, s.db, sess.CompanyID, filter, req.Pagination)
	if err != nil {
		return domain.ListResponse{}, apperr.Remote("list payments", err)
	}
	payments, pageInfo := pagination.BuildCursorPageInfo(items, req.Pagination.Limit(), func(p domain.Payment) string {
		return p.ID.String()
	})
	if payments == nil {
		payments = []domain.Payment{}
	}
	return domain.ListResponse{PageInfo: pageInfo, Payments: payments}, nil
}

// CreateAdvance records money already handed to a provider ahead of
// settlement, together with the matching expense transaction.
func (s *Service) CreateAdvance(ctx context.Context, req domain.CreateAdvanceRequest) (*domain.Payment, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	paymentType := strings.TrimSpace(req.Type)
	if paymentType == "" {
		paymentType = domain.TypeAdvance
	}
	if paymentType != domain.TypeAdvance && paymentType != domain.TypeAdvancePayment {
		return nil, domain.ErrInvalidType
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if req.PaymentDate.IsZero() {
		return nil, domain.ErrInvalidDate
	}
	providerID, err := snowflake.ParseString(strings.TrimSpace(req.ProviderID))
	if err != nil || providerID == 0 {
		return nil, domain.ErrInvalidProvider
	}
	var missionID *snowflake.ID
	if strings.TrimSpace(req.MissionID) != "" {
		id, err := snowflake.ParseString(strings.TrimSpace(req.MissionID))
		if err != nil || id == 0 {
			return nil, domain.ErrInvalidMission
		}
		missionID = &id
	}

	now := s.clock.Now()
	paidAt := req.PaymentDate.UTC()
	payment := domain.Payment{
		ID:          s.genID.Generate(),
		CompanyID:   sess.CompanyID,
		ProviderID:  providerID,
		MissionID:   missionID,
		Amount:      req.Amount,
		PaidAmount:  req.Amount,
		Status:      domain.StatusCompleted,
		Type:        paymentType,
		DueDate:     paidAt,
		PaymentDate: &paidAt,
		Notes:       strings.TrimSpace(req.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		provider, err := s.providerRepo.FindByID(ctx, tx, providerID)
		if err != nil {
			return err
		}
		if provider == nil || tenant.AssertAccess(sess.CompanyID, provider.CompanyID) != nil {
			return domain.ErrInvalidProvider
		}
		if missionID != nil {
			mission, err := s.missionRepo.FindByID(ctx, tx, *missionID)
			if err != nil {
				return err
			}
			if mission == nil || tenant.AssertAccess(sess.CompanyID, mission.CompanyID) != nil {
				return domain.ErrInvalidMission
			}
		}
		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			return err
		}
		_, err = s.transactionSvc.RecordTx(ctx, tx, transactiondomain.RecordInput{
			CompanyID:     sess.CompanyID,
			UserID:        sess.UserID,
			Type:          transactiondomain.TypeExpense,
			Category:      transactiondomain.CategoryProviderAdvance,
			Amount:        payment.Amount,
			Date:          paidAt,
			Status:        transactiondomain.StatusCompleted,
			MissionID:     missionID,
			ReferenceType: "payment",
			ReferenceID:   &payment.ID,
		})
		return err
	})
	if err != nil {
		return nil, apperr.Remote("create advance payment", err)
	}

	targetID := payment.ID.String()
	_ = s.audit.AuditLog(ctx, nil, "", nil, "payment.advance", "payment", &targetID, map[string]any{
		"provider_id": providerID.String(),
		"amount":      payment.Amount,
	})
	return &payment, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id string, status string) (*domain.Payment, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	paymentID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	status = strings.TrimSpace(status)
	if !domain.ValidStatus(status) {
		return nil, domain.ErrInvalidStatus
	}

	var updated *domain.Payment
	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		payment, err := s.load(ctx, tx, sess.CompanyID, paymentID)
		if err != nil {
			return err
		}
		if !domain.CanTransition(payment.Status, status) {
			return domain.ErrInvalidTransition
		}
		now := s.clock.Now()
		ok, err := s.repo.Transition(ctx, tx, payment.ID, payment.Status, status, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		payment.Status = status
		payment.UpdatedAt = now
		updated = payment
		return nil
	})
	if err != nil {
		return nil, apperr.Remote("update payment status", err)
	}
	return updated, nil
}

func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	total := 0
	for {
		var marked []domain.Payment
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			items, err := s.repo.MarkOverdue(ctx, tx, s.clock.Now(), overdueBatchSize)
			if err != nil {
				return err
			}
			for _, p := range items {
				if err := s.outbox.Append(ctx, tx, p.CompanyID, eventdomain.TypePaymentsOverdue, "payment.overdue:"+p.ID.String(), map[string]any{
					"payment_id":  p.ID.String(),
					"provider_id": p.ProviderID.String(),
					"amount":      p.Amount,
					"due_date":    p.DueDate,
				}); err != nil {
					return err
				}
			}
			marked = items
			return nil
		})
		if err != nil {
			return total, apperr.Remote("mark overdue payments", err)
		}
		total += len(marked)
		if len(marked) < overdueBatchSize {
			break
		}
	}
	if total > 0 {
		s.log.Info("payments marked overdue", zap.Int("count", total))
	}
	return total, nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.Payment, error) {
	payment, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, apperr.Remote("load payment", err)
	}
	if payment == nil {
		return nil, domain.ErrNotFound
	}
	if err := tenant.AssertVisible(companyID, payment.CompanyID, domain.ErrNotFound); err != nil {
		return nil, err
	}
	return payment, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
