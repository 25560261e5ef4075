package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	"github.com/smallbiznis/opsledger/internal/balance/domain"
	"github.com/smallbiznis/opsledger/internal/clock"
	eventdomain "github.com/smallbiznis/opsledger/internal/events/domain"
	missiondomain "github.com/smallbiznis/opsledger/internal/mission/domain"
	"github.com/smallbiznis/opsledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/opsledger/internal/payment/domain"
	providerdomain "github.com/smallbiznis/opsledger/internal/provider/domain"
	"github.com/smallbiznis/opsledger/internal/ratelimit"
	"github.com/smallbiznis/opsledger/internal/session"
	"github.com/smallbiznis/opsledger/internal/tenant"
	transactiondomain "github.com/smallbiznis/opsledger/internal/transaction/domain"
	"github.com/smallbiznis/opsledger/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const settleLockTTL = 30 * time.Second

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	ProviderRepo   providerdomain.Repository
	MissionRepo    missiondomain.Repository
	PaymentRepo    paymentdomain.Repository
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
	providerRepo   providerdomain.Repository
	missionRepo    missiondomain.Repository
	paymentRepo    paymentdomain.Repository
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
		log:            p.Log.Named("balance.service"),
		providerRepo:   p.ProviderRepo,
		missionRepo:    p.MissionRepo,
		paymentRepo:    p.PaymentRepo,
		transactionSvc: p.TransactionSvc,
		outbox:         p.Outbox,
		locker:         p.Locker,
		audit:          p.Audit,
		metrics:        p.Metrics,
		clock:          p.Clock,
	}
}

func (s *Service) ComputeBalance(ctx context.Context, providerID string) (domain.Balance, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return domain.Balance{}, err
	}
	id, err := parseProviderID(providerID)
	if err != nil {
		return domain.Balance{}, err
	}
	if _, err := s.loadProvider(ctx, s.db, sess.CompanyID, id); err != nil {
		return domain.Balance{}, err
	}
	balance, err := s.compute(ctx, s.db, sess.CompanyID, id)
	if err != nil {
		return domain.Balance{}, apperr.Remote("compute provider balance", err)
	}
	return balance, nil
}

func (s *Service) Recalculate(ctx context.Context, providerID string) (int64, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return 0, err
	}
	id, err := parseProviderID(providerID)
	if err != nil {
		return 0, err
	}

	var current int64
	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		if _, err := s.loadProvider(ctx, tx, sess.CompanyID, id); err != nil {
			return err
		}
		balance, err := s.refresh(ctx, tx, sess.CompanyID, id)
		if err != nil {
			return err
		}
		current = balance.CurrentBalance
		return nil
	})
	if err != nil {
		return 0, apperr.Remote("recalculate provider balance", err)
	}
	return current, nil
}

// SettlePending applies amount to the provider's outstanding payments,
// oldest due date first. Fully covered payments complete; the first one
// left short becomes partial and later ones are untouched. An amount above
// the total outstanding is rejected and nothing changes.
func (s *Service) SettlePending(ctx context.Context, req domain.SettleRequest) (domain.SettleResult, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return domain.SettleResult{}, err
	}
	if req.Amount <= 0 {
		return domain.SettleResult{}, domain.ErrInvalidAmount
	}
	if req.PaymentDate.IsZero() {
		return domain.SettleResult{}, domain.ErrInvalidDate
	}
	providerID, err := parseProviderID(req.ProviderID)
	if err != nil {
		return domain.SettleResult{}, err
	}

	var result domain.SettleResult
	err = ratelimit.WithLock(ctx, s.locker, "balance:settle:"+providerID.String(), settleLockTTL, func() error {
		return rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
			res, err := s.settleTx(ctx, tx, sess, providerID, req.Amount, req.PaymentDate.UTC())
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	if err != nil {
		s.log.Warn("settle pending payments failed",
			zap.String("provider_id", providerID.String()),
			zap.Int64("amount", req.Amount),
			zap.Error(err),
		)
		return domain.SettleResult{}, apperr.Remote("settle pending payments", err)
	}

	s.metrics.RecordSettlement(ctx, sess.CompanyID.String(), result.SettledCount)
	targetID := providerID.String()
	_ = s.audit.AuditLog(ctx, nil, "", nil, "provider.settle", "provider", &targetID, map[string]any{
		"amount":        req.Amount,
		"settled_count": result.SettledCount,
	})
	return result, nil
}

func (s *Service) settleTx(ctx context.Context, tx *gorm.DB, sess *session.Session, providerID snowflake.ID, amount int64, paidAt time.Time) (domain.SettleResult, error) {
	if _, err := s.loadProvider(ctx, tx, sess.CompanyID, providerID); err != nil {
		return domain.SettleResult{}, err
	}

	candidates, err := s.paymentRepo.ListSettleable(ctx, tx, sess.CompanyID, providerID)
	if err != nil {
		return domain.SettleResult{}, err
	}
	var outstanding int64
	for i := range candidates {
		outstanding += candidates[i].Outstanding()
	}
	if amount > outstanding {
		return domain.SettleResult{}, domain.ErrExceedsOutstanding
	}

	now := s.clock.Now()
	result := domain.SettleResult{}
	remaining := amount
	for i := range candidates {
		if remaining == 0 {
			break
		}
		p := &candidates[i]
		due := p.Outstanding()
		if due <= 0 {
			continue
		}
		if remaining >= due {
			p.PaidAmount = p.Amount
			p.Status = paymentdomain.StatusCompleted
			remaining -= due
			result.SettledCount++
		} else {
			p.PaidAmount += remaining
			p.Status = paymentdomain.StatusPartial
			remaining = 0
			result.PartialPaymentID = p.ID.String()
		}
		p.PaymentDate = &paidAt
		p.UpdatedAt = now
		if err := s.paymentRepo.ApplySettlement(ctx, tx, p); err != nil {
			return domain.SettleResult{}, err
		}
	}
	result.Applied = amount - remaining

	expense, err := s.transactionSvc.RecordTx(ctx, tx, transactiondomain.RecordInput{
		CompanyID:     sess.CompanyID,
		UserID:        sess.UserID,
		Type:          transactiondomain.TypeExpense,
		Category:      transactiondomain.CategoryProviderSettlement,
		Amount:        result.Applied,
		Date:          paidAt,
		Status:        transactiondomain.StatusCompleted,
		ReferenceType: "provider",
		ReferenceID:   &providerID,
	})
	if err != nil {
		return domain.SettleResult{}, err
	}
	result.TransactionID = expense.ID.String()

	balance, err := s.refresh(ctx, tx, sess.CompanyID, providerID)
	if err != nil {
		return domain.SettleResult{}, err
	}
	result.CurrentBalance = balance.CurrentBalance

	if err := s.outbox.Append(ctx, tx, sess.CompanyID, eventdomain.TypePaymentsSettled, "payments.settled:"+expense.ID.String(), map[string]any{
		"provider_id":        providerID.String(),
		"amount":             result.Applied,
		"settled_count":      result.SettledCount,
		"partial_payment_id": result.PartialPaymentID,
		"transaction_id":     result.TransactionID,
	}); err != nil {
		return domain.SettleResult{}, err
	}
	return result, nil
}

// compute reads missions and payments only; it never writes.
func (s *Service) compute(ctx context.Context, db *gorm.DB, companyID, providerID snowflake.ID) (domain.Balance, error) {
	missions, err := s.missionRepo.ListForProvider(ctx, db, companyID, providerID)
	if err != nil {
		return domain.Balance{}, err
	}

	balance := domain.Balance{ProviderID: providerID.String()}
	for i := range missions {
		m := &missions[i]
		share := missiondomain.ShareOf(m.ProviderValue, m.AssignedProviders, providerID)
		if m.IsApproved {
			balance.TotalEarned += share
			balance.MissionsCount++
		} else {
			balance.PendingBalance += share
			balance.PendingMissionsCount++
		}
	}

	paid, err := s.paymentRepo.SumCompleted(ctx, db, companyID, providerID)
	if err != nil {
		return domain.Balance{}, err
	}
	balance.TotalPaid = paid
	balance.CurrentBalance = balance.TotalEarned - balance.TotalPaid
	return balance, nil
}

func (s *Service) refresh(ctx context.Context, tx *gorm.DB, companyID, providerID snowflake.ID) (domain.Balance, error) {
	balance, err := s.compute(ctx, tx, companyID, providerID)
	if err != nil {
		return domain.Balance{}, err
	}
	if err := s.providerRepo.SetBalance(ctx, tx, providerID, balance.CurrentBalance, s.clock.Now()); err != nil {
		return domain.Balance{}, err
	}
	if err := s.outbox.Append(ctx, tx, companyID, eventdomain.TypeProviderBalanceUpdate, "", map[string]any{
		"provider_id":     providerID.String(),
		"current_balance": balance.CurrentBalance,
	}); err != nil {
		return domain.Balance{}, err
	}
	return balance, nil
}

func (s *Service) loadProvider(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*providerdomain.Provider, error) {
	provider, err := s.providerRepo.FindByID(ctx, db, id)
	if err != nil {
		return nil, apperr.Remote("load provider", err)
	}
	if provider == nil {
		return nil, providerdomain.ErrNotFound
	}
	if err := tenant.AssertVisible(companyID, provider.CompanyID, providerdomain.ErrNotFound); err != nil {
		return nil, err
	}
	return provider, nil
}

func parseProviderID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidProvider
	}
	return id, nil
}
