package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	"github.com/smallbiznis/opsledger/internal/clock"
	eventdomain "github.com/smallbiznis/opsledger/internal/events/domain"
	"github.com/smallbiznis/opsledger/internal/expense/domain"
	missiondomain "github.com/smallbiznis/opsledger/internal/mission/domain"
	"github.com/smallbiznis/opsledger/internal/session"
	"github.com/smallbiznis/opsledger/internal/tenant"
	transactiondomain "github.com/smallbiznis/opsledger/internal/transaction/domain"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"github.com/smallbiznis/opsledger/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Repo           domain.Repository
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
	missionRepo    missiondomain.Repository
	transactionSvc transactiondomain.Service
	outbox         eventdomain.Outbox
	audit          auditdomain.Service
	clock          clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("expense.service"),
		genID:          p.GenID,
		repo:           p.Repo,
		missionRepo:    p.MissionRepo,
		transactionSvc: p.TransactionSvc,
		outbox:         p.Outbox,
		audit:          p.Audit,
		clock:          p.Clock,
	}
}

// Record files an expense for the caller. The employee is always the
// session's profile.
func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (*domain.Expense, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return nil, err
	}

	category := strings.ToLower(strings.TrimSpace(req.Category))
	if category == "" && req.Accommodation != nil {
		category = domain.CategoryAccommodation
	}
	if category == "" {
		return nil, domain.ErrInvalidCategory
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if req.Date.IsZero() {
		return nil, domain.ErrInvalidDate
	}

	now := s.clock.Now()
	expense := domain.Expense{
		ID:           s.genID.Generate(),
		CompanyID:    sess.CompanyID,
		EmployeeID:   sess.UserID,
		EmployeeName: sess.Name,
		Category:     category,
		Amount:       req.Amount,
		Date:         req.Date.UTC(),
		Description:  strings.TrimSpace(req.Description),
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if strings.TrimSpace(req.MissionID) != "" {
		missionID, err := snowflake.ParseString(strings.TrimSpace(req.MissionID))
		if err != nil || missionID == 0 {
			return nil, domain.ErrInvalidMission
		}
		expense.MissionID = &missionID
	}
	if in := req.Accommodation; in != nil {
		if in.ActualCost < 0 || in.ReimbursementAmount < 0 {
			return nil, domain.ErrInvalidAccommodation
		}
		expense.Accommodation = &domain.Accommodation{
			ExpenseID:           expense.ID,
			CompanyID:           sess.CompanyID,
			ActualCost:          in.ActualCost,
			ReimbursementAmount: in.ReimbursementAmount,
			NetAmount:           in.ReimbursementAmount - in.ActualCost,
			OutsourcingCompany:  strings.TrimSpace(in.OutsourcingCompany),
			InvoiceNumber:       strings.TrimSpace(in.InvoiceNumber),
		}
	}

	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		if expense.MissionID != nil {
			mission, err := s.missionRepo.FindByID(ctx, tx, *expense.MissionID)
			if err != nil {
				return err
			}
			if mission == nil || tenant.AssertAccess(sess.CompanyID, mission.CompanyID) != nil {
				return domain.ErrInvalidMission
			}
		}
		return s.repo.Insert(ctx, tx, &expense)
	})
	if err != nil {
		return nil, apperr.Remote("record expense", err)
	}
	return &expense, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Expense, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return nil, err
	}
	expenseID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	expense, err := s.load(ctx, s.db, sess.CompanyID, expenseID)
	if err != nil {
		return nil, err
	}
	if !sess.IsAdmin() && expense.EmployeeID != sess.UserID {
		return nil, domain.ErrNotFound
	}
	return expense, nil
}

// List returns every expense of the company to admins and the caller's own
// expenses to everyone else.
func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	sess, err := session.RequireCompany(ctx)
	if err != nil {
		return domain.ListResponse{}, err
	}
	filter := domain.ListFilter{Status: strings.TrimSpace(req.Status)}
	if filter.Status != "" && !domain.ValidStatus(filter.Status) {
		return domain.ListResponse{}, domain.ErrInvalidStatus
	}
	if !sess.IsAdmin() {
		filter.EmployeeID = sess.UserID
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
		return domain.ListResponse{}, apperr.Remote("list expenses", err)
	}
	expenses, pageInfo := pagination.BuildCursorPageInfo(items, req.Pagination.Limit(), func(e domain.Expense) string {
		return e.ID.String()
	})
	if expenses == nil {
		expenses = []domain.Expense{}
	}
	return domain.ListResponse{PageInfo: pageInfo, Expenses: expenses}, nil
}

func (s *Service) Approve(ctx context.Context, id string) (*domain.Expense, error) {
	return s.review(ctx, id, domain.StatusPending, domain.StatusApproved)
}

func (s *Service) Reject(ctx context.Context, id string) (*domain.Expense, error) {
	return s.review(ctx, id, domain.StatusPending, domain.StatusRejected)
}

// Reimburse pays out an approved expense and records the cash movement.
func (s *Service) Reimburse(ctx context.Context, id string) (*domain.Expense, error) {
	return s.review(ctx, id, domain.StatusApproved, domain.StatusReimbursed)
}

func (s *Service) review(ctx context.Context, id, from, to string) (*domain.Expense, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	expenseID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var updated *domain.Expense
	err = rls.Transaction(s.db.WithContext(ctx), sess.CompanyID, func(tx *gorm.DB) error {
		expense, err := s.load(ctx, tx, sess.CompanyID, expenseID)
		if err != nil {
			return err
		}
		if expense.Status != from {
			return domain.ErrInvalidTransition
		}

		now := s.clock.Now()
		reviewer := sess.UserID
		expense.Status = to
		expense.ReviewedBy = &reviewer
		expense.ReviewedAt = &now
		expense.UpdatedAt = now

		if to == domain.StatusReimbursed {
			t, err := s.transactionSvc.RecordTx(ctx, tx, transactiondomain.RecordInput{
				CompanyID:     sess.CompanyID,
				UserID:        expense.EmployeeID,
				Type:          transactiondomain.TypeExpense,
				Category:      transactiondomain.CategoryExpenseReimbursement,
				Amount:        expense.Amount,
				Date:          now,
				Status:        transactiondomain.StatusCompleted,
				MissionID:     expense.MissionID,
				Description:   expense.Description,
				ReferenceType: "expense",
				ReferenceID:   &expense.ID,
			})
			if err != nil {
				return err
			}
			expense.TransactionID = &t.ID
		}

		ok, err := s.repo.Transition(ctx, tx, expense, from)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		updated = expense
		return s.outbox.Append(ctx, tx, sess.CompanyID, eventdomain.TypeExpenseStatusChanged, "expense."+to+":"+expense.ID.String(), map[string]any{
			"expense_id":  expense.ID.String(),
			"employee_id": expense.EmployeeID.String(),
			"from":        from,
			"to":          to,
			"amount":      expense.Amount,
		})
	})
	if err != nil {
		return nil, apperr.Remote("review expense", err)
	}

	targetID := updated.ID.String()
	_ = s.audit.AuditLog(ctx, nil, "", nil, "expense."+to, "expense", &targetID, map[string]any{
		"from": from,
	})
	return updated, nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.Expense, error) {
	expense, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, apperr.Remote("load expense", err)
	}
	if expense == nil {
		return nil, domain.ErrNotFound
	}
	if err := tenant.AssertVisible(companyID, expense.CompanyID, domain.ErrNotFound); err != nil {
		return nil, err
	}
	return expense, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
