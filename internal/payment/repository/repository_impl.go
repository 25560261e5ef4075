package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/payment/domain"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, items []domain.Payment) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter domain.ListFilter, page pagination.Pagination) ([]domain.Payment, error) {
	stmt := db.WithContext(ctx).Model(&domain.Payment{}).Where("company_id = ?", companyID)
	if filter.ProviderID != 0 {
		stmt = stmt.Where("provider_id = ?", filter.ProviderID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		stmt = stmt.Where("type = ?", filter.Type)
	}

	stmt, err := page.Apply(stmt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}

	var items []domain.Payment
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListSettleable(ctx context.Context, db *gorm.DB, companyID, providerID snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).
		Where("company_id = ? AND provider_id = ?", companyID, providerID).
		Where("status IN ?", []string{domain.StatusPending, domain.StatusPartial, domain.StatusOverdue}).
		Where("type <> ?", domain.TypeBalancePayment).
		Order("due_date ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) ListByConfirmedRevenue(ctx context.Context, db *gorm.DB, confirmedRevenueID snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).
		Where("confirmed_revenue_id = ?", confirmedRevenueID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) SumCompleted(ctx context.Context, db *gorm.DB, companyID, providerID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("company_id = ? AND provider_id = ? AND status = ?", companyID, providerID, domain.StatusCompleted).
		Scan(&total).Error
	return total, err
}

func (r *repo) SumOutstanding(ctx context.Context, db *gorm.DB, companyID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Select("COALESCE(SUM(amount - paid_amount), 0)").
		Where("company_id = ?", companyID).
		Where("status IN ?", []string{domain.StatusPending, domain.StatusPartial, domain.StatusOverdue}).
		Scan(&total).Error
	return total, err
}

func (r *repo) ApplySettlement(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"status":       p.Status,
			"paid_amount":  p.PaidAmount,
			"payment_date": p.PaymentDate,
			"updated_at":   p.UpdatedAt,
		}).Error
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": now})
	return res.RowsAffected == 1, res.Error
}

func (r *repo) MarkOverdue(ctx context.Context, db *gorm.DB, asOf time.Time, limit int) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).
		Where("status = ? AND due_date < ?", domain.StatusPending, asOf).
		Order("due_date ASC, id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil || len(items) == 0 {
		return nil, err
	}

	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	err = db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id IN ? AND status = ?", ids, domain.StatusPending).
		Updates(map[string]any{"status": domain.StatusOverdue, "updated_at": asOf}).Error
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Status = domain.StatusOverdue
	}
	return items, nil
}
