package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/transaction/domain"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, t *domain.Transaction) error {
	return db.WithContext(ctx).Create(t).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter domain.ListFilter, page pagination.Pagination) ([]domain.Transaction, error) {
	stmt := db.WithContext(ctx).Model(&domain.Transaction{}).Where("company_id = ?", companyID)
	if filter.Type != "" {
		stmt = stmt.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.MissionID != 0 {
		stmt = stmt.Where("mission_id = ?", filter.MissionID)
	}
	stmt = applyRange(stmt, filter.From, filter.To)

	stmt, err := page.Apply(stmt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}

	var items []domain.Transaction
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{"status": status, "updated_at": now})
	return res.RowsAffected == 1, res.Error
}

type sumRow struct {
	Type  string
	Total int64
}

func (r *repo) SumCompleted(ctx context.Context, db *gorm.DB, companyID snowflake.ID, from, to *time.Time) (domain.Totals, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Select("type, COALESCE(SUM(amount), 0) AS total").
		Where("company_id = ? AND status = ?", companyID, domain.StatusCompleted)
	stmt = applyRange(stmt, from, to)

	var rows []sumRow
	if err := stmt.Group("type").Scan(&rows).Error; err != nil {
		return domain.Totals{}, err
	}

	var totals domain.Totals
	for _, row := range rows {
		switch row.Type {
		case domain.TypeIncome:
			totals.Income = row.Total
		case domain.TypeExpense:
			totals.Expense = row.Total
		}
	}
	totals.Net = totals.Income - totals.Expense
	return totals, nil
}

func applyRange(stmt *gorm.DB, from, to *time.Time) *gorm.DB {
	if from != nil {
		stmt = stmt.Where("date >= ?", from.UTC())
	}
	if to != nil {
		stmt = stmt.Where("date <= ?", to.UTC())
	}
	return stmt
}
