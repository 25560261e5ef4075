package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/expense/domain"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, e *domain.Expense) error {
	return db.WithContext(ctx).Create(e).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Expense, error) {
	var item domain.Expense
	err := db.WithContext(ctx).
		Preload("Accommodation").
		Where("id = ?", id).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter domain.ListFilter, page pagination.Pagination) ([]domain.Expense, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Expense{}).
		Preload("Accommodation").
		Where("company_id = ?", companyID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.EmployeeID != 0 {
		stmt = stmt.Where("employee_id = ?", filter.EmployeeID)
	}
	if filter.MissionID != 0 {
		stmt = stmt.Where("mission_id = ?", filter.MissionID)
	}

	stmt, err := page.Apply(stmt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}

	var items []domain.Expense
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, e *domain.Expense, from string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Expense{}).
		Where("id = ? AND status = ?", e.ID, from).
		Updates(map[string]any{
			"status":         e.Status,
			"reviewed_by":    e.ReviewedBy,
			"reviewed_at":    e.ReviewedAt,
			"transaction_id": e.TransactionID,
			"updated_at":     e.UpdatedAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB, companyID snowflake.ID, status string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Expense{}).
		Where("company_id = ? AND status = ?", companyID, status).
		Count(&count).Error
	return count, err
}
