package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/accesscode/domain"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *domain.AccessCode) error {
	return db.WithContext(ctx).Create(c).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.AccessCode, error) {
	var item domain.AccessCode
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.AccessCode, error) {
	var item domain.AccessCode
	err := db.WithContext(ctx).Where("code = ?", code).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkUsed(ctx context.Context, db *gorm.DB, id, userID snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.AccessCode{}).
		Where("id = ? AND is_used = ?", id, false).
		Updates(map[string]any{"is_used": true, "used_at": now, "used_by": userID})
	return res.RowsAffected == 1, res.Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, status string, now time.Time, page pagination.Pagination) ([]domain.AccessCode, error) {
	stmt := db.WithContext(ctx).Model(&domain.AccessCode{}).Where("company_id = ?", companyID)
	switch status {
	case domain.StatusUnused:
		stmt = stmt.Where("is_used = ? AND expires_at >= ?", false, now)
	case domain.StatusUsed:
		stmt = stmt.Where("is_used = ?", true)
	case domain.StatusExpired:
		stmt = stmt.Where("is_used = ? AND expires_at < ?", false, now)
	}

	stmt, err := page.Apply(stmt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}

	var items []domain.AccessCode
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DeleteUnused(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).
		Where("id = ? AND is_used = ?", id, false).
		Delete(&domain.AccessCode{})
	return res.RowsAffected == 1, res.Error
}
