package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, a *domain.Account) error {
	return db.WithContext(ctx).Create(a).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	var item domain.Account
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, accountType string) ([]domain.Account, error) {
	stmt := db.WithContext(ctx).Where("company_id = ?", companyID)
	if accountType != "" {
		stmt = stmt.Where("type = ?", accountType)
	}
	var items []domain.Account
	err := stmt.Order("name, id").Find(&items).Error
	return items, err
}

func (r *repo) AddBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": now,
		}).Error
}
