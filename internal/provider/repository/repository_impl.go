package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/provider/domain"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Provider) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Provider, error) {
	var item domain.Provider
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, companyID snowflake.ID, ids []snowflake.ID) ([]domain.Provider, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.Provider
	err := db.WithContext(ctx).
		Where("company_id = ? AND id IN ?", companyID, ids).
		Find(&items).Error
	return items, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter domain.ListFilter, page pagination.Pagination) ([]domain.Provider, error) {
	stmt := db.WithContext(ctx).Model(&domain.Provider{}).Where("company_id = ?", companyID)
	if name := strings.TrimSpace(filter.Name); name != "" {
		stmt = stmt.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if filter.ActiveOnly {
		stmt = stmt.Where("active = ?", true)
	}

	stmt, err := page.Apply(stmt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}

	var items []domain.Provider
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, p *domain.Provider) error {
	return db.WithContext(ctx).
		Model(&domain.Provider{}).
		Where("id = ? AND company_id = ?", p.ID, p.CompanyID).
		Updates(map[string]any{
			"name":       p.Name,
			"email":      p.Email,
			"phone":      p.Phone,
			"document":   p.Document,
			"active":     p.Active,
			"updated_at": p.UpdatedAt,
		}).Error
}

func (r *repo) SetBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, balance int64, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Provider{}).
		Where("id = ?", id).
		Updates(map[string]any{"current_balance": balance, "updated_at": now}).Error
}
