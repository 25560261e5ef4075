package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/profile/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Profile, error) {
	var item domain.Profile
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Profile, error) {
	var item domain.Profile
	err := db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
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

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Profile) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) AssignCompany(ctx context.Context, db *gorm.DB, id, companyID snowflake.ID, role, userType string, now time.Time) (bool, error) {
	updates := map[string]any{"company_id": companyID, "updated_at": now}
	if role != "" {
		updates["role"] = role
	}
	if userType != "" {
		updates["user_type"] = userType
	}
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ? AND company_id IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListByCompany(ctx context.Context, db *gorm.DB, companyID snowflake.ID) ([]domain.Profile, error) {
	var items []domain.Profile
	err := db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("name ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, id, companyID snowflake.ID, active bool, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ? AND company_id = ?", id, companyID).
		Updates(map[string]any{"active": active, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) UpdatePasswordHash(ctx context.Context, db *gorm.DB, id snowflake.ID, hash string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ?", id).
		Updates(map[string]any{"password_hash": hash, "updated_at": now}).Error
}
