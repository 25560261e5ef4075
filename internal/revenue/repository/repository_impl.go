package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/revenue/domain"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertPending(ctx context.Context, db *gorm.DB, item *domain.PendingRevenue) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) FindPending(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PendingRevenue, error) {
	var item domain.PendingRevenue
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) HasActiveForMission(ctx context.Context, db *gorm.DB, missionID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.PendingRevenue{}).
		Where("mission_id = ? AND status IN ?", missionID, []string{domain.StatusPending, domain.StatusReceived}).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) TransitionPending(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.PendingRevenue{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{"status": status, "updated_at": now})
	return res.RowsAffected == 1, res.Error
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter domain.PendingFilter, page pagination.Pagination) ([]domain.PendingRevenue, error) {
	stmt := db.WithContext(ctx).Model(&domain.PendingRevenue{}).Where("company_id = ?", companyID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.MissionID != 0 {
		stmt = stmt.Where("mission_id = ?", filter.MissionID)
	}
	stmt, err := page.Apply(stmt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	var items []domain.PendingRevenue
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertConfirmed(ctx context.Context, db *gorm.DB, item *domain.ConfirmedRevenue) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) FindConfirmed(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ConfirmedRevenue, error) {
	var item domain.ConfirmedRevenue
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListConfirmed(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter domain.ConfirmedFilter, page pagination.Pagination) ([]domain.ConfirmedRevenue, error) {
	stmt := db.WithContext(ctx).Model(&domain.ConfirmedRevenue{}).Where("company_id = ?", companyID)
	if filter.MissionID != 0 {
		stmt = stmt.Where("mission_id = ?", filter.MissionID)
	}
	stmt = receivedBetween(stmt, filter.From, filter.To)
	stmt, err := page.Apply(stmt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	var items []domain.ConfirmedRevenue
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SumPending(ctx context.Context, db *gorm.DB, companyID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.PendingRevenue{}).
		Select("COALESCE(SUM(total_amount), 0)").
		Where("company_id = ? AND status = ?", companyID, domain.StatusPending).
		Scan(&total).Error
	return total, err
}

func (r *repo) SumConfirmed(ctx context.Context, db *gorm.DB, companyID snowflake.ID, from, to *time.Time) (int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.ConfirmedRevenue{}).
		Select("COALESCE(SUM(total_amount), 0)").
		Where("company_id = ?", companyID)
	stmt = receivedBetween(stmt, from, to)

	var total int64
	err := stmt.Scan(&total).Error
	return total, err
}

func receivedBetween(stmt *gorm.DB, from, to *time.Time) *gorm.DB {
	if from != nil {
		stmt = stmt.Where("received_date >= ?", from.UTC())
	}
	if to != nil {
		stmt = stmt.Where("received_date <= ?", to.UTC())
	}
	return stmt
}
