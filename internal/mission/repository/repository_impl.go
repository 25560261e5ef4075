package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/mission/domain"
	revenuedomain "github.com/smallbiznis/opsledger/internal/revenue/domain"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, m *domain.Mission) error {
	return db.WithContext(ctx).Create(m).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Mission, error) {
	var item domain.Mission
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	set, err := r.ListProviders(ctx, db, []snowflake.ID{item.ID})
	if err != nil {
		return nil, err
	}
	item.AssignedProviders = domain.Assigned(&item, set)
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter domain.ListFilter, page pagination.Pagination) ([]domain.Mission, error) {
	stmt := db.WithContext(ctx).Model(&domain.Mission{}).Where("company_id = ?", companyID)
	if status := strings.TrimSpace(filter.Status); status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if filter.Approved != nil {
		stmt = stmt.Where("is_approved = ?", *filter.Approved)
	}
	if filter.ProviderID != 0 {
		stmt = stmt.Where(
			"(provider_id = ? OR id IN (?))",
			filter.ProviderID,
			db.Model(&domain.MissionProvider{}).Select("mission_id").Where("provider_id = ?", filter.ProviderID),
		)
	}

	stmt, err := page.Apply(stmt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}

	var items []domain.Mission
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	if err := r.attachProviders(ctx, db, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Mission{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": now}).Error
}

func (r *repo) Approve(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Mission{}).
		Where("id = ? AND is_approved = ?", id, false).
		Updates(map[string]any{"is_approved": true, "updated_at": now})
	return res.RowsAffected == 1, res.Error
}

func (r *repo) ReplaceProviders(ctx context.Context, db *gorm.DB, m *domain.Mission, providerIDs []snowflake.ID) error {
	if err := db.WithContext(ctx).
		Where("mission_id = ?", m.ID).
		Delete(&domain.MissionProvider{}).Error; err != nil {
		return err
	}
	if len(providerIDs) == 0 {
		return nil
	}
	rows := make([]domain.MissionProvider, 0, len(providerIDs))
	for i, id := range providerIDs {
		rows = append(rows, domain.MissionProvider{
			MissionID:  m.ID,
			ProviderID: id,
			CompanyID:  m.CompanyID,
			Position:   i,
		})
	}
	return db.WithContext(ctx).Create(&rows).Error
}

func (r *repo) ListProviders(ctx context.Context, db *gorm.DB, missionIDs []snowflake.ID) ([]domain.MissionProvider, error) {
	if len(missionIDs) == 0 {
		return nil, nil
	}
	var rows []domain.MissionProvider
	err := db.WithContext(ctx).
		Where("mission_id IN ?", missionIDs).
		Order("mission_id, position, provider_id").
		Find(&rows).Error
	return rows, err
}

func (r *repo) ListForProvider(ctx context.Context, db *gorm.DB, companyID, providerID snowflake.ID) ([]domain.Mission, error) {
	var items []domain.Mission
	err := db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Where(
			"(provider_id = ? OR id IN (?))",
			providerID,
			db.Model(&domain.MissionProvider{}).Select("mission_id").Where("provider_id = ?", providerID),
		).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if err := r.attachProviders(ctx, db, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) attachProviders(ctx context.Context, db *gorm.DB, items []domain.Mission) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]snowflake.ID, 0, len(items))
	for _, m := range items {
		ids = append(ids, m.ID)
	}
	rows, err := r.ListProviders(ctx, db, ids)
	if err != nil {
		return err
	}
	byMission := make(map[snowflake.ID][]domain.MissionProvider, len(items))
	for _, row := range rows {
		byMission[row.MissionID] = append(byMission[row.MissionID], row)
	}
	for i := range items {
		items[i].AssignedProviders = domain.Assigned(&items[i], byMission[items[i].ID])
	}
	return nil
}

type statusCount struct {
	Status string
	Total  int64
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB, companyID snowflake.ID) (map[string]int64, error) {
	var rows []statusCount
	err := db.WithContext(ctx).
		Model(&domain.Mission{}).
		Select("status, COUNT(*) AS total").
		Where("company_id = ?", companyID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *repo) HasActiveRevenue(ctx context.Context, db *gorm.DB, missionID snowflake.ID) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&revenuedomain.PendingRevenue{}).
		Where("mission_id = ? AND status <> ?", missionID, revenuedomain.StatusCancelled).
		Count(&n).Error
	return n > 0, err
}
