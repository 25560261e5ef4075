package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/opsledger/internal/audit/domain"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert appends one entry. The trail is append-only; there is no update path.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]domain.AuditLog, error) {
	stmt, err := page.Apply(db.WithContext(ctx).
		Model(&domain.AuditLog{}).
		Where("company_id = ?", filter.CompanyID).
		Scopes(
			actionScope(filter.Action),
			equalScope("actor_id", filter.ActorID),
			equalScope("target_type", filter.TargetType),
			equalScope("target_id", filter.TargetID),
			equalScope("request_id", filter.RequestID),
		))
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
	}

	var logs []domain.AuditLog
	return logs, stmt.Find(&logs).Error
}

func equalScope(column, value string) func(*gorm.DB) *gorm.DB {
	value = strings.TrimSpace(value)
	return func(db *gorm.DB) *gorm.DB {
		if value == "" {
			return db
		}
		return db.Where(column+" = ?", value)
	}
}

func actionScope(action string) func(*gorm.DB) *gorm.DB {
	action = strings.TrimSpace(action)
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case action == "":
			return db
		case strings.HasSuffix(action, "."):
			// Action names are dotted identifiers and never contain LIKE wildcards.
			return db.Where("action LIKE ?", action+"%")
		default:
			return db.Where("action = ?", action)
		}
	}
}
