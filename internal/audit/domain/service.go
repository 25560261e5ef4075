package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string     `form:"action"`
	ActorID    string     `form:"actor_id"`
	TargetType string     `form:"target_type"`
	TargetID   string     `form:"target_id"`
	RequestID  string     `form:"request_id"`
	StartAt    *time.Time `form:"start_at" time_format:"2006-01-02T15:04:05Z07:00"`
	EndAt      *time.Time `form:"end_at" time_format:"2006-01-02T15:04:05Z07:00"`
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]AuditLog, error)
}

type Service interface {
	AuditLog(ctx context.Context, companyID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = apperr.New(apperr.KindValidation, "invalid_page_token")
	ErrInvalidTimeRange = apperr.New(apperr.KindValidation, "invalid_time_range")
	ErrInvalidAction    = apperr.New(apperr.KindValidation, "invalid_action")
)
