package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/apperr"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	"github.com/smallbiznis/opsledger/internal/clock"
	obscontext "github.com/smallbiznis/opsledger/internal/observability/context"
	"github.com/smallbiznis/opsledger/internal/session"
	"github.com/smallbiznis/opsledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

// AuditLog records an entry. A nil companyID or actorID falls back to the
// caller's session.
func (s *Service) AuditLog(ctx context.Context, companyID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		targetType = "unknown"
	}

	resolvedCompanyID := companyID
	resolvedActorType := strings.TrimSpace(actorType)
	resolvedActorID := normalizePointer(actorID)
	if sess, ok := session.FromContext(ctx); ok {
		if resolvedCompanyID == nil && sess.HasCompany() {
			id := sess.CompanyID
			resolvedCompanyID = &id
		}
		if resolvedActorID == nil {
			id := sess.UserID.String()
			resolvedActorID = &id
			if resolvedActorType == "" {
				resolvedActorType = auditdomain.ActorTypeUser
			}
		}
	}
	if resolvedActorType == "" {
		resolvedActorType = auditdomain.ActorTypeSystem
	}

	payload := map[string]any{}
	for key, value := range metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		CompanyID:  resolvedCompanyID,
		ActorType:  resolvedActorType,
		ActorID:    resolvedActorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   normalizePointer(targetID),
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  s.clock.Now(),
	}
	if requestID := obscontext.From(ctx).RequestID; requestID != "" {
		entry.RequestID = &requestID
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return apperr.Remote("write audit log", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		CompanyID:  sess.CompanyID,
		Action:     req.Action,
		ActorID:    req.ActorID,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		RequestID:  req.RequestID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
	}, req.Pagination)
	if err != nil {
		if errors.Is(err, auditdomain.ErrInvalidPageToken) {
			return auditdomain.ListAuditLogResponse{}, err
		}
		return auditdomain.ListAuditLogResponse{}, apperr.Remote("list audit logs", err)
	}

	logs, pageInfo := pagination.BuildCursorPageInfo(items, req.Pagination.Limit(), func(item auditdomain.AuditLog) string {
		return item.ID.String()
	})

	return auditdomain.ListAuditLogResponse{PageInfo: pageInfo, AuditLogs: logs}, nil
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
