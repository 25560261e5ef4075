package relay

import (
	"context"
	"time"

	"github.com/smallbiznis/opsledger/internal/apperr"
	"github.com/smallbiznis/opsledger/internal/clock"
	"github.com/smallbiznis/opsledger/internal/events/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultBatchSize = 100

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Publishers []domain.Publisher `group:"event_publishers"`
}

// Relay moves committed outbox rows to every configured publisher.
type Relay struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	publishers []domain.Publisher
	batchSize  int
}

func New(p Params) *Relay {
	publishers := make([]domain.Publisher, 0, len(p.Publishers))
	for _, pub := range p.Publishers {
		if pub != nil {
			publishers = append(publishers, pub)
		}
	}
	return &Relay{
		db:         p.DB,
		log:        p.Log.Named("events.relay"),
		clock:      p.Clock,
		publishers: publishers,
		batchSize:  defaultBatchSize,
	}
}

// RunOnce publishes one batch and returns how many rows were marked published.
// A row that fails on any publisher stays unpublished and is retried on the
// next run; delivery is at-least-once.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	var batch []domain.DomainEvent
	err := r.db.WithContext(ctx).
		Where("published = ?", false).
		Order("id ASC").
		Limit(r.batchSize).
		Find(&batch).Error
	if err != nil {
		return 0, apperr.Remote("load outbox batch", err)
	}

	published := 0
	var firstErr error
	for _, event := range batch {
		if err := r.deliver(ctx, event); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			// Later rows wait until this one is delivered.
			break
		}
		now := r.clock.Now()
		res := r.db.WithContext(ctx).
			Model(&domain.DomainEvent{}).
			Where("id = ? AND published = ?", event.ID, false).
			Updates(map[string]any{"published": true, "published_at": now})
		if res.Error != nil {
			return published, apperr.Remote("mark event published", res.Error)
		}
		published++
	}
	return published, firstErr
}

func (r *Relay) deliver(ctx context.Context, event domain.DomainEvent) error {
	for _, pub := range r.publishers {
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := pub.Publish(pubCtx, event)
		cancel()
		if err != nil {
			r.log.Warn("event publish failed",
				zap.String("publisher", pub.Name()),
				zap.Int64("event_id", event.ID.Int64()),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
			return apperr.Remote("publish event", err)
		}
	}
	return nil
}
