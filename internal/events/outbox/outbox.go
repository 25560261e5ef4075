package outbox

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/clock"
	"github.com/smallbiznis/opsledger/internal/events/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type outbox struct {
	genID *snowflake.Node
	clock clock.Clock
}

func New(genID *snowflake.Node, clk clock.Clock) domain.Outbox {
	return &outbox{genID: genID, clock: clk}
}

// Append inserts one event. A repeated dedupe key for the same company is a no-op.
func (o *outbox) Append(ctx context.Context, tx *gorm.DB, companyID snowflake.ID, eventType, dedupeKey string, payload map[string]any) error {
	event := domain.DomainEvent{
		ID:        o.genID.Generate(),
		CompanyID: companyID,
		EventType: eventType,
		Payload:   datatypes.JSONMap(payload),
		CreatedAt: o.clock.Now(),
	}
	if key := strings.TrimSpace(dedupeKey); key != "" {
		event.DedupeKey = &key
	}
	if event.Payload == nil {
		event.Payload = datatypes.JSONMap{}
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&event).Error
}
