package relay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/clock"
	"github.com/smallbiznis/opsledger/internal/events/domain"
	"github.com/smallbiznis/opsledger/internal/events/outbox"
	"github.com/smallbiznis/opsledger/internal/events/relay"
	dbpkg "github.com/smallbiznis/opsledger/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	got  []domain.DomainEvent
	fail bool
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) Publish(_ context.Context, e domain.DomainEvent) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.got = append(p.got, e)
	return nil
}

func TestOutboxDedupeAndRelay(t *testing.T) {
	ctx := context.Background()
	db := dbpkg.NewTest(t, &domain.DomainEvent{})
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC))
	ob := outbox.New(node, clk)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if err := ob.Append(ctx, tx, 1, domain.TypeRevenueConfirmed, "revenue:1", map[string]any{"id": "1"}); err != nil {
			return err
		}
		return ob.Append(ctx, tx, 1, domain.TypeRevenueConfirmed, "revenue:1", map[string]any{"id": "1"})
	}))
	require.NoError(t, ob.Append(ctx, db, 2, domain.TypeRevenueConfirmed, "revenue:1", nil))

	var count int64
	require.NoError(t, db.Model(&domain.DomainEvent{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	failing := &recordingPublisher{fail: true}
	r := relay.New(relay.Params{DB: db, Log: zap.NewNop(), Clock: clk, Publishers: []domain.Publisher{failing, nil}})
	n, err := r.RunOnce(ctx)
	assert.Error(t, err)
	assert.Equal(t, 0, n)

	ok := &recordingPublisher{}
	r = relay.New(relay.Params{DB: db, Log: zap.NewNop(), Clock: clk, Publishers: []domain.Publisher{ok}})
	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, ok.got, 2)

	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
