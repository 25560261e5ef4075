package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/clock"
	"github.com/smallbiznis/opsledger/internal/config"
	eventdomain "github.com/smallbiznis/opsledger/internal/events/domain"
	"github.com/smallbiznis/opsledger/internal/events/outbox"
	"github.com/smallbiznis/opsledger/internal/events/relay"
	paymentdomain "github.com/smallbiznis/opsledger/internal/payment/domain"
	"github.com/smallbiznis/opsledger/internal/ratelimit"
	"github.com/smallbiznis/opsledger/internal/scheduler"
	dbpkg "github.com/smallbiznis/opsledger/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sweepCounter struct {
	paymentdomain.Service
	calls int
}

func (s *sweepCounter) MarkOverdue(context.Context) (int, error) {
	s.calls++
	return 3, nil
}

type countingPublisher struct{ n int }

func (p *countingPublisher) Name() string { return "counting" }

func (p *countingPublisher) Publish(context.Context, eventdomain.DomainEvent) error {
	p.n++
	return nil
}

type fixture struct {
	sched    *scheduler.Scheduler
	sweeps   *sweepCounter
	pub      *countingPublisher
	clk      *clock.FakeClock
	locker   ratelimit.Locker
	appendFn func(key string)
}

func newFixture(t *testing.T, cfg scheduler.Config) *fixture {
	t.Helper()
	db := dbpkg.NewTest(t, &eventdomain.DomainEvent{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	pub := &countingPublisher{}
	sweeps := &sweepCounter{}
	locker := ratelimit.NewLocalLocker()
	ob := outbox.New(node, clk)

	sched, err := scheduler.New(scheduler.Params{
		Log:      zap.NewNop(),
		Payments: sweeps,
		Relay:    relay.New(relay.Params{DB: db, Log: zap.NewNop(), Clock: clk, Publishers: []eventdomain.Publisher{pub}}),
		Locker:   locker,
		Policy:   config.NewStaticPolicyHolder(config.DefaultPolicy()),
		GenID:    node,
		Clock:    clk,
		Config:   cfg,
	})
	require.NoError(t, err)

	return &fixture{
		sched:  sched,
		sweeps: sweeps,
		pub:    pub,
		clk:    clk,
		locker: locker,
		appendFn: func(key string) {
			require.NoError(t, ob.Append(context.Background(), db, 7, eventdomain.TypeRevenueConfirmed, key, map[string]any{"k": key}))
		},
	}
}

func TestRunOnceHonoursPolicyIntervals(t *testing.T) {
	f := newFixture(t, scheduler.Config{})
	ctx := context.Background()
	f.appendFn("a")
	f.appendFn("b")

	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 1, f.sweeps.calls)
	assert.Equal(t, 2, f.pub.n)

	// Neither interval elapsed.
	f.appendFn("c")
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 1, f.sweeps.calls)
	assert.Equal(t, 2, f.pub.n)

	// Relay is due, sweep is not.
	f.clk.Advance(5 * time.Second)
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 1, f.sweeps.calls)
	assert.Equal(t, 3, f.pub.n)

	f.clk.Advance(10 * time.Minute)
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 2, f.sweeps.calls)
}

func TestEnabledJobsFilter(t *testing.T) {
	f := newFixture(t, scheduler.Config{EnabledJobs: []string{scheduler.JobOverdueSweep}})
	f.appendFn("a")

	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, 1, f.sweeps.calls)
	assert.Equal(t, 0, f.pub.n)
}

func TestHeldLockSkipsJob(t *testing.T) {
	f := newFixture(t, scheduler.Config{EnabledJobs: []string{scheduler.JobOverdueSweep}})
	ctx := context.Background()

	_, ok, err := f.locker.TryLock(ctx, "scheduler:"+scheduler.JobOverdueSweep, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 0, f.sweeps.calls)
}
