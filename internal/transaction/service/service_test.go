package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/clock"
	eventdomain "github.com/smallbiznis/opsledger/internal/events/domain"
	"github.com/smallbiznis/opsledger/internal/events/outbox"
	missiondomain "github.com/smallbiznis/opsledger/internal/mission/domain"
	missionrepo "github.com/smallbiznis/opsledger/internal/mission/repository"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
	"github.com/smallbiznis/opsledger/internal/session"
	"github.com/smallbiznis/opsledger/internal/transaction/domain"
	"github.com/smallbiznis/opsledger/internal/transaction/repository"
	"github.com/smallbiznis/opsledger/internal/transaction/service"
	dbpkg "github.com/smallbiznis/opsledger/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (domain.Service, context.Context, *clock.FakeClock) {
	t.Helper()

	db := dbpkg.NewTest(t, &domain.Transaction{}, &missiondomain.Mission{}, &missiondomain.MissionProvider{}, &eventdomain.DomainEvent{})
	clk := clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := service.New(service.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        repository.Provide(),
		MissionRepo: missionrepo.Provide(),
		Outbox:      outbox.New(node, clk),
		Clock:       clk,
	})
	ctx := session.WithSession(context.Background(), &session.Session{
		UserID: 1, Role: profiledomain.RoleAdmin, CompanyID: node.Generate(),
	})
	return svc, ctx, clk
}

func TestRecordDefaultsToPending(t *testing.T) {
	svc, ctx, clk := newTestService(t)

	txn, err := svc.Record(ctx, domain.RecordRequest{Type: "Income", Category: "misc", Amount: 50, Date: clk.Now()})
	require.NoError(t, err)
	assert.Equal(t, domain.TypeIncome, txn.Type)
	assert.Equal(t, domain.StatusPending, txn.Status)

	_, err = svc.Record(ctx, domain.RecordRequest{Type: "income", Category: "misc", Amount: 50, Date: clk.Now(), Status: domain.StatusCancelled})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = svc.Record(ctx, domain.RecordRequest{Type: "transfer", Category: "misc", Amount: 50, Date: clk.Now()})
	assert.ErrorIs(t, err, domain.ErrInvalidType)

	_, err = svc.Record(ctx, domain.RecordRequest{Type: "expense", Category: "misc", Amount: 0, Date: clk.Now()})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Record(ctx, domain.RecordRequest{Type: "expense", Category: "misc", Amount: 5, Date: clk.Now(), MissionID: "404"})
	assert.ErrorIs(t, err, domain.ErrInvalidMission)
}

func TestTransitionsAreOneWay(t *testing.T) {
	svc, ctx, clk := newTestService(t)

	txn, err := svc.Record(ctx, domain.RecordRequest{Type: "expense", Category: "fuel", Amount: 30, Date: clk.Now()})
	require.NoError(t, err)

	done, err := svc.Complete(ctx, txn.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)

	_, err = svc.Cancel(ctx, txn.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotPending)
	_, err = svc.Complete(ctx, txn.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotPending)
}

func TestTotalsCountCompletedOnly(t *testing.T) {
	svc, ctx, clk := newTestService(t)
	day := clk.Now()

	record := func(typ, status string, amount int64, date time.Time) {
		t.Helper()
		_, err := svc.Record(ctx, domain.RecordRequest{Type: typ, Category: "misc", Amount: amount, Date: date, Status: status})
		require.NoError(t, err)
	}
	record(domain.TypeIncome, domain.StatusCompleted, 1000, day)
	record(domain.TypeIncome, domain.StatusPending, 400, day)
	record(domain.TypeExpense, domain.StatusCompleted, 250, day)
	record(domain.TypeExpense, domain.StatusCompleted, 90, day.AddDate(0, -1, 0))

	totals, err := svc.Totals(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.Totals{Income: 1000, Expense: 340, Net: 660}, totals)

	from := day.AddDate(0, 0, -1)
	totals, err = svc.Totals(ctx, &from, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.Totals{Income: 1000, Expense: 250, Net: 750}, totals)

	to := day.AddDate(0, 0, -2)
	_, err = svc.Totals(ctx, &from, &to)
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)

	other := session.WithSession(context.Background(), &session.Session{UserID: 2, CompanyID: 99})
	totals, err = svc.Totals(other, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, totals)
}
