package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/accesscode/domain"
	"github.com/smallbiznis/opsledger/internal/accesscode/repository"
	"github.com/smallbiznis/opsledger/internal/accesscode/service"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	auditrepo "github.com/smallbiznis/opsledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/opsledger/internal/audit/service"
	"github.com/smallbiznis/opsledger/internal/clock"
	companydomain "github.com/smallbiznis/opsledger/internal/company/domain"
	"github.com/smallbiznis/opsledger/internal/config"
	eventdomain "github.com/smallbiznis/opsledger/internal/events/domain"
	"github.com/smallbiznis/opsledger/internal/events/outbox"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
	profilerepo "github.com/smallbiznis/opsledger/internal/profile/repository"
	"github.com/smallbiznis/opsledger/internal/ratelimit"
	"github.com/smallbiznis/opsledger/internal/session"
	dbpkg "github.com/smallbiznis/opsledger/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// attemptGenerator yields the same code for the same attempt number.
type attemptGenerator struct{}

func (attemptGenerator) Generate(prefix string, _ time.Time, attempt int) string {
	return fmt.Sprintf("%sFIXED%d", prefix, attempt)
}

type sameGenerator struct{}

func (sameGenerator) Generate(prefix string, _ time.Time, _ int) string {
	return prefix + "SAME"
}

type fixture struct {
	db        *gorm.DB
	svc       domain.Service
	node      *snowflake.Node
	clock     *clock.FakeClock
	companyID snowflake.ID
	admin     context.Context
}

func newFixture(t *testing.T, gen domain.CodeGenerator) *fixture {
	t.Helper()

	db := dbpkg.NewTest(t,
		&domain.AccessCode{}, &profiledomain.Profile{}, &companydomain.Company{},
		&eventdomain.DomainEvent{}, &auditdomain.AuditLog{},
	)
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	policy := config.NewStaticPolicyHolder(config.DefaultPolicy())

	loader := session.NewLoader(session.Params{
		DB:      db,
		Log:     log,
		Store:   session.NewMemoryStoreWithClock(clk.Now),
		Profile: profilerepo.Provide(),
		Policy:  policy,
		Clock:   clk,
	})

	svc := service.New(service.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Repo:        repository.Provide(),
		ProfileRepo: profilerepo.Provide(),
		Loader:      loader,
		Outbox:      outbox.New(node, clk),
		Locker:      ratelimit.NewLocalLocker(),
		Limiter:     ratelimit.NewRedeemLimiter(ratelimit.NewLocalBucket(), policy, nil, log),
		Policy:      policy,
		Audit: auditservice.NewService(auditservice.Params{
			DB: db, Log: log, GenID: node, Repo: auditrepo.Provide(), Clock: clk,
		}),
		Generator: gen,
		Clock:     clk,
	})

	f := &fixture{db: db, svc: svc, node: node, clock: clk, companyID: node.Generate()}
	require.NoError(t, db.Create(&companydomain.Company{
		ID: f.companyID, Name: "Acme", Slug: "acme", CreatedAt: clk.Now(), UpdatedAt: clk.Now(),
	}).Error)
	f.admin = session.WithSession(context.Background(), &session.Session{
		UserID: node.Generate(), Role: profiledomain.RoleAdmin, CompanyID: f.companyID,
	})
	return f
}

// employee creates a profile without a company and returns its session.
func (f *fixture) employee(t *testing.T, email string) (context.Context, snowflake.ID) {
	t.Helper()
	p := profiledomain.Profile{
		ID:           f.node.Generate(),
		Email:        email,
		Name:         "Dora",
		Role:         profiledomain.RoleUser,
		UserType:     profiledomain.UserTypeUser,
		Active:       true,
		PasswordHash: "x",
		CreatedAt:    f.clock.Now(),
		UpdatedAt:    f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&p).Error)
	return session.WithSession(context.Background(), &session.Session{UserID: p.ID, Email: email, Role: p.Role}), p.ID
}

func TestIssueAndRedeem(t *testing.T) {
	f := newFixture(t, nil)

	code, err := f.svc.Issue(f.admin, domain.IssueRequest{EmployeeName: " Dora ", EmployeeEmail: "Dora@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Dora", code.EmployeeName)
	assert.Equal(t, "dora@example.com", code.EmployeeEmail)
	assert.Regexp(t, `^ACC2026\d{6}$`, code.Code)
	assert.Equal(t, f.clock.Now().Add(7*24*time.Hour), code.ExpiresAt)

	ctx, profileID := f.employee(t, "dora@example.com")
	res, err := f.svc.Redeem(ctx, code.Code)
	require.NoError(t, err)
	assert.Equal(t, f.companyID.String(), res.CompanyID)
	assert.Equal(t, "Dora", res.EmployeeName)

	var profile profiledomain.Profile
	require.NoError(t, f.db.First(&profile, "id = ?", profileID).Error)
	require.NotNil(t, profile.CompanyID)
	assert.Equal(t, f.companyID, *profile.CompanyID)

	var stored domain.AccessCode
	require.NoError(t, f.db.First(&stored, "id = ?", code.ID).Error)
	assert.True(t, stored.IsUsed)
	require.NotNil(t, stored.UsedBy)
	assert.Equal(t, profileID, *stored.UsedBy)

	_, err = f.svc.Redeem(ctx, code.Code)
	assert.ErrorIs(t, err, domain.ErrAlreadyUsed)
}

func TestRedeemEmailMismatchLooksMissing(t *testing.T) {
	f := newFixture(t, nil)

	code, err := f.svc.Issue(f.admin, domain.IssueRequest{EmployeeName: "Dora", EmployeeEmail: "dora@example.com"})
	require.NoError(t, err)

	ctx, _ := f.employee(t, "mallory@example.com")
	_, err = f.svc.Redeem(ctx, code.Code)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Redeem(ctx, "ACC2026999999")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var stored domain.AccessCode
	require.NoError(t, f.db.First(&stored, "id = ?", code.ID).Error)
	assert.False(t, stored.IsUsed)
}

func TestRedeemExpired(t *testing.T) {
	f := newFixture(t, nil)

	code, err := f.svc.Issue(f.admin, domain.IssueRequest{EmployeeName: "Dora", EmployeeEmail: "dora@example.com"})
	require.NoError(t, err)

	f.clock.Advance(8 * 24 * time.Hour)
	ctx, _ := f.employee(t, "dora@example.com")
	_, err = f.svc.Redeem(ctx, code.Code)
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestRedeemIsRateLimited(t *testing.T) {
	f := newFixture(t, nil)
	ctx, _ := f.employee(t, "guesser@example.com")

	for i := 0; i < config.DefaultPolicy().RateLimit.RedeemPerMinute; i++ {
		_, err := f.svc.Redeem(ctx, fmt.Sprintf("ACC2026%06d", i))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
	_, err := f.svc.Redeem(ctx, "ACC2026000100")
	assert.ErrorIs(t, err, ratelimit.ErrTooManyAttempts)
}

func TestIssueRetriesOnCollision(t *testing.T) {
	f := newFixture(t, attemptGenerator{})

	first, err := f.svc.Issue(f.admin, domain.IssueRequest{EmployeeName: "Ana", EmployeeEmail: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ACCFIXED0", first.Code)

	second, err := f.svc.Issue(f.admin, domain.IssueRequest{EmployeeName: "Bea", EmployeeEmail: "bea@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ACCFIXED1", second.Code)
}

func TestIssueGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t, sameGenerator{})

	_, err := f.svc.Issue(f.admin, domain.IssueRequest{EmployeeName: "Ana", EmployeeEmail: "ana@example.com"})
	require.NoError(t, err)

	_, err = f.svc.Issue(f.admin, domain.IssueRequest{EmployeeName: "Bea", EmployeeEmail: "bea@example.com"})
	assert.ErrorIs(t, err, domain.ErrCodeExhausted)
}

func TestIssueValidation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Issue(f.admin, domain.IssueRequest{EmployeeName: "", EmployeeEmail: "a@example.com"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = f.svc.Issue(f.admin, domain.IssueRequest{EmployeeName: "Ana", EmployeeEmail: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	member := session.WithSession(context.Background(), &session.Session{
		UserID: f.node.Generate(), Role: profiledomain.RoleUser, CompanyID: f.companyID,
	})
	_, err = f.svc.Issue(member, domain.IssueRequest{EmployeeName: "Ana", EmployeeEmail: "a@example.com"})
	assert.ErrorIs(t, err, session.ErrNotAdmin)
}

func TestRevokeOnlyUnused(t *testing.T) {
	f := newFixture(t, nil)

	unused, err := f.svc.Issue(f.admin, domain.IssueRequest{EmployeeName: "Ana", EmployeeEmail: "ana@example.com"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Revoke(f.admin, unused.ID.String()))

	f.clock.Advance(time.Second)
	used, err := f.svc.Issue(f.admin, domain.IssueRequest{EmployeeName: "Dora", EmployeeEmail: "dora@example.com"})
	require.NoError(t, err)
	ctx, _ := f.employee(t, "dora@example.com")
	_, err = f.svc.Redeem(ctx, used.Code)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Revoke(f.admin, used.ID.String()), domain.ErrCannotRevoke)

	other := session.WithSession(context.Background(), &session.Session{
		UserID: f.node.Generate(), Role: profiledomain.RoleAdmin, CompanyID: f.node.Generate(),
	})
	assert.ErrorIs(t, f.svc.Revoke(other, used.ID.String()), domain.ErrCodeNotFound)
}
