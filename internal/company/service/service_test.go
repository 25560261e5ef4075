package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	auditrepo "github.com/smallbiznis/opsledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/opsledger/internal/audit/service"
	"github.com/smallbiznis/opsledger/internal/clock"
	"github.com/smallbiznis/opsledger/internal/company/domain"
	"github.com/smallbiznis/opsledger/internal/company/repository"
	"github.com/smallbiznis/opsledger/internal/company/service"
	"github.com/smallbiznis/opsledger/internal/config"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
	profilerepo "github.com/smallbiznis/opsledger/internal/profile/repository"
	"github.com/smallbiznis/opsledger/internal/session"
	dbpkg "github.com/smallbiznis/opsledger/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	svc    domain.Service
	loader *session.Loader
	node   *snowflake.Node
	clock  *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbpkg.NewTest(t, &domain.Company{}, &profiledomain.Profile{}, &auditdomain.AuditLog{})
	clk := clock.NewFakeClock(time.Date(2026, 4, 2, 14, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	loader := session.NewLoader(session.Params{
		DB:      db,
		Log:     log,
		Store:   session.NewMemoryStoreWithClock(clk.Now),
		Profile: profilerepo.Provide(),
		Policy:  config.NewStaticPolicyHolder(config.DefaultPolicy()),
		Clock:   clk,
	})
	svc := service.New(service.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Repo:        repository.Provide(),
		ProfileRepo: profilerepo.Provide(),
		Loader:      loader,
		Audit: auditservice.NewService(auditservice.Params{
			DB: db, Log: log, GenID: node, Repo: auditrepo.Provide(), Clock: clk,
		}),
		Clock: clk,
	})
	return &fixture{db: db, svc: svc, loader: loader, node: node, clock: clk}
}

// signup creates a company-less profile and warms its cached session.
func (f *fixture) signup(t *testing.T, email string) context.Context {
	t.Helper()
	p := profiledomain.Profile{
		ID: f.node.Generate(), Email: email, Name: "Owner",
		Role: profiledomain.RoleUser, UserType: profiledomain.UserTypeUser,
		Active: true, PasswordHash: "x",
		CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&p).Error)
	sess, err := f.loader.Load(context.Background(), p.ID, false)
	require.NoError(t, err)
	return session.WithSession(context.Background(), sess)
}

func TestCreateMakesCallerAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := f.signup(t, "owner@example.com")
	caller, _ := session.FromContext(ctx)

	company, err := f.svc.Create(ctx, domain.CreateRequest{Name: "  Acme Field Ops "})
	require.NoError(t, err)
	assert.Equal(t, "Acme Field Ops", company.Name)
	assert.Equal(t, "acme-field-ops", company.Slug)

	sess, err := f.loader.Load(context.Background(), caller.UserID, false)
	require.NoError(t, err)
	assert.Equal(t, company.ID, sess.CompanyID.String())
	assert.Equal(t, profiledomain.RoleAdmin, sess.Role)
	assert.Equal(t, profiledomain.UserTypeAdmin, sess.UserType)

	current, err := f.svc.Current(session.WithSession(context.Background(), sess))
	require.NoError(t, err)
	assert.Equal(t, company.ID, current.ID)
	assert.Equal(t, company.Slug, current.Slug)

	var audits int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", "company.create").Count(&audits).Error)
	assert.Equal(t, int64(1), audits)
}

func TestCreateRejectsAssignedCaller(t *testing.T) {
	f := newFixture(t)
	ctx := f.signup(t, "owner@example.com")

	_, err := f.svc.Create(ctx, domain.CreateRequest{Name: "First"})
	require.NoError(t, err)

	// The stale session still has no company; the guarded update catches it.
	_, err = f.svc.Create(ctx, domain.CreateRequest{Name: "Second"})
	assert.ErrorIs(t, err, domain.ErrAlreadyAssigned)

	var count int64
	require.NoError(t, f.db.Model(&domain.Company{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	assigned := session.WithSession(context.Background(), &session.Session{UserID: 9, CompanyID: 7})
	_, err = f.svc.Create(assigned, domain.CreateRequest{Name: "Third"})
	assert.ErrorIs(t, err, domain.ErrAlreadyAssigned)
}

func TestCreateSlugCollision(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Create(f.signup(t, "a@example.com"), domain.CreateRequest{Name: "Acme"})
	require.NoError(t, err)
	second, err := f.svc.Create(f.signup(t, "b@example.com"), domain.CreateRequest{Name: "ACME"})
	require.NoError(t, err)

	assert.Equal(t, "acme", first.Slug)
	assert.True(t, strings.HasPrefix(second.Slug, "acme-"))
	assert.NotEqual(t, first.Slug, second.Slug)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(f.signup(t, "a@example.com"), domain.CreateRequest{Name: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = f.svc.Create(context.Background(), domain.CreateRequest{Name: "Acme"})
	assert.ErrorIs(t, err, session.ErrNoSession)

	_, err = f.svc.Current(f.signup(t, "b@example.com"))
	assert.ErrorIs(t, err, session.ErrNoCompany)
}
