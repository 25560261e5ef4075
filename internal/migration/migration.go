package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	accesscodedomain "github.com/smallbiznis/opsledger/internal/accesscode/domain"
	accountdomain "github.com/smallbiznis/opsledger/internal/account/domain"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	authdomain "github.com/smallbiznis/opsledger/internal/auth/domain"
	companydomain "github.com/smallbiznis/opsledger/internal/company/domain"
	eventdomain "github.com/smallbiznis/opsledger/internal/events/domain"
	expensedomain "github.com/smallbiznis/opsledger/internal/expense/domain"
	missiondomain "github.com/smallbiznis/opsledger/internal/mission/domain"
	paymentdomain "github.com/smallbiznis/opsledger/internal/payment/domain"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
	providerdomain "github.com/smallbiznis/opsledger/internal/provider/domain"
	revenuedomain "github.com/smallbiznis/opsledger/internal/revenue/domain"
	transactiondomain "github.com/smallbiznis/opsledger/internal/transaction/domain"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres migrations, including the
// row-level security policies on every tenant table.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every persisted type, for AutoMigrate on dialects without
// SQL migrations and for tests.
func Models() []any {
	return []any{
		&companydomain.Company{},
		&profiledomain.Profile{},
		&authdomain.Session{},
		&providerdomain.Provider{},
		&missiondomain.Mission{},
		&missiondomain.MissionProvider{},
		&accountdomain.Account{},
		&transactiondomain.Transaction{},
		&revenuedomain.PendingRevenue{},
		&revenuedomain.ConfirmedRevenue{},
		&paymentdomain.Payment{},
		&expensedomain.Expense{},
		&expensedomain.Accommodation{},
		&accesscodedomain.AccessCode{},
		&eventdomain.DomainEvent{},
		&auditdomain.AuditLog{},
	}
}

// SQLFiles exposes the embedded migration sources.
func SQLFiles() fs.FS {
	return embeddedMigrations
}
