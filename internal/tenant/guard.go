// Package tenant resolves the caller's company and checks that records read
// or written belong to it. The database enforces row level security on its
// own; these checks make the service fail closed when a query or a cached
// session is wrong.
package tenant

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/smallbiznis/opsledger/internal/apperr"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	"github.com/smallbiznis/opsledger/internal/observability/metrics"
	"github.com/smallbiznis/opsledger/internal/session"
	"github.com/smallbiznis/opsledger/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrTenantMismatch = apperr.New(apperr.KindForbidden, "tenant_mismatch")

// ScopedTables lists every table carrying a company_id column.
var ScopedTables = []string{
	"missions",
	"mission_providers",
	"providers",
	"pending_revenues",
	"confirmed_revenues",
	"payments",
	"expenses",
	"transactions",
	"accounts",
	"access_codes",
	"expense_accommodations",
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Loader  *session.Loader
	Audit   auditdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Guard struct {
	db      *gorm.DB
	log     *zap.Logger
	loader  *session.Loader
	audit   auditdomain.Service
	metrics *metrics.Metrics
	tables  []string
}

func NewGuard(p Params) *Guard {
	return &Guard{
		db:      p.DB,
		log:     p.Log.Named("tenant.guard"),
		loader:  p.Loader,
		audit:   p.Audit,
		metrics: p.Metrics,
		tables:  ScopedTables,
	}
}

// Resolve loads the caller's session. Writes that cross a tenant boundary
// must pass fresh so a stale cached company is never used.
func (g *Guard) Resolve(ctx context.Context, userID snowflake.ID, fresh bool) (*session.Session, error) {
	return g.loader.Load(ctx, userID, fresh)
}

// ResolveTenant returns the company of userID, or zero when the profile has
// none yet. Read paths may be served from the session cache.
func (g *Guard) ResolveTenant(ctx context.Context, userID snowflake.ID) (snowflake.ID, error) {
	s, err := g.Resolve(ctx, userID, false)
	if err != nil {
		return 0, err
	}
	return s.CompanyID, nil
}

// ResolveTenantFresh reads the profile from the database.
func (g *Guard) ResolveTenantFresh(ctx context.Context, userID snowflake.ID) (snowflake.ID, error) {
	s, err := g.Resolve(ctx, userID, true)
	if err != nil {
		return 0, err
	}
	return s.CompanyID, nil
}

// AssertAccess fails when the caller has no company, or when the record is
// scoped to a different one. Zero stands for null on both sides.
func AssertAccess(caller, record snowflake.ID) error {
	if caller == 0 {
		return ErrTenantMismatch
	}
	if record != 0 && record != caller {
		return ErrTenantMismatch
	}
	return nil
}

type TableReport struct {
	Table   string `json:"table"`
	Total   int64  `json:"total"`
	Company int64  `json:"company"`
	Orphan  int64  `json:"orphan"`
	Foreign int64  `json:"foreign"`
}

type Report struct {
	CompanyID      string        `json:"company_id"`
	TotalRecords   int64         `json:"total_records"`
	CompanyRecords int64         `json:"company_records"`
	OrphanRecords  int64         `json:"orphan_records"`
	ForeignRecords int64         `json:"foreign_records"`
	Violation      bool          `json:"violation"`
	Tables         []TableReport `json:"tables"`
}

type countRow struct {
	Total   int64
	Company int64
	Orphan  int64
}

// AuditIsolation counts, per scoped table, the rows of companyID, the rows
// without a company and the rows of any other company visible to a
// transaction scoped to companyID. Row level security must hide the latter;
// any that show up are a violation.
func (g *Guard) AuditIsolation(ctx context.Context, companyID snowflake.ID) (Report, error) {
	sess, err := session.RequireAdmin(ctx)
	if err != nil {
		return Report{}, err
	}
	if err := AssertAccess(sess.CompanyID, companyID); err != nil {
		return Report{}, err
	}

	report := Report{CompanyID: companyID.String(), Tables: make([]TableReport, 0, len(g.tables))}
	err = rls.Transaction(g.db.WithContext(ctx), companyID, func(tx *gorm.DB) error {
		for _, table := range g.tables {
			tr, err := scanTable(tx, table, companyID)
			if err != nil {
				return err
			}
			report.Tables = append(report.Tables, tr)
		}
		return nil
	})
	if err != nil {
		return Report{}, apperr.Remote("audit isolation", err)
	}

	for _, tr := range report.Tables {
		report.TotalRecords += tr.Total
		report.CompanyRecords += tr.Company
		report.OrphanRecords += tr.Orphan
		report.ForeignRecords += tr.Foreign

		if tr.Foreign > 0 {
			g.log.Error("tenant isolation violation",
				zap.String("table", tr.Table),
				zap.Int64("company_id", companyID.Int64()),
				zap.Int64("foreign_records", tr.Foreign),
			)
			g.metrics.RecordIsolationViolation(ctx, tr.Table, tr.Foreign)
		}
	}

	report.Violation = report.ForeignRecords > 0
	if report.Violation {
		target := companyID.String()
		if err := g.audit.AuditLog(ctx, &companyID, "", nil, "tenant.isolation_violation", "company", &target, map[string]any{
			"foreign_records": report.ForeignRecords,
			"orphan_records":  report.OrphanRecords,
		}); err != nil {
			g.log.Warn("failed to audit isolation violation", zap.Error(err))
		}
	}
	return report, nil
}

func scanTable(tx *gorm.DB, table string, companyID snowflake.ID) (TableReport, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) AS total,
	COALESCE(SUM(CASE WHEN company_id = ? THEN 1 ELSE 0 END), 0) AS company,
	COALESCE(SUM(CASE WHEN company_id IS NULL THEN 1 ELSE 0 END), 0) AS orphan
FROM %s`, pq.QuoteIdentifier(table))

	var row countRow
	if err := tx.Raw(query, companyID).Scan(&row).Error; err != nil {
		return TableReport{}, fmt.Errorf("scan %s: %w", table, err)
	}
	return TableReport{
		Table:   table,
		Total:   row.Total,
		Company: row.Company,
		Orphan:  row.Orphan,
		Foreign: row.Total - row.Company - row.Orphan,
	}, nil
}

// AssertVisible is AssertAccess for reads by id: a record of another company
// is reported with notFound so its existence is not revealed.
func AssertVisible(caller, record snowflake.ID, notFound error) error {
	if err := AssertAccess(caller, record); err != nil {
		if caller == 0 {
			return err
		}
		return notFound
	}
	return nil
}
