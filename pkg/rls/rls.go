package rls

import (
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/pkg/db"
	"gorm.io/gorm"
)

// WithTenant scopes the current transaction to one company for postgres
// row-level security. Other dialects have no RLS and are left untouched.
func WithTenant(tx *gorm.DB, companyID snowflake.ID) error {
	if !db.IsPostgres(tx) {
		return nil
	}
	return tx.Exec(
		"SELECT set_config('app.current_company_id', ?, true)",
		strconv.FormatInt(companyID.Int64(), 10),
	).Error
}

// Transaction runs fn in a transaction scoped to companyID.
func Transaction(conn *gorm.DB, companyID snowflake.ID, fn func(tx *gorm.DB) error) error {
	return conn.Transaction(func(tx *gorm.DB) error {
		if err := WithTenant(tx, companyID); err != nil {
			return err
		}
		return fn(tx)
	})
}
