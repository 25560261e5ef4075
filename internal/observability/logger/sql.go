package logger

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// SQLConfig controls which statements SQLLogger emits.
type SQLConfig struct {
	Level gormlogger.LogLevel
	// Statements slower than Slow log at warn. Zero disables the check.
	Slow time.Duration
	// NotFound logs gorm.ErrRecordNotFound as an error. Lookups of foreign
	// or deleted records are routine, so it defaults to off.
	NotFound bool
}

// SQLConfigFor returns warn-level logging, or every statement when debug is set.
func SQLConfigFor(debug bool) SQLConfig {
	cfg := SQLConfig{Level: gormlogger.Warn, Slow: 250 * time.Millisecond}
	if debug {
		cfg.Level = gormlogger.Info
	}
	return cfg
}

// SQLLogger routes gorm output through zap with the request correlation of
// the statement's context. Bound parameters are never logged.
type SQLLogger struct {
	cfg SQLConfig
}

func NewSQLLogger(cfg SQLConfig) *SQLLogger {
	return &SQLLogger{cfg: cfg}
}

func (l *SQLLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *SQLLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.cfg.Level >= gormlogger.Info {
		FromContext(ctx).Info(msg, l.messageFields(data)...)
	}
}

func (l *SQLLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.cfg.Level >= gormlogger.Warn {
		FromContext(ctx).Warn(msg, l.messageFields(data)...)
	}
}

func (l *SQLLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.cfg.Level >= gormlogger.Error {
		FromContext(ctx).Error(msg, l.messageFields(data)...)
	}
}

func (l *SQLLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && (l.cfg.NotFound || !errors.Is(err, gormlogger.ErrRecordNotFound))
	slow := l.cfg.Slow > 0 && elapsed > l.cfg.Slow

	switch {
	case failed && l.cfg.Level >= gormlogger.Error:
		sql, rows := fc()
		FromContext(ctx).Error("sql.statement", append(statementFields(sql, rows, elapsed), zap.Error(err))...)
	case slow && l.cfg.Level >= gormlogger.Warn:
		sql, rows := fc()
		FromContext(ctx).Warn("sql.slow", statementFields(sql, rows, elapsed)...)
	case l.cfg.Level >= gormlogger.Info:
		sql, rows := fc()
		if isTenantScope(sql) {
			return
		}
		FromContext(ctx).Debug("sql.statement", statementFields(sql, rows, elapsed)...)
	}
}

// ParamsFilter drops bound values. Emails, password hashes, access codes and
// amounts all travel as parameters.
func (l *SQLLogger) ParamsFilter(_ context.Context, sql string, _ ...any) (string, []any) {
	return sql, nil
}

func (l *SQLLogger) messageFields(data []any) []zap.Field {
	fields := []zap.Field{zap.String("component", "sql")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	return fields
}

func statementFields(sql string, rows int64, elapsed time.Duration) []zap.Field {
	sql = strings.TrimSpace(sql)
	verb, table := classifySQL(sql)
	fields := []zap.Field{
		zap.String("component", "sql"),
		zap.String("verb", verb),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.String("sql", sql),
	}
	if table != "" {
		fields = append(fields, zap.String("table", table))
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	return fields
}

var tableRef = regexp.MustCompile(`(?i)\b(?:from|into|update|join)\s+["` + "`" + `]?([a-z_][a-z0-9_]*)`)

// classifySQL returns the statement verb and the first table it touches.
func classifySQL(sql string) (verb, table string) {
	verb = "other"
	// A CTE prefix is skipped up to its first data verb.
	for _, token := range strings.Fields(sql) {
		token = strings.ToLower(strings.Trim(token, "(;"))
		if token == "select" || token == "insert" || token == "update" || token == "delete" {
			verb = token
			break
		}
	}
	if m := tableRef.FindStringSubmatch(sql); m != nil {
		table = strings.ToLower(m[1])
	}
	return verb, table
}

// isTenantScope matches the per-transaction set_config that opens every
// tenant-scoped transaction on postgres.
func isTenantScope(sql string) bool {
	return strings.Contains(sql, "app.current_company_id")
}

var _ gormlogger.Interface = (*SQLLogger)(nil)
