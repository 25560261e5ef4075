package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/opsledger/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestCorrelationFieldsSkipUnset(t *testing.T) {
	ctx := obscontext.WithRequestID(context.Background(), "r-1")
	ctx = obscontext.WithActor(ctx, "user", "42")

	fields := CorrelationFields(obscontext.From(ctx))
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"request_id", "actor_type", "actor_id"}, keys)

	run := obscontext.From(obscontext.WithJobRun(ctx, "77"))
	assert.Equal(t, "r-1", run.RequestID)
	assert.Equal(t, "system", run.ActorType)
	assert.Equal(t, "77", run.JobRunID)
}

func TestClassifySQL(t *testing.T) {
	cases := []struct {
		sql, verb, table string
	}{
		{`SELECT * FROM "payments" WHERE company_id = $1`, "select", "payments"},
		{`INSERT INTO "domain_events" ("id") VALUES ($1)`, "insert", "domain_events"},
		{`UPDATE "expenses" SET "status"=$1`, "update", "expenses"},
		{`WITH due AS (SELECT id FROM payments) UPDATE payments SET status = 'overdue'`, "select", "payments"},
		{`SELECT set_config('app.current_company_id', $1, true)`, "select", ""},
	}
	for _, tc := range cases {
		verb, table := classifySQL(tc.sql)
		assert.Equal(t, tc.verb, verb, tc.sql)
		assert.Equal(t, tc.table, table, tc.sql)
	}
}

func TestSQLLoggerLevels(t *testing.T) {
	logs := observe(t)
	l := NewSQLLogger(SQLConfig{Level: gormlogger.Info, Slow: 100 * time.Millisecond})
	ctx := obscontext.WithCompanyID(context.Background(), "9")
	stmt := func(sql string) func() (string, int64) {
		return func() (string, int64) { return sql, 1 }
	}

	l.Trace(ctx, time.Now(), stmt(`SELECT * FROM "missions"`), nil)
	l.Trace(ctx, time.Now().Add(-time.Second), stmt(`SELECT * FROM "missions"`), nil)
	l.Trace(ctx, time.Now(), stmt(`SELECT * FROM "missions"`), gormlogger.ErrRecordNotFound)
	l.Trace(ctx, time.Now(), stmt(`INSERT INTO "payments"`), errors.New("duplicate key"))
	l.Trace(ctx, time.Now(), stmt(`SELECT set_config('app.current_company_id', $1, true)`), nil)

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "sql.slow", entries[1].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	// Not found is routine and logs like any other statement.
	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "payments", entries[3].ContextMap()["table"])
	assert.Equal(t, "9", entries[3].ContextMap()["company_id"])

	_, params := l.ParamsFilter(ctx, "SELECT 1", "secret@example.com")
	assert.Nil(t, params)

	silent := NewSQLLogger(SQLConfigFor(false))
	silent.Trace(ctx, time.Now(), stmt(`SELECT 1`), nil)
	assert.Len(t, logs.All(), 4)
}

func TestGinMiddlewareLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observe(t)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		Quiet:           DefaultQuietRoutes,
		ErrorClassifier: func(error) (string, string) { return "validation", "bad" },
	}))
	r.POST("/auth/login", func(c *gin.Context) {
		_ = c.Error(errors.New("bad password"))
		c.Status(http.StatusUnauthorized)
	})
	r.GET("/api/payments", func(c *gin.Context) {
		assert.NotEmpty(t, obscontext.From(c.Request.Context()).RequestID)
		c.Status(http.StatusOK)
	})
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	req := httptest.NewRequest(http.MethodGet, "/api/payments", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc", w2.Header().Get(RequestIDHeader))

	entries := logs.FilterMessage("http.request").All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "validation", entries[0].ContextMap()["error_type"])
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "abc", entries[1].ContextMap()["request_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}
