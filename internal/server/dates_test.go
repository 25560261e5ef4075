package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	balancedomain "github.com/smallbiznis/opsledger/internal/balance/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	got, err := parseDate(" ", false)
	require.NoError(t, err)
	assert.Nil(t, got)

	start, err := parseDate("2024-03-01", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *start)

	end, err := parseDate("2024-03-01", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 23, 59, 59, 999999999, time.UTC), *end)

	stamp, err := parseDate("2024-03-01T10:30:00+02:00", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC), stamp.UTC())

	_, err = parseDate("yesterday", false)
	assert.Error(t, err)
}

func TestQueryRange(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctxFor := func(query string) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/api/dashboard?"+query, nil)
		return c
	}

	from, to, err := queryRange(ctxFor("from=2024-01-01&to=2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, 1, from.Day())
	assert.Equal(t, 31, to.Day())
	assert.Equal(t, 23, to.Hour())

	from, to, err = queryRange(ctxFor(""))
	require.NoError(t, err)
	assert.Nil(t, from)
	assert.Nil(t, to)

	_, _, err = queryRange(ctxFor("to=soon"))
	_, payload := mapError(err)
	if assert.Len(t, payload.Errors, 1) {
		assert.Equal(t, "to", payload.Errors[0].Field)
	}
}

func TestParseRequiredDate(t *testing.T) {
	_, err := parseRequiredDate("")
	assert.ErrorIs(t, err, balancedomain.ErrInvalidDate)

	d, err := parseRequiredDate("2026-02-10")
	require.NoError(t, err)
	assert.Equal(t, time.February, d.Month())
}
