package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	balancedomain "github.com/smallbiznis/opsledger/internal/balance/domain"
)

var errBadDate = errors.New("bad date")

// parseDate accepts an RFC 3339 timestamp or a YYYY-MM-DD calendar date in
// UTC. A calendar date used as an upper bound covers the whole day.
func parseDate(value string, upper bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	day, err := time.ParseInLocation(time.DateOnly, value, time.UTC)
	if err != nil {
		return nil, errBadDate
	}
	if upper {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &day, nil
}

// queryRange reads the optional from and to query parameters. Ordering is
// checked by the services, which own the invalid range error.
func queryRange(c *gin.Context) (from, to *time.Time, err error) {
	if from, err = parseDate(c.Query("from"), false); err != nil {
		return nil, nil, newValidationError("from", "invalid_from", "from must be a date or RFC 3339 timestamp")
	}
	if to, err = parseDate(c.Query("to"), true); err != nil {
		return nil, nil, newValidationError("to", "invalid_to", "to must be a date or RFC 3339 timestamp")
	}
	return from, to, nil
}

func parseRequiredDate(value string) (time.Time, error) {
	t, err := parseDate(value, false)
	if err != nil || t == nil {
		return time.Time{}, balancedomain.ErrInvalidDate
	}
	return *t, nil
}
