package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsPersonalData(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/rpc/redeem_access_code"),
		attribute.String("email", "ana@example.com"),
		attribute.String("code", "ACC2026123456"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorKeepsOuterMessage(t *testing.T) {
	err := fmt.Errorf("confirm revenue: %w", errors.New("pq: relation secret_table"))
	assert.Equal(t, "confirm revenue", SafeError(err).Error())
	assert.Nil(t, SafeError(nil))
}
