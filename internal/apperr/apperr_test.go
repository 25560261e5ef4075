package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errInvalidAmount = New(KindValidation, "invalid_amount")

func TestIsMatchesKindAndCode(t *testing.T) {
	err := fmt.Errorf("settle: %w", errInvalidAmount)

	assert.True(t, errors.Is(err, errInvalidAmount))
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, New(KindValidation, "other_code")))
}

func TestRemoteWrapsOnlyUnclassified(t *testing.T) {
	cause := errors.New("connection refused")
	err := Remote("list employees", cause)

	assert.Equal(t, KindRemote, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "list employees: connection refused", err.Error())

	classified := Remote("redeem", errInvalidAmount)
	assert.Equal(t, KindValidation, KindOf(classified))
	assert.Nil(t, Remote("noop", nil))
}

func TestWrapKeepsIdentity(t *testing.T) {
	err := ErrNotFound.Wrap(errors.New("record not found"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "not_found", CodeOf(err))
	assert.Equal(t, "invalid_amount", CodeOf(errInvalidAmount))
	assert.Equal(t, "remote_error", CodeOf(errors.New("x")))
}
