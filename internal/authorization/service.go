package authorization

import (
	"context"

	"github.com/smallbiznis/opsledger/internal/apperr"
)

// Service decides whether the caller in ctx may perform action on object.
type Service interface {
	Authorize(ctx context.Context, object string, action string) error
}

var (
	ErrForbidden     = apperr.New(apperr.KindForbidden, "permission_denied")
	ErrInvalidObject = apperr.New(apperr.KindValidation, "invalid_object")
	ErrInvalidAction = apperr.New(apperr.KindValidation, "invalid_action")
)
