package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/opsledger/internal/apperr"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    string(apperr.KindRemote),
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    string(apperr.KindValidation),
			Code:    "invalid_request",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound, errorPayload{
			Type:    string(apperr.KindNotFound),
			Code:    "not_found",
			Message: "not found",
		}
	}

	kind := apperr.KindOf(err)
	if kind == apperr.KindRemote {
		// Remote failures carry driver detail; it is logged, never returned.
		return http.StatusInternalServerError, errorPayload{
			Type:    string(apperr.KindRemote),
			Message: "internal server error",
		}
	}

	code := apperr.CodeOf(err)
	payload := errorPayload{
		Type:    string(kind),
		Code:    code,
		Message: kindMessage(kind),
	}
	if kind == apperr.KindValidation {
		payload.Errors = []ValidationError{
			{
				Field:   validationErrorField(code),
				Code:    code,
				Message: "invalid value",
			},
		}
	}
	return statusForKind(kind), payload
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindAlreadyUsed:
		return http.StatusConflict
	case apperr.KindExpired:
		return http.StatusGone
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func kindMessage(kind apperr.Kind) string {
	switch kind {
	case apperr.KindValidation:
		return "validation error"
	case apperr.KindUnauthorized:
		return "unauthorized"
	case apperr.KindForbidden:
		return "forbidden"
	case apperr.KindNotFound:
		return "not found"
	case apperr.KindConflict:
		return "conflict"
	case apperr.KindAlreadyUsed:
		return "already used"
	case apperr.KindExpired:
		return "expired"
	case apperr.KindRateLimited:
		return "too many requests"
	default:
		return "internal server error"
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

// classifyErrorForLog feeds the request logger the same type and code the
// client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, payload.Code
}
