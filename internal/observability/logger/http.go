package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/opsledger/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const RequestIDHeader = "X-Request-Id"

// MiddlewareConfig controls request logging.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps the last handler error to the type and code the
	// client received.
	ErrorClassifier func(err error) (string, string)
	// Quiet lists routes whose client errors log at debug. Credential and
	// access-code guesses land here and would otherwise flood info.
	Quiet []string
}

// DefaultQuietRoutes are the unauthenticated or guessable entry points.
var DefaultQuietRoutes = []string{"/auth/login", "/auth/signup", "/api/rpc/redeem_access_code"}

// GinMiddleware stamps a request ID on the request context and logs one
// http.request entry per request once the handler chain has run.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	quiet := make(map[string]struct{}, len(cfg.Quiet))
	for _, route := range cfg.Quiet {
		quiet[route] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
			zap.String("client_ip", c.ClientIP()),
		}

		var errType string
		if last := c.Errors.Last(); last != nil {
			errCode := ""
			if cfg.ErrorClassifier != nil {
				errType, errCode = cfg.ErrorClassifier(last.Err)
			}
			fields = append(fields, zap.String("error_type", errType), zap.String("error_code", errCode))
			if cfg.Debug {
				fields = append(fields, zap.Error(last.Err))
			}
		}

		_, isQuiet := quiet[route]
		level := requestLevel(route, status, errType, isQuiet)
		if ce := FromContext(c.Request.Context()).Check(level, "http.request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func requestLevel(route string, status int, errType string, quiet bool) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case route == "/metrics" || route == "/health":
		return zapcore.DebugLevel
	case quiet && status >= http.StatusBadRequest && errType != "rate_limited":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// requestIDFor reuses an inbound request ID when the caller sent one and
// echoes it back on the response.
func requestIDFor(c *gin.Context) string {
	id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}
	c.Set("request_id", id)
	c.Header(RequestIDHeader, id)
	return id
}
