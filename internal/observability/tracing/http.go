package tracing

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/opsledger/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/smallbiznis/opsledger/http"

// GinMiddleware opens a server span per request. It runs after the request
// logger, so the request ID is already on the context, and it reads the
// tenant and actor back once the session middleware has resolved them.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(instrumentation)
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		if id := obscontext.From(ctx).RequestID; id != "" {
			ctx = withRequestBaggage(ctx, id)
		}
		ctx, span := tracer.Start(ctx, c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route != "" {
			span.SetName(c.Request.Method + " " + route)
		}
		status := c.Writer.Status()
		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		}
		corr := obscontext.From(c.Request.Context())
		if corr.RequestID != "" {
			attrs = append(attrs, attribute.String("request_id", corr.RequestID))
		}
		if corr.CompanyID != "" {
			attrs = append(attrs, attribute.String("opsledger.company_id", corr.CompanyID))
		}
		if corr.ActorID != "" {
			attrs = append(attrs, attribute.String("opsledger.actor_id", corr.ActorID))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if status >= http.StatusInternalServerError {
			if last := c.Errors.Last(); last != nil {
				span.RecordError(SafeError(last.Err))
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func withRequestBaggage(ctx context.Context, requestID string) context.Context {
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
