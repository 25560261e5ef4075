// Package context carries the correlation identifiers shared by request logs,
// SQL logs, spans and audit entries.
package context

import (
	"context"
	"strings"
)

// Correlation identifies the unit of work a log line belongs to. A request
// carries RequestID and, once authenticated, the actor and company. A
// scheduler run carries JobRunID and the system actor.
type Correlation struct {
	RequestID string
	CompanyID string
	ActorType string
	ActorID   string
	JobRunID  string
}

type correlationKey struct{}

// From returns the correlation stored on ctx, or the zero value.
func From(ctx context.Context) Correlation {
	if ctx == nil {
		return Correlation{}
	}
	c, _ := ctx.Value(correlationKey{}).(Correlation)
	return c
}

// With stores a copy of the current correlation after applying fn.
func With(ctx context.Context, fn func(*Correlation)) context.Context {
	c := From(ctx)
	fn(&c)
	return context.WithValue(ctx, correlationKey{}, c)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return With(ctx, func(c *Correlation) { c.RequestID = strings.TrimSpace(requestID) })
}

func WithCompanyID(ctx context.Context, companyID string) context.Context {
	return With(ctx, func(c *Correlation) { c.CompanyID = strings.TrimSpace(companyID) })
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return With(ctx, func(c *Correlation) {
		c.ActorType = strings.TrimSpace(actorType)
		c.ActorID = strings.TrimSpace(actorID)
	})
}

// WithJobRun marks ctx as belonging to one scheduler run.
func WithJobRun(ctx context.Context, runID string) context.Context {
	return With(ctx, func(c *Correlation) {
		c.ActorType = "system"
		c.ActorID = "scheduler"
		c.JobRunID = strings.TrimSpace(runID)
	})
}
