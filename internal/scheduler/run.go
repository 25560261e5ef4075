package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/opsledger/internal/observability/context"
	obslogger "github.com/smallbiznis/opsledger/internal/observability/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// jobRun is one locked execution of a job. Its ID is stamped on the context
// so payment and outbox logs written during the run can be joined to it.
type jobRun struct {
	job       string
	id        string
	startedAt time.Time
	log       *zap.Logger
}

func (s *Scheduler) beginRun(ctx context.Context, job string) (context.Context, *jobRun) {
	id := s.genID.Generate().String()
	ctx = obscontext.WithJobRun(ctx, id)
	run := &jobRun{
		job:       job,
		id:        id,
		startedAt: s.clock.Now(),
		log:       obslogger.WithContext(ctx, s.log).With(zap.String("job", job)),
	}
	run.log.Debug("scheduler.job.start")
	return ctx, run
}

// finish records metrics and logs the outcome. Idle runs log at debug so a
// quiet outbox does not fill the log every tick.
func (s *Scheduler) finish(run *jobRun, processed int, err error) {
	elapsed := s.clock.Now().Sub(run.startedAt)
	s.metrics.ObserveRun(run.job, elapsed, err)
	s.metrics.AddProcessed(run.job, processed)

	level := zapcore.DebugLevel
	switch {
	case err != nil:
		level = zapcore.WarnLevel
	case processed > 0:
		level = zapcore.InfoLevel
	}
	if ce := run.log.Check(level, "scheduler.job.finish"); ce != nil {
		fields := []zap.Field{
			zap.Duration("elapsed", elapsed),
			zap.Int("processed", processed),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		ce.Write(fields...)
	}
}
