package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/clock"
	"github.com/smallbiznis/opsledger/internal/config"
	"github.com/smallbiznis/opsledger/internal/events/relay"
	obsmetrics "github.com/smallbiznis/opsledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/opsledger/internal/payment/domain"
	"github.com/smallbiznis/opsledger/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: invalid config")

type Params struct {
	fx.In

	Log      *zap.Logger
	Payments paymentdomain.Service
	Relay    *relay.Relay
	Locker   ratelimit.Locker
	Policy   *config.PolicyHolder
	Jobs     *obsmetrics.JobMetrics `optional:"true"`
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   Config `optional:"true"`
}

type job struct {
	name     string
	interval func() time.Duration
	run      func(ctx context.Context) (int, error)
}

// Scheduler runs the background jobs of one process. Each job is guarded by
// a distributed lock so only one replica runs it per tick.
type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	locker   ratelimit.Locker
	metrics  *obsmetrics.JobMetrics
	payments paymentdomain.Service
	relay    *relay.Relay
	policy   *config.PolicyHolder

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Payments == nil || p.Relay == nil || p.Locker == nil || p.Policy == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		locker:   p.Locker,
		metrics:  p.Jobs,
		payments: p.Payments,
		relay:    p.Relay,
		policy:   p.Policy,
		lastRun:  make(map[string]time.Time),
	}, nil
}

func (s *Scheduler) jobs() []job {
	return []job{
		{
			name:     JobOverdueSweep,
			interval: func() time.Duration { return s.policy.Get().Sweeper.OverdueInterval },
			run:      s.OverdueSweepJob,
		},
		{
			name:     JobEventRelay,
			interval: func() time.Duration { return s.policy.Get().Sweeper.RelayInterval },
			run:      s.EventRelayJob,
		},
	}
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) (int, error)) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	token, ok, err := s.locker.TryLock(ctx, "scheduler:"+name, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("%s: acquire lock: %w", name, err)
	}
	if !ok {
		s.log.Debug("scheduler.job.skipped", zap.String("job", name), zap.String("reason", "locked"))
		return nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), "scheduler:"+name, token); err != nil {
			s.log.Warn("scheduler.job.unlock_failed", zap.String("job", name), zap.Error(err))
		}
	}()

	ctx, run := s.beginRun(ctx, name)
	processed, err := fn(ctx)
	s.finish(run, processed, err)
	if err == nil {
		return nil
	}

	// A run cut short by its timeout resumes on the next tick.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job whose interval has elapsed.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	now := s.clock.Now()
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) || !s.due(j.name, j.interval(), now) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, j.name, s.cfg.JobTimeout, j.run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) due(name string, interval time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRun[name]
	if ok && now.Sub(last) < interval {
		return false
	}
	s.lastRun[name] = now
	return true
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty means every job runs in this process.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// OverdueSweepJob flips pending payments past their due date to overdue.
func (s *Scheduler) OverdueSweepJob(ctx context.Context) (int, error) {
	return s.payments.MarkOverdue(ctx)
}

// EventRelayJob drains the outbox until a batch comes back short.
func (s *Scheduler) EventRelayJob(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.relay.RunOnce(ctx)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
	}
}
