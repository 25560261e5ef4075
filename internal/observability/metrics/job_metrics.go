package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/opsledger/internal/apperr"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonForbidden            = "forbidden"
	JobReasonBroker               = "broker"
	JobReasonUnknown              = "unknown"
)

// JobMetrics captures background worker health (overdue sweep, outbox relay).
type JobMetrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	errors    *prometheus.CounterVec
	processed *prometheus.CounterVec
}

var (
	jobMetricsOnce sync.Once
	jobMetrics     *JobMetrics
)

// Jobs returns the process-wide job metrics registered on the default registry.
func Jobs(cfg Config) *JobMetrics {
	jobMetricsOnce.Do(func() {
		jobMetrics = newJobMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return jobMetrics
}

func newJobMetrics(registerer prometheus.Registerer, cfg Config) *JobMetrics {
	labels := constLabels(cfg)
	m := &JobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "opsledger_job_runs_total",
			Help:        "Background job runs by name.",
			ConstLabels: labels,
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "opsledger_job_duration_seconds",
			Help:        "Background job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: labels,
		}, []string{"job"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "opsledger_job_errors_total",
			Help:        "Background job errors by low-cardinality reason.",
			ConstLabels: labels,
		}, []string{"job", "reason"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "opsledger_job_items_processed_total",
			Help:        "Items processed by background jobs.",
			ConstLabels: labels,
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.errors, m.processed)
	return m
}

func (m *JobMetrics) ObserveRun(job string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	if err != nil {
		m.errors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
	}
}

func (m *JobMetrics) AddProcessed(job string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.processed.WithLabelValues(job).Add(float64(n))
}

// ClassifyJobReason maps an error to a bounded label value.
func ClassifyJobReason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return JobReasonDeadlineExceeded
	}
	if errors.Is(err, apperr.ErrForbidden) {
		return JobReasonForbidden
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return JobReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return JobReasonDBLockTimeout
		case "40001":
			return JobReasonSerializationFailure
		case "23505":
			return JobReasonUniqueViolation
		}
	}
	var remote *apperr.Error
	if errors.As(err, &remote) && remote.Kind == apperr.KindRemote && remote.Op == "publish event" {
		return JobReasonBroker
	}
	return JobReasonUnknown
}
