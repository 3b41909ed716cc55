package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	billingeventdomain "github.com/digiurban/billing/internal/billingevent/domain"
	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Job failure reasons. Kept small so the reason label stays low-cardinality.
const (
	ReasonDeadline         = "deadline_exceeded"
	ReasonLockTimeout      = "db_lock_timeout"
	ReasonSerialization    = "serialization_failure"
	ReasonDuplicateInvoice = "duplicate_invoice"
	ReasonInvalidInvoice   = "invalid_invoice"
	ReasonInvalidEvent     = "invalid_event"
	ReasonUnknown          = "unknown"
)

// SchedulerMetrics tracks invoice generation, overdue reconciliation and
// outbox publishing runs.
type SchedulerMetrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	timeouts  *prometheus.CounterVec
	failures  *prometheus.CounterVec
	processed *prometheus.CounterVec
	lag       prometheus.Histogram
}

var (
	schedulerOnce sync.Once
	scheduler     *SchedulerMetrics
)

// Scheduler returns the process-wide collectors, registering them on first use.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig is Scheduler with const labels. Only the first call's
// labels take effect.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerOnce.Do(func() {
		scheduler = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return scheduler
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	labels := cfg.constLabels()
	counter := func(name, help string, dims ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "digiurban",
			Subsystem:   "billing_scheduler",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, dims)
	}

	m := &SchedulerMetrics{
		runs:      counter("job_runs_total", "Job runs that acquired their lock.", "job"),
		timeouts:  counter("job_timeouts_total", "Job runs cut short by their deadline.", "job"),
		failures:  counter("job_failures_total", "Failed job runs by reason.", "job", "reason"),
		processed: counter("processed_total", "Invoices and outbox events handled by jobs.", "job", "kind"),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "digiurban",
			Subsystem:   "billing_scheduler",
			Name:        "job_duration_seconds",
			Help:        "Job run latency.",
			Buckets:     []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120},
			ConstLabels: labels,
		}, []string{"job"}),
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "digiurban",
			Subsystem:   "billing_scheduler",
			Name:        "loop_lag_seconds",
			Help:        "How late a loop pass started relative to its interval.",
			Buckets:     []float64{0.1, 0.5, 1, 5, 15, 60},
			ConstLabels: labels,
		}),
	}
	registerer.MustRegister(m.runs, m.duration, m.timeouts, m.failures, m.processed, m.lag)
	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m != nil {
		m.runs.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m != nil {
		m.duration.WithLabelValues(job).Observe(d.Seconds())
	}
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m != nil {
		m.timeouts.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m != nil && err != nil {
		m.failures.WithLabelValues(job, FailureReason(err)).Inc()
	}
}

// AddBatchProcessed counts kind ("invoice", "billing_event") handled by job.
func (m *SchedulerMetrics) AddBatchProcessed(job, kind string, count int) {
	if m != nil && count > 0 {
		m.processed.WithLabelValues(job, kind).Add(float64(count))
	}
}

func (m *SchedulerMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m != nil && lag > 0 {
		m.lag.Observe(lag.Seconds())
	}
}

// FailureReason buckets a job error into one of the Reason* values.
func FailureReason(err error) string {
	var pgErr *pgconn.PgError
	isPG := errors.As(err, &pgErr)

	switch {
	case err == nil:
		return ReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReasonDeadline
	case isPG && pgErr.Code == "55P03":
		return ReasonLockTimeout
	case isPG && pgErr.Code == "40001":
		return ReasonSerialization
	case errors.Is(err, gorm.ErrDuplicatedKey), isPG && pgErr.Code == "23505":
		return ReasonDuplicateInvoice
	case errors.Is(err, invoicedomain.ErrInvalidItems),
		errors.Is(err, invoicedomain.ErrInvalidPeriod),
		errors.Is(err, invoicedomain.ErrInvalidTenant):
		return ReasonInvalidInvoice
	case errors.Is(err, billingeventdomain.ErrInvalidEventType):
		return ReasonInvalidEvent
	default:
		return ReasonUnknown
	}
}
