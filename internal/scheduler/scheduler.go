package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/digiurban/billing/internal/audit/domain"
	auditcontext "github.com/digiurban/billing/internal/auditcontext"
	billingeventdomain "github.com/digiurban/billing/internal/billingevent/domain"
	"github.com/digiurban/billing/internal/clock"
	"github.com/digiurban/billing/internal/config"
	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	obsmetrics "github.com/digiurban/billing/internal/observability/metrics"
	"github.com/digiurban/billing/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobGenerateInvoices = "generate_invoices"
	JobReconcileOverdue = "reconcile_overdue"
	JobPublishEvents    = "publish_events"

	jobLockKey = "billing:scheduler:%s"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	InvoiceSvc invoicedomain.Service
	Events     billingeventdomain.Service
	Billing    *config.BillingConfigHolder
	Locker     *ratelimit.Locker `optional:"true"`
	Config     Config            `optional:"true"`
}

// jobLocker keeps a job from running on two replicas at once.
type jobLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	invoiceSvc invoicedomain.Service
	events     billingeventdomain.Service
	billing    *config.BillingConfigHolder
	locker     jobLocker
	metrics    *obsmetrics.SchedulerMetrics

	// generatedPeriod is the last period fully generated by this process.
	generatedPeriod time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.InvoiceSvc == nil || p.Events == nil || p.Billing == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
		events:     p.Events,
		billing:    p.Billing,
		metrics:    obsmetrics.Scheduler(),
	}
	if p.Locker != nil {
		s.locker = p.Locker
	}
	return s, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	ctx, run := s.startRun(ctx, name, batchSize)
	log := s.logger(ctx).With(run.fields()...)

	release, acquired, err := s.acquireJob(ctx, name, timeout)
	if err != nil {
		log.Warn("job lock unavailable", zap.Error(err))
	}
	if !acquired {
		log.Debug("job held by another replica")
		return nil
	}
	defer release()

	s.logRunStart(ctx, run)
	s.metrics.IncJobRun(name)

	err = fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	s.logRunFinish(ctx, run, err)
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout; the next tick picks the work up again.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// acquireJob takes the cross-replica lock for name. Without a locker, or when
// redis is unreachable, the job runs and relies on its own idempotency.
func (s *Scheduler) acquireJob(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	noop := func() {}
	if s.locker == nil {
		return noop, true, nil
	}
	key := fmt.Sprintf(jobLockKey, name)
	token, ok, err := s.locker.TryLock(ctx, key, ttl)
	if err != nil {
		return noop, true, err
	}
	if !ok {
		return noop, false, nil
	}
	return func() {
		if err := s.locker.Release(context.Background(), key, token); err != nil {
			s.log.Warn("failed to release job lock", zap.String("job", name), zap.Error(err))
		}
	}, true, nil
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Batch   int
		Run     func(context.Context) error
	}{
		{JobGenerateInvoices, s.cfg.isJobEnabled(JobGenerateInvoices), 0, s.GenerateInvoicesJob},
		{JobReconcileOverdue, s.cfg.isJobEnabled(JobReconcileOverdue) && s.billing.Get().ReconcileOverdue, 0, s.ReconcileOverdueJob},
		{JobPublishEvents, s.cfg.isJobEnabled(JobPublishEvents), s.cfg.EventBatchSize, s.PublishEventsJob},
	}

	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Batch, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			s.metrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// GenerateInvoicesJob issues subscription invoices for the current month. Once
// a period completes without error this process skips it until the month turns.
func (s *Scheduler) GenerateInvoicesJob(ctx context.Context) error {
	now := s.clock.Now().UTC()
	period := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if period.Equal(s.generatedPeriod) {
		return nil
	}

	result, err := s.invoiceSvc.GeneratePeriodInvoices(ctx, period)
	s.recordProcessed(ctx, "invoice", len(result.Created))
	if err != nil {
		return err
	}

	s.generatedPeriod = period
	if len(result.Created) > 0 {
		s.logger(ctx).Info("invoice.generated",
			zap.String("period", period.Format("2006-01")),
			zap.Int("created", len(result.Created)),
			zap.Int("skipped", len(result.Skipped)),
		)
	}
	return nil
}

func (s *Scheduler) ReconcileOverdueJob(ctx context.Context) error {
	count, err := s.invoiceSvc.ReconcileOverdue(ctx)
	s.recordProcessed(ctx, "invoice", count)
	return err
}

// PublishEventsJob drains the outbox in batches until it is empty or the job
// deadline is reached.
func (s *Scheduler) PublishEventsJob(ctx context.Context) error {
	for {
		count, err := s.events.PublishPending(ctx, s.cfg.EventBatchSize)
		s.recordProcessed(ctx, "billing_event", count)
		if err != nil {
			return err
		}
		if count < s.cfg.EventBatchSize {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
