package scheduler

import (
	"context"
	"sort"
	"time"

	obscontext "github.com/digiurban/billing/internal/observability/context"
	obslogger "github.com/digiurban/billing/internal/observability/logger"
	"go.uber.org/zap"
)

// jobRun is one execution of a job. It travels in the job context so the job
// body can report what it touched.
type jobRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time
	processed map[string]int
}

type jobRunKey struct{}

func (s *Scheduler) startRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
		processed: map[string]int{},
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	return ctx, run
}

func runFromContext(ctx context.Context) *jobRun {
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

// recordProcessed counts invoices or outbox rows handled by the running job.
func (s *Scheduler) recordProcessed(ctx context.Context, kind string, count int) {
	if count <= 0 {
		return
	}
	run := runFromContext(ctx)
	if run == nil {
		return
	}
	run.processed[kind] += count
	s.metrics.AddBatchProcessed(run.job, kind, count)
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (run *jobRun) fields() []zap.Field {
	return []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
	}
}

func (s *Scheduler) logRunStart(ctx context.Context, run *jobRun) {
	fields := run.fields()
	if run.batchSize > 0 {
		fields = append(fields, zap.Int("batch_size", run.batchSize))
	}
	s.logger(ctx).Info("scheduler.job.start", fields...)
}

// logRunFinish logs the per-kind counts; a failed run logs at warn.
func (s *Scheduler) logRunFinish(ctx context.Context, run *jobRun, err error) {
	fields := append(run.fields(), zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()))

	kinds := make([]string, 0, len(run.processed))
	for kind := range run.processed {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fields = append(fields, zap.Int(kind+"_processed", run.processed[kind]))
	}

	if err != nil {
		s.logger(ctx).Warn("scheduler.job.finish", append(fields, zap.Error(err))...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}
