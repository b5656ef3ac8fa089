package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/sheetpulse/internal/adapter/metrics"
	"github.com/pscheid92/sheetpulse/internal/platform/correlation"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Job is a named periodic task. Run receives a context carrying a fresh
// correlation ID per run and is cancelled when the scheduler stops.
type Job struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	Run        func(ctx context.Context) error
}

type scheduledJob struct {
	Job
	inFlight *semaphore.Weighted
}

// Scheduler runs jobs on their intervals. A tick that arrives while the
// previous run of the same job is still going is dropped, never queued.
type Scheduler struct {
	clock   clockwork.Clock
	metrics *metrics.SchedulerMetrics
	jobs    []*scheduledJob
	wg      sync.WaitGroup
}

func NewScheduler(clock clockwork.Clock, m *metrics.SchedulerMetrics) *Scheduler {
	return &Scheduler{clock: clock, metrics: m}
}

// Add registers a job. It must be called before Run.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, &scheduledJob{Job: job, inFlight: semaphore.NewWeighted(1)})
}

// Run blocks until ctx is cancelled, then waits for in-flight runs to return.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		g.Go(func() error {
			s.loop(ctx, job)
			return nil
		})
	}

	err := g.Wait()
	s.wg.Wait()
	return err
}

func (s *Scheduler) loop(ctx context.Context, job *scheduledJob) {
	slog.InfoContext(ctx, "Scheduler job started", "job", job.Name, "interval", job.Interval, "run_on_start", job.RunOnStart)

	if job.RunOnStart {
		s.trigger(ctx, job)
	}

	ticker := s.clock.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.trigger(ctx, job)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, job *scheduledJob) {
	if !job.inFlight.TryAcquire(1) {
		s.metrics.SkippedTicks.WithLabelValues(job.Name).Inc()
		slog.WarnContext(ctx, "Skipping tick, previous run still in flight", "job", job.Name)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer job.inFlight.Release(1)
		s.execute(ctx, job)
	}()
}

func (s *Scheduler) execute(ctx context.Context, job *scheduledJob) {
	runCtx := correlation.WithID(ctx, correlation.NewID())
	start := s.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			s.metrics.Runs.WithLabelValues(job.Name, "panic").Inc()
			slog.ErrorContext(runCtx, "Scheduler job panicked", "job", job.Name, "panic", r)
		}
	}()

	err := job.Run(runCtx)
	s.metrics.RunDuration.WithLabelValues(job.Name).Observe(s.clock.Since(start).Seconds())

	if err != nil {
		s.metrics.Runs.WithLabelValues(job.Name, "error").Inc()
		slog.WarnContext(runCtx, "Scheduler job failed", "job", job.Name, "error", err)
		return
	}
	s.metrics.Runs.WithLabelValues(job.Name, "ok").Inc()
}
