package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flexprice/billing/internal/config"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/outbox"
	"github.com/flexprice/billing/internal/sentry"
	"github.com/flexprice/billing/internal/service"
	"github.com/flexprice/billing/internal/types"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
)

const (
	JobRenewal    = "renewal"
	JobOutbox     = "outbox"
	JobUsageReset = "usage_reset"
)

// RunFunc is one tick of a background job. The returned value is the pass
// summary reported to callers of RunOnce.
type RunFunc func(ctx context.Context, now time.Time) (interface{}, error)

type job struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	run      RunFunc

	// held for the duration of a tick so a manual run never overlaps a
	// scheduled one
	mu sync.Mutex
}

// Scheduler drives the periodic passes of the billing engine: renewals,
// outbox dispatch and usage counter resets
type Scheduler struct {
	cron   *cron.Cron
	jobs   map[string]*job
	clock  types.Clock
	logger *logger.Logger
	sentry *sentry.Service
}

// Module provides the scheduler. Starting it is left to the deployment mode.
var Module = fx.Options(
	fx.Provide(NewScheduler),
)

func NewScheduler(
	cfg *config.Configuration,
	clock types.Clock,
	logger *logger.Logger,
	sentry *sentry.Service,
	renewals service.RenewalService,
	usage service.UsageService,
	dispatcher *outbox.Dispatcher,
) *Scheduler {
	l := logger.CronLogger()
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		jobs:   make(map[string]*job),
		clock:  clock,
		logger: logger,
		sentry: sentry,
	}

	s.Add(JobRenewal, cfg.Renewal.Interval, cfg.Renewal.TickTimeout, func(ctx context.Context, now time.Time) (interface{}, error) {
		return renewals.RunRenewalPass(ctx, now)
	})
	s.Add(JobOutbox, cfg.Outbox.Interval, cfg.Outbox.TickTimeout, func(ctx context.Context, _ time.Time) (interface{}, error) {
		return dispatcher.DispatchPending(ctx, 0)
	})
	s.Add(JobUsageReset, cfg.Usage.ResetInterval, cfg.Usage.ResetInterval, func(ctx context.Context, now time.Time) (interface{}, error) {
		count, err := usage.ResetDueCounters(ctx, now)
		return map[string]int{"reset": count}, err
	})
	return s
}

// Add registers a job. It replaces a job of the same name and must be called
// before Start.
func (s *Scheduler) Add(name string, interval, timeout time.Duration, run RunFunc) {
	if timeout <= 0 {
		timeout = interval
	}
	s.jobs[name] = &job{
		name:     name,
		interval: interval,
		timeout:  timeout,
		run:      run,
	}
}

// Jobs returns the registered job names
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start schedules every job on its interval
func (s *Scheduler) Start() error {
	for _, name := range s.Jobs() {
		j := s.jobs[name]
		if j.interval <= 0 {
			s.logger.Warnw("job has no interval, not scheduling", "job", name)
			continue
		}
		if _, err := s.cron.AddFunc("@every "+j.interval.String(), func() { s.tick(j) }); err != nil {
			return ierr.WithError(err).
				WithHintf("Failed to schedule job %s", name).
				Mark(ierr.ErrConfiguration)
		}
		s.logger.Infow("scheduled job", "job", name, "interval", j.interval)
	}
	s.cron.Start()
	return nil
}

// Stop stops scheduling and waits for running ticks until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterWithLifecycle starts the scheduler with the fx app
func (s *Scheduler) RegisterWithLifecycle(lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.logger.Info("starting scheduler")
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			s.logger.Info("stopping scheduler")
			return s.Stop(ctx)
		},
	})
}

// tick is a scheduled run. It is skipped when a manual run holds the job.
func (s *Scheduler) tick(j *job) {
	if !j.mu.TryLock() {
		s.logger.Debugw("job already running, skipping tick", "job", j.name)
		return
	}
	defer j.mu.Unlock()

	_, _ = s.execute(context.Background(), j)
}

// RunOnce runs the named job synchronously, waiting for a running tick to
// finish first
func (s *Scheduler) RunOnce(ctx context.Context, name string) (interface{}, error) {
	j, ok := s.jobs[name]
	if !ok {
		return nil, ierr.NewErrorf("job %s not found", name).
			WithHintf("Job must be one of %v", s.Jobs()).
			Mark(ierr.ErrNotFound)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	return s.execute(ctx, j)
}

// execute runs a tick outside any request scope. Passes span every tenant,
// so only cancellation is taken from the caller's context.
func (s *Scheduler) execute(caller context.Context, j *job) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	stop := context.AfterFunc(caller, cancel)
	defer stop()

	start := s.clock.Now()
	result, err := j.run(ctx, start)
	if err != nil {
		s.logger.Errorw("job failed", "job", j.name, "error", err)
		s.sentry.CaptureWithTags(ctx, err, map[string]string{"job": j.name})
		return result, err
	}

	s.logger.Debugw("job finished", "job", j.name, "duration", s.clock.Now().Sub(start))
	return result, nil
}
