// Package scheduler runs the service's periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/soillink/soillink/internal/logger"
	"github.com/soillink/soillink/internal/metrics"
)

// Job is a unit of periodic work. Returned errors are logged and counted.
type Job func(ctx context.Context) error

// Scheduler wraps a cron instance with named interval jobs.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context

	mu      sync.Mutex
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
	started bool
}

// New returns a stopped scheduler. Jobs receive a context that is cancelled
// by Stop.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Every registers fn to run every interval under name. Registering the same
// name twice replaces the earlier job.
func (s *Scheduler) Every(name string, interval time.Duration, fn Job) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: job %q: interval must be positive", name)
	}
	if fn == nil {
		return fmt.Errorf("scheduler: job %q: nil func", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
	}
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() { s.run(name, fn) }))
	s.entries[name] = id
	logger.Debug("scheduled job registered", "job", name, "interval", interval)
	return nil
}

// RunNow executes a registered job synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.cron.Entry(id).WrappedJob.Run()
	return true
}

// Jobs lists registered job names with their next run time.
func (s *Scheduler) Jobs() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

func (s *Scheduler) run(name string, fn Job) {
	start := time.Now()
	status := "success"
	defer func() {
		if rec := recover(); rec != nil {
			status = "panic"
			logger.Error("scheduled job panicked", "job", name, "panic", rec)
		}
		metrics.SchedulerJobRuns.WithLabelValues(name, status).Inc()
		metrics.SchedulerJobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	if err := fn(s.ctx); err != nil {
		status = "error"
		logger.Warn("scheduled job failed", "job", name, "error", err)
		return
	}
	logger.Debug("scheduled job completed", "job", name, "duration", time.Since(start))
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	logger.Info("scheduler started", "jobs", len(s.entries))
}

// Stop cancels the job context and waits for running jobs to return or for
// ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: waiting for jobs: %w", ctx.Err())
	}
}
