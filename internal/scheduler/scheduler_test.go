package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/soillink/soillink/internal/metrics"
)

func TestEveryRejectsBadJobs(t *testing.T) {
	s := New()
	if err := s.Every("zero", 0, func(context.Context) error { return nil }); err == nil {
		t.Error("expected error for zero interval")
	}
	if err := s.Every("nil", time.Second, nil); err == nil {
		t.Error("expected error for nil func")
	}
}

func TestRunNowRecordsOutcome(t *testing.T) {
	s := New()
	var calls atomic.Int32
	if err := s.Every("test_ok", time.Hour, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	s.Every("test_err", time.Hour, func(context.Context) error { return errors.New("cache unavailable") })
	s.Every("test_panic", time.Hour, func(context.Context) error { panic("boom") })

	okBefore := testutil.ToFloat64(metrics.SchedulerJobRuns.WithLabelValues("test_ok", "success"))
	errBefore := testutil.ToFloat64(metrics.SchedulerJobRuns.WithLabelValues("test_err", "error"))
	panicBefore := testutil.ToFloat64(metrics.SchedulerJobRuns.WithLabelValues("test_panic", "panic"))

	for _, name := range []string{"test_ok", "test_err", "test_panic"} {
		if !s.RunNow(name) {
			t.Fatalf("expected %s to be registered", name)
		}
	}
	if s.RunNow("missing") {
		t.Error("unknown job should not run")
	}

	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
	if d := testutil.ToFloat64(metrics.SchedulerJobRuns.WithLabelValues("test_ok", "success")) - okBefore; d != 1 {
		t.Errorf("success runs +%v, want +1", d)
	}
	if d := testutil.ToFloat64(metrics.SchedulerJobRuns.WithLabelValues("test_err", "error")) - errBefore; d != 1 {
		t.Errorf("error runs +%v, want +1", d)
	}
	if d := testutil.ToFloat64(metrics.SchedulerJobRuns.WithLabelValues("test_panic", "panic")) - panicBefore; d != 1 {
		t.Errorf("panic runs +%v, want +1", d)
	}
}

func TestEveryReplacesSameName(t *testing.T) {
	s := New()
	var first, second atomic.Int32
	s.Every("job", time.Hour, func(context.Context) error { first.Add(1); return nil })
	s.Every("job", time.Hour, func(context.Context) error { second.Add(1); return nil })

	if n := len(s.Jobs()); n != 1 {
		t.Fatalf("expected 1 job, got %d", n)
	}
	s.RunNow("job")
	if first.Load() != 0 || second.Load() != 1 {
		t.Errorf("expected only the replacement to run, got %d and %d", first.Load(), second.Load())
	}
}

func TestStartRunsJobsAndStopCancelsContext(t *testing.T) {
	s := New()
	ran := make(chan struct{}, 1)
	var jobCtx atomic.Value
	s.Every("tick", time.Second, func(ctx context.Context) error {
		jobCtx.Store(ctx)
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})
	s.Start()
	s.Start()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c, _ := jobCtx.Load().(context.Context); c == nil || c.Err() == nil {
		t.Error("expected job context cancelled after Stop")
	}
}
