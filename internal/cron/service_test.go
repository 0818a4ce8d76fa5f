package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/molimor/molimor-backend/pkg/logger"
)

type fakeLock struct {
	acquired bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.acquired = false; return nil }

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failing := &testJob{name: "fail", err: errors.New("boom")}
	last := &testJob{name: "last"}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: registryOf(t, success, failing, last),
		Lock:     &fakeLock{},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	err = service.runCycle(context.Background())
	if err == nil || !strings.Contains(err.Error(), "fail: boom") {
		t.Fatalf("expected the failing job reported, got %v", err)
	}
	for _, job := range []*testJob{success, failing, last} {
		if job.runs != 1 {
			t.Fatalf("job %s ran %d times, want 1", job.name, job.runs)
		}
	}
}

type deadlineJob struct{ hadDeadline bool }

func (d *deadlineJob) Name() string { return "deadline" }

func (d *deadlineJob) Run(ctx context.Context) error {
	_, d.hadDeadline = ctx.Deadline()
	return nil
}

func TestServiceRunCycleBoundsEachJob(t *testing.T) {
	job := &deadlineJob{}
	service, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		Registry:   registryOf(t, job),
		Lock:       &fakeLock{},
		JobTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if !job.hadDeadline {
		t.Fatal("expected job context to carry a deadline")
	}
}

type panicJob struct{}

func (panicJob) Name() string { return "panics" }

func (panicJob) Run(context.Context) error { panic("nil map") }

func TestServiceRunCycleSurvivesPanickingJob(t *testing.T) {
	after := &testJob{name: "after"}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: registryOf(t, panicJob{}, after),
		Lock:     &fakeLock{},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected panic reported as error, got %v", err)
	}
	if after.runs != 1 {
		t.Fatalf("expected job after panic to run once, ran %d", after.runs)
	}
}

func TestServiceRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "skipped"}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: registryOf(t, job),
		Lock:     &fakeLock{acquired: true},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected no runs while another instance holds the lock, got %d", job.runs)
	}
}

func registryOf(t *testing.T, jobs ...Job) *Registry {
	t.Helper()
	registry := NewRegistry()
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			t.Fatalf("register %s: %v", job.Name(), err)
		}
	}
	return registry
}
