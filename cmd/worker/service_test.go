package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/logger"
)

type fakePinger struct {
	err   error
	calls int
}

func (f *fakePinger) Ping(context.Context) error {
	f.calls++
	return f.err
}

type fakeConsumer struct {
	started chan struct{}
	err     error
}

func (f *fakeConsumer) Run(ctx context.Context) error {
	close(f.started)
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func newTestService(t *testing.T, db, redis, ps *fakePinger, c *fakeConsumer) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:    &config.Config{},
		Logger:    logger.Nop(),
		DB:        db,
		Redis:     redis,
		PubSub:    ps,
		Consumer:  c,
		Heartbeat: time.Hour,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewServiceRequiresConsumer(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: logger.Nop(),
		DB:     &fakePinger{},
		Redis:  &fakePinger{},
		PubSub: &fakePinger{},
	})
	if err == nil {
		t.Fatal("expected error without consumer")
	}
}

func TestRunStopsWhenDependencyUnavailable(t *testing.T) {
	redis := &fakePinger{err: errors.New("connection refused")}
	ps := &fakePinger{}
	c := &fakeConsumer{started: make(chan struct{})}
	svc := newTestService(t, &fakePinger{}, redis, ps, c)

	err := svc.Run(context.Background())
	if err == nil {
		t.Fatal("expected readiness error")
	}
	if ps.calls != 0 {
		t.Fatalf("pubsub pinged after redis failed")
	}
	select {
	case <-c.started:
		t.Fatal("consumer started despite failed readiness")
	default:
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	c := &fakeConsumer{started: make(chan struct{})}
	svc := newTestService(t, &fakePinger{}, &fakePinger{}, &fakePinger{}, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	<-c.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestRunPropagatesConsumerFailure(t *testing.T) {
	boom := errors.New("subscription deleted")
	c := &fakeConsumer{started: make(chan struct{}), err: boom}
	svc := newTestService(t, &fakePinger{}, &fakePinger{}, &fakePinger{}, c)

	if err := svc.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected consumer error, got %v", err)
	}
}
