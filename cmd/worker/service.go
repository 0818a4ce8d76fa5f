package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       pinger
	Redis    pinger
	PubSub   pinger
	Consumer consumer
	// Heartbeat is how often the worker logs that it is alive. Zero means 30s.
	Heartbeat time.Duration
}

// Service runs the order fulfillment consumer once its dependencies answer.
type Service struct {
	cfg       *config.Config
	logg      *logger.Logger
	deps      []namedPinger
	consumer  consumer
	heartbeat time.Duration
}

type namedPinger struct {
	name string
	p    pinger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("fulfillment consumer is required")
	}
	heartbeat := params.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	return &Service{
		cfg:  params.Config,
		logg: params.Logger,
		deps: []namedPinger{
			{name: "database", p: params.DB},
			{name: "redis", p: params.Redis},
			{name: "pubsub", p: params.PubSub},
		},
		consumer:  params.Consumer,
		heartbeat: heartbeat,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.deps {
		if err := pingDependency(ctx, s.logg, dep.name, dep.p.Ping); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run blocks until ctx is canceled or the consumer returns.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.consumer.Run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			// Receive returns once in-flight handlers finish
			if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "consumer stopped unexpectedly", err)
				return err
			}
			return err
		case <-ticker.C:
			s.logg.Debug(ctx, "worker.heartbeat")
		}
	}
}
