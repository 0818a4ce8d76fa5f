package main

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

func gcpPublisherFactory(src publisherSource) publisherFactory {
	return func(topic string) publisher {
		p := src.Publisher(topic)
		if p == nil {
			return nil
		}
		return gcpPublisher{p}
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return gcpResult{g.p.Publish(ctx, msg)}
}

type gcpResult struct {
	r *gcppubsub.PublishResult
}

func (g gcpResult) Get(ctx context.Context) (string, error) {
	if g.r == nil {
		return "", errors.New("publish result is nil")
	}
	return g.r.Get(ctx)
}
