package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/metrics"
	"github.com/molimor/molimor-backend/pkg/outbox"
	"github.com/molimor/molimor-backend/pkg/outbox/payloads"
	"github.com/molimor/molimor-backend/pkg/outbox/registry"
)

func orderEvent(t *testing.T, label string) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, label),
	}
}

func orderPlacedResolution() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "molimor-order-events",
			AggregateType: enums.AggregateOrder,
		},
		Envelope: outbox.Envelope{Version: 1},
		Payload:  &payloads.OrderPlacedEvent{},
	}
}

func TestProcessBatchRecordsEachOutcome(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{orderEvent(t, "one"), orderEvent(t, "two")}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: orderPlacedResolution()}, &fakeDLQRepo{}, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("expected second row marked published, got %v", repo.published)
	}
}

func TestProcessBatchSendsWholeBatchBeforeAwaiting(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{orderEvent(t, "a"), orderEvent(t, "b"), orderEvent(t, "c")}}
	pub := &fakePublisher{}
	pub.results = []publishResult{
		&countingResult{pub: pub},
		&countingResult{pub: pub},
		&countingResult{pub: pub},
	}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: orderPlacedResolution()}, &fakeDLQRepo{}, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if first := pub.sentAtFirstGet; first != 3 {
		t.Fatalf("expected all 3 messages sent before the first ack wait, got %d", first)
	}
	if len(repo.published) != 3 {
		t.Fatalf("expected 3 published rows, got %d", len(repo.published))
	}
}

func TestProcessBatchSetsRoutingAttributes(t *testing.T) {
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	event := orderEvent(t, "placed")
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	reg := prometheus.NewRegistry()
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: orderPlacedResolution()}, &fakeDLQRepo{}, nil)
	service.metrics = metrics.NewOutboxMetrics(reg)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.sent))
	}
	attrs := pub.sent[0].Attributes
	want := map[string]string{
		"event_type":     string(enums.EventOrderPlaced),
		"event_id":       event.ID.String(),
		"version":        "1",
		"aggregate_type": string(enums.AggregateOrder),
		"aggregate_id":   event.AggregateID.String(),
	}
	for key, value := range want {
		if attrs[key] != value {
			t.Fatalf("attribute %s = %q, want %q", key, attrs[key], value)
		}
	}
	if !bytes.Equal(pub.sent[0].Data, event.Payload) {
		t.Fatalf("payload not forwarded verbatim")
	}
	got, err := testutil.GatherAndCount(reg, "molimor_outbox_published_total")
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected published counter series, got %d", got)
	}
}

func TestProcessBatchDeadLettersUndecodableRow(t *testing.T) {
	event := orderEvent(t, "nonretryable")
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	resolver := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	dlqRepo := &fakeDLQRepo{}
	pub := &fakePublisher{}
	service := newTestService(t, repo, pub, resolver, dlqRepo, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.sent) != 0 {
		t.Fatalf("undecodable row must not be published")
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq payload mismatch")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
}

func TestProcessBatchDeadLettersWhenTopicHasNoPublisher(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{orderEvent(t, "orphan")}}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, nil, &fakeRegistry{resolved: orderPlacedResolution()}, dlqRepo, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlqRepo.entries) != 1 || dlqRepo.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected non-retryable dlq entry, got %+v", dlqRepo.entries)
	}
}

func TestProcessBatchDeadLettersOnMaxAttempts(t *testing.T) {
	event := orderEvent(t, "max-attempts")
	event.AttemptCount = 1
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: orderPlacedResolution()}, dlqRepo, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	if entry := dlqRepo.entries[0]; entry.EventID != event.ID || entry.ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected dlq entry %+v", entry)
	}
}

func TestProcessBatchReportsIdleWhenEmpty(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{resolved: orderPlacedResolution()}, &fakeDLQRepo{}, nil)
	processed, err := service.processBatch(context.Background())
	if err != nil || processed {
		t.Fatalf("expected idle batch, got processed=%v err=%v", processed, err)
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, registry registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{
		Outbox: outboxCfg,
	}
	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logger.Nop(),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         registry,
		PublisherFactory: func(_ string) publisher { return pub },
		DLQRepository:    dlq,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	env := outbox.Envelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results        []publishResult
	sent           []*gcppubsub.Message
	sentAtFirstGet int
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

// countingResult notes how many messages were already sent when the first
// ack was awaited.
type countingResult struct {
	pub *fakePublisher
}

func (c *countingResult) Get(context.Context) (string, error) {
	if c.pub.sentAtFirstGet == 0 {
		c.pub.sentAtFirstGet = len(c.pub.sent)
	}
	return "server-id", nil
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
