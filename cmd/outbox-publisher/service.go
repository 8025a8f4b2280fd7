package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/digital-fulfillment/pkg/config"
	"github.com/angelmondragon/digital-fulfillment/pkg/db/models"
	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
	"github.com/angelmondragon/digital-fulfillment/pkg/metrics"
	"github.com/angelmondragon/digital-fulfillment/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
}

// Service drains the outbox table to Pub/Sub. Rows are claimed with
// SKIP LOCKED inside one transaction per batch, so several publishers can run
// side by side.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	dlq              dlqRepository
	publisherFactory publisherFactory
	metrics          *metrics.OutboxMetrics
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
	now              func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = gcpPublisherFactory(params.PubSub)
	}
	cfg := params.Config.Outbox
	s := &Service{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		publisherFactory: factory,
		metrics:          params.Metrics,
		batchSize:        cfg.BatchSize,
		maxAttempts:      cfg.MaxAttempts,
		pollInterval:     time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		now:              func() time.Time { return time.Now().UTC() },
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	return s, nil
}

// Run publishes until ctx is canceled. A non-empty batch is followed
// immediately by the next one; errors back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	deps := []struct {
		name string
		ping func(context.Context) error
	}{{"database", s.db.Ping}, {"pubsub", s.pubsub.Ping}}
	for _, dep := range deps {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}

	backoff := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = min(backoff*2, maxBackoff)
			wait = backoff
		case processed:
			backoff = s.pollInterval
			continue
		default:
			backoff = s.pollInterval
			wait = s.pollInterval
		}
		if err := sleepContext(ctx, wait+rand.N(jitterWindow)); err != nil {
			return err
		}
	}
}

// disposition is what happened to one outbox row in a batch.
type disposition struct {
	result string
	reason enums.OutboxDLQErrorReason
	err    error
}

// processBatch claims and publishes one batch. It reports whether any rows
// were claimed. Only bookkeeping failures abort the transaction; publish
// failures are recorded on the row.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := 0
	tally := map[string]int{}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)
		for _, event := range events {
			d := s.publishEvent(ctx, event)
			if err := s.record(ctx, tx, event, d); err != nil {
				return err
			}
			tally[d.result]++
		}
		return nil
	})
	if claimed > 0 {
		s.metrics.IncBatch()
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"claimed":       claimed,
			"published":     tally[metrics.OutboxPublished],
			"retry":         tally[metrics.OutboxRetry],
			"dead_lettered": tally[metrics.OutboxDeadLettered],
		}), "outbox batch done")
	}
	return claimed > 0, err
}

func (s *Service) publishEvent(ctx context.Context, event models.OutboxEvent) disposition {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return disposition{result: metrics.OutboxDeadLettered, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}

	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		err := fmt.Errorf("publisher not configured for topic %s", topic)
		return disposition{result: metrics.OutboxDeadLettered, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, newMessage(event, resolved))
	if result == nil {
		err := fmt.Errorf("publisher returned nil for topic %s", topic)
		return disposition{result: metrics.OutboxDeadLettered, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	if _, err := result.Get(publishCtx); err != nil {
		var nonRetry registry.NonRetryableError
		switch {
		case errors.As(err, &nonRetry):
			return disposition{result: metrics.OutboxDeadLettered, reason: enums.OutboxDLQReasonNonRetryable, err: err}
		case event.AttemptCount+1 >= s.maxAttempts:
			err = fmt.Errorf("max publish attempts reached: %w", err)
			return disposition{result: metrics.OutboxDeadLettered, reason: enums.OutboxDLQReasonMaxAttempts, err: err}
		default:
			return disposition{result: metrics.OutboxRetry, err: err}
		}
	}
	return disposition{result: metrics.OutboxPublished}
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, d disposition) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"attempt_count":  event.AttemptCount,
	})
	s.metrics.IncEvent(string(event.EventType), d.result)

	switch d.result {
	case metrics.OutboxPublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.ObservePublished(event.CreatedAt)
		s.logg.Info(ctx, "outbox event published")
		return nil

	case metrics.OutboxRetry:
		s.logg.WarnErr(ctx, "outbox publish failed", d.err)
		if err := s.repo.MarkFailedTx(tx, event.ID, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		return nil
	}

	s.logg.WarnErr(s.logg.WithField(ctx, "error_reason", d.reason), "outbox event will not be retried", d.err)
	msg := d.err.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   d.reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, d.err, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
