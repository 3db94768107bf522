package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const (
	defaultBatch        = 50
	defaultAttempts     = 10
	defaultPollInterval = 500 * time.Millisecond
	publishDeadline     = 15 * time.Second
)

type txDB interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type router interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// publisher and publishResult narrow the Pub/Sub client for tests.
type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          txDB
	PubSub      topicSource
	Outbox      eventStore
	Routes      router
	DeadLetters deadLetterStore
	// Publishers overrides how a topic name becomes a publisher. A nil
	// return marks the topic unroutable.
	Publishers func(topic string) publisher
}

func (p ServiceParams) missing() error {
	for _, dep := range []struct {
		name string
		set  bool
	}{
		{"config", p.Config != nil},
		{"logger", p.Logger != nil},
		{"database client", p.DB != nil},
		{"pubsub client", p.PubSub != nil},
		{"outbox store", p.Outbox != nil},
		{"event routes", p.Routes != nil},
		{"dead letter store", p.DeadLetters != nil},
	} {
		if !dep.set {
			return fmt.Errorf("%s is required", dep.name)
		}
	}
	return nil
}

// Service relays committed outbox rows to Pub/Sub. A batch is claimed and
// settled in one transaction; a crash mid-batch leaves its rows unpublished.
type Service struct {
	logg        *logger.Logger
	db          txDB
	pubsub      topicSource
	outbox      eventStore
	routes      router
	deadLetters deadLetterStore
	openTopic   func(topic string) publisher
	topics      map[string]publisher

	batch    int
	attempts int
	pace     *pacer
}

func NewService(params ServiceParams) (*Service, error) {
	if err := params.missing(); err != nil {
		return nil, err
	}
	cfg := params.Config.Outbox
	poll := defaultPollInterval
	if cfg.PollIntervalMS > 0 {
		poll = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	}

	svc := &Service{
		logg:        params.Logger,
		db:          params.DB,
		pubsub:      params.PubSub,
		outbox:      params.Outbox,
		routes:      params.Routes,
		deadLetters: params.DeadLetters,
		openTopic:   params.Publishers,
		topics:      map[string]publisher{},
		batch:       positiveOr(cfg.BatchSize, defaultBatch),
		attempts:    positiveOr(cfg.MaxAttempts, defaultAttempts),
		pace:        newPacer(poll),
	}
	if svc.openTopic == nil {
		svc.openTopic = svc.pubsubTopic
	}
	return svc, nil
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

// Run polls until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}

	for {
		claimed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox batch failed", err)
		}
		if sleepCtx(ctx, s.pace.next(claimed, err)) != nil {
			s.logg.Info(ctx, "outbox publisher stopping")
			return ctx.Err()
		}
	}
}

// processBatch reports whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var claimed bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.outbox.FetchUnpublishedForPublish(tx, s.batch, s.attempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		claimed = len(rows) > 0
		for _, row := range rows {
			if err := s.settle(ctx, tx, row, s.deliver(ctx, row)); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// verdict is how one row leaves the batch: delivered, retried later, or
// parked in the dead letter table under reason.
type verdict struct {
	retry  bool
	reason enums.OutboxDLQErrorReason
	err    error
}

var errUnroutable = errors.New("no publisher for topic")

func (s *Service) deliver(ctx context.Context, row models.OutboxEvent) verdict {
	resolved, err := s.routes.Resolve(row)
	if err != nil {
		return verdict{reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}

	err = s.publish(ctx, resolved.Route.Topic, message(row, resolved))
	if err == nil {
		return verdict{}
	}
	var permanent registry.NonRetryableError
	switch {
	case errors.Is(err, errUnroutable):
		return verdict{reason: enums.OutboxDLQReasonUnroutable, err: err}
	case errors.As(err, &permanent):
		return verdict{reason: enums.OutboxDLQReasonNonRetryable, err: err}
	case row.AttemptCount+1 >= s.attempts:
		return verdict{reason: enums.OutboxDLQReasonMaxAttempts, err: fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err)}
	}
	return verdict{retry: true, err: err}
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, v verdict) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	})

	if v.err == nil {
		if err := s.outbox.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		s.logg.Info(ctx, "outbox event published")
		return nil
	}

	ctx = s.logg.WithField(ctx, "error", v.err.Error())
	if v.retry {
		s.logg.Warn(ctx, "outbox publish failed, will retry")
		if err := s.outbox.MarkFailedTx(tx, row.ID, v.err); err != nil {
			return fmt.Errorf("mark %s failed: %w", row.ID, err)
		}
		return nil
	}

	s.logg.Warn(s.logg.WithField(ctx, "error_reason", v.reason), "outbox event dead-lettered")
	if err := s.deadLetters.InsertTx(tx, deadLetter(row, v)); err != nil {
		return fmt.Errorf("dead-letter %s: %w", row.ID, err)
	}
	if err := s.outbox.MarkTerminalTx(tx, row.ID, v.err, s.attempts); err != nil {
		return fmt.Errorf("mark %s terminal: %w", row.ID, err)
	}
	return nil
}

func deadLetter(row models.OutboxEvent, v verdict) models.OutboxDLQ {
	msg := v.err.Error()
	return models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   v.reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
}

// message ships the stored envelope as is. Routing metadata rides in
// attributes so subscribers can filter without decoding.
func message(row models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	attrs := map[string]string{
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
	}
	attrs["event_id"] = resolved.Envelope.EventID
	attrs["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
	return &gcppubsub.Message{Data: row.Payload, Attributes: attrs}
}

func (s *Service) publish(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.topics[topic]
	if pub == nil {
		if pub = s.openTopic(topic); pub == nil {
			return fmt.Errorf("%w %q", errUnroutable, topic)
		}
		s.topics[topic] = pub
	}

	ctx, cancel := context.WithTimeout(ctx, publishDeadline)
	defer cancel()
	res := pub.Publish(ctx, msg)
	if res == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for %s returned no result", topic))
	}
	_, err := res.Get(ctx)
	return err
}

func (s *Service) pubsubTopic(topic string) publisher {
	if p := s.pubsub.Publisher(topic); p != nil {
		return gcpPublisher{p}
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.Publisher.Publish(ctx, msg)
}
