package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pagehaven/bookstore-backend/pkg/config"
	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
	"github.com/pagehaven/bookstore-backend/pkg/outbox"
	"github.com/pagehaven/bookstore-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxRetryDelay         = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type broker interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(eventType enums.OutboxEventType, rawPayload json.RawMessage) (*registry.ResolvedEvent, error)
}

// senderFor hands out a sender per topic so tests can swap the broker out.
type senderFor func(topic string) topicSender

type topicSender interface {
	Send(context.Context, *gcppubsub.Message) sendFuture
}

type sendFuture interface {
	Get(context.Context) (string, error)
}

type PublisherParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          txRunner
	Broker      broker
	Store       eventStore
	Resolver    eventResolver
	SenderFor   senderFor
	DeadLetters deadLetterStore
}

// Publisher drains the outbox table in batches and relays each row to its
// pub/sub topic. Rows that cannot ever publish land in the dead letter table.
type Publisher struct {
	cfg         *config.Config
	logg        *logger.Logger
	db          txRunner
	store       eventStore
	broker      broker
	resolver    eventResolver
	deadLetters deadLetterStore
	senderFor   senderFor
	batchSize   int
	maxAttempts int
	pollEvery   time.Duration
}

func NewPublisher(params PublisherParams) (*Publisher, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Broker == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Store == nil {
		return nil, errors.New("outbox store is required")
	}
	if params.Resolver == nil {
		return nil, errors.New("event resolver is required")
	}
	if params.DeadLetters == nil {
		return nil, errors.New("dead letter store is required")
	}

	senderFor := params.SenderFor
	if senderFor == nil {
		senderFor = func(topic string) topicSender {
			pub := params.Broker.Publisher(topic)
			if pub == nil {
				return nil
			}
			return &gcpSender{pub: pub}
		}
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	attempts := params.Config.Outbox.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	return &Publisher{
		cfg:         params.Config,
		logg:        params.Logger,
		db:          params.DB,
		store:       params.Store,
		broker:      params.Broker,
		resolver:    params.Resolver,
		deadLetters: params.DeadLetters,
		senderFor:   senderFor,
		batchSize:   batch,
		maxAttempts: attempts,
		pollEvery:   time.Duration(pollMs) * time.Millisecond,
	}, nil
}

func (p *Publisher) checkDependencies(ctx context.Context) error {
	deps := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", p.db.Ping},
		{"pubsub", p.broker.Ping},
	}
	for _, dep := range deps {
		if err := dep.ping(ctx); err != nil {
			p.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	return nil
}

// Run polls until the context is canceled. A quiet poll sleeps one interval;
// consecutive drain errors back off exponentially up to maxRetryDelay.
func (p *Publisher) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := p.checkDependencies(ctx); err != nil {
		return err
	}

	every := p.pollEvery
	if every <= 0 {
		every = time.Duration(defaultPollMs) * time.Millisecond
	}
	delay := retryDelay{base: every, max: maxRetryDelay, current: every}

	for {
		if err := ctx.Err(); err != nil {
			p.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		drained, err := p.drainOnce(ctx)
		if err != nil {
			p.logg.Error(ctx, "outbox drain failed", err)
			if pauseErr := p.pause(ctx, withJitter(delay.bump())); pauseErr != nil {
				return pauseErr
			}
			continue
		}
		delay.reset()

		if drained > 0 {
			continue
		}
		if err := p.pause(ctx, withJitter(every)); err != nil {
			return err
		}
	}
}

// drainOnce fetches one batch inside a transaction and reports how many rows
// it handled. An error aborts the transaction so no partial marks survive.
func (p *Publisher) drainOnce(ctx context.Context) (int, error) {
	var drained int
	err := p.db.WithTx(ctx, func(tx *gorm.DB) error {
		batch, err := p.store.FetchUnpublishedForPublish(tx, p.batchSize, p.maxAttempts)
		if err != nil {
			return err
		}
		for _, event := range batch {
			if err := p.dispatch(ctx, tx, event); err != nil {
				return err
			}
			drained++
		}
		return nil
	})
	return drained, err
}

func (p *Publisher) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := p.resolver.Resolve(event.EventType, event.Payload)
	if err != nil {
		return p.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, "", nil)
	}

	topic := resolved.Descriptor.Topic
	fields := p.logFields(event, resolved.Envelope, topic)

	sendErr := p.send(ctx, event, resolved)
	if sendErr == nil {
		if markErr := p.store.MarkPublishedTx(tx, event.ID); markErr != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		p.logg.Info(p.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	}

	var permanent *registry.NonRetryableError
	if errors.As(sendErr, &permanent) {
		return p.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, sendErr, topic, fields)
	}

	attempt := event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= p.maxAttempts {
		fields["terminal_reason"] = "max_attempts"
		exhausted := fmt.Errorf("max publish attempts reached: %w", sendErr)
		return p.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, exhausted, topic, fields)
	}

	logCtx := p.logg.WithField(p.logg.WithFields(ctx, fields), "error", sendErr.Error())
	p.logg.Warn(logCtx, "outbox publish failed")
	if markErr := p.store.MarkFailedTx(tx, event.ID, sendErr); markErr != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	return nil
}

// deadLetter copies the row into the DLQ and marks the source row terminal,
// both inside the batch transaction.
func (p *Publisher) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, topic string, fields map[string]any) error {
	if fields == nil {
		fields = p.logFields(event, outbox.PayloadEnvelope{}, topic)
	}
	fields["error_reason"] = reason
	logCtx := p.logg.WithField(p.logg.WithFields(ctx, fields), "error", cause.Error())
	p.logg.Warn(logCtx, "outbox event will not be retried")

	var message *string
	if cause != nil {
		text := cause.Error()
		message = &text
	}
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  message,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if insertErr := p.deadLetters.InsertTx(tx, entry); insertErr != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, insertErr)
	}
	if markErr := p.store.MarkTerminalTx(tx, event.ID, cause, p.maxAttempts); markErr != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, markErr)
	}
	return nil
}

func (p *Publisher) send(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	sender := p.senderFor(topic)
	if sender == nil {
		return &registry.NonRetryableError{Reason: fmt.Sprintf("no sender configured for topic %s", topic)}
	}

	sendCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	future := sender.Send(sendCtx, &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   strconv.FormatInt(event.AggregateID, 10),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if future == nil {
		return &registry.NonRetryableError{Reason: fmt.Sprintf("sender returned nil for topic %s", topic)}
	}
	_, err := future.Get(sendCtx)
	return err
}

func (p *Publisher) logFields(event models.OutboxEvent, envelope outbox.PayloadEnvelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"batch_size":     p.batchSize,
		"attempt_count":  event.AttemptCount,
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (p *Publisher) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryDelay doubles on each bump and snaps back to base after a clean drain.
type retryDelay struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

func (d *retryDelay) reset() {
	d.current = d.base
}

func (d *retryDelay) bump() time.Duration {
	if d.current <= 0 {
		d.current = d.base
	}
	d.current *= 2
	if d.current > d.max {
		d.current = d.max
	}
	return d.current
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

type gcpSender struct {
	pub *gcppubsub.Publisher
}

func (s *gcpSender) Send(ctx context.Context, msg *gcppubsub.Message) sendFuture {
	if s == nil || s.pub == nil {
		return nil
	}
	return gcpFuture{res: s.pub.Publish(ctx, msg)}
}

type gcpFuture struct {
	res *gcppubsub.PublishResult
}

func (f gcpFuture) Get(ctx context.Context) (string, error) {
	if f.res == nil {
		return "", errors.New("publish result is nil")
	}
	return f.res.Get(ctx)
}
