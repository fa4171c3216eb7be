package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/metrics"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/outbox/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OutboxRepository interface {
	SaveOutboxEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error
	GetUnpublishedEvents(ctx context.Context, tx pgx.Tx, batchSize, maxAttempts int) ([]*domain.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, tx pgx.Tx, eventID int64) error
	MarkEventFailed(ctx context.Context, tx pgx.Tx, eventID int64, errMsg string) error
}

type KafkaProducer interface {
	ProduceMessage(ctx context.Context, topic, key string, message any) error
}

type Options struct {
	BatchSize   int
	Interval    time.Duration
	MaxAttempts int
}

type OutboxProcessor struct {
	pool          *pgxpool.Pool
	repo          OutboxRepository
	kafkaProducer KafkaProducer
	logger        *zap.Logger
	metrics       *metrics.Metrics
	opts          Options
	tracer        trace.Tracer
}

func NewOutboxProcessor(
	pool *pgxpool.Pool,
	repo OutboxRepository,
	producer KafkaProducer,
	logger *zap.Logger,
	m *metrics.Metrics,
	opts Options,
) *OutboxProcessor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}

	return &OutboxProcessor{
		pool:          pool,
		repo:          repo,
		kafkaProducer: producer,
		logger:        logger,
		metrics:       m,
		opts:          opts,
		tracer:        otel.Tracer("outbox-worker"),
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	mylogger.Info(
		ctx,
		p.logger,
		"Starting outbox processor",
		zap.Int("batch_size", p.opts.BatchSize),
		zap.Duration("interval", p.opts.Interval),
	)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, p.logger, "Outbox processor stopping")
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil && ctx.Err() == nil {
				mylogger.Error(
					ctx,
					p.logger,
					"Error processing outbox batch",
					zap.Error(err),
				)
			}
		}
	}
}

func (p *OutboxProcessor) processBatch(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.processBatch")
	defer span.End()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				cleanupCtx,
				p.logger,
				"Outbox worker failed to rollback transaction",
				zap.Error(err),
			)
		}
	}()

	events, err := p.repo.GetUnpublishedEvents(ctx, tx, p.opts.BatchSize, p.opts.MaxAttempts)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	span.SetAttributes(attribute.Int("outbox.batch", len(events)))
	mylogger.Debug(ctx, p.logger, "Processing outbox events", zap.Int("count", len(events)))

	for _, event := range events {
		if err := p.relay(ctx, event); err != nil {
			p.metrics.OutboxRelay(event.Topic, err)

			fields := []zap.Field{
				zap.Int64("id", event.Id),
				zap.String("event_type", event.EventType),
				zap.Int64("attempts", event.Attempts+1),
				zap.Error(err),
			}
			if event.Attempts+1 >= int64(p.opts.MaxAttempts) {
				mylogger.Error(ctx, p.logger, "Outbox event exhausted its delivery attempts", fields...)
			} else {
				mylogger.Warn(ctx, p.logger, "Outbox event delivery failed", fields...)
			}

			if dbErr := p.repo.MarkEventFailed(ctx, tx, event.Id, err.Error()); dbErr != nil {
				return fmt.Errorf("failed to mark event %d failed: %w", event.Id, dbErr)
			}

			continue
		}

		p.metrics.OutboxRelay(event.Topic, nil)

		if err := p.repo.MarkEventPublished(ctx, tx, event.Id); err != nil {
			return fmt.Errorf("failed to mark event %d published: %w", event.Id, err)
		}
	}

	return tx.Commit(ctx)
}

func (p *OutboxProcessor) relay(ctx context.Context, event *domain.OutboxEvent) error {
	var envelope domain.Envelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return fmt.Errorf("malformed envelope: %w", err)
	}

	envelope.EventID = event.Id

	return p.kafkaProducer.ProduceMessage(ctx, event.Topic, event.AggregateID, envelope)
}
