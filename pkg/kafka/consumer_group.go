package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type HandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

// Permanent wraps a handler error that a retry cannot fix. The message is logged and
// marked so the partition moves on.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     10 * time.Second,
}

type ConsumerGroup struct {
	brokers     []string
	groupID     string
	topics      []string
	handlerFunc HandlerFunc
	retry       RetryPolicy
	logger      *zap.Logger
}

func NewConsumerGroup(
	brokers []string,
	groupID string,
	topics []string,
	handlerFunc HandlerFunc,
	logger *zap.Logger,
) *ConsumerGroup {
	return &ConsumerGroup{
		brokers:     brokers,
		groupID:     groupID,
		topics:      topics,
		handlerFunc: handlerFunc,
		retry:       DefaultRetryPolicy,
		logger:      logger,
	}
}

// Run consumes until ctx is cancelled. A failing message is retried in place with
// exponential backoff and blocks its partition until it succeeds or fails permanently.
func (c *ConsumerGroup) Run(ctx context.Context) error {
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	group, err := sarama.NewConsumerGroup(c.brokers, c.groupID, config)
	if err != nil {
		return fmt.Errorf("error creating consumer group: %w", err)
	}

	defer func() {
		if err := group.Close(); err != nil {
			mylogger.Error(ctx, c.logger, "Error closing consumer group", zap.Error(err))
		}
	}()

	go func() {
		for err := range group.Errors() {
			mylogger.Warn(ctx, c.logger, "Consumer group error", zap.Error(err))
		}
	}()

	consumer := &saramaHandler{
		handler: c.handlerFunc,
		retry:   c.retry,
		logger:  c.logger,
		tracer:  otel.Tracer("pkg/kafka/consumer"),
	}

	for {
		err := group.Consume(ctx, c.topics, consumer)
		if err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}

			mylogger.Error(ctx, c.logger, "Error consuming in consumer loop", zap.Error(err))
		}

		if ctx.Err() != nil {
			mylogger.Info(ctx, c.logger, "Context cancelled, shutting down consumer")
			return nil
		}
	}
}

type saramaHandler struct {
	handler HandlerFunc
	retry   RetryPolicy
	logger  *zap.Logger
	tracer  trace.Tracer
}

func (h *saramaHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *saramaHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *saramaHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if !h.process(session, msg) {
			// Session ended mid-retry. The message stays unmarked and is consumed again
			// by whoever owns the partition next.
			return nil
		}
	}

	return nil
}

// process returns false when the session ended before msg could be handled.
func (h *saramaHandler) process(session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) bool {
	ctx, span := h.startSpan(session.Context(), msg)
	defer span.End()

	fields := []zap.Field{
		zap.String("topic", msg.Topic),
		zap.Int32("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = h.retry.InitialInterval
	policy.MaxInterval = h.retry.MaxInterval
	policy.MaxElapsedTime = 0

	err := backoff.RetryNotify(
		func() error { return h.handler(ctx, msg) },
		backoff.WithContext(policy, ctx),
		func(err error, next time.Duration) {
			mylogger.Warn(ctx, h.logger, "Message processing failed, retrying",
				append(fields, zap.Duration("retry_in", next), zap.Error(err))...)
		},
	)
	if err != nil {
		span.RecordError(err)

		if ctx.Err() != nil {
			mylogger.Warn(ctx, h.logger, "Session ended before message was processed",
				append(fields, zap.Error(err))...)
			return false
		}

		mylogger.Error(ctx, h.logger, "Dropping message after permanent failure",
			append(fields, zap.Error(err))...)
	}

	session.MarkMessage(msg, "")
	return true
}

func (h *saramaHandler) startSpan(ctx context.Context, msg *sarama.ConsumerMessage) (context.Context, trace.Span) {
	carrier := propagation.MapCarrier{}
	for _, header := range msg.Headers {
		carrier[string(header.Key)] = string(header.Value)
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	return h.tracer.Start(ctx, "kafka_process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
}
