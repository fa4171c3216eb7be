package notification

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/utils"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Producer interface {
	ProduceMessage(ctx context.Context, topic, key string, message any) error
}

type kafkaDispatcher struct {
	producer Producer
	topic    string
	cb       *gobreaker.CircuitBreaker
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewKafkaDispatcher publishes commands to topic behind a circuit breaker, so a broker
// outage fails fast instead of stalling the callers.
func NewKafkaDispatcher(producer Producer, topic string, logger *zap.Logger) Dispatcher {
	return &kafkaDispatcher{
		producer: producer,
		topic:    topic,
		cb:       utils.NewBreaker("NotificationDispatcher", logger),
		logger:   logger,
		tracer:   otel.Tracer("notification_dispatcher"),
		now:      time.Now,
	}
}

func (d *kafkaDispatcher) Dispatch(ctx context.Context, cmd Command) error {
	ctx, span := d.tracer.Start(ctx, "NotificationDispatcher.Dispatch")
	defer span.End()

	span.SetAttributes(
		attribute.String("kind", string(cmd.Kind)),
		attribute.Int64("order_id", cmd.OrderID),
	)

	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = d.now().UTC()
	}

	key := strconv.FormatInt(cmd.OrderID, 10)
	if cmd.OrderID == 0 {
		key = "product-" + strconv.FormatInt(cmd.ProductID, 10)
	}

	_, err := utils.ExecuteWithBreaker(d.cb, func() (struct{}, error) {
		return struct{}{}, d.producer.ProduceMessage(ctx, d.topic, key, cmd)
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to dispatch %s: %w", cmd.Kind, err)
	}

	mylogger.Debug(ctx, d.logger, "Notification dispatched", zap.String("kind", string(cmd.Kind)), zap.String("key", key))
	return nil
}
