package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/service"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/kafka"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	outboxDomain "github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/outbox/domain"
	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

var Topics = []string{domain.TopicPaymentEvents, domain.TopicOrderEvents}

type Consumer struct {
	coordinator service.Coordinator
	logger      *zap.Logger
}

func NewConsumer(coordinator service.Coordinator, logger *zap.Logger) *Consumer {
	return &Consumer{
		coordinator: coordinator,
		logger:      logger,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string, groupID string) error {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		groupID,
		Topics,
		c.handle,
		c.logger,
	)

	return consumerGroup.Run(ctx)
}

// handle lets infrastructure failures retry and drops business rejections, which would
// fail the same way on every delivery.
func (c *Consumer) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	err := c.processMessage(ctx, msg)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrValidation) {
		return kafka.Permanent(err)
	}
	return err
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Debug(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
		zap.Int64("offset", msg.Offset),
	)

	var envelope outboxDomain.Envelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		// A message that cannot be parsed will never succeed; skip it.
		mylogger.Error(ctx, c.logger, "Error unmarshalling envelope", zap.Error(err))
		return nil
	}

	switch envelope.Event {
	case domain.EventPaymentStatusChanged:
		var event domain.PaymentStatusChangedEvent
		if err := decode(envelope, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to unmarshal payload", zap.Error(err))
			return nil
		}

		return c.coordinator.HandlePaymentStatusChanged(ctx, envelope.EventID, &event)
	case domain.EventOrderCreated:
		var event domain.OrderCreatedEvent
		if err := decode(envelope, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to unmarshal payload", zap.Error(err))
			return nil
		}

		return c.coordinator.HandleOrderCreated(ctx, &event)
	case domain.EventOrderConfirmed:
		var event domain.OrderConfirmedEvent
		if err := decode(envelope, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to unmarshal payload", zap.Error(err))
			return nil
		}

		return c.coordinator.HandleOrderConfirmed(ctx, &event)
	case domain.EventOrderShipped:
		var event domain.OrderShippedEvent
		if err := decode(envelope, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to unmarshal payload", zap.Error(err))
			return nil
		}

		return c.coordinator.HandleOrderShipped(ctx, &event)
	case domain.EventOrderCancelled:
		var event domain.OrderCancelledEvent
		if err := decode(envelope, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to unmarshal payload", zap.Error(err))
			return nil
		}

		return c.coordinator.HandleOrderCancelled(ctx, &event)
	default:
		mylogger.Warn(ctx, c.logger, "Ignored event type", zap.String("event_type", envelope.Event))
	}

	return nil
}

func decode(envelope outboxDomain.Envelope, target any) error {
	if err := json.Unmarshal(envelope.Payload, target); err != nil {
		return fmt.Errorf("failed to decode %s: %w", envelope.Event, err)
	}
	return nil
}
