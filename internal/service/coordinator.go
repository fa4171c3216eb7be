package service

import (
	"context"
	"errors"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/notification"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/repository"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/metrics"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/outbox/utils"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/outbox/worker"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	coordinatorConsumer = "coordinator"

	ReasonStockUnavailable = "stock unavailable"
	ReasonPaymentFailed    = "payment failed"
)

// Coordinator reacts to committed payment and order events. Every reaction that writes
// is recorded in processed_events in the same transaction, so redelivery is harmless.
type Coordinator interface {
	HandlePaymentStatusChanged(ctx context.Context, eventID int64, event *domain.PaymentStatusChangedEvent) error
	HandleOrderCreated(ctx context.Context, event *domain.OrderCreatedEvent) error
	HandleOrderConfirmed(ctx context.Context, event *domain.OrderConfirmedEvent) error
	HandleOrderShipped(ctx context.Context, event *domain.OrderShippedEvent) error
	HandleOrderCancelled(ctx context.Context, event *domain.OrderCancelledEvent) error
}

type CoordinatorDeps struct {
	Pool        *pgxpool.Pool
	Logger      *zap.Logger
	OrderRepo   repository.OrderRepository
	StockRepo   repository.InventoryRepository
	OutboxRepo  worker.OutboxRepository
	Dispatcher  notification.Dispatcher
	Metrics     *metrics.Metrics
	LockTimeout time.Duration
}

type coordinator struct {
	pool       *pgxpool.Pool
	logger     *zap.Logger
	orderRepo  repository.OrderRepository
	outboxRepo worker.OutboxRepository
	ledger     *stockLedger
	dispatcher notification.Dispatcher
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

func NewCoordinator(deps CoordinatorDeps) Coordinator {
	return &coordinator{
		pool:       deps.Pool,
		logger:     deps.Logger,
		orderRepo:  deps.OrderRepo,
		outboxRepo: deps.OutboxRepo,
		ledger:     newStockLedger(deps.StockRepo, deps.Logger, deps.Metrics, deps.LockTimeout),
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		tracer:     otel.Tracer("coordinator"),
	}
}

func (c *coordinator) HandlePaymentStatusChanged(ctx context.Context, eventID int64, event *domain.PaymentStatusChangedEvent) error {
	ctx, span := c.tracer.Start(ctx, "Coordinator.HandlePaymentStatusChanged")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.Int64("payment_id", event.PaymentID),
		attribute.Int64("order_id", event.OrderID),
		attribute.String("new_status", string(event.NewStatus)),
	)

	if eventID <= 0 {
		mylogger.Warn(ctx, c.logger, "Payment event without id, skipping", zap.Int64("payment_id", event.PaymentID))
		return nil
	}

	switch event.NewStatus {
	case domain.PaymentStatusCompleted:
		return c.confirmOrder(ctx, eventID, event)
	case domain.PaymentStatusFailed, domain.PaymentStatusCancelled:
		if event.OldStatus != domain.PaymentStatusPending {
			mylogger.Info(ctx, c.logger, "Ignoring stale payment failure",
				zap.Int64("payment_id", event.PaymentID),
				zap.String("old_status", string(event.OldStatus)),
			)
			return nil
		}

		reason := event.Reason
		if reason == "" {
			reason = ReasonPaymentFailed
		}
		return c.cancelOrder(ctx, eventID, event, reason)
	default:
		mylogger.Info(ctx, c.logger, "Ignoring non-final payment status",
			zap.Int64("payment_id", event.PaymentID),
			zap.String("status", string(event.NewStatus)),
		)
		return nil
	}
}

func (c *coordinator) confirmOrder(ctx context.Context, eventID int64, event *domain.PaymentStatusChangedEvent) error {
	var (
		touched   []*domain.Inventory
		cancelled bool
	)

	applied, err := utils.ProcessWithDeduplication(ctx, c.pool, c.logger, coordinatorConsumer, eventID,
		func(ctx context.Context, tx pgx.Tx) error {
			order, err := c.lockNewOrder(ctx, tx, event.OrderID)
			if err != nil || order == nil {
				return err
			}

			touched, err = c.ledger.commitOrder(ctx, tx, order)
			if errors.Is(err, domain.ErrInsufficientStock) {
				mylogger.Warn(ctx, c.logger, "Paid order cannot be fulfilled from stock",
					zap.Int64("order_id", order.ID),
					zap.Error(err),
				)
				cancelled = true
				return c.cancelLocked(ctx, tx, order, event.PaymentID, ReasonStockUnavailable, false)
			}
			if err != nil {
				return err
			}

			if err := order.Transition(domain.OrderStatusConfirmed, domain.TriggerPayment); err != nil {
				return err
			}
			if err := c.orderRepo.Update(ctx, tx, order); err != nil {
				return err
			}

			return emitEvent(ctx, tx, c.outboxRepo, domain.TopicOrderEvents, aggregateOrder, order.ID,
				domain.EventOrderConfirmed, &domain.OrderConfirmedEvent{
					OrderID:     order.ID,
					PaymentID:   event.PaymentID,
					Recipient:   order.Recipient(),
					TotalAmount: order.TotalAmount,
					ConfirmedAt: time.Now().UTC(),
				})
		})
	if err != nil {
		logRejection(ctx, c.logger, "Failed to confirm order", err, zap.Int64("order_id", event.OrderID))
		return err
	}
	if !applied {
		return nil
	}

	if cancelled {
		c.metrics.OrderTransition(string(domain.OrderStatusCancelled), string(domain.TriggerPayment))
		return nil
	}

	c.metrics.OrderTransition(string(domain.OrderStatusConfirmed), string(domain.TriggerPayment))
	mylogger.Audit(ctx, c.logger, "order.confirmed",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("payment_id", event.PaymentID),
	)
	warnLowStock(ctx, c.logger, c.dispatcher, touched...)

	return nil
}

func (c *coordinator) cancelOrder(ctx context.Context, eventID int64, event *domain.PaymentStatusChangedEvent, reason string) error {
	applied, err := utils.ProcessWithDeduplication(ctx, c.pool, c.logger, coordinatorConsumer, eventID,
		func(ctx context.Context, tx pgx.Tx) error {
			order, err := c.lockNewOrder(ctx, tx, event.OrderID)
			if err != nil || order == nil {
				return err
			}

			return c.cancelLocked(ctx, tx, order, event.PaymentID, reason, true)
		})
	if err != nil {
		logRejection(ctx, c.logger, "Failed to cancel order", err, zap.Int64("order_id", event.OrderID))
		return err
	}

	if applied {
		c.metrics.OrderTransition(string(domain.OrderStatusCancelled), string(domain.TriggerPayment))
	}

	return nil
}

// lockNewOrder returns nil without error when the order has already left NEW.
func (c *coordinator) lockNewOrder(ctx context.Context, tx pgx.Tx, orderID int64) (*domain.Order, error) {
	order, err := c.orderRepo.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.IsActive || order.Status != domain.OrderStatusNew {
		mylogger.Info(ctx, c.logger, "Order already settled, skipping",
			zap.Int64("order_id", order.ID),
			zap.String("status", string(order.Status)),
		)
		return nil, nil
	}

	return order, nil
}

func (c *coordinator) cancelLocked(ctx context.Context, tx pgx.Tx, order *domain.Order, paymentID int64, reason string, paymentFailed bool) error {
	released, err := c.ledger.releaseOrder(ctx, tx, order.ID, nil)
	if err != nil {
		return err
	}

	if err := order.Transition(domain.OrderStatusCancelled, domain.TriggerPayment); err != nil {
		return err
	}
	if err := c.orderRepo.Update(ctx, tx, order); err != nil {
		return err
	}

	mylogger.Audit(ctx, c.logger, "order.cancelled",
		zap.Int64("order_id", order.ID),
		zap.String("reason", reason),
		zap.Int("released_lines", len(released)),
	)

	return emitEvent(ctx, tx, c.outboxRepo, domain.TopicOrderEvents, aggregateOrder, order.ID,
		domain.EventOrderCancelled, &domain.OrderCancelledEvent{
			OrderID:       order.ID,
			PaymentID:     &paymentID,
			Recipient:     order.Recipient(),
			Reason:        reason,
			PaymentFailed: paymentFailed,
			Released:      released,
			CancelledAt:   time.Now().UTC(),
		})
}

func (c *coordinator) HandleOrderCreated(ctx context.Context, event *domain.OrderCreatedEvent) error {
	c.notify(ctx, notification.Command{
		Kind:      notification.KindOrderReceived,
		OrderID:   event.OrderID,
		Recipient: event.Recipient,
		Data: map[string]any{
			"total_amount": event.TotalAmount,
			"region":       event.Region,
			"items":        event.Items,
		},
	})
	return nil
}

func (c *coordinator) HandleOrderConfirmed(ctx context.Context, event *domain.OrderConfirmedEvent) error {
	c.notify(ctx, notification.Command{
		Kind:      notification.KindOrderConfirmation,
		OrderID:   event.OrderID,
		Recipient: event.Recipient,
		Data: map[string]any{
			"payment_id":   event.PaymentID,
			"total_amount": event.TotalAmount,
		},
	})
	return nil
}

func (c *coordinator) HandleOrderShipped(ctx context.Context, event *domain.OrderShippedEvent) error {
	c.notify(ctx, notification.Command{
		Kind:      notification.KindShipmentNotice,
		OrderID:   event.OrderID,
		Recipient: event.Recipient,
	})
	return nil
}

func (c *coordinator) HandleOrderCancelled(ctx context.Context, event *domain.OrderCancelledEvent) error {
	kind := notification.KindOrderCancelled
	if event.PaymentFailed {
		kind = notification.KindPaymentFailure
	}

	c.notify(ctx, notification.Command{
		Kind:      kind,
		OrderID:   event.OrderID,
		Recipient: event.Recipient,
		Reason:    event.Reason,
	})
	return nil
}

// notify never fails the caller. Lost notifications are logged.
func (c *coordinator) notify(ctx context.Context, cmd notification.Command) {
	if c.dispatcher == nil {
		return
	}

	if err := c.dispatcher.Dispatch(ctx, cmd); err != nil {
		mylogger.Warn(ctx, c.logger, "Notification dispatch failed",
			zap.String("kind", string(cmd.Kind)),
			zap.Int64("order_id", cmd.OrderID),
			zap.Error(err),
		)
	}
}
