package service

import (
	"context"
	"fmt"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/notification"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/repository"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/metrics"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/outbox/worker"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const aggregateOrder = "Order"

type ProductLookup interface {
	GetByID(ctx context.Context, productID int64) (*domain.Product, error)
}

type AddressLookup interface {
	GetByID(ctx context.Context, addressID int64) (*domain.Address, error)
}

type ItemInput struct {
	ProductID int64
	Quantity  int32
}

type CreateOrderInput struct {
	CustomerID    *int64
	Guest         *domain.GuestContact
	AddressID     int64
	Items         []ItemInput
	ReserveStock  bool
	PaymentMethod *domain.PaymentMethod
}

type OrderService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	AddItem(ctx context.Context, orderID int64, in ItemInput) (*domain.Order, error)
	RemoveItem(ctx context.Context, orderID, itemID int64) (*domain.Order, error)
	UpdateFulfillmentStatus(ctx context.Context, orderID int64, status domain.OrderStatus) (*domain.Order, error)
	DeleteOrder(ctx context.Context, orderID int64) error
}

type orderService struct {
	pool        *pgxpool.Pool
	logger      *zap.Logger
	orderRepo   repository.OrderRepository
	paymentRepo repository.PaymentRepository
	outboxRepo  worker.OutboxRepository
	products    ProductLookup
	addresses   AddressLookup
	ledger      *stockLedger
	dispatcher  notification.Dispatcher
	policy      domain.ShippingPolicy
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type OrderServiceDeps struct {
	Pool        *pgxpool.Pool
	Logger      *zap.Logger
	OrderRepo   repository.OrderRepository
	PaymentRepo repository.PaymentRepository
	StockRepo   repository.InventoryRepository
	OutboxRepo  worker.OutboxRepository
	Products    ProductLookup
	Addresses   AddressLookup
	Dispatcher  notification.Dispatcher
	Policy      domain.ShippingPolicy
	Metrics     *metrics.Metrics
	LockTimeout time.Duration
}

func NewOrderService(deps OrderServiceDeps) OrderService {
	return &orderService{
		pool:        deps.Pool,
		logger:      deps.Logger,
		orderRepo:   deps.OrderRepo,
		paymentRepo: deps.PaymentRepo,
		outboxRepo:  deps.OutboxRepo,
		products:    deps.Products,
		addresses:   deps.Addresses,
		ledger:      newStockLedger(deps.StockRepo, deps.Logger, deps.Metrics, deps.LockTimeout),
		dispatcher:  deps.Dispatcher,
		policy:      deps.Policy,
		metrics:     deps.Metrics,
		tracer:      otel.Tracer("order_service"),
	}
}

func (s *orderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int("items_count", len(in.Items)),
		attribute.Bool("reserve_stock", in.ReserveStock),
	)

	order, err := domain.NewOrder(in.CustomerID, in.Guest, in.AddressID)
	if err != nil {
		return nil, err
	}

	address, err := s.addresses.GetByID(ctx, in.AddressID)
	if err != nil {
		span.RecordError(err)
		logRejection(ctx, s.logger, "Address lookup failed", err, zap.Int64("address_id", in.AddressID))
		return nil, err
	}

	for _, item := range in.Items {
		product, err := s.lookupProduct(ctx, item.ProductID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		if _, err := order.AddItem(product, item.Quantity, s.policy); err != nil {
			logRejection(ctx, s.logger, "Order item rejected", err, zap.Int64("product_id", item.ProductID))
			return nil, err
		}
	}

	if in.PaymentMethod != nil && len(order.Items) == 0 {
		err := validationErr("payment method given for an order without items")
		logRejection(ctx, s.logger, "Order rejected", err)
		return nil, err
	}

	order.StockReserved = in.ReserveStock && len(order.Items) > 0

	var touched []*domain.Inventory
	err = inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		if err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
			return err
		}

		if order.StockReserved {
			reserved, err := s.ledger.reserveItems(ctx, tx, order.ID, order.Items)
			if err != nil {
				return err
			}
			touched = reserved
		}

		if in.PaymentMethod != nil {
			payment, err := domain.NewPayment(order.ID, order.TotalAmount, *in.PaymentMethod, uuid.NewString(), "")
			if err != nil {
				return err
			}
			if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
				return err
			}
			order.Payments = append(order.Payments, *payment)
		}

		return emitEvent(ctx, tx, s.outboxRepo, domain.TopicOrderEvents, aggregateOrder, order.ID,
			domain.EventOrderCreated, domain.NewOrderCreatedEvent(order, address.Region))
	})
	if err != nil {
		span.RecordError(err)
		logRejection(ctx, s.logger, "Failed to create order", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order_id", order.ID))
	s.metrics.OrderTransition(string(order.Status), "create")

	mylogger.Audit(ctx, s.logger, "order.created",
		zap.Int64("order_id", order.ID),
		zap.Int64("total_amount", order.TotalAmount),
		zap.Bool("guest", order.IsGuest()),
		zap.Bool("stock_reserved", order.StockReserved),
	)
	warnLowStock(ctx, s.logger, s.dispatcher, touched...)

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrder")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	payments, err := s.paymentRepo.ListByOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	order.Payments = payments

	s.verifyTotal(ctx, order)

	return order, nil
}

func (s *orderService) AddItem(ctx context.Context, orderID int64, in ItemInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.AddItem")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int64("product_id", in.ProductID),
	)

	product, err := s.lookupProduct(ctx, in.ProductID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var (
		order   *domain.Order
		touched []*domain.Inventory
	)
	err = inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		order, err = s.orderRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		s.verifyTotal(ctx, order)

		item, err := order.AddItem(product, in.Quantity, s.policy)
		if err != nil {
			return err
		}

		if err := s.orderRepo.AddItem(ctx, tx, item); err != nil {
			return err
		}

		if order.StockReserved {
			touched, err = s.ledger.reserveItems(ctx, tx, order.ID, []domain.OrderItem{*item})
			if err != nil {
				return err
			}
		}

		return s.orderRepo.Update(ctx, tx, order)
	})
	if err != nil {
		span.RecordError(err)
		logRejection(ctx, s.logger, "Failed to add order item", err, zap.Int64("order_id", orderID))
		return nil, err
	}

	mylogger.Audit(ctx, s.logger, "order.item_added",
		zap.Int64("order_id", orderID),
		zap.Int64("product_id", in.ProductID),
		zap.Int32("quantity", in.Quantity),
		zap.Int64("total_amount", order.TotalAmount),
	)
	warnLowStock(ctx, s.logger, s.dispatcher, touched...)

	return order, nil
}

func (s *orderService) RemoveItem(ctx context.Context, orderID, itemID int64) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.RemoveItem")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int64("item_id", itemID),
	)

	var order *domain.Order
	err := inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		order, err = s.orderRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		s.verifyTotal(ctx, order)

		removed, err := order.RemoveItem(itemID, s.policy)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("order item %d: %w", itemID, domain.ErrNotFound)
		}

		if order.StockReserved {
			if _, err := s.ledger.releaseOrder(ctx, tx, order.ID, &itemID); err != nil {
				return err
			}
		}

		if err := s.orderRepo.DeleteItem(ctx, tx, order.ID, itemID); err != nil {
			return err
		}

		return s.orderRepo.Update(ctx, tx, order)
	})
	if err != nil {
		span.RecordError(err)
		logRejection(ctx, s.logger, "Failed to remove order item", err, zap.Int64("order_id", orderID))
		return nil, err
	}

	mylogger.Audit(ctx, s.logger, "order.item_removed",
		zap.Int64("order_id", orderID),
		zap.Int64("item_id", itemID),
		zap.Int64("total_amount", order.TotalAmount),
	)

	return order, nil
}

// UpdateFulfillmentStatus moves a confirmed order along the fulfillment path. Cancelling
// through this path releases any stock still held for the order.
func (s *orderService) UpdateFulfillmentStatus(ctx context.Context, orderID int64, status domain.OrderStatus) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateFulfillmentStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("status", string(status)),
	)

	var order *domain.Order
	err := inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		order, err = s.orderRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if err := order.Transition(status, domain.TriggerFulfillment); err != nil {
			return err
		}

		var released []domain.EventItem
		if status == domain.OrderStatusCancelled && order.StockReserved {
			released, err = s.ledger.releaseOrder(ctx, tx, order.ID, nil)
			if err != nil {
				return err
			}
		}

		if err := s.orderRepo.Update(ctx, tx, order); err != nil {
			return err
		}

		now := time.Now().UTC()
		switch status {
		case domain.OrderStatusShipped:
			return emitEvent(ctx, tx, s.outboxRepo, domain.TopicOrderEvents, aggregateOrder, order.ID,
				domain.EventOrderShipped, &domain.OrderShippedEvent{
					OrderID:   order.ID,
					Recipient: order.Recipient(),
					ShippedAt: now,
				})
		case domain.OrderStatusCancelled:
			return emitEvent(ctx, tx, s.outboxRepo, domain.TopicOrderEvents, aggregateOrder, order.ID,
				domain.EventOrderCancelled, &domain.OrderCancelledEvent{
					OrderID:     order.ID,
					Recipient:   order.Recipient(),
					Reason:      "cancelled during fulfillment",
					Released:    released,
					CancelledAt: now,
				})
		}

		return nil
	})
	if err != nil {
		span.RecordError(err)
		logRejection(ctx, s.logger, "Fulfillment transition rejected", err,
			zap.Int64("order_id", orderID), zap.String("status", string(status)))
		return nil, err
	}

	s.metrics.OrderTransition(string(status), string(domain.TriggerFulfillment))
	mylogger.Audit(ctx, s.logger, "order.status_changed",
		zap.Int64("order_id", orderID),
		zap.String("status", string(status)),
		zap.String("trigger", string(domain.TriggerFulfillment)),
	)

	return order, nil
}

func (s *orderService) DeleteOrder(ctx context.Context, orderID int64) error {
	ctx, span := s.tracer.Start(ctx, "OrderService.DeleteOrder")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	err := inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		order, err := s.orderRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if err := order.Delete(); err != nil {
			return err
		}

		return s.orderRepo.Update(ctx, tx, order)
	})
	if err != nil {
		span.RecordError(err)
		logRejection(ctx, s.logger, "Failed to delete order", err, zap.Int64("order_id", orderID))
		return err
	}

	mylogger.Audit(ctx, s.logger, "order.deleted", zap.Int64("order_id", orderID))
	return nil
}

func (s *orderService) lookupProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		logRejection(ctx, s.logger, "Product lookup failed", err, zap.Int64("product_id", productID))
		return nil, err
	}
	return product, nil
}

// verifyTotal replaces a stored total that disagrees with the items.
func (s *orderService) verifyTotal(ctx context.Context, order *domain.Order) {
	stored := order.TotalAmount
	if order.Verify(s.policy) {
		return
	}

	mylogger.Warn(ctx, s.logger, "Stored order total differs from recalculation",
		zap.Int64("order_id", order.ID),
		zap.Int64("stored", stored),
		zap.Int64("recalculated", order.TotalAmount),
	)
}
