package service

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/notification"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/repository"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/metrics"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type InventoryService interface {
	Reserve(ctx context.Context, productID int64, quantity int32) (*domain.Inventory, error)
	Release(ctx context.Context, productID int64, quantity int32) (*domain.Inventory, error)
	Adjust(ctx context.Context, productID int64, delta int32) (*domain.Inventory, error)
	EnsureEntry(ctx context.Context, productID int64, minimum int32) error
	GetStock(ctx context.Context, productIDs []int64) ([]domain.Inventory, error)
	Delete(ctx context.Context, productID int64) error
}

type inventoryService struct {
	pool       *pgxpool.Pool
	logger     *zap.Logger
	ledger     *stockLedger
	repo       repository.InventoryRepository
	dispatcher notification.Dispatcher
	tracer     trace.Tracer
}

func NewInventoryService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	repo repository.InventoryRepository,
	dispatcher notification.Dispatcher,
	m *metrics.Metrics,
	lockTimeout time.Duration,
) InventoryService {
	return &inventoryService{
		pool:       pool,
		logger:     logger,
		ledger:     newStockLedger(repo, logger, m, lockTimeout),
		repo:       repo,
		dispatcher: dispatcher,
		tracer:     otel.Tracer("inventory_service"),
	}
}

func (s *inventoryService) Reserve(ctx context.Context, productID int64, quantity int32) (*domain.Inventory, error) {
	return s.mutate(ctx, "InventoryService.Reserve", "reserve", productID, (*domain.Inventory).Reserve, quantity)
}

func (s *inventoryService) Release(ctx context.Context, productID int64, quantity int32) (*domain.Inventory, error) {
	return s.mutate(ctx, "InventoryService.Release", "release", productID, (*domain.Inventory).Release, quantity)
}

func (s *inventoryService) Adjust(ctx context.Context, productID int64, delta int32) (*domain.Inventory, error) {
	if err := s.EnsureEntry(ctx, productID, 0); err != nil {
		return nil, err
	}

	return s.mutate(ctx, "InventoryService.Adjust", "adjust", productID, (*domain.Inventory).Adjust, delta)
}

// EnsureEntry creates an empty ledger row for productID unless one exists.
func (s *inventoryService) EnsureEntry(ctx context.Context, productID int64, minimum int32) error {
	inv, err := domain.NewInventory(productID, 0, minimum)
	if err != nil {
		return err
	}

	return inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		return s.repo.Create(ctx, tx, inv)
	})
}

func (s *inventoryService) mutate(
	ctx context.Context,
	spanName, op string,
	productID int64,
	apply func(*domain.Inventory, int32) error,
	quantity int32,
) (*domain.Inventory, error) {
	ctx, span := s.tracer.Start(ctx, spanName)
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", productID),
		attribute.Int("quantity", int(quantity)),
	)

	var result *domain.Inventory
	err := inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		touched, err := s.ledger.apply(ctx, tx, op, map[int64]int32{productID: quantity}, apply)
		if err != nil {
			return err
		}
		result = touched[0]
		return nil
	})
	if err != nil {
		span.RecordError(err)
		logRejection(ctx, s.logger, "Stock operation rejected", err,
			zap.String("op", op), zap.Int64("product_id", productID), zap.Int32("quantity", quantity))
		return nil, err
	}

	mylogger.Audit(ctx, s.logger, "inventory."+op,
		zap.Int64("product_id", productID),
		zap.Int32("quantity", quantity),
		zap.Int32("available", result.AvailableQuantity),
		zap.Int32("reserved", result.ReservedQuantity),
	)
	warnLowStock(ctx, s.logger, s.dispatcher, result)

	return result, nil
}

func (s *inventoryService) GetStock(ctx context.Context, productIDs []int64) ([]domain.Inventory, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.GetStock")
	defer span.End()

	if len(productIDs) == 0 {
		return nil, validationErr("at least one product id is required")
	}

	stock, err := s.repo.GetByProductIDs(ctx, productIDs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return stock, nil
}

func (s *inventoryService) Delete(ctx context.Context, productID int64) error {
	ctx, span := s.tracer.Start(ctx, "InventoryService.Delete")
	defer span.End()

	if err := s.repo.SoftDelete(ctx, productID); err != nil {
		span.RecordError(err)
		return err
	}

	mylogger.Audit(ctx, s.logger, "inventory.deleted", zap.Int64("product_id", productID))
	return nil
}

// stockLedger performs locked read-modify-write cycles on ledger rows inside a caller's
// transaction. All rows an operation needs are locked up front through LockMany and every
// change is validated in memory before the first UPDATE is issued.
type stockLedger struct {
	repo        repository.InventoryRepository
	logger      *zap.Logger
	metrics     *metrics.Metrics
	lockTimeout time.Duration
}

func newStockLedger(repo repository.InventoryRepository, logger *zap.Logger, m *metrics.Metrics, lockTimeout time.Duration) *stockLedger {
	return &stockLedger{repo: repo, logger: logger, metrics: m, lockTimeout: lockTimeout}
}

func (l *stockLedger) lock(ctx context.Context, tx pgx.Tx, productIDs []int64) (map[int64]*domain.Inventory, error) {
	if err := l.repo.SetLockTimeout(ctx, tx, l.lockTimeout); err != nil {
		return nil, err
	}
	return l.repo.LockMany(ctx, tx, productIDs)
}

// apply runs the same operation for every product in quantities and returns the updated
// rows in ascending product id order.
func (l *stockLedger) apply(
	ctx context.Context,
	tx pgx.Tx,
	op string,
	quantities map[int64]int32,
	fn func(*domain.Inventory, int32) error,
) ([]*domain.Inventory, error) {
	ids := sortedKeys(quantities)

	rows, err := l.lock(ctx, tx, ids)
	if err != nil {
		l.metrics.StockOp(op, err)
		return nil, err
	}

	touched := make([]*domain.Inventory, 0, len(ids))
	for _, id := range ids {
		if err := fn(rows[id], quantities[id]); err != nil {
			l.metrics.StockOp(op, err)
			return nil, err
		}
		touched = append(touched, rows[id])
	}

	if err := l.save(ctx, tx, touched); err != nil {
		l.metrics.StockOp(op, err)
		return nil, err
	}

	l.metrics.StockOp(op, nil)
	return touched, nil
}

// reserveItems holds stock for each order line and records a reservation per line.
func (l *stockLedger) reserveItems(ctx context.Context, tx pgx.Tx, orderID int64, items []domain.OrderItem) ([]*domain.Inventory, error) {
	if len(items) == 0 {
		return nil, nil
	}

	quantities := make(map[int64]int32, len(items))
	for _, item := range items {
		quantities[item.ProductID] += item.Quantity
	}

	touched, err := l.apply(ctx, tx, "reserve", quantities, (*domain.Inventory).Reserve)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		itemID := item.ID
		if err := l.repo.CreateReservation(ctx, tx, &domain.Reservation{
			OrderID:     orderID,
			OrderItemID: &itemID,
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			Status:      domain.ReservationStatusReserved,
		}); err != nil {
			return nil, err
		}
	}

	return touched, nil
}

// commitOrder turns the order's soft reservations into sales and deducts available stock
// for lines that were never reserved. Nothing is written if any line cannot be covered.
func (l *stockLedger) commitOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) ([]*domain.Inventory, error) {
	reservations, err := l.repo.GetReservations(ctx, tx, order.ID, domain.ReservationStatusReserved)
	if err != nil {
		return nil, err
	}

	reserved := make(map[int64]int32)
	reservedByItem := make(map[int64]bool)
	ids := make([]int64, 0, len(reservations))
	for _, r := range reservations {
		reserved[r.ProductID] += r.Quantity
		if r.OrderItemID != nil {
			reservedByItem[*r.OrderItemID] = true
		}
		ids = append(ids, r.ID)
	}

	deduct := make(map[int64]int32)
	for _, item := range order.Items {
		if !reservedByItem[item.ID] {
			deduct[item.ProductID] += item.Quantity
		}
	}

	products := append(sortedKeys(reserved), sortedKeys(deduct)...)
	if len(products) == 0 {
		return nil, nil
	}

	rows, err := l.lock(ctx, tx, products)
	if err != nil {
		l.metrics.StockOp("commit", err)
		return nil, err
	}

	for _, id := range sortedKeys(reserved) {
		if err := rows[id].Commit(reserved[id]); err != nil {
			l.metrics.StockOp("commit", err)
			return nil, err
		}
	}
	for _, id := range sortedKeys(deduct) {
		if err := rows[id].Deduct(deduct[id]); err != nil {
			l.metrics.StockOp("deduct", err)
			return nil, err
		}
	}

	touched := inventoriesOf(rows)
	if err := l.save(ctx, tx, touched); err != nil {
		return nil, err
	}

	if err := l.repo.SetReservationStatus(ctx, tx, ids, domain.ReservationStatusCommitted); err != nil {
		return nil, err
	}

	l.metrics.StockOp("commit", nil)
	return touched, nil
}

// releaseOrder returns every open reservation of the order to available stock. When
// itemID is non-nil only that line's reservations are released.
func (l *stockLedger) releaseOrder(ctx context.Context, tx pgx.Tx, orderID int64, itemID *int64) ([]domain.EventItem, error) {
	reservations, err := l.repo.GetReservations(ctx, tx, orderID, domain.ReservationStatusReserved)
	if err != nil {
		return nil, err
	}

	if itemID != nil {
		reservations = slices.DeleteFunc(reservations, func(r domain.Reservation) bool {
			return r.OrderItemID == nil || *r.OrderItemID != *itemID
		})
	}
	if len(reservations) == 0 {
		return nil, nil
	}

	quantities := make(map[int64]int32)
	ids := make([]int64, 0, len(reservations))
	for _, r := range reservations {
		quantities[r.ProductID] += r.Quantity
		ids = append(ids, r.ID)
	}

	if _, err := l.apply(ctx, tx, "release", quantities, (*domain.Inventory).Release); err != nil {
		return nil, err
	}

	if err := l.repo.SetReservationStatus(ctx, tx, ids, domain.ReservationStatusReleased); err != nil {
		return nil, err
	}

	released := make([]domain.EventItem, 0, len(quantities))
	for _, id := range sortedKeys(quantities) {
		released = append(released, domain.EventItem{ProductID: id, Quantity: quantities[id]})
	}

	return released, nil
}

func (l *stockLedger) save(ctx context.Context, tx pgx.Tx, rows []*domain.Inventory) error {
	for _, inv := range rows {
		if err := l.repo.Save(ctx, tx, inv); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[int64]int32) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func inventoriesOf(rows map[int64]*domain.Inventory) []*domain.Inventory {
	result := make([]*domain.Inventory, 0, len(rows))
	for _, inv := range rows {
		result = append(result, inv)
	}
	slices.SortFunc(result, func(a, b *domain.Inventory) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return result
}

// warnLowStock is advisory: it logs and fires a notification but never fails the caller.
func warnLowStock(ctx context.Context, logger *zap.Logger, dispatcher notification.Dispatcher, rows ...*domain.Inventory) {
	for _, inv := range rows {
		if inv == nil || !inv.IsLow() {
			continue
		}

		mylogger.Warn(ctx, logger, "Stock below minimum level",
			zap.Int64("product_id", inv.ProductID),
			zap.Int32("available", inv.AvailableQuantity),
			zap.Int32("minimum", inv.MinimumStockLevel),
		)

		if dispatcher == nil {
			continue
		}

		err := dispatcher.Dispatch(ctx, notification.Command{
			Kind:      notification.KindLowStock,
			ProductID: inv.ProductID,
			Data: map[string]any{
				"available": inv.AvailableQuantity,
				"minimum":   inv.MinimumStockLevel,
			},
		})
		if err != nil {
			mylogger.Warn(ctx, logger, "Low stock notification failed", zap.Int64("product_id", inv.ProductID), zap.Error(err))
		}
	}
}

// logRejection logs business rejections at Warn and infrastructure failures at Error.
func logRejection(ctx context.Context, logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))

	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrBusy):
		mylogger.Warn(ctx, logger, msg, fields...)
	default:
		mylogger.Error(ctx, logger, msg, fields...)
	}
}
