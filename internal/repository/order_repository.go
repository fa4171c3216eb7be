package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderRepository interface {
	CreateOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	AddItem(ctx context.Context, tx pgx.Tx, item *domain.OrderItem) error
	DeleteItem(ctx context.Context, tx pgx.Tx, orderID, itemID int64) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, orderID int64) (*domain.Order, error)
	GetByID(ctx context.Context, orderID int64) (*domain.Order, error)
	Update(ctx context.Context, tx pgx.Tx, order *domain.Order) error
}

type orderRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("order_repository"),
	}
}

const orderColumns = `id, customer_id, guest_name, guest_email, guest_phone, address_id, status,
	total_amount, stock_reserved, is_active, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		order                          domain.Order
		guestName, guestEmail, guestPh *string
	)

	if err := row.Scan(
		&order.ID,
		&order.CustomerID,
		&guestName,
		&guestEmail,
		&guestPh,
		&order.AddressID,
		&order.Status,
		&order.TotalAmount,
		&order.StockReserved,
		&order.IsActive,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if guestEmail != nil {
		order.Guest = &domain.GuestContact{Email: *guestEmail}
		if guestName != nil {
			order.Guest.Name = *guestName
		}
		if guestPh != nil {
			order.Guest.Phone = *guestPh
		}
	}

	return &order, nil
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Bool("guest", order.IsGuest()),
		attribute.Int("items_count", len(order.Items)),
	)

	var guestName, guestEmail, guestPhone *string
	if order.Guest != nil {
		guestName, guestEmail, guestPhone = &order.Guest.Name, &order.Guest.Email, &order.Guest.Phone
	}

	queryOrder := `
		INSERT INTO orders (customer_id, guest_name, guest_email, guest_phone, address_id, status,
			total_amount, stock_reserved, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	if err := tx.QueryRow(
		ctx,
		queryOrder,
		order.CustomerID,
		guestName,
		guestEmail,
		guestPhone,
		order.AddressID,
		string(order.Status),
		order.TotalAmount,
		order.StockReserved,
		order.IsActive,
	).Scan(
		&order.ID,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		span.RecordError(err)

		if code, _ := pgCode(err); code == codeForeignKey {
			return domain.ErrAddressNotFound
		}

		mylogger.Error(ctx, r.logger, "Failed to insert order", zap.Error(err))
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		if err := r.AddItem(ctx, tx, &order.Items[i]); err != nil {
			return err
		}
	}

	return nil
}

func (r *orderRepo) AddItem(ctx context.Context, tx pgx.Tx, item *domain.OrderItem) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.AddItem")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", item.OrderID),
		attribute.Int64("product_id", item.ProductID),
	)

	query := `
		INSERT INTO order_items (order_id, product_id, product_name, price, quantity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := tx.QueryRow(
		ctx,
		query,
		item.OrderID,
		item.ProductID,
		item.ProductName,
		item.Price,
		item.Quantity,
	).Scan(&item.ID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(ctx, r.logger, "Failed to insert item", zap.Error(err))
		return fmt.Errorf("failed to insert order item: %w", err)
	}

	return nil
}

func (r *orderRepo) DeleteItem(ctx context.Context, tx pgx.Tx, orderID, itemID int64) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.DeleteItem")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int64("item_id", itemID),
	)

	tag, err := tx.Exec(ctx, `DELETE FROM order_items WHERE id = $1 AND order_id = $2`, itemID, orderID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete order item: %w", err)
	}

	if tag.RowsAffected() == 0 {
		mylogger.Warn(ctx, r.logger, "Order item not found", zap.Int64("item_id", itemID))
	}

	return nil
}

// GetForUpdate loads the order and its items, holding the order row lock until tx ends.
func (r *orderRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, orderID int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetForUpdate")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	order, err := scanOrder(tx.QueryRow(ctx, query, orderID))
	if err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}

		return nil, mapLockError(fmt.Errorf("failed to lock order: %w", err))
	}

	order.Items, err = r.getItems(ctx, tx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return order, nil
}

func (r *orderRepo) GetByID(ctx context.Context, orderID int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND is_active = TRUE`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}

		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	order.Items, err = r.getItems(ctx, r.pool, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return order, nil
}

func (r *orderRepo) Update(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", order.ID),
		attribute.String("status", string(order.Status)),
	)

	query := `
		UPDATE orders
		SET status = $1, total_amount = $2, stock_reserved = $3, is_active = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		string(order.Status),
		order.TotalAmount,
		order.StockReserved,
		order.IsActive,
		order.ID,
	).Scan(&order.UpdatedAt)
	if err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrOrderNotFound
		}

		mylogger.Error(ctx, r.logger, "Failed to update order", zap.Int64("order_id", order.ID), zap.Error(err))
		return fmt.Errorf("failed to update order: %w", err)
	}

	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *orderRepo) getItems(ctx context.Context, q querier, orderID int64) ([]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, product_name, price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var result []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Price,
			&item.Quantity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}

		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order items: %w", err)
	}

	return result, nil
}
