package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type InventoryRepository interface {
	Create(ctx context.Context, tx pgx.Tx, inv *domain.Inventory) error
	SetLockTimeout(ctx context.Context, tx pgx.Tx, timeout time.Duration) error
	LockMany(ctx context.Context, tx pgx.Tx, productIDs []int64) (map[int64]*domain.Inventory, error)
	Save(ctx context.Context, tx pgx.Tx, inv *domain.Inventory) error
	GetByProductIDs(ctx context.Context, productIDs []int64) ([]domain.Inventory, error)
	SoftDelete(ctx context.Context, productID int64) error

	CreateReservation(ctx context.Context, tx pgx.Tx, r *domain.Reservation) error
	GetReservations(ctx context.Context, tx pgx.Tx, orderID int64, status domain.ReservationStatus) ([]domain.Reservation, error)
	SetReservationStatus(ctx context.Context, tx pgx.Tx, ids []int64, status domain.ReservationStatus) error
}

type inventoryRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewInventoryRepository(pool *pgxpool.Pool, logger *zap.Logger) InventoryRepository {
	return &inventoryRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("inventory_repository"),
	}
}

const inventoryColumns = `id, product_id, available_quantity, reserved_quantity, minimum_stock_level, is_active, created_at, updated_at`

func scanInventory(row pgx.Row, inv *domain.Inventory) error {
	return row.Scan(
		&inv.ID,
		&inv.ProductID,
		&inv.AvailableQuantity,
		&inv.ReservedQuantity,
		&inv.MinimumStockLevel,
		&inv.IsActive,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
}

func (r *inventoryRepo) Create(ctx context.Context, tx pgx.Tx, inv *domain.Inventory) error {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Create")
	defer span.End()

	span.SetAttributes(attribute.Int64("product_id", inv.ProductID))

	query := `
		INSERT INTO inventory (product_id, available_quantity, reserved_quantity, minimum_stock_level)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id) DO NOTHING
		RETURNING id, is_active, created_at, updated_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		inv.ProductID,
		inv.AvailableQuantity,
		inv.ReservedQuantity,
		inv.MinimumStockLevel,
	).Scan(&inv.ID, &inv.IsActive, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		mylogger.Debug(ctx, r.logger, "Inventory entry already exists", zap.Int64("product_id", inv.ProductID))
		return nil
	}
	if err != nil {
		span.RecordError(err)

		if code, _ := pgCode(err); code == codeForeignKey {
			return domain.ErrProductNotFound
		}

		return fmt.Errorf("failed to create inventory: %w", err)
	}

	return nil
}

// SetLockTimeout bounds how long the rest of tx waits for row locks.
func (r *inventoryRepo) SetLockTimeout(ctx context.Context, tx pgx.Tx, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}

	_, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, fmt.Sprintf("%dms", timeout.Milliseconds()))
	if err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}

	return nil
}

// LockMany takes exclusive locks on the ledger rows of productIDs in ascending product id
// order. Every caller locking more than one row goes through here, so concurrent units of
// work never wait on each other in a cycle.
func (r *inventoryRepo) LockMany(ctx context.Context, tx pgx.Tx, productIDs []int64) (map[int64]*domain.Inventory, error) {
	ids := slices.Clone(productIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	ctx, span := r.tracer.Start(ctx, "InventoryRepository.LockMany")
	defer span.End()

	span.SetAttributes(attribute.Int64Slice("product_ids", ids))

	query := `
		SELECT ` + inventoryColumns + `
		FROM inventory
		WHERE product_id = ANY($1) AND is_active = TRUE
		ORDER BY product_id
		FOR UPDATE
	`

	rows, err := tx.Query(ctx, query, ids)
	if err != nil {
		span.RecordError(err)
		return nil, mapLockError(fmt.Errorf("failed to lock inventory: %w", err))
	}
	defer rows.Close()

	result := make(map[int64]*domain.Inventory, len(ids))
	for rows.Next() {
		var inv domain.Inventory
		if err := scanInventory(rows, &inv); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan inventory: %w", err)
		}
		result[inv.ProductID] = &inv
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, mapLockError(fmt.Errorf("failed to lock inventory: %w", err))
	}

	for _, id := range ids {
		if _, ok := result[id]; !ok {
			mylogger.Warn(ctx, r.logger, "Inventory entry missing", zap.Int64("product_id", id))
			return nil, fmt.Errorf("%w: product %d", domain.ErrInventoryNotFound, id)
		}
	}

	return result, nil
}

func (r *inventoryRepo) Save(ctx context.Context, tx pgx.Tx, inv *domain.Inventory) error {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Save")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", inv.ProductID),
		attribute.Int("available", int(inv.AvailableQuantity)),
		attribute.Int("reserved", int(inv.ReservedQuantity)),
	)

	query := `
		UPDATE inventory
		SET available_quantity = $1, reserved_quantity = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at
	`

	err := tx.QueryRow(ctx, query, inv.AvailableQuantity, inv.ReservedQuantity, inv.ID).Scan(&inv.UpdatedAt)
	if err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrInventoryNotFound
		}
		if code, _ := pgCode(err); code == codeCheckViolation {
			return fmt.Errorf("%w: %w", domain.ErrInsufficientStock, err)
		}

		return fmt.Errorf("failed to save inventory: %w", err)
	}

	return nil
}

func (r *inventoryRepo) GetByProductIDs(ctx context.Context, productIDs []int64) ([]domain.Inventory, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.GetByProductIDs")
	defer span.End()

	span.SetAttributes(attribute.Int64Slice("product_ids", productIDs))

	query := `
		SELECT ` + inventoryColumns + `
		FROM inventory
		WHERE product_id = ANY($1) AND is_active = TRUE
		ORDER BY product_id
	`

	rows, err := r.pool.Query(ctx, query, productIDs)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Inventory, 0, len(productIDs))
	for rows.Next() {
		var inv domain.Inventory
		if err := scanInventory(rows, &inv); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan inventory: %w", err)
		}
		result = append(result, inv)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return result, nil
}

func (r *inventoryRepo) SoftDelete(ctx context.Context, productID int64) error {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.SoftDelete")
	defer span.End()

	span.SetAttributes(attribute.Int64("product_id", productID))

	query := `
		UPDATE inventory
		SET is_active = FALSE, updated_at = NOW()
		WHERE product_id = $1 AND is_active = TRUE
	`

	tag, err := r.pool.Exec(ctx, query, productID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete inventory: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrInventoryNotFound
	}

	return nil
}

func (r *inventoryRepo) CreateReservation(ctx context.Context, tx pgx.Tx, res *domain.Reservation) error {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.CreateReservation")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", res.OrderID),
		attribute.Int64("product_id", res.ProductID),
	)

	query := `
		INSERT INTO reservations (order_id, order_item_id, product_id, quantity, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		res.OrderID,
		res.OrderItemID,
		res.ProductID,
		res.Quantity,
		string(res.Status),
	).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	return nil
}

func (r *inventoryRepo) GetReservations(
	ctx context.Context,
	tx pgx.Tx,
	orderID int64,
	status domain.ReservationStatus,
) ([]domain.Reservation, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.GetReservations")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("status", string(status)),
	)

	query := `
		SELECT id, order_id, order_item_id, product_id, quantity, status, created_at, updated_at
		FROM reservations
		WHERE order_id = $1 AND status = $2
		ORDER BY product_id, id
	`

	rows, err := tx.Query(ctx, query, orderID, string(status))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var result []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(
			&res.ID,
			&res.OrderID,
			&res.OrderItemID,
			&res.ProductID,
			&res.Quantity,
			&res.Status,
			&res.CreatedAt,
			&res.UpdatedAt,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		result = append(result, res)
	}

	return result, rows.Err()
}

func (r *inventoryRepo) SetReservationStatus(ctx context.Context, tx pgx.Tx, ids []int64, status domain.ReservationStatus) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "InventoryRepository.SetReservationStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64Slice("reservation_ids", ids),
		attribute.String("status", string(status)),
	)

	query := `
		UPDATE reservations
		SET status = $1, updated_at = NOW()
		WHERE id = ANY($2)
	`

	if _, err := tx.Exec(ctx, query, string(status), ids); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update reservations: %w", err)
	}

	return nil
}
