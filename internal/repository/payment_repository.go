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

type PaymentRepository interface {
	Create(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, paymentID int64) (*domain.Payment, error)
	GetByID(ctx context.Context, paymentID int64) (*domain.Payment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]domain.Payment, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
}

type paymentRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewPaymentRepository(pool *pgxpool.Pool, logger *zap.Logger) PaymentRepository {
	return &paymentRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("payment_repository"),
	}
}

const paymentColumns = `id, order_id, amount, method, status, reference::text, transaction_id,
	transaction_date, notes, created_at, updated_at`

func scanPayment(row pgx.Row, p *domain.Payment) error {
	return row.Scan(
		&p.ID,
		&p.OrderID,
		&p.Amount,
		&p.Method,
		&p.Status,
		&p.Reference,
		&p.TransactionID,
		&p.TransactionDate,
		&p.Notes,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

func (r *paymentRepo) Create(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", payment.OrderID),
		attribute.Int64("amount", payment.Amount),
		attribute.String("method", string(payment.Method)),
	)

	query := `
		INSERT INTO payments (order_id, amount, method, status, reference, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, transaction_date, created_at, updated_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		payment.OrderID,
		payment.Amount,
		string(payment.Method),
		string(payment.Status),
		payment.Reference,
		payment.Notes,
	).Scan(
		&payment.ID,
		&payment.TransactionDate,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)

		if code, _ := pgCode(err); code == codeForeignKey {
			return domain.ErrOrderNotFound
		}

		mylogger.Error(ctx, r.logger, "Failed to insert payment", zap.Error(err))
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	return nil
}

func (r *paymentRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, paymentID int64) (*domain.Payment, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.GetForUpdate")
	defer span.End()

	span.SetAttributes(attribute.Int64("payment_id", paymentID))

	var payment domain.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`

	if err := scanPayment(tx.QueryRow(ctx, query, paymentID), &payment); err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}

		return nil, mapLockError(fmt.Errorf("failed to lock payment: %w", err))
	}

	return &payment, nil
}

func (r *paymentRepo) GetByID(ctx context.Context, paymentID int64) (*domain.Payment, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("payment_id", paymentID))

	var payment domain.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	if err := scanPayment(r.pool.QueryRow(ctx, query, paymentID), &payment); err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}

		return nil, fmt.Errorf("failed to query payment: %w", err)
	}

	return &payment, nil
}

func (r *paymentRepo) ListByOrder(ctx context.Context, orderID int64) ([]domain.Payment, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.ListByOrder")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Payment, 0)
	for rows.Next() {
		var payment domain.Payment
		if err := scanPayment(rows, &payment); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		result = append(result, payment)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return result, nil
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("payment_id", payment.ID),
		attribute.String("status", string(payment.Status)),
	)

	query := `
		UPDATE payments
		SET status = $1, transaction_id = $2, transaction_date = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		string(payment.Status),
		payment.TransactionID,
		payment.TransactionDate,
		payment.ID,
	).Scan(&payment.UpdatedAt)
	if err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrPaymentNotFound
		}

		return fmt.Errorf("failed to update payment: %w", err)
	}

	return nil
}
