package utils

import (
	"context"
	"errors"
	"fmt"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ProcessWithDeduplication runs action inside a transaction that also records
// (consumer, eventID) in processed_events. Both commit together, so an event that was
// applied once is skipped on redelivery. The returned bool is false for such skips.
func ProcessWithDeduplication(
	ctx context.Context,
	pool *pgxpool.Pool,
	logger *zap.Logger,
	consumer string,
	eventID int64,
	action func(ctx context.Context, tx pgx.Tx) error,
) (bool, error) {
	span := trace.SpanFromContext(ctx)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		shutdownCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(shutdownCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				shutdownCtx,
				logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	query := `
		INSERT INTO processed_events (consumer, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	tag, err := tx.Exec(ctx, query, consumer, eventID)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to record processed event: %w", err)
	}

	if tag.RowsAffected() == 0 {
		mylogger.Info(
			ctx,
			logger,
			"Event already processed, skipping",
			zap.String("consumer", consumer),
			zap.Int64("event_id", eventID),
		)

		return false, nil
	}

	if err := action(ctx, tx); err != nil {
		span.RecordError(err)
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}

		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}
