package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	outboxDomain "github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/outbox/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/outbox/worker"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// inTx runs fn in a transaction and commits when it returns nil.
func inTx(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, logger, "Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		shutdownCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(shutdownCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(shutdownCtx, logger, "Error rolling back transaction", zap.Error(err))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, logger, "Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// emitEvent stores an event in the outbox within tx. The relay publishes it after commit.
func emitEvent(
	ctx context.Context,
	tx pgx.Tx,
	outboxRepo worker.OutboxRepository,
	topic, aggregateType string,
	aggregateID int64,
	eventType string,
	payload any,
) error {
	event, err := outboxDomain.NewEvent(topic, aggregateType, aggregateID, eventType, payload)
	if err != nil {
		return err
	}

	if err := outboxRepo.SaveOutboxEvent(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to save %s outbox event: %w", eventType, err)
	}

	return nil
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidState, fmt.Sprintf(format, args...))
}
