package service

import (
	"context"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
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

const aggregatePayment = "Payment"

type PaymentService interface {
	AddPayment(ctx context.Context, orderID, amount int64, method domain.PaymentMethod, notes string) (*domain.Payment, error)
	SettlePayment(ctx context.Context, paymentID int64, status domain.PaymentStatus, transactionID, reason string) (*domain.Payment, error)
	GetPayment(ctx context.Context, paymentID int64) (*domain.Payment, error)
	ListPayments(ctx context.Context, orderID int64) ([]domain.Payment, error)
}

type paymentService struct {
	pool        *pgxpool.Pool
	logger      *zap.Logger
	paymentRepo repository.PaymentRepository
	orderRepo   repository.OrderRepository
	outboxRepo  worker.OutboxRepository
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

func NewPaymentService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	paymentRepo repository.PaymentRepository,
	orderRepo repository.OrderRepository,
	outboxRepo worker.OutboxRepository,
	m *metrics.Metrics,
) PaymentService {
	return &paymentService{
		pool:        pool,
		logger:      logger,
		paymentRepo: paymentRepo,
		orderRepo:   orderRepo,
		outboxRepo:  outboxRepo,
		metrics:     m,
		tracer:      otel.Tracer("payment_service"),
	}
}

func (s *paymentService) AddPayment(
	ctx context.Context,
	orderID, amount int64,
	method domain.PaymentMethod,
	notes string,
) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.AddPayment")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int64("amount", amount),
		attribute.String("method", string(method)),
	)

	payment, err := domain.NewPayment(orderID, amount, method, uuid.NewString(), notes)
	if err != nil {
		logRejection(ctx, s.logger, "Payment rejected", err, zap.Int64("order_id", orderID))
		return nil, err
	}

	err = inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		order, err := s.orderRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !order.IsActive {
			return domain.ErrOrderNotFound
		}
		if order.Status.IsTerminal() {
			return invalidState("order %d is %s and cannot take payments", order.ID, order.Status)
		}

		return s.paymentRepo.Create(ctx, tx, payment)
	})
	if err != nil {
		span.RecordError(err)
		logRejection(ctx, s.logger, "Failed to add payment", err, zap.Int64("order_id", orderID))
		return nil, err
	}

	mylogger.Audit(ctx, s.logger, "payment.recorded",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("order_id", orderID),
		zap.Int64("amount", amount),
		zap.String("reference", payment.Reference),
	)

	return payment, nil
}

// SettlePayment finalizes a PENDING payment. The status change and its event commit
// together, so the order reacts only to settlements that actually happened.
func (s *paymentService) SettlePayment(
	ctx context.Context,
	paymentID int64,
	status domain.PaymentStatus,
	transactionID, reason string,
) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.SettlePayment")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("payment_id", paymentID),
		attribute.String("status", string(status)),
	)

	var (
		payment *domain.Payment
		old     domain.PaymentStatus
	)
	err := inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		payment, err = s.paymentRepo.GetForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		old, err = payment.Settle(status, transactionID, now)
		if err != nil {
			return err
		}

		if err := s.paymentRepo.UpdateStatus(ctx, tx, payment); err != nil {
			return err
		}

		return emitEvent(ctx, tx, s.outboxRepo, domain.TopicPaymentEvents, aggregatePayment, payment.OrderID,
			domain.EventPaymentStatusChanged, &domain.PaymentStatusChangedEvent{
				PaymentID: payment.ID,
				OrderID:   payment.OrderID,
				Amount:    payment.Amount,
				OldStatus: old,
				NewStatus: payment.Status,
				Reason:    reason,
				ChangedAt: now,
			})
	})
	if err != nil {
		span.RecordError(err)
		logRejection(ctx, s.logger, "Failed to settle payment", err, zap.Int64("payment_id", paymentID))
		return nil, err
	}

	s.metrics.PaymentSettled(string(payment.Status))
	mylogger.Audit(ctx, s.logger, "payment.settled",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("order_id", payment.OrderID),
		zap.String("old_status", string(old)),
		zap.String("new_status", string(payment.Status)),
	)

	return payment, nil
}

func (s *paymentService) GetPayment(ctx context.Context, paymentID int64) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.GetPayment")
	defer span.End()

	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return payment, nil
}

func (s *paymentService) ListPayments(ctx context.Context, orderID int64) ([]domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.ListPayments")
	defer span.End()

	if _, err := s.orderRepo.GetByID(ctx, orderID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	payments, err := s.paymentRepo.ListByOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return payments, nil
}
