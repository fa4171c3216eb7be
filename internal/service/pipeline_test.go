package service_test

import (
	"context"
	"fmt"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/service"
	kafkaTransport "github.com/AdrianSzponarOnline/e-commerce-sub001/internal/transport/kafka"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/kafka"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/outbox/worker"
)

// TestPipeline_PaymentSettlementConfirmsOrderThroughKafka runs the outbox relay and the
// coordinator consumer against a real broker.
func (s *IntegrationTestSuite) TestPipeline_PaymentSettlementConfirmsOrderThroughKafka() {
	a := s.createProduct("Mouse", 100, 10, 0)
	order := s.createOrder(true, service.ItemInput{ProductID: a.ID, Quantity: 2})

	payment, err := s.Payments.AddPayment(s.Ctx, order.ID, order.TotalAmount, domain.PaymentMethodCard, "")
	s.Require().NoError(err)
	_, err = s.Payments.SettlePayment(s.Ctx, payment.ID, domain.PaymentStatusCompleted, "tx-e2e", "")
	s.Require().NoError(err)

	producer, err := kafka.NewProducer(s.KafkaBrokers, s.logger)
	s.Require().NoError(err)
	defer func() { _ = producer.Close() }()

	ctx, cancel := context.WithCancel(s.Ctx)
	defer cancel()

	relay := worker.NewOutboxProcessor(s.DbPool, s.outboxRepo, producer, s.logger, nil, worker.Options{
		BatchSize:   10,
		Interval:    100 * time.Millisecond,
		MaxAttempts: 5,
	})
	go relay.Start(ctx)

	s.Eventually(func() bool {
		return s.count(`SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`) == 0
	}, 30*time.Second, 200*time.Millisecond, "outbox was not drained")

	consumer := kafkaTransport.NewConsumer(s.Coordinator, s.logger)
	go func() {
		_ = consumer.Start(ctx, s.KafkaBrokers, fmt.Sprintf("test-coordinator-%d", time.Now().UnixNano()))
	}()

	s.Eventually(func() bool {
		return s.orderStatus(order.ID) == domain.OrderStatusConfirmed
	}, 60*time.Second, 500*time.Millisecond, "order was not confirmed")

	inv := s.stock(a.ID)
	s.Equal(int32(8), inv.AvailableQuantity)
	s.Equal(int32(0), inv.ReservedQuantity)
	s.Equal(1, s.count(`SELECT COUNT(*) FROM processed_events WHERE consumer = 'coordinator'`))
}
