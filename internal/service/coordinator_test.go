package service_test

import (
	"errors"
	"sync"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/notification"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/service"
)

func (s *IntegrationTestSuite) TestPaymentCompleted_ConfirmsExactlyOnce() {
	a := s.createProduct("Mouse", 100, 10, 0)
	order := s.createOrder(true, service.ItemInput{ProductID: a.ID, Quantity: 3})

	eventID, event := s.settle(order, domain.PaymentStatusCompleted)

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.Coordinator.HandlePaymentStatusChanged(s.Ctx, eventID, event))
		}()
	}
	wg.Wait()
	s.Require().NoError(s.Coordinator.HandlePaymentStatusChanged(s.Ctx, eventID, event))

	s.Equal(domain.OrderStatusConfirmed, s.orderStatus(order.ID))
	s.Equal(1, s.count(`SELECT COUNT(*) FROM outbox WHERE event_type = $1`, domain.EventOrderConfirmed))
	s.Equal(1, s.count(`SELECT COUNT(*) FROM processed_events WHERE event_id = $1`, eventID))

	inv := s.stock(a.ID)
	s.Equal(int32(7), inv.AvailableQuantity)
	s.Equal(int32(0), inv.ReservedQuantity)
	s.Equal([]string{"COMMITTED"}, s.reservationStatuses(order.ID))
}

func (s *IntegrationTestSuite) TestPaymentCompleted_DeductsUnreservedOrder() {
	a := s.createProduct("Mouse", 100, 5, 0)
	order := s.createOrder(false, service.ItemInput{ProductID: a.ID, Quantity: 2})

	eventID, event := s.settle(order, domain.PaymentStatusCompleted)
	s.Require().NoError(s.Coordinator.HandlePaymentStatusChanged(s.Ctx, eventID, event))

	s.Equal(domain.OrderStatusConfirmed, s.orderStatus(order.ID))
	s.Equal(int32(3), s.stock(a.ID).AvailableQuantity)
}

func (s *IntegrationTestSuite) TestPaymentCompleted_WithoutStockCancels() {
	a := s.createProduct("Mouse", 100, 1, 0)
	order := s.createOrder(false, service.ItemInput{ProductID: a.ID, Quantity: 2})

	eventID, event := s.settle(order, domain.PaymentStatusCompleted)
	s.Require().NoError(s.Coordinator.HandlePaymentStatusChanged(s.Ctx, eventID, event))

	s.Equal(domain.OrderStatusCancelled, s.orderStatus(order.ID))
	s.Equal(int32(1), s.stock(a.ID).AvailableQuantity)

	var cancelled domain.OrderCancelledEvent
	s.lastEvent(domain.EventOrderCancelled, &cancelled)
	s.Equal(service.ReasonStockUnavailable, cancelled.Reason)
	s.False(cancelled.PaymentFailed)
}

func (s *IntegrationTestSuite) TestPaymentFailed_ReleasesRecordedReservations() {
	a := s.createProduct("Mouse", 100, 10, 0)
	b := s.createProduct("Cable", 50, 10, 0)
	order := s.createOrder(true,
		service.ItemInput{ProductID: a.ID, Quantity: 3},
		service.ItemInput{ProductID: b.ID, Quantity: 1},
	)

	eventID, event := s.settle(order, domain.PaymentStatusFailed)
	s.Require().NoError(s.Coordinator.HandlePaymentStatusChanged(s.Ctx, eventID, event))
	s.Require().NoError(s.Coordinator.HandlePaymentStatusChanged(s.Ctx, eventID, event))

	s.Equal(domain.OrderStatusCancelled, s.orderStatus(order.ID))
	s.Equal([]string{"RELEASED", "RELEASED"}, s.reservationStatuses(order.ID))

	for _, id := range []int64{a.ID, b.ID} {
		inv := s.stock(id)
		s.Equal(int32(10), inv.AvailableQuantity)
		s.Equal(int32(0), inv.ReservedQuantity)
	}

	var cancelled domain.OrderCancelledEvent
	s.lastEvent(domain.EventOrderCancelled, &cancelled)
	s.Equal(service.ReasonPaymentFailed, cancelled.Reason)
	s.True(cancelled.PaymentFailed)
	s.ElementsMatch([]domain.EventItem{
		{ProductID: a.ID, Quantity: 3},
		{ProductID: b.ID, Quantity: 1},
	}, cancelled.Released)
	s.Equal(1, s.count(`SELECT COUNT(*) FROM outbox WHERE event_type = $1`, domain.EventOrderCancelled))
}

func (s *IntegrationTestSuite) TestStalePaymentFailure_IsIgnored() {
	a := s.createProduct("Mouse", 100, 10, 0)
	order := s.createOrder(true, service.ItemInput{ProductID: a.ID, Quantity: 3})

	err := s.Coordinator.HandlePaymentStatusChanged(s.Ctx, 777, &domain.PaymentStatusChangedEvent{
		PaymentID: 1,
		OrderID:   order.ID,
		OldStatus: domain.PaymentStatusCompleted,
		NewStatus: domain.PaymentStatusFailed,
	})
	s.Require().NoError(err)

	s.Equal(domain.OrderStatusNew, s.orderStatus(order.ID))
	s.Equal(int32(3), s.stock(a.ID).ReservedQuantity)
	s.Equal(0, s.count(`SELECT COUNT(*) FROM processed_events`))
}

func (s *IntegrationTestSuite) TestSecondPayment_DoesNotReconfirm() {
	a := s.createProduct("Mouse", 100, 10, 0)
	order := s.createOrder(true, service.ItemInput{ProductID: a.ID, Quantity: 1})

	firstID, first := s.settle(order, domain.PaymentStatusCompleted)
	s.Require().NoError(s.Coordinator.HandlePaymentStatusChanged(s.Ctx, firstID, first))

	secondID, second := s.settle(order, domain.PaymentStatusCompleted)
	s.Require().NoError(s.Coordinator.HandlePaymentStatusChanged(s.Ctx, secondID, second))

	s.Equal(domain.OrderStatusConfirmed, s.orderStatus(order.ID))
	s.Equal(1, s.count(`SELECT COUNT(*) FROM outbox WHERE event_type = $1`, domain.EventOrderConfirmed))
	s.Equal(int32(9), s.stock(a.ID).AvailableQuantity)
}

func (s *IntegrationTestSuite) TestSettlePayment_OnlyOnce() {
	a := s.createProduct("Mouse", 100, 10, 0)
	order := s.createOrder(false, service.ItemInput{ProductID: a.ID, Quantity: 1})

	payment, err := s.Payments.AddPayment(s.Ctx, order.ID, order.TotalAmount, domain.PaymentMethodCard, "first try")
	s.Require().NoError(err)

	settled, err := s.Payments.SettlePayment(s.Ctx, payment.ID, domain.PaymentStatusCompleted, "tx-1", "")
	s.Require().NoError(err)
	s.Equal(domain.PaymentStatusCompleted, settled.Status)
	s.Require().NotNil(settled.TransactionID)
	s.Equal("tx-1", *settled.TransactionID)

	_, err = s.Payments.SettlePayment(s.Ctx, payment.ID, domain.PaymentStatusFailed, "", "")
	s.ErrorIs(err, domain.ErrInvalidState)

	_, err = s.Payments.SettlePayment(s.Ctx, payment.ID, domain.PaymentStatusPending, "", "")
	s.ErrorIs(err, domain.ErrValidation)

	s.Equal(1, s.count(`SELECT COUNT(*) FROM outbox WHERE event_type = $1`, domain.EventPaymentStatusChanged))

	payments, err := s.Payments.ListPayments(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Len(payments, 1)
	s.Equal("first try", payments[0].Notes)
}

func (s *IntegrationTestSuite) TestAddPayment_Validation() {
	a := s.createProduct("Mouse", 100, 10, 0)
	order := s.createOrder(false, service.ItemInput{ProductID: a.ID, Quantity: 1})

	_, err := s.Payments.AddPayment(s.Ctx, order.ID, 0, domain.PaymentMethodCard, "")
	s.ErrorIs(err, domain.ErrValidation)

	_, err = s.Payments.AddPayment(s.Ctx, order.ID, 100, domain.PaymentMethod("BITCOIN"), "")
	s.ErrorIs(err, domain.ErrValidation)

	_, err = s.Payments.AddPayment(s.Ctx, 99999, 100, domain.PaymentMethodCard, "")
	s.ErrorIs(err, domain.ErrOrderNotFound)

	_, err = s.Payments.GetPayment(s.Ctx, 99999)
	s.ErrorIs(err, domain.ErrPaymentNotFound)
}

func (s *IntegrationTestSuite) TestOrderEvents_DriveNotifications() {
	recipient := domain.Recipient{Email: "ann@example.com"}

	s.Require().NoError(s.Coordinator.HandleOrderCreated(s.Ctx, &domain.OrderCreatedEvent{OrderID: 1, Recipient: recipient}))
	s.Require().NoError(s.Coordinator.HandleOrderConfirmed(s.Ctx, &domain.OrderConfirmedEvent{OrderID: 1, Recipient: recipient}))
	s.Require().NoError(s.Coordinator.HandleOrderShipped(s.Ctx, &domain.OrderShippedEvent{OrderID: 1, Recipient: recipient}))
	s.Require().NoError(s.Coordinator.HandleOrderCancelled(s.Ctx, &domain.OrderCancelledEvent{
		OrderID:       2,
		Reason:        service.ReasonPaymentFailed,
		PaymentFailed: true,
	}))
	s.Require().NoError(s.Coordinator.HandleOrderCancelled(s.Ctx, &domain.OrderCancelledEvent{
		OrderID: 3,
		Reason:  service.ReasonStockUnavailable,
	}))

	s.Equal([]notification.Kind{
		notification.KindOrderReceived,
		notification.KindOrderConfirmation,
		notification.KindShipmentNotice,
		notification.KindPaymentFailure,
		notification.KindOrderCancelled,
	}, s.dispatcher.kinds())
}

func (s *IntegrationTestSuite) TestFulfillmentCancellation_NotifiesAsOrderCancelled() {
	a := s.createProduct("Mouse", 100, 10, 0)
	order := s.createOrder(true, service.ItemInput{ProductID: a.ID, Quantity: 1})

	eventID, event := s.settle(order, domain.PaymentStatusCompleted)
	s.Require().NoError(s.Coordinator.HandlePaymentStatusChanged(s.Ctx, eventID, event))

	_, err := s.Orders.UpdateFulfillmentStatus(s.Ctx, order.ID, domain.OrderStatusCancelled)
	s.Require().NoError(err)

	var cancelled domain.OrderCancelledEvent
	s.lastEvent(domain.EventOrderCancelled, &cancelled)
	s.False(cancelled.PaymentFailed)

	s.Require().NoError(s.Coordinator.HandleOrderCancelled(s.Ctx, &cancelled))
	kinds := s.dispatcher.kinds()
	s.Require().NotEmpty(kinds)
	s.Equal(notification.KindOrderCancelled, kinds[len(kinds)-1])
}

func (s *IntegrationTestSuite) TestNotificationFailure_KeepsCommittedReaction() {
	s.dispatcher.err = errors.New("notification broker unavailable")

	a := s.createProduct("Mouse", 100, 10, 9)
	confirmed := s.createOrder(true, service.ItemInput{ProductID: a.ID, Quantity: 3})
	failed := s.createOrder(true, service.ItemInput{ProductID: a.ID, Quantity: 1})

	eventID, event := s.settle(confirmed, domain.PaymentStatusCompleted)
	s.Require().NoError(s.Coordinator.HandlePaymentStatusChanged(s.Ctx, eventID, event))
	s.Equal(domain.OrderStatusConfirmed, s.orderStatus(confirmed.ID))
	s.Contains(s.dispatcher.kinds(), notification.KindLowStock)

	eventID, event = s.settle(failed, domain.PaymentStatusFailed)
	s.Require().NoError(s.Coordinator.HandlePaymentStatusChanged(s.Ctx, eventID, event))
	s.Equal(domain.OrderStatusCancelled, s.orderStatus(failed.ID))

	var created domain.OrderCreatedEvent
	s.lastEvent(domain.EventOrderCreated, &created)
	var confirmedEvent domain.OrderConfirmedEvent
	s.lastEvent(domain.EventOrderConfirmed, &confirmedEvent)
	var cancelled domain.OrderCancelledEvent
	s.lastEvent(domain.EventOrderCancelled, &cancelled)

	s.NoError(s.Coordinator.HandleOrderCreated(s.Ctx, &created))
	s.NoError(s.Coordinator.HandleOrderConfirmed(s.Ctx, &confirmedEvent))
	s.NoError(s.Coordinator.HandleOrderCancelled(s.Ctx, &cancelled))

	s.Equal(domain.OrderStatusConfirmed, s.orderStatus(confirmed.ID))
	s.Equal(domain.OrderStatusCancelled, s.orderStatus(failed.ID))

	inv := s.stock(a.ID)
	s.Equal(int32(7), inv.AvailableQuantity)
	s.Equal(int32(0), inv.ReservedQuantity)
}
