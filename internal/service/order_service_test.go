package service_test

import (
	"sync"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/notification"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/service"
)

func (s *IntegrationTestSuite) TestCreateOrder_TotalWithSurcharge() {
	a := s.createProduct("Mouse", 100, 10, 0)
	b := s.createProduct("Cable", 50, 10, 0)

	order := s.createOrder(false,
		service.ItemInput{ProductID: a.ID, Quantity: 1},
		service.ItemInput{ProductID: b.ID, Quantity: 2},
	)

	s.Equal(domain.OrderStatusNew, order.Status)
	s.Equal(int64(220), order.TotalAmount)

	var event domain.OrderCreatedEvent
	s.lastEvent(domain.EventOrderCreated, &event)
	s.Equal(order.ID, event.OrderID)
	s.Equal("Mazowieckie", event.Region)
	s.Equal(int64(220), event.TotalAmount)
	s.Len(event.Items, 2)

	loaded, err := s.Orders.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(int64(220), loaded.TotalAmount)
	s.Len(loaded.Items, 2)
}

func (s *IntegrationTestSuite) TestCreateOrder_AboveThresholdHasNoSurcharge() {
	a := s.createProduct("Mouse", 100, 10, 0)
	b := s.createProduct("Cable", 50, 10, 0)

	order := s.createOrder(false,
		service.ItemInput{ProductID: a.ID, Quantity: 2},
		service.ItemInput{ProductID: b.ID, Quantity: 3},
	)

	s.Equal(int64(350), order.TotalAmount)
}

func (s *IntegrationTestSuite) TestCreateOrder_EmptyOrderHasZeroTotal() {
	order := s.createOrder(true)

	s.Equal(int64(0), order.TotalAmount)
	s.False(order.StockReserved)
}

func (s *IntegrationTestSuite) TestCreateOrder_ReservesStock() {
	a := s.createProduct("Mouse", 100, 10, 0)

	order := s.createOrder(true, service.ItemInput{ProductID: a.ID, Quantity: 3})

	s.True(order.StockReserved)
	inv := s.stock(a.ID)
	s.Equal(int32(7), inv.AvailableQuantity)
	s.Equal(int32(3), inv.ReservedQuantity)
	s.Equal([]string{"RESERVED"}, s.reservationStatuses(order.ID))
}

func (s *IntegrationTestSuite) TestCreateOrder_InsufficientStockWritesNothing() {
	a := s.createProduct("Mouse", 100, 5, 0)
	b := s.createProduct("Cable", 50, 1, 0)

	customerID := int64(42)
	_, err := s.Orders.CreateOrder(s.Ctx, service.CreateOrderInput{
		CustomerID: &customerID,
		AddressID:  s.addressID,
		Items: []service.ItemInput{
			{ProductID: a.ID, Quantity: 2},
			{ProductID: b.ID, Quantity: 3},
		},
		ReserveStock: true,
	})
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)

	s.Equal(0, s.count(`SELECT COUNT(*) FROM orders`))
	s.Equal(0, s.count(`SELECT COUNT(*) FROM reservations`))
	s.Equal(0, s.count(`SELECT COUNT(*) FROM outbox WHERE event_type = $1`, domain.EventOrderCreated))
	s.Equal(int32(5), s.stock(a.ID).AvailableQuantity)
	s.Equal(int32(1), s.stock(b.ID).AvailableQuantity)
}

func (s *IntegrationTestSuite) TestCreateOrder_Validation() {
	a := s.createProduct("Mouse", 100, 5, 0)

	_, err := s.Orders.CreateOrder(s.Ctx, service.CreateOrderInput{
		AddressID: s.addressID,
		Items:     []service.ItemInput{{ProductID: a.ID, Quantity: 1}},
	})
	s.ErrorIs(err, domain.ErrValidation)

	customerID := int64(42)
	_, err = s.Orders.CreateOrder(s.Ctx, service.CreateOrderInput{
		CustomerID: &customerID,
		AddressID:  s.addressID,
		Items:      []service.ItemInput{{ProductID: a.ID, Quantity: 0}},
	})
	s.ErrorIs(err, domain.ErrValidation)

	_, err = s.Orders.CreateOrder(s.Ctx, service.CreateOrderInput{
		CustomerID: &customerID,
		AddressID:  99999,
	})
	s.ErrorIs(err, domain.ErrAddressNotFound)

	_, err = s.Orders.CreateOrder(s.Ctx, service.CreateOrderInput{
		CustomerID: &customerID,
		AddressID:  s.addressID,
		Items:      []service.ItemInput{{ProductID: 99999, Quantity: 1}},
	})
	s.ErrorIs(err, domain.ErrProductNotFound)
}

func (s *IntegrationTestSuite) TestCreateOrder_GuestWithPendingPayment() {
	a := s.createProduct("Mouse", 100, 5, 0)
	method := domain.PaymentMethodTransfer

	order, err := s.Orders.CreateOrder(s.Ctx, service.CreateOrderInput{
		Guest:         &domain.GuestContact{Name: "Ann", Email: "ann@example.com"},
		AddressID:     s.addressID,
		Items:         []service.ItemInput{{ProductID: a.ID, Quantity: 1}},
		PaymentMethod: &method,
	})
	s.Require().NoError(err)
	s.Require().Len(order.Payments, 1)
	s.Equal(domain.PaymentStatusPending, order.Payments[0].Status)
	s.Equal(order.TotalAmount, order.Payments[0].Amount)
	s.NotEmpty(order.Payments[0].Reference)

	loaded, err := s.Orders.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().NotNil(loaded.Guest)
	s.Equal("ann@example.com", loaded.Guest.Email)
	s.Len(loaded.Payments, 1)
}

func (s *IntegrationTestSuite) TestAddRemoveItem_KeepsTotalAndReservations() {
	a := s.createProduct("Mouse", 100, 10, 0)
	b := s.createProduct("Cable", 50, 10, 0)

	order := s.createOrder(true, service.ItemInput{ProductID: a.ID, Quantity: 1})
	s.Equal(int64(120), order.TotalAmount)

	order, err := s.Orders.AddItem(s.Ctx, order.ID, service.ItemInput{ProductID: b.ID, Quantity: 2})
	s.Require().NoError(err)
	s.Equal(int64(220), order.TotalAmount)
	s.Equal(int32(8), s.stock(b.ID).AvailableQuantity)

	var added int64
	for _, item := range order.Items {
		if item.ProductID == b.ID {
			added = item.ID
		}
	}
	s.Require().NotZero(added)

	order, err = s.Orders.RemoveItem(s.Ctx, order.ID, added)
	s.Require().NoError(err)
	s.Equal(int64(120), order.TotalAmount)
	s.Equal(int32(10), s.stock(b.ID).AvailableQuantity)
	s.Equal(int32(0), s.stock(b.ID).ReservedQuantity)

	loaded, err := s.Orders.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(int64(120), loaded.TotalAmount)
	s.Len(loaded.Items, 1)

	_, err = s.Orders.RemoveItem(s.Ctx, order.ID, 99999)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *IntegrationTestSuite) TestGetOrder_RecalculatesCorruptedTotal() {
	a := s.createProduct("Mouse", 100, 10, 0)
	order := s.createOrder(false, service.ItemInput{ProductID: a.ID, Quantity: 1})

	_, err := s.DbPool.Exec(s.Ctx, `UPDATE orders SET total_amount = 1 WHERE id = $1`, order.ID)
	s.Require().NoError(err)

	loaded, err := s.Orders.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(int64(120), loaded.TotalAmount)
}

func (s *IntegrationTestSuite) TestFulfillment_FollowsGraph() {
	a := s.createProduct("Mouse", 100, 10, 0)
	order := s.createOrder(true, service.ItemInput{ProductID: a.ID, Quantity: 1})

	_, err := s.Orders.UpdateFulfillmentStatus(s.Ctx, order.ID, domain.OrderStatusProcessing)
	s.Require().ErrorIs(err, domain.ErrInvalidState)

	_, err = s.Orders.UpdateFulfillmentStatus(s.Ctx, order.ID, domain.OrderStatusConfirmed)
	s.Require().ErrorIs(err, domain.ErrInvalidState)

	eventID, event := s.settle(order, domain.PaymentStatusCompleted)
	s.Require().NoError(s.Coordinator.HandlePaymentStatusChanged(s.Ctx, eventID, event))

	for _, status := range []domain.OrderStatus{
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCompleted,
	} {
		updated, err := s.Orders.UpdateFulfillmentStatus(s.Ctx, order.ID, status)
		s.Require().NoError(err)
		s.Equal(status, updated.Status)
	}

	var shipped domain.OrderShippedEvent
	s.lastEvent(domain.EventOrderShipped, &shipped)
	s.Equal(order.ID, shipped.OrderID)

	_, err = s.Orders.UpdateFulfillmentStatus(s.Ctx, order.ID, domain.OrderStatusRefunded)
	s.Require().ErrorIs(err, domain.ErrInvalidState)
}

func (s *IntegrationTestSuite) TestItemsFrozenAfterConfirmation() {
	a := s.createProduct("Mouse", 100, 10, 0)
	order := s.createOrder(true, service.ItemInput{ProductID: a.ID, Quantity: 1})

	eventID, event := s.settle(order, domain.PaymentStatusCompleted)
	s.Require().NoError(s.Coordinator.HandlePaymentStatusChanged(s.Ctx, eventID, event))

	_, err := s.Orders.AddItem(s.Ctx, order.ID, service.ItemInput{ProductID: a.ID, Quantity: 1})
	s.ErrorIs(err, domain.ErrInvalidState)
}

func (s *IntegrationTestSuite) TestDeleteOrder() {
	a := s.createProduct("Mouse", 100, 10, 0)
	order := s.createOrder(true, service.ItemInput{ProductID: a.ID, Quantity: 1})

	s.Require().ErrorIs(s.Orders.DeleteOrder(s.Ctx, order.ID), domain.ErrInvalidState)

	eventID, event := s.settle(order, domain.PaymentStatusFailed)
	s.Require().NoError(s.Coordinator.HandlePaymentStatusChanged(s.Ctx, eventID, event))

	s.Require().NoError(s.Orders.DeleteOrder(s.Ctx, order.ID))

	_, err := s.Orders.GetOrder(s.Ctx, order.ID)
	s.ErrorIs(err, domain.ErrOrderNotFound)
	s.Equal(1, s.count(`SELECT COUNT(*) FROM orders WHERE id = $1 AND is_active = FALSE`, order.ID))
}

func (s *IntegrationTestSuite) TestCreateOrder_PaymentMethodWithoutItems() {
	method := domain.PaymentMethodCard
	customerID := int64(42)

	_, err := s.Orders.CreateOrder(s.Ctx, service.CreateOrderInput{
		CustomerID:    &customerID,
		AddressID:     s.addressID,
		PaymentMethod: &method,
	})
	s.Require().ErrorIs(err, domain.ErrValidation)
	s.Contains(err.Error(), "without items")

	s.Equal(0, s.count(`SELECT COUNT(*) FROM orders`))
	s.Equal(0, s.count(`SELECT COUNT(*) FROM payments`))
}

func (s *IntegrationTestSuite) TestCreateOrder_ReservationBelowMinimumNotifies() {
	a := s.createProduct("Mouse", 100, 10, 5)

	s.createOrder(true, service.ItemInput{ProductID: a.ID, Quantity: 4})
	s.NotContains(s.dispatcher.kinds(), notification.KindLowStock)

	s.createOrder(true, service.ItemInput{ProductID: a.ID, Quantity: 2})
	s.Equal([]notification.Kind{notification.KindLowStock}, s.dispatcher.kinds())

	s.dispatcher.mu.Lock()
	cmd := s.dispatcher.commands[0]
	s.dispatcher.mu.Unlock()
	s.Equal(a.ID, cmd.ProductID)
}

func (s *IntegrationTestSuite) TestCreateOrder_OverlappingProductSetsDoNotDeadlock() {
	a := s.createProduct("Mouse", 100, 100, 0)
	b := s.createProduct("Cable", 50, 100, 0)

	forward := []service.ItemInput{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 1}}
	backward := []service.ItemInput{{ProductID: b.ID, Quantity: 1}, {ProductID: a.ID, Quantity: 1}}

	const orders = 40
	customerID := int64(42)

	var wg sync.WaitGroup
	errs := make(chan error, orders)
	for i := range orders {
		items := forward
		if i%2 == 1 {
			items = backward
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := s.Orders.CreateOrder(s.Ctx, service.CreateOrderInput{
				CustomerID:   &customerID,
				AddressID:    s.addressID,
				Items:        items,
				ReserveStock: true,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}

	for _, id := range []int64{a.ID, b.ID} {
		inv := s.stock(id)
		s.Equal(int32(100-orders), inv.AvailableQuantity)
		s.Equal(int32(orders), inv.ReservedQuantity)
	}
	s.Equal(orders, s.count(`SELECT COUNT(*) FROM orders`))
	s.Equal(2*orders, s.count(`SELECT COUNT(*) FROM reservations WHERE status = 'RESERVED'`))
}
