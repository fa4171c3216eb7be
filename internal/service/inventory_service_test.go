package service_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/notification"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/service"
)

func (s *IntegrationTestSuite) TestReserve_ConcurrentRequestsNeverOversell() {
	product := s.createProduct("Thinkpad", 1000, 10, 0)

	const workers = 25
	var (
		wg           sync.WaitGroup
		succeeded    atomic.Int32
		insufficient atomic.Int32
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := s.Inventory.Reserve(s.Ctx, product.ID, 1)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficient.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(10), succeeded.Load())
	s.Equal(int32(workers-10), insufficient.Load())

	inv := s.stock(product.ID)
	s.Equal(int32(0), inv.AvailableQuantity)
	s.Equal(int32(10), inv.ReservedQuantity)
}

func (s *IntegrationTestSuite) TestReserveRelease_RoundTrip() {
	product := s.createProduct("Thinkpad", 1000, 7, 0)

	_, err := s.Inventory.Reserve(s.Ctx, product.ID, 4)
	s.Require().NoError(err)

	inv, err := s.Inventory.Release(s.Ctx, product.ID, 4)
	s.Require().NoError(err)

	s.Equal(int32(7), inv.AvailableQuantity)
	s.Equal(int32(0), inv.ReservedQuantity)
}

func (s *IntegrationTestSuite) TestReserve_InsufficientLeavesStockUnchanged() {
	product := s.createProduct("Thinkpad", 1000, 3, 0)

	_, err := s.Inventory.Reserve(s.Ctx, product.ID, 5)
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)

	inv := s.stock(product.ID)
	s.Equal(int32(3), inv.AvailableQuantity)
	s.Equal(int32(0), inv.ReservedQuantity)
}

func (s *IntegrationTestSuite) TestRelease_MoreThanReservedIsInvalidState() {
	product := s.createProduct("Thinkpad", 1000, 3, 0)

	_, err := s.Inventory.Release(s.Ctx, product.ID, 1)
	s.Require().ErrorIs(err, domain.ErrInvalidState)
}

func (s *IntegrationTestSuite) TestReserve_UnknownProduct() {
	_, err := s.Inventory.Reserve(s.Ctx, 9999, 1)
	s.Require().ErrorIs(err, domain.ErrInventoryNotFound)
}

func (s *IntegrationTestSuite) TestAdjust() {
	product := s.createProduct("Thinkpad", 1000, 3, 0)

	inv, err := s.Inventory.Adjust(s.Ctx, product.ID, 5)
	s.Require().NoError(err)
	s.Equal(int32(8), inv.AvailableQuantity)

	_, err = s.Inventory.Adjust(s.Ctx, product.ID, -9)
	s.Require().ErrorIs(err, domain.ErrInvalidState)
	s.Equal(int32(8), s.stock(product.ID).AvailableQuantity)
}

func (s *IntegrationTestSuite) TestReserve_LowStockNotifies() {
	product := s.createProduct("Thinkpad", 1000, 3, 2)

	_, err := s.Inventory.Reserve(s.Ctx, product.ID, 2)
	s.Require().NoError(err)

	s.Contains(s.dispatcher.kinds(), notification.KindLowStock)
}

func (s *IntegrationTestSuite) TestReserve_LockTimeoutIsBusy() {
	product := s.createProduct("Thinkpad", 1000, 3, 0)

	tx, err := s.DbPool.Begin(s.Ctx)
	s.Require().NoError(err)
	defer func() { _ = tx.Rollback(s.Ctx) }()

	_, err = tx.Exec(s.Ctx, `SELECT 1 FROM inventory WHERE product_id = $1 FOR UPDATE`, product.ID)
	s.Require().NoError(err)

	impatient := service.NewInventoryService(s.DbPool, s.logger, s.inventoryRepo, nil, nil, 200*time.Millisecond)

	_, err = impatient.Reserve(s.Ctx, product.ID, 1)
	s.Require().ErrorIs(err, domain.ErrBusy)
}

func (s *IntegrationTestSuite) TestDelete_HidesInventory() {
	product := s.createProduct("Thinkpad", 1000, 3, 0)

	s.Require().NoError(s.Inventory.Delete(s.Ctx, product.ID))

	_, err := s.Inventory.Reserve(s.Ctx, product.ID, 1)
	s.Require().ErrorIs(err, domain.ErrInventoryNotFound)
}
