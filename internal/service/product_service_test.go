package service_test

import (
	"regexp"
	"strconv"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/service"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/sku"
)

var skuPattern = regexp.MustCompile(`^LAP-THI-BL-[A-Z0-9]{4}$`)

func (s *IntegrationTestSuite) productInput() service.CreateProductInput {
	return service.CreateProductInput{
		Name:         "Thinkpad",
		Price:        5000,
		CategoryID:   s.categoryID,
		Attributes:   map[int64]string{s.colorAttr: "Black"},
		InitialStock: 4,
	}
}

func (s *IntegrationTestSuite) TestCreateProduct_AssignsSKUAndStock() {
	product, err := s.Products.Create(s.Ctx, s.productInput())
	s.Require().NoError(err)

	s.Regexp(skuPattern, product.SKU)
	s.Equal(int32(4), s.stock(product.ID).AvailableQuantity)

	var event domain.ProductCreatedEvent
	s.lastEvent(domain.EventProductCreated, &event)
	s.Equal(product.ID, event.ProductID)
	s.Equal(product.SKU, event.SKU)

	loaded, err := s.Products.GetByID(s.Ctx, product.ID)
	s.Require().NoError(err)
	s.Equal(product.SKU, loaded.SKU)
	s.Require().Len(loaded.Attributes, 1)
	s.Equal("Black", loaded.Attributes[0].Value)
}

func (s *IntegrationTestSuite) TestCreateProduct_RegeneratesCollidingSKU() {
	first, err := s.newProductService(sku.NewSeededGenerator(7, 11), 5).Create(s.Ctx, s.productInput())
	s.Require().NoError(err)

	// Same seed, so the first candidate repeats the existing SKU.
	second, err := s.newProductService(sku.NewSeededGenerator(7, 11), 5).Create(s.Ctx, s.productInput())
	s.Require().NoError(err)

	s.NotEqual(first.SKU, second.SKU)
	s.Regexp(skuPattern, second.SKU)
	s.Equal(2, s.count(`SELECT COUNT(*) FROM products`))
	s.Equal(2, s.count(`SELECT COUNT(*) FROM inventory`))
}

func (s *IntegrationTestSuite) TestCreateProduct_GivesUpAfterMaxAttempts() {
	_, err := s.newProductService(sku.NewSeededGenerator(3, 5), 1).Create(s.Ctx, s.productInput())
	s.Require().NoError(err)

	_, err = s.newProductService(sku.NewSeededGenerator(3, 5), 1).Create(s.Ctx, s.productInput())
	s.Require().ErrorIs(err, domain.ErrSKUExhausted)
	s.Equal(1, s.count(`SELECT COUNT(*) FROM products`))
}

func (s *IntegrationTestSuite) TestCreateProduct_Validation() {
	in := s.productInput()
	in.CategoryID = 99999
	_, err := s.Products.Create(s.Ctx, in)
	s.ErrorIs(err, domain.ErrCategoryNotFound)

	in = s.productInput()
	in.Attributes = map[int64]string{99999: "x"}
	_, err = s.Products.Create(s.Ctx, in)
	s.ErrorIs(err, domain.ErrValidation)

	in = s.productInput()
	in.InitialStock = -1
	_, err = s.Products.Create(s.Ctx, in)
	s.ErrorIs(err, domain.ErrValidation)
}

func (s *IntegrationTestSuite) TestCachedProductService_ServesFromRedis() {
	cached := service.NewCachedProductService(s.Products, s.RedisClient, time.Minute, s.logger)

	product, err := cached.Create(s.Ctx, s.productInput())
	s.Require().NoError(err)

	first, err := cached.GetByID(s.Ctx, product.ID)
	s.Require().NoError(err)
	s.Equal(int64(5000), first.Price)

	_, err = s.DbPool.Exec(s.Ctx, `UPDATE products SET price = 7000 WHERE id = $1`, product.ID)
	s.Require().NoError(err)

	stale, err := cached.GetByID(s.Ctx, product.ID)
	s.Require().NoError(err)
	s.Equal(int64(5000), stale.Price)
	s.Equal(product.SKU, stale.SKU)

	s.Require().NoError(s.RedisClient.Del(s.Ctx, "product:"+strconv.FormatInt(product.ID, 10)).Err())

	fresh, err := cached.GetByID(s.Ctx, product.ID)
	s.Require().NoError(err)
	s.Equal(int64(7000), fresh.Price)

	_, err = cached.GetByID(s.Ctx, 99999)
	s.ErrorIs(err, domain.ErrProductNotFound)
}
