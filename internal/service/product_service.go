package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/repository"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/sku"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/outbox/worker"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const aggregateProduct = "Product"

type SKUGenerator interface {
	Generate(p *domain.Product) (string, error)
}

type CreateProductInput struct {
	Name              string
	Description       string
	Price             int64
	CategoryID        int64
	Attributes        map[int64]string
	InitialStock      int32
	MinimumStockLevel int32
}

type ProductService interface {
	Create(ctx context.Context, in CreateProductInput) (*domain.Product, error)
	GetByID(ctx context.Context, productID int64) (*domain.Product, error)
}

type productService struct {
	pool          *pgxpool.Pool
	logger        *zap.Logger
	productRepo   repository.ProductRepository
	inventoryRepo repository.InventoryRepository
	outboxRepo    worker.OutboxRepository
	skus          SKUGenerator
	maxAttempts   int
	tracer        trace.Tracer
}

func NewProductService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	productRepo repository.ProductRepository,
	inventoryRepo repository.InventoryRepository,
	outboxRepo worker.OutboxRepository,
	skus SKUGenerator,
	maxAttempts int,
) ProductService {
	if skus == nil {
		skus = sku.NewGenerator()
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	return &productService{
		pool:          pool,
		logger:        logger,
		productRepo:   productRepo,
		inventoryRepo: inventoryRepo,
		outboxRepo:    outboxRepo,
		skus:          skus,
		maxAttempts:   maxAttempts,
		tracer:        otel.Tracer("product_service"),
	}
}

// Create stores a new product with a generated SKU and an inventory row. A SKU that is
// already taken is regenerated with a fresh suffix until maxAttempts is reached.
func (s *productService) Create(ctx context.Context, in CreateProductInput) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Create")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("category_id", in.CategoryID),
		attribute.String("name", in.Name),
	)

	if in.InitialStock < 0 || in.MinimumStockLevel < 0 {
		return nil, validationErr("stock levels must not be negative")
	}

	category, err := s.productRepo.GetCategory(ctx, in.CategoryID)
	if err != nil {
		span.RecordError(err)
		logRejection(ctx, s.logger, "Category lookup failed", err, zap.Int64("category_id", in.CategoryID))
		return nil, err
	}

	product, err := domain.NewProduct(in.Name, in.Description, in.Price, *category, in.Attributes)
	if err != nil {
		logRejection(ctx, s.logger, "Product rejected", err)
		return nil, err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		product.SKU, err = s.skus.Generate(product)
		if err != nil {
			return nil, err
		}

		err = s.insert(ctx, product, in)
		if err == nil {
			span.SetAttributes(
				attribute.Int64("product_id", product.ID),
				attribute.String("sku", product.SKU),
				attribute.Int("attempts", attempt),
			)

			mylogger.Audit(ctx, s.logger, "product.created",
				zap.Int64("product_id", product.ID),
				zap.String("sku", product.SKU),
				zap.Int32("initial_stock", in.InitialStock),
			)
			return product, nil
		}

		if !errors.Is(err, repository.ErrDuplicateSKU) {
			span.RecordError(err)
			logRejection(ctx, s.logger, "Failed to create product", err)
			return nil, err
		}

		mylogger.Warn(ctx, s.logger, "SKU already taken, regenerating",
			zap.String("sku", product.SKU),
			zap.Int("attempt", attempt),
		)
	}

	span.RecordError(domain.ErrSKUExhausted)
	mylogger.Error(ctx, s.logger, "Could not assign a unique SKU", zap.Int("attempts", s.maxAttempts))

	return nil, fmt.Errorf("%w after %d attempts", domain.ErrSKUExhausted, s.maxAttempts)
}

func (s *productService) insert(ctx context.Context, product *domain.Product, in CreateProductInput) error {
	return inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		if err := s.productRepo.Create(ctx, tx, product); err != nil {
			return err
		}

		inv, err := domain.NewInventory(product.ID, in.InitialStock, in.MinimumStockLevel)
		if err != nil {
			return err
		}
		if err := s.inventoryRepo.Create(ctx, tx, inv); err != nil {
			return err
		}

		return emitEvent(ctx, tx, s.outboxRepo, domain.TopicProductEvents, aggregateProduct, product.ID,
			domain.EventProductCreated, &domain.ProductCreatedEvent{
				ProductID: product.ID,
				SKU:       product.SKU,
				Price:     product.Price,
			})
	})
}

func (s *productService) GetByID(ctx context.Context, productID int64) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.GetByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("product_id", productID))

	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return product, nil
}
