package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/service"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ProductHandler struct {
	products service.ProductService
	validate *validator.Validate
	logger   *zap.Logger
	timeout  time.Duration
}

func NewProductHandler(products service.ProductService, logger *zap.Logger, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		products: products,
		validate: validator.New(),
		logger:   logger,
		timeout:  timeout,
	}
}

type CreateProductInput struct {
	Name              string            `json:"name" validate:"required,min=3,max=100"`
	Description       string            `json:"description" validate:"max=1000"`
	Price             int64             `json:"price" validate:"required,gt=0"`
	CategoryID        int64             `json:"category_id" validate:"required,gt=0"`
	Attributes        map[string]string `json:"attributes"`
	InitialStock      int32             `json:"initial_stock" validate:"gte=0"`
	MinimumStockLevel int32             `json:"minimum_stock_level" validate:"gte=0"`
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	input := new(CreateProductInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.Error(err))
		return badRequest(c, fiber.Map{"error": "invalid request body"})
	}
	if err := h.validate.Struct(input); err != nil {
		return badRequest(c, fiber.Map{"errors": utils.FormatValidationError(err)})
	}

	// JSON object keys are strings; attribute ids travel as their decimal form.
	attributes := make(map[int64]string, len(input.Attributes))
	for key, value := range input.Attributes {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id <= 0 {
			return badRequest(c, fiber.Map{"error": "invalid attribute id " + key})
		}
		attributes[id] = value
	}

	product, err := h.products.Create(ctx, service.CreateProductInput{
		Name:              input.Name,
		Description:       input.Description,
		Price:             input.Price,
		CategoryID:        input.CategoryID,
		Attributes:        attributes,
		InitialStock:      input.InitialStock,
		MinimumStockLevel: input.MinimumStockLevel,
	})
	if err != nil {
		return writeError(ctx, c, h.logger, "create product failed", err)
	}

	mylogger.Info(ctx, h.logger, "product created",
		zap.Int64("product_id", product.ID),
		zap.String("sku", product.SKU),
	)

	return c.Status(fiber.StatusCreated).JSON(product)
}

func (h *ProductHandler) FindByID(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, fiber.Map{"error": "invalid product id"})
	}

	product, err := h.products.GetByID(ctx, id)
	if err != nil {
		return writeError(ctx, c, h.logger, "find product failed", err)
	}

	return c.JSON(product)
}
