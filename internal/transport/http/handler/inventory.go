package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/service"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type InventoryHandler struct {
	inventory service.InventoryService
	validate  *validator.Validate
	logger    *zap.Logger
	timeout   time.Duration
}

func NewInventoryHandler(inventory service.InventoryService, logger *zap.Logger, timeout time.Duration) *InventoryHandler {
	return &InventoryHandler{
		inventory: inventory,
		validate:  validator.New(),
		logger:    logger,
		timeout:   timeout,
	}
}

type QuantityInput struct {
	Quantity int32 `json:"quantity" validate:"required,gt=0"`
}

type AdjustInput struct {
	Delta int32 `json:"delta" validate:"required,ne=0"`
}

// GetStock accepts product ids as repeated or comma separated product_id parameters.
func (h *InventoryHandler) GetStock(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	var ids []int64
	for _, raw := range c.Context().QueryArgs().PeekMulti("product_id") {
		for _, part := range strings.Split(string(raw), ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil || id <= 0 {
				return badRequest(c, fiber.Map{"error": "invalid product_id " + part})
			}
			ids = append(ids, id)
		}
	}

	stock, err := h.inventory.GetStock(ctx, ids)
	if err != nil {
		return writeError(ctx, c, h.logger, "get stock failed", err)
	}

	result := make([]InventoryResponse, len(stock))
	for i := range stock {
		result[i] = NewInventoryResponse(&stock[i])
	}

	return c.JSON(fiber.Map{"inventory": result})
}

func (h *InventoryHandler) Reserve(c *fiber.Ctx) error {
	return h.quantityOp(c, "reserve stock failed", h.inventory.Reserve)
}

func (h *InventoryHandler) Release(c *fiber.Ctx) error {
	return h.quantityOp(c, "release stock failed", h.inventory.Release)
}

func (h *InventoryHandler) Adjust(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	productID, ok := parseID(c, "productId")
	if !ok {
		return badRequest(c, fiber.Map{"error": "invalid product id"})
	}

	input := new(AdjustInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, fiber.Map{"error": "error parsing body"})
	}
	if err := h.validate.Struct(input); err != nil {
		return badRequest(c, fiber.Map{"errors": utils.FormatValidationError(err)})
	}

	inv, err := h.inventory.Adjust(ctx, productID, input.Delta)
	if err != nil {
		return writeError(ctx, c, h.logger, "adjust stock failed", err)
	}

	return c.JSON(NewInventoryResponse(inv))
}

func (h *InventoryHandler) Delete(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	productID, ok := parseID(c, "productId")
	if !ok {
		return badRequest(c, fiber.Map{"error": "invalid product id"})
	}

	if err := h.inventory.Delete(ctx, productID); err != nil {
		return writeError(ctx, c, h.logger, "delete inventory failed", err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *InventoryHandler) quantityOp(
	c *fiber.Ctx,
	failMsg string,
	op func(ctx context.Context, productID int64, quantity int32) (*domain.Inventory, error),
) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	productID, ok := parseID(c, "productId")
	if !ok {
		return badRequest(c, fiber.Map{"error": "invalid product id"})
	}

	input := new(QuantityInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, fiber.Map{"error": "error parsing body"})
	}
	if err := h.validate.Struct(input); err != nil {
		return badRequest(c, fiber.Map{"errors": utils.FormatValidationError(err)})
	}

	inv, err := op(ctx, productID, input.Quantity)
	if err != nil {
		return writeError(ctx, c, h.logger, failMsg, err)
	}

	return c.JSON(NewInventoryResponse(inv))
}
