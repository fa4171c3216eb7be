package handler

import (
	"context"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/service"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orders   service.OrderService
	validate *validator.Validate
	logger   *zap.Logger
	timeout  time.Duration
}

func NewOrderHandler(orders service.OrderService, logger *zap.Logger, timeout time.Duration) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		validate: validator.New(),
		logger:   logger,
		timeout:  timeout,
	}
}

type GuestInput struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"max=30"`
}

type ItemInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int32 `json:"quantity" validate:"required,gt=0"`
}

type CreateOrderInput struct {
	CustomerID    *int64      `json:"customer_id" validate:"omitempty,gt=0"`
	Guest         *GuestInput `json:"guest"`
	AddressID     int64       `json:"address_id" validate:"required,gt=0"`
	Items         []ItemInput `json:"items" validate:"dive"`
	ReserveStock  bool        `json:"reserve_stock"`
	PaymentMethod string      `json:"payment_method" validate:"omitempty,oneof=CARD TRANSFER CASH_ON_DELIVERY"`
}

type UpdateStatusInput struct {
	Status string `json:"status" validate:"required,oneof=PROCESSING SHIPPED DELIVERED COMPLETED CANCELLED REFUNDED"`
}

func (h *OrderHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	input := new(CreateOrderInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "failed to parse body in create order", zap.Error(err))
		return badRequest(c, fiber.Map{"error": "error parsing body"})
	}

	if err := h.validate.Struct(input); err != nil {
		return badRequest(c, fiber.Map{"errors": utils.FormatValidationError(err)})
	}

	req := service.CreateOrderInput{
		CustomerID:   input.CustomerID,
		AddressID:    input.AddressID,
		ReserveStock: input.ReserveStock,
	}
	if input.Guest != nil {
		req.Guest = &domain.GuestContact{
			Name:  input.Guest.Name,
			Email: input.Guest.Email,
			Phone: input.Guest.Phone,
		}
	}
	for _, item := range input.Items {
		req.Items = append(req.Items, service.ItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	if input.PaymentMethod != "" {
		method := domain.PaymentMethod(input.PaymentMethod)
		req.PaymentMethod = &method
	}

	order, err := h.orders.CreateOrder(ctx, req)
	if err != nil {
		return writeError(ctx, c, h.logger, "create order failed", err)
	}

	mylogger.Info(ctx, h.logger, "create order succeeded", zap.Int64("order_id", order.ID))

	return c.Status(fiber.StatusCreated).JSON(NewOrderResponse(order))
}

func (h *OrderHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, fiber.Map{"error": "invalid order id"})
	}

	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		return writeError(ctx, c, h.logger, "get order failed", err)
	}

	return c.JSON(NewOrderResponse(order))
}

func (h *OrderHandler) AddItem(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, fiber.Map{"error": "invalid order id"})
	}

	input := new(ItemInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, fiber.Map{"error": "error parsing body"})
	}
	if err := h.validate.Struct(input); err != nil {
		return badRequest(c, fiber.Map{"errors": utils.FormatValidationError(err)})
	}

	order, err := h.orders.AddItem(ctx, id, service.ItemInput{ProductID: input.ProductID, Quantity: input.Quantity})
	if err != nil {
		return writeError(ctx, c, h.logger, "add order item failed", err)
	}

	return c.Status(fiber.StatusCreated).JSON(NewOrderResponse(order))
}

func (h *OrderHandler) RemoveItem(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, fiber.Map{"error": "invalid order id"})
	}
	itemID, ok := parseID(c, "itemId")
	if !ok {
		return badRequest(c, fiber.Map{"error": "invalid item id"})
	}

	order, err := h.orders.RemoveItem(ctx, id, itemID)
	if err != nil {
		return writeError(ctx, c, h.logger, "remove order item failed", err)
	}

	return c.JSON(NewOrderResponse(order))
}

func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, fiber.Map{"error": "invalid order id"})
	}

	input := new(UpdateStatusInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, fiber.Map{"error": "error parsing body"})
	}
	if err := h.validate.Struct(input); err != nil {
		return badRequest(c, fiber.Map{"errors": utils.FormatValidationError(err)})
	}

	order, err := h.orders.UpdateFulfillmentStatus(ctx, id, domain.OrderStatus(input.Status))
	if err != nil {
		return writeError(ctx, c, h.logger, "update order status failed", err)
	}

	return c.JSON(NewOrderResponse(order))
}

func (h *OrderHandler) Delete(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, fiber.Map{"error": "invalid order id"})
	}

	if err := h.orders.DeleteOrder(ctx, id); err != nil {
		return writeError(ctx, c, h.logger, "delete order failed", err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
