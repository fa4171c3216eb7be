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

type PaymentHandler struct {
	payments service.PaymentService
	validate *validator.Validate
	logger   *zap.Logger
	timeout  time.Duration
}

func NewPaymentHandler(payments service.PaymentService, logger *zap.Logger, timeout time.Duration) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		validate: validator.New(),
		logger:   logger,
		timeout:  timeout,
	}
}

type AddPaymentInput struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Method string `json:"method" validate:"required,oneof=CARD TRANSFER CASH_ON_DELIVERY"`
	Notes  string `json:"notes" validate:"max=500"`
}

type SettlePaymentInput struct {
	Status        string `json:"status" validate:"required,oneof=COMPLETED FAILED CANCELLED"`
	TransactionID string `json:"transaction_id" validate:"max=100"`
	Reason        string `json:"reason" validate:"max=255"`
}

func (h *PaymentHandler) Add(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	orderID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, fiber.Map{"error": "invalid order id"})
	}

	input := new(AddPaymentInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, fiber.Map{"error": "error parsing body"})
	}
	if err := h.validate.Struct(input); err != nil {
		return badRequest(c, fiber.Map{"errors": utils.FormatValidationError(err)})
	}

	payment, err := h.payments.AddPayment(ctx, orderID, input.Amount, domain.PaymentMethod(input.Method), input.Notes)
	if err != nil {
		return writeError(ctx, c, h.logger, "add payment failed", err)
	}

	mylogger.Info(ctx, h.logger, "payment recorded",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("order_id", orderID),
	)

	return c.Status(fiber.StatusCreated).JSON(payment)
}

func (h *PaymentHandler) ListByOrder(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	orderID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, fiber.Map{"error": "invalid order id"})
	}

	payments, err := h.payments.ListPayments(ctx, orderID)
	if err != nil {
		return writeError(ctx, c, h.logger, "list payments failed", err)
	}

	return c.JSON(fiber.Map{"payments": payments})
}

func (h *PaymentHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, fiber.Map{"error": "invalid payment id"})
	}

	payment, err := h.payments.GetPayment(ctx, id)
	if err != nil {
		return writeError(ctx, c, h.logger, "get payment failed", err)
	}

	return c.JSON(payment)
}

func (h *PaymentHandler) Settle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, fiber.Map{"error": "invalid payment id"})
	}

	input := new(SettlePaymentInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, fiber.Map{"error": "error parsing body"})
	}
	if err := h.validate.Struct(input); err != nil {
		return badRequest(c, fiber.Map{"errors": utils.FormatValidationError(err)})
	}

	payment, err := h.payments.SettlePayment(ctx, id, domain.PaymentStatus(input.Status), input.TransactionID, input.Reason)
	if err != nil {
		return writeError(ctx, c, h.logger, "settle payment failed", err)
	}

	return c.JSON(payment)
}
