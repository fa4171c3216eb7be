package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RetryAfterSeconds is sent with 503 responses caused by lock contention.
const RetryAfterSeconds = 1

// StatusFor maps service errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrInvalidState):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrBusy), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(ctx context.Context, c *fiber.Ctx, logger *zap.Logger, msg string, err error) error {
	status := StatusFor(err)

	if status == fiber.StatusInternalServerError {
		mylogger.Error(ctx, logger, msg, zap.Error(err))

		return c.Status(status).JSON(fiber.Map{
			"error": "internal error",
		})
	}

	mylogger.Warn(ctx, logger, msg, zap.Int("http_status", status), zap.Error(err))

	if status == fiber.StatusServiceUnavailable {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(RetryAfterSeconds))
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func parseID(c *fiber.Ctx, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Params(param), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func badRequest(c *fiber.Ctx, body any) error {
	return c.Status(fiber.StatusBadRequest).JSON(body)
}
