package http

import (
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/transport/http/handler"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/metrics"
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type Handlers struct {
	Order     *handler.OrderHandler
	Payment   *handler.PaymentHandler
	Inventory *handler.InventoryHandler
	Product   *handler.ProductHandler
}

type LimiterOptions struct {
	Max        int
	Expiration time.Duration
}

// NewApp builds the fiber app with tracing and rate limiting. A zero Max disables the limiter.
func NewApp(h *Handlers, limits LimiterOptions) *fiber.App {
	app := fiber.New()

	app.Use(otelfiber.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if limits.Max > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        limits.Max,
			Expiration: limits.Expiration,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests. Try again later.",
				})
			},
		}))
	}

	RegisterRoutes(app, h)

	return app
}

func RegisterRoutes(app *fiber.App, h *Handlers) {
	api := app.Group("/api")

	order := api.Group("/orders")
	order.Post("", h.Order.Create)
	order.Get("/:id", h.Order.Get)
	order.Post("/:id/items", h.Order.AddItem)
	order.Delete("/:id/items/:itemId", h.Order.RemoveItem)
	order.Patch("/:id/status", h.Order.UpdateStatus)
	order.Delete("/:id", h.Order.Delete)
	order.Post("/:id/payments", h.Payment.Add)
	order.Get("/:id/payments", h.Payment.ListByOrder)

	payment := api.Group("/payments")
	payment.Get("/:id", h.Payment.Get)
	payment.Post("/:id/settle", h.Payment.Settle)

	inventory := api.Group("/inventory")
	inventory.Get("", h.Inventory.GetStock)
	inventory.Post("/:productId/reserve", h.Inventory.Reserve)
	inventory.Post("/:productId/release", h.Inventory.Release)
	inventory.Post("/:productId/adjust", h.Inventory.Adjust)
	inventory.Delete("/:productId", h.Inventory.Delete)

	product := api.Group("/products")
	product.Post("", h.Product.Create)
	product.Get("/:id", h.Product.FindByID)
}
