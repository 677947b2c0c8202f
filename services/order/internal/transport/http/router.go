package http

import (
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sakashimaa/go-order-service/pkg/metrics"
	"github.com/sakashimaa/go-order-service/services/order/internal/transport/http/handler"
)

type Handlers struct {
	Order  *handler.OrderHandler
	Health *handler.HealthHandler
}

type Options struct {
	ReadTimeout  time.Duration
	LimiterMax   int
	LimiterReset time.Duration
}

func NewApp(opts Options, h *Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "order-service",
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.ReadTimeout,
	})

	app.Use(recover.New())
	app.Use(otelfiber.Middleware())

	if opts.LimiterMax > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        opts.LimiterMax,
			Expiration: opts.LimiterReset,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			Next: func(c *fiber.Ctx) bool {
				return c.Path() == "/metrics"
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

func RegisterRoutes(app fiber.Router, h *Handlers) {
	registerOrders(app.Group("/orders"), h.Order)
	registerOrders(app.Group("/api/v1/orders"), h.Order)

	health := app.Group("/health")
	health.Get("", h.Health.Health)
	health.Get("/ready", h.Health.Ready)
	health.Get("/live", h.Health.Live)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
}

func registerOrders(order fiber.Router, h *handler.OrderHandler) {
	order.Get("", h.List)
	order.Get("/:id", h.GetByID)
	order.Post("", h.Create)
	order.Put("/:id", h.Update)
	order.Patch("/:id/status", h.UpdateStatus)
	order.Delete("/:id", h.Delete)
}
