package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/birbparty/pio-go/internal/telemetry"
)

// NewApp builds the admin fiber app with middleware and routes installed
func NewApp(config *Config, handler *Handler, metrics *telemetry.Metrics, gatherer prometheus.Gatherer) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "pio-relay-admin",
		DisableStartupMessage: true,
		ReadTimeout:           config.RequestTimeout,
		WriteTimeout:          config.RequestTimeout,
	})
	SetupMiddleware(app, metrics, nil)
	SetupRoutes(app, handler, gatherer, config)
	return app
}

// SetupRoutes configures all admin routes
func SetupRoutes(app *fiber.App, handler *Handler, gatherer prometheus.Gatherer, config *Config) {
	// Health, stats and metrics endpoints (no auth required)
	app.Get("/health", handler.Health)
	app.Get("/stats", handler.GetStats)
	if gatherer != nil {
		app.Get("/metrics", telemetry.MetricsHandler(gatherer))
	}

	// API v1 group
	v1 := app.Group("/v1")

	// Apply rate limiting
	if config.RateLimit > 0 {
		v1.Use(RateLimiter(config.RateLimit))
	}

	// Apply API key validation if configured
	if config.APIKey != "" {
		v1.Use(ValidateAPIKey(config.APIKey))
	}

	// Dead letter endpoints
	deadLetters := v1.Group("/dead-letters")
	deadLetters.Get("/", handler.ListDeadLetters)
	deadLetters.Get("/:id", handler.GetDeadLetter)
	deadLetters.Delete("/:id", handler.DeleteDeadLetter)
	deadLetters.Post("/:id/replay", handler.ReplayDeadLetter)

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "pio-relay",
			"status":  "running",
			"endpoints": fiber.Map{
				"dead_letters": fiber.Map{
					"list":   "GET /v1/dead-letters",
					"get":    "GET /v1/dead-letters/:id",
					"delete": "DELETE /v1/dead-letters/:id",
					"replay": "POST /v1/dead-letters/:id/replay",
				},
				"health":  "GET /health",
				"stats":   "GET /stats",
				"metrics": "GET /metrics",
			},
		})
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(
			NewErrorResponse("Endpoint not found", ErrCodeNotFound),
		)
	})
}
