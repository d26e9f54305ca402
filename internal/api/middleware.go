package api

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"

	"github.com/birbparty/pio-go/internal/telemetry"
)

// SetupMiddleware configures all middleware for the application
func SetupMiddleware(app *fiber.App, metrics *telemetry.Metrics, logger *logrus.Logger) {
	// Request ID middleware
	app.Use(requestid.New())

	// Recover middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	if metrics != nil {
		app.Use(telemetry.FiberMetricsMiddleware(metrics))
	}
	app.Use(telemetry.FiberLoggingMiddleware())

	// Custom error handler
	app.Use(errorHandler(logger))

	// Timing middleware
	app.Use(timingMiddleware())
}

// errorHandler turns returned errors into JSON error responses
func errorHandler(logger *logrus.Logger) fiber.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err != nil {
			// Default to 500 Internal Server Error
			code := fiber.StatusInternalServerError
			message := "Internal Server Error"
			errCode := ErrCodeInternalError

			// Check if it's a Fiber error
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				message = e.Message
			}

			// Map common errors to appropriate codes
			switch code {
			case fiber.StatusNotFound:
				errCode = ErrCodeNotFound
			case fiber.StatusBadRequest:
				errCode = ErrCodeInvalidRequest
			case fiber.StatusTooManyRequests:
				errCode = ErrCodeRateLimited
			}

			logger.WithError(err).WithFields(logrus.Fields{
				"path":   c.Path(),
				"method": c.Method(),
			}).Debug("Request error")

			return c.Status(code).JSON(NewErrorResponse(message, errCode))
		}
		return nil
	}
}

// timingMiddleware adds request timing headers
func timingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Process request
		err := c.Next()

		// Add timing headers
		c.Set("X-Response-Time", fmt.Sprintf("%d ms", time.Since(start).Milliseconds()))

		return err
	}
}

// ValidateAPIKey creates a middleware for API key validation
func ValidateAPIKey(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if apiKey != "" {
			// Get API key from header
			key := c.Get("X-API-Key")
			if key == "" {
				// Try Authorization header
				auth := c.Get("Authorization")
				if len(auth) > 7 && auth[:7] == "Bearer " {
					key = auth[7:]
				}
			}

			if key != apiKey {
				return c.Status(fiber.StatusUnauthorized).JSON(
					NewErrorResponse("Invalid or missing API key", ErrCodeUnauthorized),
				)
			}
		}
		return c.Next()
	}
}

// RateLimiter creates a simple in-memory per-IP rate limiter
func RateLimiter(requestsPerMinute int) fiber.Handler {
	type client struct {
		count     int
		lastReset time.Time
	}

	var mu sync.Mutex
	clients := make(map[string]*client)

	return func(c *fiber.Ctx) error {
		ip := c.IP()
		now := time.Now()

		mu.Lock()
		cl, exists := clients[ip]
		if !exists {
			cl = &client{lastReset: now}
			clients[ip] = cl
		}

		// Reset counter if a minute has passed
		if now.Sub(cl.lastReset) > time.Minute {
			cl.count = 0
			cl.lastReset = now
		}

		if cl.count >= requestsPerMinute {
			mu.Unlock()
			return c.Status(fiber.StatusTooManyRequests).JSON(
				NewErrorResponse("Rate limit exceeded", ErrCodeRateLimited),
			)
		}
		cl.count++
		remaining := requestsPerMinute - cl.count
		reset := cl.lastReset.Add(time.Minute).Unix()
		mu.Unlock()

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", requestsPerMinute))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		c.Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset))

		return c.Next()
	}
}
