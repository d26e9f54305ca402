// Package api serves the relay's admin HTTP endpoints: health, metrics,
// stats and dead letter management.
package api

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/birbparty/pio-go/internal/database"
	"github.com/birbparty/pio-go/internal/queue"
	"github.com/birbparty/pio-go/sdk"
)

// HealthCheck reports whether one dependency is usable
type HealthCheck func(ctx context.Context) error

// StatsProvider exposes relay counters. *relay.Stats implements it.
type StatsProvider interface {
	GetStats() map[string]interface{}
	IsHealthy() bool
}

// DeadLetterStore is the dead letter storage used by the admin endpoints.
// *database.DeadLetterRepository implements it.
type DeadLetterStore interface {
	List(ctx context.Context, limit, offset int) ([]*database.DeadLetter, error)
	Get(ctx context.Context, id int64) (*database.DeadLetter, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
}

// Publisher puts an event message back on the queue. *queue.Client
// implements it.
type Publisher interface {
	Publish(ctx context.Context, msg *queue.EventMessage) error
}

// Handler holds all dependencies for API handlers
type Handler struct {
	checks      map[string]HealthCheck
	stats       StatsProvider
	deadLetters DeadLetterStore
	publisher   Publisher
	config      *Config
	log         *logrus.Entry
}

// NewHandler creates a new handler instance. publisher may be nil, which
// disables replay.
func NewHandler(config *Config, stats StatsProvider, deadLetters DeadLetterStore, publisher Publisher, checks map[string]HealthCheck, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		checks:      checks,
		stats:       stats,
		deadLetters: deadLetters,
		publisher:   publisher,
		config:      config,
		log:         logger.WithField("component", "admin"),
	}
}

// Health handles GET /health
func (h *Handler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.config.RequestTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.checks)+1)
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
		} else {
			checks[name] = "healthy"
		}
	}

	if h.stats != nil {
		if h.stats.IsHealthy() {
			checks["relay"] = "healthy"
		} else {
			checks["relay"] = "unhealthy: fetch failing"
		}
	}

	// Overall status
	status := "healthy"
	for _, check := range checks {
		if check != "healthy" {
			status = "unhealthy"
			break
		}
	}

	response := &HealthResponse{
		Status:  status,
		Service: "pio-relay",
		Version: sdk.Version,
		Uptime:  time.Since(startTime).String(),
		Checks:  checks,
	}

	statusCode := fiber.StatusOK
	if status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(response)
}

// GetStats handles GET /stats
func (h *Handler) GetStats(c *fiber.Ctx) error {
	if h.stats == nil {
		return c.JSON(fiber.Map{})
	}
	return c.JSON(h.stats.GetStats())
}

// ListDeadLetters handles GET /v1/dead-letters?limit=&offset=
func (h *Handler) ListDeadLetters(c *fiber.Ctx) error {
	ctx := c.UserContext()

	limit := c.QueryInt("limit", h.config.DefaultPageSize)
	offset := c.QueryInt("offset", 0)
	if limit < 1 || limit > h.config.MaxPageSize || offset < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponseWithDetails("Invalid pagination", ErrCodeInvalidRequest,
				"limit must be between 1 and "+strconv.Itoa(h.config.MaxPageSize)+" and offset must not be negative"),
		)
	}

	total, err := h.deadLetters.Count(ctx)
	if err != nil {
		return h.internalError(c, "Failed to count dead letters", err)
	}
	items, err := h.deadLetters.List(ctx, limit, offset)
	if err != nil {
		return h.internalError(c, "Failed to list dead letters", err)
	}

	response := &DeadLetterListResponse{
		DeadLetters: make([]*DeadLetterResponse, 0, len(items)),
		TotalCount:  total,
		Offset:      offset,
		Limit:       limit,
	}
	for _, dl := range items {
		response.DeadLetters = append(response.DeadLetters, ConvertToDeadLetterResponse(dl))
	}
	return c.JSON(response)
}

// GetDeadLetter handles GET /v1/dead-letters/:id
func (h *Handler) GetDeadLetter(c *fiber.Ctx) error {
	id, err := deadLetterID(c)
	if err != nil {
		return err
	}

	dl, err := h.deadLetters.Get(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(
				NewErrorResponse("Dead letter not found", ErrCodeNotFound),
			)
		}
		return h.internalError(c, "Failed to get dead letter", err)
	}
	return c.JSON(ConvertToDeadLetterResponse(dl))
}

// DeleteDeadLetter handles DELETE /v1/dead-letters/:id
func (h *Handler) DeleteDeadLetter(c *fiber.Ctx) error {
	id, err := deadLetterID(c)
	if err != nil {
		return err
	}

	if err := h.deadLetters.Delete(c.UserContext(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(
				NewErrorResponse("Dead letter not found", ErrCodeNotFound),
			)
		}
		return h.internalError(c, "Failed to delete dead letter", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ReplayDeadLetter handles POST /v1/dead-letters/:id/replay. The stored
// event is published again under a new message id and the dead letter is
// removed.
func (h *Handler) ReplayDeadLetter(c *fiber.Ctx) error {
	ctx := c.UserContext()

	if h.publisher == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(
			NewErrorResponse("Replay is not available", ErrCodeUnavailable),
		)
	}

	id, err := deadLetterID(c)
	if err != nil {
		return err
	}

	dl, err := h.deadLetters.Get(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(
				NewErrorResponse("Dead letter not found", ErrCodeNotFound),
			)
		}
		return h.internalError(c, "Failed to get dead letter", err)
	}

	original, err := queue.UnmarshalEventMessage(dl.Payload)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(
			NewErrorResponseWithDetails("Dead letter payload cannot be replayed", ErrCodeUnprocessable, err.Error()),
		)
	}

	msg := queue.NewEventMessage(original.Event, "replay:"+original.ID)
	if err := h.publisher.Publish(ctx, msg); err != nil {
		return h.internalError(c, "Failed to publish replayed event", err)
	}

	// The event is back on the queue; a failed delete only leaves a stale row
	if err := h.deadLetters.Delete(ctx, id); err != nil && !errors.Is(err, database.ErrNotFound) {
		h.log.WithError(err).WithField("dead_letter_id", id).Warn("Replayed dead letter was not deleted")
	}

	h.log.WithFields(logrus.Fields{
		"dead_letter_id": id,
		"original_id":    original.ID,
		"message_id":     msg.ID,
	}).Info("Dead letter replayed")

	return c.Status(fiber.StatusAccepted).JSON(&ReplayResponse{
		DeadLetterID: id,
		MessageID:    msg.ID,
	})
}

func (h *Handler) internalError(c *fiber.Ctx, message string, err error) error {
	h.log.WithError(err).WithField("path", c.Path()).Error(message)
	return c.Status(fiber.StatusInternalServerError).JSON(
		NewErrorResponse(message, ErrCodeInternalError),
	)
}

func deadLetterID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Dead letter id must be a positive integer")
	}
	return id, nil
}

var startTime = time.Now()
