package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

type loggerKey struct{}

// RequestLogger tags each request with an id, echoed in X-Request-ID, and
// attaches a request-scoped logger to the user context. A well-formed id sent
// by an upstream gateway is kept.
func RequestLogger(base *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)

		logger := base.With(
			zap.String("request_id", id),
			zap.String("method", c.Method()),
			zap.String("host", c.Hostname()),
			zap.String("path", c.Path()),
		)
		c.SetUserContext(context.WithValue(c.UserContext(), loggerKey{}, logger))

		start := time.Now()
		err := c.Next()
		logger.Info("request",
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return err
	}
}

// Logger returns the request-scoped logger, or fallback outside RequestLogger.
func Logger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return fallback
}
