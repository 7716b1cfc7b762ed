package http

import (
	"context"
	"errors"
	"time"

	"github.com/LerianStudio/beneficiary-pay/pkg/commons"
	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	"github.com/LerianStudio/beneficiary-pay/pkg/opentelemetry"
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/trace"
)

// Ping returns "pong".
func Ping(c *fiber.Ctx) error {
	return c.SendString("pong")
}

// Version reports the VERSION environment variable.
func Version(c *fiber.Ctx) error {
	return OK(c, fiber.Map{
		"version":     commons.GetenvOrDefault("VERSION", "0.0.0"),
		"requestDate": time.Now().UTC(),
	})
}

// FiberErrorHandler renders errors that escaped the handlers. Framework
// errors keep their status, ErrorResponse values are rendered as they are,
// and anything else is logged and rendered as an opaque internal error.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	opentelemetry.HandleSpanError(trace.SpanFromContext(ctx), "handler error", err)

	var (
		fe   *fiber.Error
		resp *ErrorResponse
	)

	if !errors.As(err, &fe) && !errors.As(err, &resp) {
		commons.NewLoggerFromContext(ctx).Log(ctx, log.LevelError, "handler error",
			log.String("method", c.Method()),
			log.String("path", c.Path()),
			log.Err(err),
		)
	}

	return RenderError(c, err)
}
