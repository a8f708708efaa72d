package instrument

import (
	"math/rand"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"lexform-backend/internal/config"
	"lexform-backend/internal/metadata"
)

// Middleware returns a Fiber middleware that sets up tracing for each request.
// It generates (or propagates) a trace ID, creates a root HTTP span, and injects
// the instrumenter into the request context for downstream handlers.
func Middleware(cfg config.InstrumentationConfig, buffer *EventBuffer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.Enabled || buffer == nil {
			return c.Next()
		}

		// Sampling: skip tracing for a proportion of requests
		if cfg.SamplingRate < 1.0 && rand.Float64() > cfg.SamplingRate {
			return c.Next()
		}

		traceID := c.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := c.UserContext()
		instrumenter := NewInstrumenter(buffer)
		ctx = WithTraceID(ctx, traceID)
		ctx = WithInstrumenter(ctx, instrumenter)

		ctx, span := instrumenter.StartSpan(ctx, "http", "handler", "request")
		span.SetMetadata("method", c.Method())
		span.SetMetadata("path", c.Path())
		c.SetUserContext(ctx)

		c.Set("X-Trace-ID", traceID)

		err := c.Next()

		// The auth middleware runs downstream and sets c.Locals("user").
		if user, ok := c.Locals("user").(*metadata.UserContext); ok && user != nil {
			span.SetMetadata("user_id", user.ID)
			if user.OrgID != "" {
				span.SetMetadata("org_id", user.OrgID)
			}
		}

		statusCode := c.Response().StatusCode()
		span.SetMetadata("status_code", statusCode)
		if statusCode >= 400 || err != nil {
			span.SetStatus("error")
		} else {
			span.SetStatus("ok")
		}
		span.End()

		return err
	}
}

// UserContextMiddleware copies the authenticated user id into the request
// context so spans started by handlers carry it. Mount it after auth.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if user, ok := c.Locals("user").(*metadata.UserContext); ok && user != nil {
			c.SetUserContext(WithUserID(c.UserContext(), user.ID))
		}
		return c.Next()
	}
}
