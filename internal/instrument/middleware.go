package instrument

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Middleware traces each request: it propagates or generates X-Trace-ID,
// stores inst in the request context and wraps the handler chain in a root
// span.
func Middleware(inst Instrumenter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := c.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := WithInstrumenter(WithTraceID(c.UserContext(), traceID), inst)
		ctx, span := inst.StartSpan(ctx, "http", "handler", "request")
		span.SetMetadata("method", c.Method())
		span.SetMetadata("path", c.Path())
		c.SetUserContext(ctx)
		c.Set("X-Trace-ID", traceID)

		err := c.Next()

		if uid, ok := c.Locals("user_id").(string); ok && uid != "" {
			span.SetMetadata("user_id", uid)
		}
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		span.SetMetadata("status_code", status)
		if status >= 400 {
			span.SetStatus("error")
		} else {
			span.SetStatus("ok")
		}
		span.End()
		return err
	}
}
