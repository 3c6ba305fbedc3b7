package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request correlation id, minted here when the
// caller did not supply one.
const RequestIDHeader = "X-Request-ID"

// RequestID attaches a correlation id to every request so log lines from the
// mint and redirect flows can be stitched together.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(RequestIDHeader, rid)
		c.Locals("request_id", rid)
		return c.Next()
	}
}
