package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/oklog/ulid/v2"
)

const (
	requestIDHeader = "X-Request-ID"
	// RequestIDLocal is the fiber local holding the request identifier.
	RequestIDLocal = "request_id"
)

// RequestID echoes the caller's X-Request-ID or assigns a ULID so log lines
// sort by arrival.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(requestIDHeader)
		if reqID == "" {
			reqID = ulid.Make().String()
		}
		c.Set(requestIDHeader, reqID)
		c.Locals(RequestIDLocal, reqID)
		return c.Next()
	}
}
