package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fundme/fundme/internal/auth"
)

// RegisterAuthRoutes wires the sign-in endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	if rateLimiter != nil {
		group.Post("/challenge", rateLimiter, h.Challenge)
		group.Post("/login", rateLimiter, h.Login)
		return
	}
	group.Post("/challenge", h.Challenge)
	group.Post("/login", h.Login)
}
