package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fundme/fundme/internal/pool"
)

// RegisterPoolRoutes wires the read-only pool endpoints.
func RegisterPoolRoutes(r fiber.Router, h *pool.Handler) {
	group := r.Group("/pool")
	group.Get("", h.Summary)
	group.Get("/price", h.Price)
	group.Get("/funders/:index", h.Funder)
	group.Get("/contributions/:address", h.Contribution)
}

// RegisterPoolActionRoutes wires the endpoints that need an authenticated
// caller. guards run before each handler.
func RegisterPoolActionRoutes(r fiber.Router, h *pool.Handler, guards ...fiber.Handler) {
	r.Post("/pool/fund", append(guards[:len(guards):len(guards)], h.Fund)...)
	r.Post("/pool/withdraw", append(guards[:len(guards):len(guards)], h.Withdraw)...)
}
