package middleware

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
)

// CallerLocal is the fiber local holding the authenticated account address.
const CallerLocal = "caller"

// TokenVerifier resolves a bearer token to the account it was issued to.
type TokenVerifier interface {
	Verify(token string) (common.Address, error)
}

// CallerAuth requires a valid bearer token and records the caller address.
func CallerAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		addr, err := verifier.Verify(strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(CallerLocal, addr.Hex())
		return c.Next()
	}
}
