package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the sign-in endpoints.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type challengeRequest struct {
	Address string `json:"address"`
}

type challengeResponse struct {
	Address   string    `json:"address"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

type loginRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

type loginResponse struct {
	Address     string `json:"address"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Challenge issues a message to sign.
func (h *Handler) Challenge(c *fiber.Ctx) error {
	var req challengeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	ch, err := h.svc.Challenge(c.UserContext(), req.Address)
	if err != nil {
		if errors.Is(err, ErrInvalidAddress) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(challengeResponse{
		Address:   ch.Address.Hex(),
		Message:   ch.Message,
		ExpiresAt: ch.ExpiresAt,
	})
}

// Login exchanges a signed challenge for an access token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	pair, err := h.svc.Login(c.UserContext(), req.Address, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrInvalidSignature):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrChallengeNotFound), errors.Is(err, ErrSignatureMismatch):
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(loginResponse{
		Address:     pair.Address.Hex(),
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   pair.ExpiresIn,
	})
}
