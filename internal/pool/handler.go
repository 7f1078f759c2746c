package pool

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/fundme/fundme/internal/middleware"
	"github.com/fundme/fundme/internal/units"
)

// Handler exposes HTTP endpoints for the pool.
type Handler struct {
	service *Service
}

// NewHandler constructs a pool handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Summary returns the pool configuration and totals.
func (h *Handler) Summary(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(toSummaryResponse(h.service.Summary(c.UserContext())))
}

// Price returns the latest validated feed answer.
func (h *Handler) Price(c *fiber.Ctx) error {
	price, err := h.service.Price(c.UserContext())
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(toPriceResponse(price))
}

// Funder returns the roster entry at :index.
func (h *Handler) Funder(c *fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "index must be an integer")
	}
	funder, amount, err := h.service.Funder(c.UserContext(), index)
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(FunderResponse{
		Index:       &index,
		Funder:      funder.Hex(),
		AmountWei:   amount.String(),
		AmountEther: units.FormatEther(amount),
	})
}

// Contribution returns what :address has funded since the last withdrawal.
func (h *Handler) Contribution(c *fiber.Ctx) error {
	funder, amount, err := h.service.Contribution(c.UserContext(), c.Params("address"))
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(FunderResponse{
		Funder:      funder.Hex(),
		AmountWei:   amount.String(),
		AmountEther: units.FormatEther(amount),
	})
}

// Fund deposits on behalf of the authenticated caller.
func (h *Handler) Fund(c *fiber.Ctx) error {
	caller, _ := c.Locals(middleware.CallerLocal).(string)
	if caller == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req FundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Fund(c.UserContext(), FundInput{
		Caller:      caller,
		AmountEther: req.AmountEther,
		AmountWei:   req.AmountWei,
	})
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusCreated).JSON(toContributionResponse(result))
}

// Withdraw drains the pool when the caller is the owner.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	caller, _ := c.Locals(middleware.CallerLocal).(string)
	if caller == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	result, err := h.service.Withdraw(c.UserContext(), caller)
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(toWithdrawalResponse(result))
}

func toFiberError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInsufficientContribution):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrNotOwner):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrIndexOutOfRange):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrOracleUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrInvalidRate), errors.Is(err, ErrCustodyTransferFailed):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
