package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/vault/internal/amount"
	"github.com/congo-pay/vault/internal/ledger"
	"github.com/congo-pay/vault/internal/middleware"
)

type cardInRequest struct {
	CardNumber string `json:"card_number"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
	Amount     string `json:"amount"`
	ClientTxID string `json:"client_tx_id"`
}

type cardOutRequest struct {
	CardNumber string `json:"card_number"`
	Amount     string `json:"amount"`
	ClientTxID string `json:"client_tx_id"`
}

type fundingResponse struct {
	TransactionID     string `json:"transaction_id"`
	Status            string `json:"status"`
	Balance           string `json:"balance"`
	AcquirerReference string `json:"acquirer_reference"`
}

// Handler exposes HTTP endpoints for card funding flows.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// CardIn processes top-ups of the caller's native balance funded by cards.
func (h *Handler) CardIn(c *fiber.Ctx) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	var req cardInRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	value, err := amount.ParseBase(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.CardIn(c.UserContext(), CardInInput{
		Holder:     caller,
		Amount:     value,
		ClientTxID: req.ClientTxID,
		CardNumber: req.CardNumber,
		Expiry:     req.Expiry,
		CVV:        req.CVV,
	})
	if err != nil {
		return respondError(c, result, err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(result))
}

// CardOut processes payouts from the caller's native balance to cards.
func (h *Handler) CardOut(c *fiber.Ctx) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	var req cardOutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	value, err := amount.ParseBase(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.CardOut(c.UserContext(), CardOutInput{
		Holder:     caller,
		Amount:     value,
		ClientTxID: req.ClientTxID,
		CardNumber: req.CardNumber,
	})
	if err != nil {
		return respondError(c, result, err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(result))
}

func respondError(c *fiber.Ctx, result FundingResult, err error) error {
	switch {
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return c.Status(http.StatusOK).JSON(toResponse(result))
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ErrInvalidRequest), errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDeclined):
		return fiber.NewError(http.StatusPaymentRequired, err.Error())
	default:
		return fiber.NewError(http.StatusBadGateway, err.Error())
	}
}

func toResponse(result FundingResult) fundingResponse {
	resp := fundingResponse{
		TransactionID:     result.TransactionID,
		Status:            result.Status,
		AcquirerReference: result.AcquirerReference,
		Balance:           "0",
	}
	if result.Balance != nil {
		resp.Balance = result.Balance.Dec()
	}
	return resp
}
