package token

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/vault/internal/amount"
	"github.com/congo-pay/vault/internal/ledger"
	"github.com/congo-pay/vault/internal/middleware"
	"github.com/congo-pay/vault/internal/observability"
)

// Handler exposes token factory endpoints.
type Handler struct {
	service *Service
	metrics *observability.Metrics
}

// NewHandler builds a token HTTP handler.
func NewHandler(service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{service: service, metrics: metrics}
}

type createRequest struct {
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	Decimals      int    `json:"decimals"`
	InitialSupply string `json:"initial_supply"`
}

type tokenResponse struct {
	Address              string `json:"address"`
	Name                 string `json:"name"`
	Symbol               string `json:"symbol"`
	Decimals             uint8  `json:"decimals"`
	TotalSupply          string `json:"total_supply"`
	TotalSupplyFormatted string `json:"total_supply_formatted"`
	Creator              string `json:"creator"`
	CreatedAt            string `json:"created_at"`
}

func toResponse(r Record) tokenResponse {
	return tokenResponse{
		Address:              r.Address.Hex(),
		Name:                 r.Name,
		Symbol:               r.Symbol,
		Decimals:             r.Decimals,
		TotalSupply:          r.TotalSupply.Dec(),
		TotalSupplyFormatted: amount.Format(r.TotalSupply, r.Decimals),
		Creator:              r.Creator.Hex(),
		CreatedAt:            r.CreatedAt.Format(time.RFC3339Nano),
	}
}

// Create mints a new token owned by the caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Decimals < 0 || req.Decimals > amount.MaxDecimals {
		h.metrics.RecordOperation("create_token", "invalid_token_parameters")
		return fiber.NewError(http.StatusBadRequest, "decimals must be between 0 and 18")
	}
	supply, err := amount.ParseBase(req.InitialSupply)
	if err != nil {
		h.metrics.RecordOperation("create_token", "invalid_token_parameters")
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	record, err := h.service.CreateToken(c.UserContext(), caller, CreateInput{
		Name:          req.Name,
		Symbol:        req.Symbol,
		Decimals:      uint8(req.Decimals),
		InitialSupply: supply,
	})
	if err != nil {
		h.metrics.RecordOperation("create_token", resultCode(err))
		return httpError(err)
	}
	h.metrics.RecordOperation("create_token", "ok")
	return c.Status(http.StatusCreated).JSON(toResponse(record))
}

// Get returns one token record.
func (h *Handler) Get(c *fiber.Ctx) error {
	addr, err := ledger.ParseAddress(c.Params("address"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	record, err := h.service.Get(c.UserContext(), addr)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toResponse(record))
}

// ListByCreator returns every token a creator issued, oldest first.
func (h *Handler) ListByCreator(c *fiber.Ctx) error {
	creator, err := ledger.ParseAddress(c.Params("address"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	records, err := h.service.GetUserTokens(c.UserContext(), creator)
	if err != nil {
		return httpError(err)
	}
	out := make([]tokenResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toResponse(r))
	}
	return c.JSON(fiber.Map{"creator": creator.Hex(), "tokens": out})
}

func resultCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTokenParameters):
		return "invalid_token_parameters"
	case errors.Is(err, ErrTokenNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidTokenParameters):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrTokenNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
