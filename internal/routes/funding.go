package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/vault/internal/funding"
)

// RegisterFundingRoutes wires card funding/withdrawal endpoints.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/funding/card-in", h.CardIn)
	r.Post("/funding/card-out", h.CardOut)
}
