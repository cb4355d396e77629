package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/vault/internal/token"
)

// RegisterTokenRoutes wires token factory endpoints.
func RegisterTokenRoutes(r fiber.Router, h *token.Handler) {
	r.Post("/tokens", h.Create)
	r.Get("/tokens/:address", h.Get)
	r.Get("/creators/:address/tokens", h.ListByCreator)
}
