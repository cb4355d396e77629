package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/vault/internal/auth"
)

// RegisterAuthRoutes wires authentication endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	if rateLimiter != nil {
		group.Use(rateLimiter)
	}
	group.Post("/challenge", h.Challenge)
	group.Post("/login", h.Login)
	group.Post("/refresh", h.Refresh)
}
