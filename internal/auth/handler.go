package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/vault/internal/ledger"
)

// Handler exposes challenge login and token refresh.
type Handler struct {
	svc *Service
}

// NewHandler builds an auth HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type challengeRequest struct {
	Address string `json:"address"`
}

// Challenge returns the message the caller must sign.
func (h *Handler) Challenge(c *fiber.Ctx) error {
	var req challengeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	address, err := ledger.ParseAddress(req.Address)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	message, expires, err := h.svc.Challenge(c.UserContext(), address)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"address":    address.Hex(),
		"message":    message,
		"expires_at": expires.Format(time.RFC3339),
	})
}

type loginRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

type loginResponse struct {
	Address      string `json:"address"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login exchanges a signed challenge for a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	address, err := ledger.ParseAddress(req.Address)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	pair, err := h.svc.Login(c.UserContext(), address, req.Signature)
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) || errors.Is(err, ErrChallengeNotFound) {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(loginResponse{
		Address:      address.Hex(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	token, exp, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"access_token": token, "expires_in": exp})
}
