package middleware

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
)

// TokenVerifier resolves an access token to the address it was issued to.
type TokenVerifier interface {
	Verify(token string) (common.Address, error)
}

// JWTAuth returns a middleware that validates bearer access tokens and places
// the caller address in the request locals.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		caller, err := verifier.Verify(tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		SetCaller(c, caller)
		return c.Next()
	}
}
