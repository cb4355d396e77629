package middleware

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
)

const callerLocal = "caller"

// SetCaller records the authenticated address on the request.
func SetCaller(c *fiber.Ctx, addr common.Address) {
	c.Locals(callerLocal, addr)
}

// Caller returns the authenticated address placed by JWTAuth.
func Caller(c *fiber.Ctx) (common.Address, error) {
	addr, ok := c.Locals(callerLocal).(common.Address)
	if !ok || addr == (common.Address{}) {
		return common.Address{}, fiber.NewError(http.StatusUnauthorized, "missing caller identity")
	}
	return addr, nil
}
