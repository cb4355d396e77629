package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/vault/internal/wallet"
)

// RegisterWalletRoutes wires vault endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallets", h.Create)
	r.Get("/wallets", h.List)
	r.Get("/wallets/:walletId", h.Get)
	r.Get("/wallets/:walletId/balances/:asset", h.Balance)
	r.Post("/wallets/:walletId/deposits", h.Deposit)
	r.Post("/wallets/:walletId/send", h.Send)
	r.Post("/wallets/:walletId/batch", h.Batch)
	r.Post("/wallets/:walletId/emergency-withdraw", h.EmergencyWithdraw)
	r.Put("/wallets/:walletId/spenders/:spender", h.SetSpender)
	r.Get("/wallets/:walletId/spenders/:spender", h.GetSpender)
	r.Put("/wallets/:walletId/owner", h.TransferOwnership)
	r.Get("/accounts/:address/balances/:asset", h.AccountBalance)
}
