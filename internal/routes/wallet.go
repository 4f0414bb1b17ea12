package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ledger-pay/ledger_pay/internal/wallet"
)

// registerWalletRoutes wires wallet endpoints. The balance route is an alias
// for the wallet read; both serve the same snapshot.
func registerWalletRoutes(r fiber.Router, h *wallet.Handler, opLimit fiber.Handler) {
	r.Post("/wallets", h.Create)
	r.Get("/wallets", h.List)
	r.Get("/wallets/:walletId", h.Get)
	r.Get("/wallets/:walletId/balance", h.Get)
	r.Post("/wallets/:walletId/operation", opLimit, h.Operate)
	r.Get("/wallets/:walletId/transactions", h.Transactions)
	r.Get("/wallets/:walletId/statistics", h.Statistics)
	r.Patch("/wallets/:walletId/status", h.SetStatus)
}
