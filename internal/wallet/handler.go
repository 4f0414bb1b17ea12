package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ledger-pay/ledger_pay/internal/ledger"
	"github.com/ledger-pay/ledger_pay/internal/money"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create provisions a new wallet.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.Create(c.UserContext(), CreateInput{ID: req.ID, Currency: req.Currency})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(toWalletResponse(w))
}

// Get returns the wallet's current state.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.Get(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(toWalletResponse(w))
}

// Operate applies a deposit or withdrawal.
func (h *Handler) Operate(c *fiber.Ctx) error {
	var req operationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	tx, err := h.service.Operate(c.UserContext(), OperateInput{
		WalletID:      c.Params("walletId"),
		OperationType: req.OperationType,
		Amount:        req.Amount.String(),
		Currency:      req.Currency,
		Description:   req.Description,
		ReferenceID:   req.ReferenceID,
	})
	if err != nil {
		return httpError(err)
	}
	// idempotent replays come back through the same path; callers cannot and
	// need not tell them apart from a fresh application
	return c.Status(http.StatusCreated).JSON(toTransactionResponse(tx))
}

// Transactions returns paginated history, newest first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultPageLimit)
	offset := c.QueryInt("offset", 0)

	txs, err := h.service.Transactions(c.UserContext(), c.Params("walletId"), limit, offset)
	if err != nil {
		return httpError(err)
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	return c.Status(http.StatusOK).JSON(out)
}

// Statistics returns the wallet's aggregate figures.
func (h *Handler) Statistics(c *fiber.Ctx) error {
	stats, err := h.service.Statistics(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(toStatisticsResponse(stats))
}

// SetStatus transitions the wallet lifecycle state.
func (h *Handler) SetStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.SetStatus(c.UserContext(), c.Params("walletId"), req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(toWalletResponse(w))
}

// List returns wallets filtered by lifecycle state.
func (h *Handler) List(c *fiber.Ctx) error {
	status := c.Query("status", string(ledger.StatusActive))
	limit := c.QueryInt("limit", defaultPageLimit)
	offset := c.QueryInt("offset", 0)

	wallets, err := h.service.ListByStatus(c.UserContext(), status, limit, offset)
	if err != nil {
		return httpError(err)
	}

	out := make([]walletResponse, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, toWalletResponse(w))
	}
	return c.Status(http.StatusOK).JSON(out)
}

// httpError maps each fault kind to a distinct, stable status code. Transient
// faults come back as 503 so clients know a retry is safe; everything
// unclassified stays a generic 500.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidWalletID),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidOperation),
		errors.Is(err, ledger.ErrInvalidStatus),
		errors.Is(err, money.ErrCurrencyMismatch),
		errors.Is(err, money.ErrPrecision),
		errors.Is(err, money.ErrInvalidCurrency):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrWalletNotFound),
		errors.Is(err, ledger.ErrTransactionNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrWalletExists),
		errors.Is(err, ledger.ErrWalletNotActive):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrLockTimeout):
		return fiber.NewError(http.StatusServiceUnavailable, "wallet busy, try again")
	default:
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
