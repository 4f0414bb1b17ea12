package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledger-pay/ledger_pay/internal/ledger"
	"github.com/ledger-pay/ledger_pay/internal/money"
	"github.com/ledger-pay/ledger_pay/internal/notification"
)

const (
	defaultCurrency = "USD"

	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// ErrInvalidWalletID indicates the wallet identifier is not a valid UUID.
var ErrInvalidWalletID = errors.New("invalid wallet id")

// Service exposes wallet provisioning, balance operations and read-only
// queries on top of the ledger engine and store.
type Service struct {
	store    ledger.Store
	engine   *ledger.Engine
	notifier notification.Notifier
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store, engine *ledger.Engine, notifier notification.Notifier) *Service {
	return &Service{store: store, engine: engine, notifier: notifier}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	// ID is optional; when empty a fresh UUID is assigned.
	ID       string
	Currency string
}

// Create provisions a wallet with a zero balance at version 1.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Wallet, error) {
	id := uuid.New()
	if input.ID != "" {
		parsed, err := uuid.Parse(input.ID)
		if err != nil {
			return ledger.Wallet{}, fmt.Errorf("%w: %q", ErrInvalidWalletID, input.ID)
		}
		id = parsed
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if len(currency) != 3 {
		return ledger.Wallet{}, fmt.Errorf("%w: %q", money.ErrInvalidCurrency, input.Currency)
	}

	now := time.Now().UTC()
	w := ledger.Wallet{
		ID:        id,
		Balance:   money.Zero(currency),
		Currency:  currency,
		Status:    ledger.StatusActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateWallet(ctx, w); err != nil {
		return ledger.Wallet{}, err
	}
	return w, nil
}

// Get retrieves the wallet's current state: balance, currency, status, version.
// It backs both the wallet and the balance endpoints.
func (s *Service) Get(ctx context.Context, id string) (ledger.Wallet, error) {
	walletID, err := parseWalletID(id)
	if err != nil {
		return ledger.Wallet{}, err
	}
	return s.store.GetWallet(ctx, walletID)
}

// OperateInput captures a requested deposit or withdrawal.
type OperateInput struct {
	WalletID      string
	OperationType string
	Amount        string
	Currency      string
	Description   string
	ReferenceID   string
}

// Operate applies one balance operation through the ledger engine.
func (s *Service) Operate(ctx context.Context, input OperateInput) (ledger.Transaction, error) {
	walletID, err := parseWalletID(input.WalletID)
	if err != nil {
		return ledger.Transaction{}, err
	}

	opType, err := ledger.ParseOperationType(input.OperationType)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("%w: %q", err, input.OperationType)
	}

	amount, err := money.FromString(input.Amount, strings.ToUpper(strings.TrimSpace(input.Currency)))
	if err != nil {
		if errors.Is(err, money.ErrPrecision) || errors.Is(err, money.ErrInvalidCurrency) {
			return ledger.Transaction{}, err
		}
		return ledger.Transaction{}, fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err)
	}

	tx, err := s.engine.Apply(ctx, ledger.OperationInput{
		WalletID:    walletID,
		Type:        opType,
		Amount:      amount,
		Description: input.Description,
		ReferenceID: input.ReferenceID,
	})
	if err != nil {
		return ledger.Transaction{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:     notification.KindOperationApplied,
			WalletID: walletID.String(),
			Body:     fmt.Sprintf("%s %s, balance %s", tx.Type, tx.Amount, tx.BalanceAfter),
		})
	}
	return tx, nil
}

// Transactions returns the wallet's history, newest first.
func (s *Service) Transactions(ctx context.Context, id string, limit, offset int) ([]ledger.Transaction, error) {
	walletID, err := parseWalletID(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, walletID, clampPage(limit, offset))
}

// Statistics aggregates the wallet's transaction log.
func (s *Service) Statistics(ctx context.Context, id string) (ledger.Statistics, error) {
	walletID, err := parseWalletID(id)
	if err != nil {
		return ledger.Statistics{}, err
	}
	return s.store.Statistics(ctx, walletID)
}

// SetStatus transitions the wallet lifecycle state. Closed wallets stay closed.
func (s *Service) SetStatus(ctx context.Context, id, status string) (ledger.Wallet, error) {
	walletID, err := parseWalletID(id)
	if err != nil {
		return ledger.Wallet{}, err
	}
	parsed, err := ledger.ParseWalletStatus(strings.ToLower(status))
	if err != nil {
		return ledger.Wallet{}, fmt.Errorf("%w: %q", err, status)
	}

	w, err := s.store.SetWalletStatus(ctx, walletID, parsed)
	if err != nil {
		return ledger.Wallet{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:     notification.KindStatusChanged,
			WalletID: w.ID.String(),
			Body:     fmt.Sprintf("status changed to %s", w.Status),
		})
	}
	return w, nil
}

// ListByStatus returns wallets in the given lifecycle state, newest first.
func (s *Service) ListByStatus(ctx context.Context, status string, limit, offset int) ([]ledger.Wallet, error) {
	parsed, err := ledger.ParseWalletStatus(strings.ToLower(status))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, status)
	}
	return s.store.ListWalletsByStatus(ctx, parsed, clampPage(limit, offset))
}

func parseWalletID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidWalletID, id)
	}
	return parsed, nil
}

func clampPage(limit, offset int) ledger.Page {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return ledger.Page{Limit: limit, Offset: offset}
}
