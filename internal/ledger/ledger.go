package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ledger-pay/ledger_pay/internal/money"
)

var (
	// ErrWalletNotFound occurs when the addressed wallet does not exist.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrWalletNotActive indicates the wallet exists but is frozen or closed
	// and therefore rejects balance operations.
	ErrWalletNotActive = errors.New("wallet is not active")

	// ErrWalletExists indicates a wallet with the requested identifier already exists.
	ErrWalletExists = errors.New("wallet already exists")

	// ErrInsufficientFunds occurs when a withdrawal would drive the balance
	// below zero. No state change happens.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount indicates the operation amount is not strictly positive.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidOperation indicates an unknown operation type.
	ErrInvalidOperation = errors.New("invalid operation type")

	// ErrInvalidStatus indicates an unknown wallet status.
	ErrInvalidStatus = errors.New("invalid wallet status")

	// ErrStaleVersion indicates a wallet write carried a version that no longer
	// matches the stored row. Under correct lock usage this never fires; seeing
	// it means some code path mutated a wallet outside the row lock.
	ErrStaleVersion = errors.New("stale wallet version")

	// ErrDuplicateReference indicates the transaction's reference identifier
	// already exists. The operation was already applied by an earlier or
	// concurrent identical request.
	ErrDuplicateReference = errors.New("duplicate reference")

	// ErrTransactionNotFound occurs when no transaction matches a reference lookup.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrLockTimeout indicates the wallet row lock could not be acquired within
	// the configured timeout. Safe to retry.
	ErrLockTimeout = errors.New("wallet lock timeout")
)

// OperationType enumerates the balance-changing operations.
type OperationType string

const (
	// OpDeposit credits the wallet balance.
	OpDeposit OperationType = "DEPOSIT"
	// OpWithdraw debits the wallet balance.
	OpWithdraw OperationType = "WITHDRAW"
)

// ParseOperationType validates a caller-supplied operation kind.
func ParseOperationType(s string) (OperationType, error) {
	switch OperationType(s) {
	case OpDeposit:
		return OpDeposit, nil
	case OpWithdraw:
		return OpWithdraw, nil
	default:
		return "", ErrInvalidOperation
	}
}

// WalletStatus enumerates wallet lifecycle states. Only active wallets accept
// operations; closed is terminal.
type WalletStatus string

const (
	StatusActive WalletStatus = "active"
	StatusFrozen WalletStatus = "frozen"
	StatusClosed WalletStatus = "closed"
)

// ParseWalletStatus validates a caller-supplied wallet status.
func ParseWalletStatus(s string) (WalletStatus, error) {
	switch WalletStatus(s) {
	case StatusActive, StatusFrozen, StatusClosed:
		return WalletStatus(s), nil
	default:
		return "", ErrInvalidStatus
	}
}

// Wallet is the current state of one balance-holding account. Balance is a
// materialized projection of the wallet's transaction sequence; both are
// always written in the same atomic unit. Version increments exactly once per
// applied operation, so version == 1 + transaction count.
type Wallet struct {
	ID        uuid.UUID
	Balance   money.Money
	Currency  string
	Status    WalletStatus
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is an immutable log entry produced by exactly one applied
// operation. Amount is strictly positive; the sign is implied by Type.
type Transaction struct {
	ID            int64
	WalletID      uuid.UUID
	Type          OperationType
	Amount        money.Money
	BalanceBefore money.Money
	BalanceAfter  money.Money
	Description   string
	// ReferenceID is the caller-supplied idempotency token. Empty means the
	// caller opted out of idempotency protection.
	ReferenceID string
	CreatedAt   time.Time
}

// Page bounds a history scan.
type Page struct {
	Limit  int
	Offset int
}

// Statistics aggregates a wallet's transaction log.
type Statistics struct {
	WalletID         uuid.UUID
	Balance          money.Money
	TotalDeposits    money.Money
	TotalWithdrawals money.Money
	TransactionCount int64
}

// Unit is the set of writes available inside one atomic unit of work. Every
// write either commits or rolls back together.
type Unit interface {
	// LockWallet acquires an exclusive row lock on the wallet for the duration
	// of the unit. It blocks until the lock is granted or the configured
	// timeout elapses (ErrLockTimeout).
	LockWallet(ctx context.Context, id uuid.UUID) (Wallet, error)

	// UpdateWallet persists the new balance and version. The write is
	// conditional on the stored version being exactly w.Version-1; a mismatch
	// fails with ErrStaleVersion.
	UpdateWallet(ctx context.Context, w Wallet) error

	// AppendTransaction persists a new log entry, assigning its ID and
	// creation time. A reference collision fails with ErrDuplicateReference.
	AppendTransaction(ctx context.Context, tx *Transaction) error
}

// Store abstracts the durable backend. Reads take no lock beyond the
// backend's default snapshot consistency; all mutation goes through InTx.
type Store interface {
	// InTx runs fn inside one all-or-nothing unit of work. Any error from fn
	// rolls back every write performed through the Unit, including releasing
	// row locks.
	InTx(ctx context.Context, fn func(Unit) error) error

	CreateWallet(ctx context.Context, w Wallet) error
	GetWallet(ctx context.Context, id uuid.UUID) (Wallet, error)
	SetWalletStatus(ctx context.Context, id uuid.UUID, status WalletStatus) (Wallet, error)
	ListWalletsByStatus(ctx context.Context, status WalletStatus, page Page) ([]Wallet, error)

	FindByReference(ctx context.Context, ref string) (Transaction, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, page Page) ([]Transaction, error)
	Statistics(ctx context.Context, walletID uuid.UUID) (Statistics, error)
}
