package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ledger-pay/ledger_pay/internal/money"
)

// ReferenceIndex resolves idempotency references to previously applied
// transactions ahead of the authoritative unique-index check at commit.
// Implementations may be backed by a cache and are allowed to miss.
type ReferenceIndex interface {
	Find(ctx context.Context, ref string) (Transaction, bool, error)
	Record(ctx context.Context, tx Transaction)
}

// Engine serializes balance mutations per wallet and records every applied
// operation in the transaction log. All serialization is delegated to the
// store's row lock, so multiple engine instances sharing one backend stay
// correct; the version check on write is a second, independent guard that
// turns any lock-bypass bug into a loud fault instead of silent corruption.
type Engine struct {
	store  Store
	index  ReferenceIndex
	logger *slog.Logger
}

// NewEngine builds a ledger engine. index may be nil, in which case the
// pre-check falls back to the store's reference lookup.
func NewEngine(store Store, index ReferenceIndex, logger *slog.Logger) *Engine {
	return &Engine{store: store, index: index, logger: logger}
}

// OperationInput describes one requested balance mutation.
type OperationInput struct {
	WalletID    uuid.UUID
	Type        OperationType
	Amount      money.Money
	Description string
	// ReferenceID, when non-empty, makes the operation idempotent: repeated
	// submission applies it at most once.
	ReferenceID string
}

// Apply executes one deposit or withdrawal as a single serializable unit:
// idempotency pre-check, row lock, validation, balance arithmetic, version
// bump and log append, all committed atomically. On success the returned
// Transaction is the applied (or previously applied, for replays) log entry.
func (e *Engine) Apply(ctx context.Context, in OperationInput) (Transaction, error) {
	if in.Type != OpDeposit && in.Type != OpWithdraw {
		return Transaction{}, fmt.Errorf("%w: %q", ErrInvalidOperation, in.Type)
	}
	if !in.Amount.IsPositive() {
		return Transaction{}, fmt.Errorf("%w: got %s", ErrInvalidAmount, in.Amount.String())
	}

	// Cheap pre-check: a known reference returns the recorded transaction
	// without taking the wallet lock. The unique index at commit remains the
	// authoritative guard for the race between this check and a concurrent
	// identical request.
	if in.ReferenceID != "" {
		if tx, ok := e.findReference(ctx, in.ReferenceID); ok {
			return tx, nil
		}
	}

	var applied Transaction
	err := e.store.InTx(ctx, func(u Unit) error {
		w, err := u.LockWallet(ctx, in.WalletID)
		if err != nil {
			return err
		}
		if w.Status != StatusActive {
			return fmt.Errorf("%w: status %s", ErrWalletNotActive, w.Status)
		}
		if in.Amount.Currency() != w.Currency {
			return fmt.Errorf("%w: wallet holds %s, amount is %s",
				money.ErrCurrencyMismatch, w.Currency, in.Amount.Currency())
		}

		before := w.Balance
		var after money.Money
		switch in.Type {
		case OpDeposit:
			after, err = before.Add(in.Amount)
		case OpWithdraw:
			after, err = before.Sub(in.Amount)
			if err == nil && after.IsNegative() {
				return fmt.Errorf("%w: balance %s, requested %s",
					ErrInsufficientFunds, before.String(), in.Amount.String())
			}
		}
		if err != nil {
			return err
		}

		tx := Transaction{
			WalletID:      w.ID,
			Type:          in.Type,
			Amount:        in.Amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			Description:   in.Description,
			ReferenceID:   in.ReferenceID,
		}

		w.Balance = after
		w.Version++
		if err := u.UpdateWallet(ctx, w); err != nil {
			return err
		}
		if err := u.AppendTransaction(ctx, &tx); err != nil {
			return err
		}

		applied = tx
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateReference) && in.ReferenceID != "" {
			// Lost the commit race to a concurrent identical request; the
			// operation was applied exactly once, so hand back the winner's
			// transaction as our own result.
			if tx, refErr := e.store.FindByReference(ctx, in.ReferenceID); refErr == nil {
				return tx, nil
			}
			return Transaction{}, err
		}
		if errors.Is(err, ErrStaleVersion) {
			e.logger.Error("wallet version changed under row lock",
				slog.String("wallet_id", in.WalletID.String()))
		}
		return Transaction{}, err
	}

	if in.ReferenceID != "" && e.index != nil {
		e.index.Record(ctx, applied)
	}

	e.logger.Info("operation applied",
		slog.String("wallet_id", in.WalletID.String()),
		slog.String("type", string(in.Type)),
		slog.String("amount", in.Amount.String()),
		slog.String("balance_after", applied.BalanceAfter.String()),
		slog.Int64("transaction_id", applied.ID))
	return applied, nil
}

func (e *Engine) findReference(ctx context.Context, ref string) (Transaction, bool) {
	if e.index != nil {
		tx, ok, err := e.index.Find(ctx, ref)
		if err != nil {
			e.logger.Warn("idempotency pre-check failed", slog.String("reference_id", ref), slog.Any("error", err))
			return Transaction{}, false
		}
		return tx, ok
	}

	tx, err := e.store.FindByReference(ctx, ref)
	if err != nil {
		if !errors.Is(err, ErrTransactionNotFound) {
			e.logger.Warn("idempotency pre-check failed", slog.String("reference_id", ref), slog.Any("error", err))
		}
		return Transaction{}, false
	}
	return tx, true
}
