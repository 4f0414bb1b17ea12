// Package idempotency resolves caller-supplied reference identifiers to the
// transactions they already produced. It is a cheap pre-check layered over
// the store's reference lookup; the unique index enforced at commit time
// remains the authoritative guard.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ledger-pay/ledger_pay/internal/ledger"
	"github.com/ledger-pay/ledger_pay/internal/money"
)

const keyPrefix = "idempotency:v1:"

// Lookup is the authoritative reference resolver, normally the ledger store.
type Lookup interface {
	FindByReference(ctx context.Context, ref string) (ledger.Transaction, error)
}

// Index answers "has this reference already been applied?". Redis serves as a
// best-effort cache in front of the store; cache failures fall through to the
// store rather than failing the operation.
type Index struct {
	cache  *redis.Client
	store  Lookup
	ttl    time.Duration
	logger *slog.Logger
}

// New builds an Index. cache may be nil, in which case every lookup goes to
// the store.
func New(cache *redis.Client, store Lookup, ttl time.Duration, logger *slog.Logger) *Index {
	return &Index{cache: cache, store: store, ttl: ttl, logger: logger}
}

// Find returns the transaction previously recorded under ref, if any.
func (i *Index) Find(ctx context.Context, ref string) (ledger.Transaction, bool, error) {
	if i.cache != nil {
		cached, err := i.cache.Get(ctx, keyPrefix+ref).Result()
		switch {
		case err == nil:
			tx, decodeErr := decodeTransaction([]byte(cached))
			if decodeErr == nil {
				return tx, true, nil
			}
			i.logger.Warn("discarding undecodable idempotency cache entry",
				slog.String("reference_id", ref), slog.Any("error", decodeErr))
		case !errors.Is(err, redis.Nil):
			// fail open: the store below still answers
			i.logger.Warn("idempotency cache lookup failed",
				slog.String("reference_id", ref), slog.Any("error", err))
		}
	}

	tx, err := i.store.FindByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			return ledger.Transaction{}, false, nil
		}
		return ledger.Transaction{}, false, err
	}

	i.Record(ctx, tx)
	return tx, true, nil
}

// Record caches a committed transaction under its reference. Best effort; a
// cache failure only costs a future store lookup.
func (i *Index) Record(ctx context.Context, tx ledger.Transaction) {
	if i.cache == nil || tx.ReferenceID == "" {
		return
	}
	payload, err := encodeTransaction(tx)
	if err != nil {
		i.logger.Warn("encode idempotency cache entry",
			slog.String("reference_id", tx.ReferenceID), slog.Any("error", err))
		return
	}
	if err := i.cache.Set(ctx, keyPrefix+tx.ReferenceID, payload, i.ttl).Err(); err != nil {
		i.logger.Warn("persist idempotency cache entry",
			slog.String("reference_id", tx.ReferenceID), slog.Any("error", err))
	}
}

type storedTransaction struct {
	ID            int64     `json:"id"`
	WalletID      string    `json:"wallet_id"`
	Type          string    `json:"type"`
	Currency      string    `json:"currency"`
	Amount        string    `json:"amount"`
	BalanceBefore string    `json:"balance_before"`
	BalanceAfter  string    `json:"balance_after"`
	Description   string    `json:"description,omitempty"`
	ReferenceID   string    `json:"reference_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func encodeTransaction(tx ledger.Transaction) ([]byte, error) {
	return json.Marshal(storedTransaction{
		ID:            tx.ID,
		WalletID:      tx.WalletID.String(),
		Type:          string(tx.Type),
		Currency:      tx.Amount.Currency(),
		Amount:        tx.Amount.String(),
		BalanceBefore: tx.BalanceBefore.String(),
		BalanceAfter:  tx.BalanceAfter.String(),
		Description:   tx.Description,
		ReferenceID:   tx.ReferenceID,
		CreatedAt:     tx.CreatedAt,
	})
}

func decodeTransaction(payload []byte) (ledger.Transaction, error) {
	var stored storedTransaction
	if err := json.Unmarshal(payload, &stored); err != nil {
		return ledger.Transaction{}, err
	}

	walletID, err := uuid.Parse(stored.WalletID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	amount, err := money.FromString(stored.Amount, stored.Currency)
	if err != nil {
		return ledger.Transaction{}, err
	}
	before, err := money.FromString(stored.BalanceBefore, stored.Currency)
	if err != nil {
		return ledger.Transaction{}, err
	}
	after, err := money.FromString(stored.BalanceAfter, stored.Currency)
	if err != nil {
		return ledger.Transaction{}, err
	}

	return ledger.Transaction{
		ID:            stored.ID,
		WalletID:      walletID,
		Type:          ledger.OperationType(stored.Type),
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   stored.Description,
		ReferenceID:   stored.ReferenceID,
		CreatedAt:     stored.CreatedAt,
	}, nil
}
