package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledger-pay/ledger_pay/internal/money"
)

const defaultMemoryLockTimeout = 2 * time.Second

// memoryStore is an in-memory Store with the same locking and rollback
// semantics as the Postgres backend: per-wallet exclusive locks held for the
// duration of a unit, and staged writes that only become visible on commit.
type memoryStore struct {
	mu          sync.Mutex
	wallets     map[uuid.UUID]Wallet
	txs         []Transaction
	byRef       map[string]int64
	pendingRefs map[string]struct{}
	locks       map[uuid.UUID]chan struct{}
	nextTxID    int64
	lockTimeout time.Duration
}

// NewInMemory creates an in-memory ledger store useful for unit tests.
func NewInMemory() Store {
	return &memoryStore{
		wallets:     make(map[uuid.UUID]Wallet),
		byRef:       make(map[string]int64),
		pendingRefs: make(map[string]struct{}),
		locks:       make(map[uuid.UUID]chan struct{}),
		lockTimeout: defaultMemoryLockTimeout,
	}
}

type memUnit struct {
	store       *memoryStore
	locked      []uuid.UUID
	staged      map[uuid.UUID]Wallet
	stagedTxs   []Transaction
	claimedRefs []string
}

// InTx runs fn against a staging unit and applies or discards its writes
// atomically. Wallet locks are released only after the outcome is visible.
func (s *memoryStore) InTx(_ context.Context, fn func(Unit) error) error {
	u := &memUnit{store: s, staged: make(map[uuid.UUID]Wallet)}
	err := fn(u)

	s.mu.Lock()
	if err == nil {
		for id, w := range u.staged {
			s.wallets[id] = w
		}
		for _, tx := range u.stagedTxs {
			s.txs = append(s.txs, tx)
			if tx.ReferenceID != "" {
				s.byRef[tx.ReferenceID] = tx.ID
			}
		}
	}
	for _, ref := range u.claimedRefs {
		delete(s.pendingRefs, ref)
	}
	s.mu.Unlock()

	for _, id := range u.locked {
		s.unlock(id)
	}
	return err
}

func (s *memoryStore) lockChan(id uuid.UUID) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	return ch
}

func (s *memoryStore) unlock(id uuid.UUID) {
	ch := s.lockChan(id)
	select {
	case <-ch:
	default:
	}
}

func (u *memUnit) LockWallet(ctx context.Context, id uuid.UUID) (Wallet, error) {
	ch := u.store.lockChan(id)
	timer := time.NewTimer(u.store.lockTimeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
	case <-timer.C:
		return Wallet{}, ErrLockTimeout
	case <-ctx.Done():
		return Wallet{}, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
	}
	u.locked = append(u.locked, id)

	u.store.mu.Lock()
	w, ok := u.store.wallets[id]
	u.store.mu.Unlock()
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (u *memUnit) UpdateWallet(_ context.Context, w Wallet) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	cur, ok := u.store.wallets[w.ID]
	if !ok {
		return ErrWalletNotFound
	}
	if cur.Version != w.Version-1 {
		return ErrStaleVersion
	}
	w.UpdatedAt = time.Now().UTC()
	u.staged[w.ID] = w
	return nil
}

func (u *memUnit) AppendTransaction(_ context.Context, tx *Transaction) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	if tx.ReferenceID != "" {
		if _, exists := u.store.byRef[tx.ReferenceID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateReference, tx.ReferenceID)
		}
		if _, claimed := u.store.pendingRefs[tx.ReferenceID]; claimed {
			return fmt.Errorf("%w: %s", ErrDuplicateReference, tx.ReferenceID)
		}
		u.store.pendingRefs[tx.ReferenceID] = struct{}{}
		u.claimedRefs = append(u.claimedRefs, tx.ReferenceID)
	}

	u.store.nextTxID++
	tx.ID = u.store.nextTxID
	tx.CreatedAt = time.Now().UTC()
	u.stagedTxs = append(u.stagedTxs, *tx)
	return nil
}

func (s *memoryStore) CreateWallet(_ context.Context, w Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.wallets[w.ID]; exists {
		return ErrWalletExists
	}
	s.wallets[w.ID] = w
	return nil
}

func (s *memoryStore) GetWallet(_ context.Context, id uuid.UUID) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (s *memoryStore) SetWalletStatus(_ context.Context, id uuid.UUID, status WalletStatus) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	if w.Status == StatusClosed {
		return Wallet{}, ErrWalletNotActive
	}
	w.Status = status
	w.UpdatedAt = time.Now().UTC()
	s.wallets[id] = w
	return w, nil
}

func (s *memoryStore) ListWalletsByStatus(_ context.Context, status WalletStatus, page Page) ([]Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]Wallet, 0)
	for _, w := range s.wallets {
		if w.Status == status {
			matched = append(matched, w)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() > matched[j].ID.String()
	})
	return paginate(matched, page), nil
}

func (s *memoryStore) FindByReference(_ context.Context, ref string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byRef[ref]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	for _, tx := range s.txs {
		if tx.ID == id {
			return tx, nil
		}
	}
	return Transaction{}, ErrTransactionNotFound
}

func (s *memoryStore) ListTransactions(_ context.Context, walletID uuid.UUID, page Page) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]Transaction, 0)
	// s.txs is in commit order; walk backwards for newest-first
	for i := len(s.txs) - 1; i >= 0; i-- {
		if s.txs[i].WalletID == walletID {
			matched = append(matched, s.txs[i])
		}
	}
	return paginate(matched, page), nil
}

func (s *memoryStore) Statistics(_ context.Context, walletID uuid.UUID) (Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletID]
	if !ok {
		return Statistics{}, ErrWalletNotFound
	}

	stats := Statistics{
		WalletID:         w.ID,
		Balance:          w.Balance,
		TotalDeposits:    money.Zero(w.Currency),
		TotalWithdrawals: money.Zero(w.Currency),
	}
	for _, tx := range s.txs {
		if tx.WalletID != walletID {
			continue
		}
		stats.TransactionCount++
		var err error
		switch tx.Type {
		case OpDeposit:
			stats.TotalDeposits, err = stats.TotalDeposits.Add(tx.Amount)
		case OpWithdraw:
			stats.TotalWithdrawals, err = stats.TotalWithdrawals.Add(tx.Amount)
		}
		if err != nil {
			return Statistics{}, err
		}
	}
	return stats, nil
}

func paginate[T any](items []T, page Page) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	items = items[page.Offset:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}
