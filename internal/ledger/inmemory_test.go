package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ledger-pay/ledger_pay/internal/money"
)

func seedActiveWallet(s Store, currency string) Wallet {
	w := Wallet{
		ID:        uuid.New(),
		Balance:   money.Zero(currency),
		Currency:  currency,
		Status:    StatusActive,
		Version:   1,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	SeedWallet(s, w)
	return w
}

func TestInMemoryCommitMakesWritesVisible(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w := seedActiveWallet(s, "USD")

	amount, _ := money.FromString("25.00", "USD")

	err := s.InTx(ctx, func(u Unit) error {
		locked, err := u.LockWallet(ctx, w.ID)
		if err != nil {
			return err
		}
		after, err := locked.Balance.Add(amount)
		if err != nil {
			return err
		}
		tx := Transaction{WalletID: w.ID, Type: OpDeposit, Amount: amount, BalanceBefore: locked.Balance, BalanceAfter: after}
		locked.Balance = after
		locked.Version++
		if err := u.UpdateWallet(ctx, locked); err != nil {
			return err
		}
		return u.AppendTransaction(ctx, &tx)
	})
	if err != nil {
		t.Fatalf("unit failed: %v", err)
	}

	got, err := s.GetWallet(ctx, w.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if got.Balance.String() != "25.00" {
		t.Fatalf("expected balance 25.00, got %s", got.Balance.String())
	}
	if got.Version != 2 {
		t.Fatalf("expected version 2, got %d", got.Version)
	}
}

func TestInMemoryRollbackDiscardsWrites(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w := seedActiveWallet(s, "USD")

	amount, _ := money.FromString("10.00", "USD")
	boom := errors.New("boom")

	err := s.InTx(ctx, func(u Unit) error {
		locked, err := u.LockWallet(ctx, w.ID)
		if err != nil {
			return err
		}
		after, _ := locked.Balance.Add(amount)
		tx := Transaction{WalletID: w.ID, Type: OpDeposit, Amount: amount, BalanceBefore: locked.Balance, BalanceAfter: after, ReferenceID: "ref-rollback"}
		locked.Balance = after
		locked.Version++
		if err := u.UpdateWallet(ctx, locked); err != nil {
			return err
		}
		if err := u.AppendTransaction(ctx, &tx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := s.GetWallet(ctx, w.ID)
	if got.Version != 1 || !got.Balance.Equal(money.Zero("USD")) {
		t.Fatalf("rollback leaked state: version=%d balance=%s", got.Version, got.Balance.String())
	}
	if _, err := s.FindByReference(ctx, "ref-rollback"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("rolled-back reference still resolvable: %v", err)
	}

	// the claimed reference must be reusable after rollback
	err = s.InTx(ctx, func(u Unit) error {
		locked, err := u.LockWallet(ctx, w.ID)
		if err != nil {
			return err
		}
		after, _ := locked.Balance.Add(amount)
		tx := Transaction{WalletID: w.ID, Type: OpDeposit, Amount: amount, BalanceBefore: locked.Balance, BalanceAfter: after, ReferenceID: "ref-rollback"}
		locked.Balance = after
		locked.Version++
		if err := u.UpdateWallet(ctx, locked); err != nil {
			return err
		}
		return u.AppendTransaction(ctx, &tx)
	})
	if err != nil {
		t.Fatalf("reference not released after rollback: %v", err)
	}
}

func TestInMemoryStaleVersion(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w := seedActiveWallet(s, "USD")

	err := s.InTx(ctx, func(u Unit) error {
		locked, err := u.LockWallet(ctx, w.ID)
		if err != nil {
			return err
		}
		locked.Version += 2 // skips a version, must be rejected
		return u.UpdateWallet(ctx, locked)
	})
	if !errors.Is(err, ErrStaleVersion) {
		t.Fatalf("expected ErrStaleVersion, got %v", err)
	}
}

func TestInMemoryDuplicateReference(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w := seedActiveWallet(s, "USD")
	amount, _ := money.FromString("5.00", "USD")

	apply := func() error {
		return s.InTx(ctx, func(u Unit) error {
			locked, err := u.LockWallet(ctx, w.ID)
			if err != nil {
				return err
			}
			after, _ := locked.Balance.Add(amount)
			tx := Transaction{WalletID: w.ID, Type: OpDeposit, Amount: amount, BalanceBefore: locked.Balance, BalanceAfter: after, ReferenceID: "dup"}
			locked.Balance = after
			locked.Version++
			if err := u.UpdateWallet(ctx, locked); err != nil {
				return err
			}
			return u.AppendTransaction(ctx, &tx)
		})
	}

	if err := apply(); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := apply(); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
}

func TestInMemoryLockTimeout(t *testing.T) {
	s := NewInMemory()
	SetLockTimeout(s, 50*time.Millisecond)
	ctx := context.Background()
	w := seedActiveWallet(s, "USD")

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.InTx(ctx, func(u Unit) error {
			if _, err := u.LockWallet(ctx, w.ID); err != nil {
				return err
			}
			close(holding)
			<-release
			return nil
		})
	}()

	<-holding
	err := s.InTx(ctx, func(u Unit) error {
		_, err := u.LockWallet(ctx, w.ID)
		return err
	})
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("holder failed: %v", err)
	}
}

func TestInMemoryListTransactionsNewestFirst(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w := seedActiveWallet(s, "USD")
	amount, _ := money.FromString("1.00", "USD")

	for i := 0; i < 3; i++ {
		err := s.InTx(ctx, func(u Unit) error {
			locked, err := u.LockWallet(ctx, w.ID)
			if err != nil {
				return err
			}
			after, _ := locked.Balance.Add(amount)
			tx := Transaction{WalletID: w.ID, Type: OpDeposit, Amount: amount, BalanceBefore: locked.Balance, BalanceAfter: after}
			locked.Balance = after
			locked.Version++
			if err := u.UpdateWallet(ctx, locked); err != nil {
				return err
			}
			return u.AppendTransaction(ctx, &tx)
		})
		if err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	txs, err := s.ListTransactions(ctx, w.ID, Page{Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
	for i := 1; i < len(txs); i++ {
		if txs[i-1].ID <= txs[i].ID {
			t.Fatalf("history not newest-first: %d before %d", txs[i-1].ID, txs[i].ID)
		}
	}

	pageTwo, err := s.ListTransactions(ctx, w.ID, Page{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("paged list: %v", err)
	}
	if len(pageTwo) != 1 || pageTwo[0].ID != 1 {
		t.Fatalf("unexpected second page: %+v", pageTwo)
	}
}
