package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledger-pay/ledger_pay/internal/money"
)

const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
)

// PostgresStore persists wallets and their transaction log in PostgreSQL.
// Per-wallet serialization is delegated to row locks (SELECT ... FOR UPDATE),
// which holds across multiple service instances sharing one database.
type PostgresStore struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresStore constructs a Postgres-backed ledger store. lockTimeout
// bounds how long a unit of work may block waiting for a wallet row lock.
func NewPostgresStore(db *pgxpool.Pool, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

// InTx runs fn inside a single database transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Unit) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	unit := &pgUnit{tx: tx, lockTimeout: s.lockTimeout}
	if err := fn(unit); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

type pgUnit struct {
	tx          pgx.Tx
	lockTimeout time.Duration
}

func (u *pgUnit) LockWallet(ctx context.Context, id uuid.UUID) (Wallet, error) {
	if u.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", u.lockTimeout.Milliseconds())
		if _, err := u.tx.Exec(ctx, stmt); err != nil {
			return Wallet{}, fmt.Errorf("set lock timeout: %w", err)
		}
	}

	row := u.tx.QueryRow(ctx, `SELECT id, balance, currency, status, version, created_at, updated_at
        FROM wallets WHERE id = $1 FOR UPDATE`, id)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return Wallet{}, fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}
		return Wallet{}, mapPgError(err)
	}
	return w, nil
}

func (u *pgUnit) UpdateWallet(ctx context.Context, w Wallet) error {
	tag, err := u.tx.Exec(ctx, `UPDATE wallets
        SET balance = $1, version = $2, updated_at = now()
        WHERE id = $3 AND version = $4`,
		w.Balance.Amount(), w.Version, w.ID, w.Version-1)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleVersion
	}
	return nil
}

func (u *pgUnit) AppendTransaction(ctx context.Context, tx *Transaction) error {
	var ref any
	if tx.ReferenceID != "" {
		ref = tx.ReferenceID
	}
	err := u.tx.QueryRow(ctx, `INSERT INTO transactions
        (wallet_id, operation_type, amount, balance_before, balance_after, description, reference_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at`,
		tx.WalletID, string(tx.Type), tx.Amount.Amount(),
		tx.BalanceBefore.Amount(), tx.BalanceAfter.Amount(),
		nullableText(tx.Description), ref,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	return nil
}

// CreateWallet inserts a new wallet row.
func (s *PostgresStore) CreateWallet(ctx context.Context, w Wallet) error {
	_, err := s.db.Exec(ctx, `INSERT INTO wallets (id, balance, currency, status, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		w.ID, w.Balance.Amount(), w.Currency, string(w.Status), w.Version, w.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrWalletExists
		}
		return err
	}
	return nil
}

// GetWallet fetches the current wallet state without locking.
func (s *PostgresStore) GetWallet(ctx context.Context, id uuid.UUID) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT id, balance, currency, status, version, created_at, updated_at
        FROM wallets WHERE id = $1`, id)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	return w, nil
}

// SetWalletStatus transitions a wallet's lifecycle state. Closed wallets are
// terminal and cannot transition again.
func (s *PostgresStore) SetWalletStatus(ctx context.Context, id uuid.UUID, status WalletStatus) (Wallet, error) {
	row := s.db.QueryRow(ctx, `UPDATE wallets SET status = $2, updated_at = now()
        WHERE id = $1 AND status <> 'closed'
        RETURNING id, balance, currency, status, version, created_at, updated_at`,
		id, string(status))
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// either the wallet is absent or it is already closed
			if _, getErr := s.GetWallet(ctx, id); getErr != nil {
				return Wallet{}, getErr
			}
			return Wallet{}, ErrWalletNotActive
		}
		return Wallet{}, err
	}
	return w, nil
}

// ListWalletsByStatus returns wallets in the given state, newest first.
func (s *PostgresStore) ListWalletsByStatus(ctx context.Context, status WalletStatus, page Page) ([]Wallet, error) {
	rows, err := s.db.Query(ctx, `SELECT id, balance, currency, status, version, created_at, updated_at
        FROM wallets WHERE status = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3`, string(status), page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wallets := make([]Wallet, 0, page.Limit)
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// FindByReference resolves an idempotency reference to the transaction it produced.
func (s *PostgresStore) FindByReference(ctx context.Context, ref string) (Transaction, error) {
	row := s.db.QueryRow(ctx, `SELECT t.id, t.wallet_id, t.operation_type, t.amount,
            t.balance_before, t.balance_after, t.description, t.reference_id, t.created_at, w.currency
        FROM transactions t
        INNER JOIN wallets w ON w.id = t.wallet_id
        WHERE t.reference_id = $1`, ref)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	return tx, nil
}

// ListTransactions returns a wallet's log, newest first.
func (s *PostgresStore) ListTransactions(ctx context.Context, walletID uuid.UUID, page Page) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, `SELECT t.id, t.wallet_id, t.operation_type, t.amount,
            t.balance_before, t.balance_after, t.description, t.reference_id, t.created_at, w.currency
        FROM transactions t
        INNER JOIN wallets w ON w.id = t.wallet_id
        WHERE t.wallet_id = $1
        ORDER BY t.created_at DESC, t.id DESC
        LIMIT $2 OFFSET $3`, walletID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]Transaction, 0, page.Limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// Statistics aggregates the wallet's transaction log in SQL.
func (s *PostgresStore) Statistics(ctx context.Context, walletID uuid.UUID) (Statistics, error) {
	w, err := s.GetWallet(ctx, walletID)
	if err != nil {
		return Statistics{}, err
	}

	var (
		count       int64
		deposits    decimal.Decimal
		withdrawals decimal.Decimal
	)
	err = s.db.QueryRow(ctx, `SELECT COUNT(*),
            COALESCE(SUM(amount) FILTER (WHERE operation_type = 'DEPOSIT'), 0),
            COALESCE(SUM(amount) FILTER (WHERE operation_type = 'WITHDRAW'), 0)
        FROM transactions WHERE wallet_id = $1`, walletID).Scan(&count, &deposits, &withdrawals)
	if err != nil {
		return Statistics{}, err
	}

	totalIn, err := money.New(deposits, w.Currency)
	if err != nil {
		return Statistics{}, err
	}
	totalOut, err := money.New(withdrawals, w.Currency)
	if err != nil {
		return Statistics{}, err
	}

	return Statistics{
		WalletID:         w.ID,
		Balance:          w.Balance,
		TotalDeposits:    totalIn,
		TotalWithdrawals: totalOut,
		TransactionCount: count,
	}, nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w       Wallet
		balance decimal.Decimal
		status  string
	)
	if err := row.Scan(&w.ID, &balance, &w.Currency, &status, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Wallet{}, err
	}
	m, err := money.New(balance, w.Currency)
	if err != nil {
		return Wallet{}, err
	}
	w.Balance = m
	w.Status = WalletStatus(status)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx          Transaction
		opType      string
		amount      decimal.Decimal
		before      decimal.Decimal
		after       decimal.Decimal
		description *string
		reference   *string
		currency    string
	)
	if err := row.Scan(&tx.ID, &tx.WalletID, &opType, &amount, &before, &after,
		&description, &reference, &tx.CreatedAt, &currency); err != nil {
		return Transaction{}, err
	}
	tx.Type = OperationType(opType)
	var err error
	if tx.Amount, err = money.New(amount, currency); err != nil {
		return Transaction{}, err
	}
	if tx.BalanceBefore, err = money.New(before, currency); err != nil {
		return Transaction{}, err
	}
	if tx.BalanceAfter, err = money.New(after, currency); err != nil {
		return Transaction{}, err
	}
	if description != nil {
		tx.Description = *description
	}
	if reference != nil {
		tx.ReferenceID = *reference
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicateReference, pgErr.ConstraintName)
		case pgLockNotAvailable:
			return fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}
	}
	return err
}
