package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tiendafix/tiendafix/internal/platform/db"
)

// Repository persists accounts and transactions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a repeatable-read transaction, handing it a
// TxStore bound to that transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if r == nil || r.pool == nil {
		return errors.New("ledger: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

// Store wraps an existing transaction so other modules can post ledger
// entries atomically with their own writes.
func (r *Repository) Store(tx pgx.Tx) TxStore {
	return &txStore{tx: tx}
}

// GetAccount loads the account for a customer without locking.
func (r *Repository) GetAccount(ctx context.Context, customerID int64) (Account, error) {
	var a Account
	err := r.pool.QueryRow(ctx, `SELECT id, customer_id, balance, credit_limit, total_sales, total_payments, transaction_count, is_active, blocked_until, block_reason, created_at, updated_at
FROM customer_accounts WHERE customer_id=$1`, customerID).
		Scan(&a.ID, &a.CustomerID, &a.Balance, &a.CreditLimit, &a.TotalSales, &a.TotalPayments, &a.TransactionCount, &a.IsActive, &a.BlockedUntil, &a.BlockReason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// ListTransactions returns a customer's ledger entries oldest first.
func (r *Repository) ListTransactions(ctx context.Context, customerID int64, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, event_id, customer_id, account_id, tx_type, amount, balance_before, balance_after, reference_type, reference_id, notes, created_by, created_at
FROM customer_transactions WHERE customer_id=$1 ORDER BY created_at ASC, id ASC LIMIT $2`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.EventID, &t.CustomerID, &t.AccountID, &t.Type, &t.Amount, &t.BalanceBefore, &t.BalanceAfter, &t.ReferenceType, &t.ReferenceID, &t.Notes, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// UpdateBlock sets or clears the account block outside any sale flow.
func (r *Repository) UpdateBlock(ctx context.Context, customerID int64, until *time.Time, reason string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE customer_accounts SET blocked_until=$2, block_reason=$3, updated_at=NOW() WHERE customer_id=$1`, customerID, until, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) GetOrCreateAccountForUpdate(ctx context.Context, customerID int64) (Account, error) {
	account, err := s.lockAccount(ctx, customerID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Account{}, err
	}
	// First post for this customer: create the account, then take the lock.
	// ON CONFLICT covers the race where a concurrent post created it first.
	if _, err := s.tx.Exec(ctx, `INSERT INTO customer_accounts (customer_id, balance, credit_limit, total_sales, total_payments, transaction_count, is_active, created_at, updated_at)
VALUES ($1, 0, 0, 0, 0, 0, TRUE, NOW(), NOW())
ON CONFLICT (customer_id) DO NOTHING`, customerID); err != nil {
		return Account{}, err
	}
	return s.lockAccount(ctx, customerID)
}

func (s *txStore) lockAccount(ctx context.Context, customerID int64) (Account, error) {
	var a Account
	err := s.tx.QueryRow(ctx, `SELECT id, customer_id, balance, credit_limit, total_sales, total_payments, transaction_count, is_active, blocked_until, block_reason, created_at, updated_at
FROM customer_accounts WHERE customer_id=$1 FOR UPDATE`, customerID).
		Scan(&a.ID, &a.CustomerID, &a.Balance, &a.CreditLimit, &a.TotalSales, &a.TotalPayments, &a.TransactionCount, &a.IsActive, &a.BlockedUntil, &a.BlockReason, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *txStore) TransactionExists(ctx context.Context, t TransactionType, refType ReferenceType, refID int64) (bool, error) {
	var one int
	err := s.tx.QueryRow(ctx, `SELECT 1 FROM customer_transactions WHERE tx_type=$1 AND reference_type=$2 AND reference_id=$3 LIMIT 1`, string(t), string(refType), refID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *txStore) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO customer_transactions (event_id, customer_id, account_id, tx_type, amount, balance_before, balance_after, reference_type, reference_id, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		t.EventID, t.CustomerID, t.AccountID, string(t.Type), t.Amount, t.BalanceBefore, t.BalanceAfter, string(t.ReferenceType), t.ReferenceID, t.Notes, t.CreatedBy, t.CreatedAt).
		Scan(&t.ID)
	if err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func (s *txStore) UpdateAccountAfterPost(ctx context.Context, a Account) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE customer_accounts SET balance=$2, total_sales=$3, total_payments=$4, transaction_count=$5, updated_at=NOW() WHERE id=$1`,
		a.ID, a.Balance, a.TotalSales, a.TotalPayments, a.TransactionCount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
