package register

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tiendafix/tiendafix/internal/platform/db"
)

const periodColumns = `id, business_date, opening_balance, cash_count, expected_cash, cash_difference, status, opened_by, opened_at, closed_by, closed_at, notes`

// TxStore exposes the transactional operations used by the service. Open and
// close serialize on an advisory lock: FOR UPDATE on the OPEN row cannot
// guard the case where no such row exists yet.
type TxStore interface {
	// LockRegister takes the advisory lock guarding the open-register
	// singleton. Released when the transaction ends.
	LockRegister(ctx context.Context) error
	// GetOpenForUpdate locks the currently open period, if any.
	GetOpenForUpdate(ctx context.Context) (Period, bool, error)
	GetByDate(ctx context.Context, date time.Time) (Period, bool, error)
	InsertOpen(ctx context.Context, in OpenInput, openedAt time.Time) (Period, error)
	// FinalizeOpen closes the locked open period with reconciled totals.
	FinalizeOpen(ctx context.Context, periodID int64, cashCount, expected, difference decimal.Decimal, actorID int64, closedAt time.Time, notes string) error
	// CashTotals aggregates the cash-channel activity for a business date.
	CashTotals(ctx context.Context, date time.Time) (CashTotals, error)
}

// Repository persists register periods in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if r == nil || r.pool == nil {
		return errors.New("register: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

// GetOpen loads the currently open period without locking.
func (r *Repository) GetOpen(ctx context.Context) (Period, bool, error) {
	return scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM register_periods WHERE status='OPEN'`))
}

// GetByDate loads the period for one business date.
func (r *Repository) GetByDate(ctx context.Context, date time.Time) (Period, bool, error) {
	return scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM register_periods WHERE business_date=$1`, date))
}

// SalesBuckets sums non-voided sale totals by payment channel for a date.
func (r *Repository) SalesBuckets(ctx context.Context, date time.Time) (s DailySummary, err error) {
	err = r.pool.QueryRow(ctx, `SELECT
COALESCE(SUM(total_amount) FILTER (WHERE payment_method='cash'), 0),
COALESCE(SUM(total_amount) FILTER (WHERE payment_method='transfer'), 0),
COALESCE(SUM(total_amount) FILTER (WHERE payment_method='account_credit'), 0),
COALESCE(SUM(total_amount) FILTER (WHERE payment_method='mixed'), 0),
COALESCE(SUM(cash_portion) FILTER (WHERE payment_method='mixed'), 0),
COALESCE(SUM(transfer_portion) FILTER (WHERE payment_method='mixed'), 0),
COALESCE(SUM(total_amount), 0)
FROM sales WHERE business_date=$1 AND NOT is_voided`, date).
		Scan(&s.SalesCash, &s.SalesTransfer, &s.SalesCredit, &s.SalesMixed, &s.SalesMixedCash, &s.SalesMixedTransfer, &s.SalesTotal)
	return s, err
}

// DebtPaymentBuckets sums non-voided debt payments by method for a date.
// Payments taken at sale checkout are part of the sale buckets already.
func (r *Repository) DebtPaymentBuckets(ctx context.Context, date time.Time) (cash, transfer, card decimal.Decimal, err error) {
	err = r.pool.QueryRow(ctx, `SELECT
COALESCE(SUM(amount) FILTER (WHERE method='cash'), 0),
COALESCE(SUM(amount) FILTER (WHERE method='transfer'), 0),
COALESCE(SUM(amount) FILTER (WHERE method='card'), 0)
FROM payments WHERE business_date=$1 AND kind='debt' AND NOT voided`, date).
		Scan(&cash, &transfer, &card)
	return cash, transfer, card, err
}

// ExpenseBuckets sums the day's expenses, cash and overall.
func (r *Repository) ExpenseBuckets(ctx context.Context, date time.Time) (cash, total decimal.Decimal, err error) {
	err = r.pool.QueryRow(ctx, `SELECT
COALESCE(SUM(amount) FILTER (WHERE method='cash'), 0),
COALESCE(SUM(amount), 0)
FROM expenses WHERE business_date=$1`, date).Scan(&cash, &total)
	return cash, total, err
}

// RepairDeliveries counts repair-sourced sales for a date.
func (r *Repository) RepairDeliveries(ctx context.Context, date time.Time) (count int64, total decimal.Decimal, err error) {
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(total_amount), 0)
FROM sales WHERE business_date=$1 AND NOT is_voided AND source='repair'`, date).Scan(&count, &total)
	return count, total, err
}

type txStore struct {
	tx pgx.Tx
}

// registerLockID keys the advisory lock that serializes open and close
// attempts across sessions.
const registerLockID int64 = 520031

func (s *txStore) LockRegister(ctx context.Context) error {
	_, err := s.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, registerLockID)
	return err
}

func (s *txStore) GetOpenForUpdate(ctx context.Context) (Period, bool, error) {
	return scanPeriod(s.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM register_periods WHERE status='OPEN' FOR UPDATE`))
}

func (s *txStore) GetByDate(ctx context.Context, date time.Time) (Period, bool, error) {
	return scanPeriod(s.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM register_periods WHERE business_date=$1`, date))
}

func (s *txStore) InsertOpen(ctx context.Context, in OpenInput, openedAt time.Time) (Period, error) {
	p := Period{
		BusinessDate:   in.Date,
		OpeningBalance: in.OpeningBalance,
		Status:         StatusOpen,
		OpenedBy:       in.ActorID,
		OpenedAt:       openedAt,
	}
	err := s.tx.QueryRow(ctx, `INSERT INTO register_periods (business_date, opening_balance, status, opened_by, opened_at)
VALUES ($1,$2,'OPEN',$3,$4) RETURNING id`, in.Date, in.OpeningBalance, in.ActorID, openedAt).Scan(&p.ID)
	if err != nil {
		return Period{}, err
	}
	return p, nil
}

func (s *txStore) FinalizeOpen(ctx context.Context, periodID int64, cashCount, expected, difference decimal.Decimal, actorID int64, closedAt time.Time, notes string) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE register_periods
SET status='CLOSED', cash_count=$2, expected_cash=$3, cash_difference=$4, closed_by=$5, closed_at=$6, notes=$7
WHERE id=$1 AND status='OPEN'`, periodID, cashCount, expected, difference, actorID, closedAt, notes)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNoOpenRegister
	}
	return nil
}

func (s *txStore) CashTotals(ctx context.Context, date time.Time) (CashTotals, error) {
	var t CashTotals
	err := s.tx.QueryRow(ctx, `SELECT
COALESCE((SELECT SUM(total_amount) FROM sales WHERE business_date=$1 AND NOT is_voided AND payment_method='cash'), 0),
COALESCE((SELECT SUM(cash_portion) FROM sales WHERE business_date=$1 AND NOT is_voided AND payment_method='mixed'), 0),
COALESCE((SELECT SUM(amount) FROM payments WHERE business_date=$1 AND kind='debt' AND NOT voided AND method='cash'), 0),
COALESCE((SELECT SUM(amount) FROM expenses WHERE business_date=$1 AND method='cash'), 0)`, date).
		Scan(&t.SalesCash, &t.SalesMixedCash, &t.DebtPaymentsCash, &t.ExpensesCash)
	return t, err
}

func scanPeriod(row pgx.Row) (Period, bool, error) {
	var p Period
	err := row.Scan(&p.ID, &p.BusinessDate, &p.OpeningBalance, &p.CashCount, &p.ExpectedCash, &p.CashDifference, &p.Status, &p.OpenedBy, &p.OpenedAt, &p.ClosedBy, &p.ClosedAt, &p.Notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, false, nil
		}
		return Period{}, false, err
	}
	return p, true, nil
}
