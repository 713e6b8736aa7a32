package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tiendafix/tiendafix/internal/catalog"
	"github.com/tiendafix/tiendafix/internal/ledger"
	"github.com/tiendafix/tiendafix/internal/platform/db"
)

const saleColumns = `id, invoice_number, customer_id, source, business_date, subtotal, discount_amount, tax_amount, total_amount, paid_amount, payment_status, payment_method, cash_portion, transfer_portion, is_voided, void_reason, voided_by, voided_at, notes, created_by, created_at`

const itemColumns = `id, sale_id, product_id, product_name, is_service, quantity, unit_price, discount_percent, discount_amount, tax_rate, line_total`

// TxStore exposes the writes a sale orchestration performs. Ledger and
// Products are bound to the same database transaction, so stock movement,
// sale rows, and ledger posts commit or roll back as one unit.
type TxStore interface {
	// NextDocumentNumber advances the per-year counter for a prefix and
	// returns the formatted number, e.g. INV-2025-00042.
	NextDocumentNumber(ctx context.Context, prefix string, year int) (string, error)
	InsertSale(ctx context.Context, s Sale) (Sale, error)
	InsertItems(ctx context.Context, saleID int64, items []SaleItem) error
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	GetSaleForUpdate(ctx context.Context, id int64) (Sale, error)
	ListItems(ctx context.Context, saleID int64) ([]SaleItem, error)
	// ApplyPayment moves the sale's paid amount and derived status after a
	// debt payment lands against it.
	ApplyPayment(ctx context.Context, saleID int64, paid decimal.Decimal, status PaymentStatus) error
	MarkVoided(ctx context.Context, saleID int64, reason string, actorID int64, at time.Time) error
	// VoidPayments flags every non-voided payment on the sale.
	VoidPayments(ctx context.Context, saleID int64, reason string, actorID int64, at time.Time) error
	Ledger() ledger.TxStore
	Products() catalog.TxStore
}

// Repository persists sales in PostgreSQL and lends its transaction to the
// ledger and catalog stores.
type Repository struct {
	pool     *pgxpool.Pool
	ledger   *ledger.Repository
	products *catalog.Repository
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, ledgerRepo *ledger.Repository, products *catalog.Repository) *Repository {
	return &Repository{pool: pool, ledger: ledgerRepo, products: products}
}

// WithTx executes fn inside one repeatable-read transaction shared by the
// sale, ledger, and catalog stores.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if r == nil || r.pool == nil {
		return errors.New("sales: repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		store := &txStore{tx: tx, ledger: r.ledger.Store(tx), products: r.products.Store(tx)}
		return fn(ctx, store)
	})
	return mapIntegrity(err)
}

// GetSale loads a sale header with its items.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, []SaleItem, error) {
	s, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1`, id))
	if err != nil {
		return Sale{}, nil, err
	}
	items, err := listItems(ctx, r.pool, id)
	if err != nil {
		return Sale{}, nil, err
	}
	return s, items, nil
}

// ListByDate returns the sales of one business date, newest first.
func (r *Repository) ListByDate(ctx context.Context, date time.Time) ([]Sale, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales WHERE business_date=$1 ORDER BY created_at DESC`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sales []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

// ListPayments returns a customer's payments, newest first.
func (r *Repository) ListPayments(ctx context.Context, customerID int64, limit int) ([]Payment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, customer_id, sale_id, kind, amount, method, receipt_number, business_date, voided, void_reason, voided_by, voided_at, notes, created_by, created_at
FROM payments WHERE customer_id=$1 ORDER BY created_at DESC LIMIT $2`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.CustomerID, &p.SaleID, &p.Kind, &p.Amount, &p.Method, &p.ReceiptNumber, &p.BusinessDate, &p.Voided, &p.VoidReason, &p.VoidedBy, &p.VoidedAt, &p.Notes, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

type txStore struct {
	tx       pgx.Tx
	ledger   ledger.TxStore
	products catalog.TxStore
}

func (s *txStore) Ledger() ledger.TxStore    { return s.ledger }
func (s *txStore) Products() catalog.TxStore { return s.products }

func (s *txStore) NextDocumentNumber(ctx context.Context, prefix string, year int) (string, error) {
	var n int64
	err := s.tx.QueryRow(ctx, `INSERT INTO document_counters (prefix, year, value) VALUES ($1,$2,1)
ON CONFLICT (prefix, year) DO UPDATE SET value = document_counters.value + 1
RETURNING value`, prefix, year).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("sales: next document number: %w", err)
	}
	return fmt.Sprintf("%s-%d-%05d", prefix, year, n), nil
}

func (s *txStore) InsertSale(ctx context.Context, sale Sale) (Sale, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO sales
(invoice_number, customer_id, source, business_date, subtotal, discount_amount, tax_amount, total_amount, paid_amount, payment_status, payment_method, cash_portion, transfer_portion, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
RETURNING id`,
		sale.InvoiceNumber, sale.CustomerID, sale.Source, sale.BusinessDate,
		sale.Subtotal, sale.DiscountAmount, sale.TaxAmount, sale.TotalAmount, sale.PaidAmount,
		sale.PaymentStatus, sale.PaymentMethod, sale.CashPortion, sale.TransferPortion,
		sale.Notes, sale.CreatedBy, sale.CreatedAt).Scan(&sale.ID)
	if err != nil {
		return Sale{}, err
	}
	return sale, nil
}

func (s *txStore) InsertItems(ctx context.Context, saleID int64, items []SaleItem) error {
	for i := range items {
		items[i].SaleID = saleID
		err := s.tx.QueryRow(ctx, `INSERT INTO sale_items
(sale_id, product_id, product_name, is_service, quantity, unit_price, discount_percent, discount_amount, tax_rate, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
			saleID, items[i].ProductID, items[i].ProductName, items[i].IsService, items[i].Quantity,
			items[i].UnitPrice, items[i].DiscountPercent, items[i].DiscountAmount, items[i].TaxRate, items[i].LineTotal).
			Scan(&items[i].ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *txStore) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO payments
(customer_id, sale_id, kind, amount, method, receipt_number, business_date, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		p.CustomerID, p.SaleID, p.Kind, p.Amount, p.Method, p.ReceiptNumber, p.BusinessDate,
		p.Notes, p.CreatedBy, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (s *txStore) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	return scanSale(s.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1 FOR UPDATE`, id))
}

func (s *txStore) ListItems(ctx context.Context, saleID int64) ([]SaleItem, error) {
	return listItems(ctx, s.tx, saleID)
}

func (s *txStore) ApplyPayment(ctx context.Context, saleID int64, paid decimal.Decimal, status PaymentStatus) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE sales
SET paid_amount=$2, payment_status=$3
WHERE id=$1 AND NOT is_voided`, saleID, paid, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}

func (s *txStore) MarkVoided(ctx context.Context, saleID int64, reason string, actorID int64, at time.Time) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE sales
SET is_voided=TRUE, payment_status='voided', void_reason=$2, voided_by=$3, voided_at=$4
WHERE id=$1 AND NOT is_voided`, saleID, reason, actorID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyVoided
	}
	return nil
}

func (s *txStore) VoidPayments(ctx context.Context, saleID int64, reason string, actorID int64, at time.Time) error {
	_, err := s.tx.Exec(ctx, `UPDATE payments
SET voided=TRUE, void_reason=$2, voided_by=$3, voided_at=$4
WHERE sale_id=$1 AND NOT voided`, saleID, reason, actorID, at)
	return err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listItems(ctx context.Context, q queryer, saleID int64) ([]SaleItem, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM sale_items WHERE sale_id=$1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SaleItem
	for rows.Next() {
		var it SaleItem
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.ProductName, &it.IsService, &it.Quantity,
			&it.UnitPrice, &it.DiscountPercent, &it.DiscountAmount, &it.TaxRate, &it.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.InvoiceNumber, &s.CustomerID, &s.Source, &s.BusinessDate,
		&s.Subtotal, &s.DiscountAmount, &s.TaxAmount, &s.TotalAmount, &s.PaidAmount,
		&s.PaymentStatus, &s.PaymentMethod, &s.CashPortion, &s.TransferPortion,
		&s.IsVoided, &s.VoidReason, &s.VoidedBy, &s.VoidedAt, &s.Notes, &s.CreatedBy, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, err
	}
	return s, nil
}

// mapIntegrity converts unique-constraint violations on document numbers
// into the business error after the unit has rolled back.
func mapIntegrity(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateDocument, pgErr.ConstraintName)
	}
	return err
}
