package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const productColumns = `id, sku, name, price, tax_rate, is_service, current_stock, min_stock, is_active, created_at, updated_at`

// TxStore exposes the product operations used inside sale and void
// transactions: a row lock on the product and a guarded stock adjustment.
type TxStore interface {
	GetProductForUpdate(ctx context.Context, id int64) (Product, error)
	// AdjustStock moves current_stock by delta, which may be negative.
	AdjustStock(ctx context.Context, id int64, delta int64) error
}

// Repository persists products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Store binds product operations to an existing transaction so stock moves
// commit atomically with the caller's writes.
func (r *Repository) Store(tx pgx.Tx) TxStore {
	return &txStore{tx: tx}
}

// Get loads one product.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 AND is_active`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.TaxRate, &p.IsService, &p.CurrentStock, &p.MinStock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// ListLowStock returns physical products at or below their minimum level.
func (r *Repository) ListLowStock(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE is_active AND NOT is_service AND current_stock <= min_stock ORDER BY current_stock ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.TaxRate, &p.IsService, &p.CurrentStock, &p.MinStock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := s.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 AND is_active FOR UPDATE`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.TaxRate, &p.IsService, &p.CurrentStock, &p.MinStock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (s *txStore) AdjustStock(ctx context.Context, id int64, delta int64) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE products SET current_stock = current_stock + $2, updated_at = NOW()
WHERE id=$1 AND current_stock + $2 >= 0`, id, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStockUnderflow
	}
	return nil
}
