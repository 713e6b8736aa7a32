package customers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tiendafix/tiendafix/internal/shared"
)

// Repository persists customers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads one active customer.
func (r *Repository) Get(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `SELECT id, name, phone, email, is_active, created_at, updated_at FROM customers WHERE id=$1 AND is_active`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, err
	}
	return c, nil
}

// Search returns a page of active customers whose name or phone matches the
// query, with pagination metadata for the POS customer picker.
func (r *Repository) Search(ctx context.Context, query string, page, perPage int) ([]Customer, shared.Pagination, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers
WHERE is_active AND (name ILIKE '%' || $1 || '%' OR phone ILIKE '%' || $1 || '%')`, query).Scan(&total)
	if err != nil {
		return nil, shared.Pagination{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, name, phone, email, is_active, created_at, updated_at FROM customers
WHERE is_active AND (name ILIKE '%' || $1 || '%' OR phone ILIKE '%' || $1 || '%')
ORDER BY name ASC LIMIT $2 OFFSET $3`, query, perPage, (page-1)*perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, shared.Pagination{}, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Pagination{}, err
	}
	return out, shared.NewPagination(page, perPage, total), nil
}
