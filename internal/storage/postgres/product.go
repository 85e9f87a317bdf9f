package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/promo-quoter/internal/domain/product"
)

const (
	productColumns = `id, name, category, price, stock, version`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	lockProductSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	insertProductSQL = `INSERT INTO products (id, name, category, price, stock, version)
		VALUES ($1, $2, $3, $4, $5, 0)`

	updateProductSQL = `UPDATE products
		SET name = $2, category = $3, price = $4, stock = $5, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $6
		RETURNING version`

	saveProductSQL = `UPDATE products
		SET name = $2, category = $3, price = $4, stock = $5, version = version + 1, updated_at = now()
		WHERE id = $1`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, name, category, price, stock, version)
		VALUES ($1, $2, $3, $4, $5, 0)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, category = EXCLUDED.category, price = EXCLUDED.price,
			stock = EXCLUDED.stock, version = products.version + 1, updated_at = now()`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return getProduct(ctx, r.pool, getProductByIDSQL, id)
}

// GetByIDs returns products matching any of the given IDs. Unknown IDs are
// silently skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts all products in a single transaction.
func (r *ProductRepository) Create(ctx context.Context, products []product.Product) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, p := range products {
			b.Queue(insertProductSQL, p.ID, p.Name, string(p.Category), p.Price, p.Stock)
		}
		br := tx.SendBatch(ctx, b)
		for _, p := range products {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				if isUniqueViolation(err, "products_pkey") {
					return errors.Wrapf(product.ErrAlreadyExists, "create product %s", p.ID)
				}
				return fmt.Errorf("inserting product %q: %w", p.ID, err)
			}
		}
		return br.Close()
	})
}

// Update writes p if its version still matches the stored one and bumps the
// version on success.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	var version int64
	err := r.pool.QueryRow(ctx, updateProductSQL,
		p.ID, p.Name, string(p.Category), p.Price, p.Stock, p.Version,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.pool.QueryRow(ctx, productExistsSQL, p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("checking product %q: %w", p.ID, err)
		}
		if !exists {
			return product.ErrNotFound
		}
		return product.ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	p.Version = version
	return nil
}

// Delete removes a product. Orders keep their own snapshot of the product.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func getProduct(ctx context.Context, q querier, sql, id string) (*product.Product, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p        product.Product
		category string
		stock    int32
	)
	err := row.Scan(&p.ID, &p.Name, &category, &p.Price, &stock, &p.Version)
	p.Category = product.Category(category)
	p.Stock = int(stock)
	return p, err
}

// Upsert inserts products or overwrites the existing rows with the same ID.
// It is meant for seeding, where bumping the version of a live row is fine.
func (r *ProductRepository) Upsert(ctx context.Context, products []product.Product) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, p := range products {
			b.Queue(upsertProductSQL, p.ID, p.Name, string(p.Category), p.Price, p.Stock)
		}
		br := tx.SendBatch(ctx, b)
		for _, p := range products {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("upserting product %q: %w", p.ID, err)
			}
		}
		return br.Close()
	})
}
