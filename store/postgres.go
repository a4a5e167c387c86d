package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aluiziolira/price-sentinel/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	sku TEXT UNIQUE,
	current_price NUMERIC NOT NULL,
	original_price NUMERIC,
	last_checked TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// querier is satisfied by both pgxpool.Pool and pgx.Tx, so the same store
// code serves pooled and transactional access.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Store over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	q    querier
}

// NewPostgres connects a pool and ensures the products table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Postgres{pool: pool, q: pool}, nil
}

// Close releases the pool. No-op for transactional views.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *Postgres) Find(ctx context.Context, sku, url string) (*models.TrackedProduct, error) {
	const query = `
		SELECT id, name, url, COALESCE(sku, ''), current_price, COALESCE(original_price, 0), last_checked
		FROM products
		WHERE (sku = $1 AND $1 <> '') OR url = $2
		LIMIT 1`

	var product models.TrackedProduct
	err := p.q.QueryRow(ctx, query, sku, url).Scan(
		&product.ID,
		&product.Name,
		&product.URL,
		&product.SKU,
		&product.CurrentPrice,
		&product.OriginalPrice,
		&product.LastChecked,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}
	return &product, nil
}

func (p *Postgres) Upsert(ctx context.Context, obs models.Observation) (Outcome, error) {
	existing, err := p.Find(ctx, obs.SKU, obs.URL)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()

	if existing == nil {
		const insert = `
			INSERT INTO products (name, url, sku, current_price, original_price, last_checked)
			VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, 0), $6)`
		if _, err := p.q.Exec(ctx, insert, obs.Name, obs.URL, obs.SKU, obs.Price, obs.OriginalPrice, now); err != nil {
			return 0, fmt.Errorf("insert product: %w", err)
		}
		return OutcomeCreated, nil
	}

	price := existing.CurrentPrice
	if obs.Price > 0 && math.Abs(obs.Price-existing.CurrentPrice) > priceEpsilon {
		price = obs.Price
	}
	sku := existing.SKU
	if sku == "" {
		sku = obs.SKU
	}

	const update = `
		UPDATE products
		SET current_price = $1, sku = NULLIF($2, ''), last_checked = $3
		WHERE id = $4`
	if _, err := p.q.Exec(ctx, update, price, sku, now, existing.ID); err != nil {
		return 0, fmt.Errorf("update product: %w", err)
	}
	return OutcomeUpdated, nil
}

func (p *Postgres) ListBySKUPrefix(ctx context.Context, prefix string) ([]models.TrackedProduct, error) {
	const query = `
		SELECT id, name, url, COALESCE(sku, ''), current_price, COALESCE(original_price, 0), last_checked
		FROM products
		WHERE sku LIKE $1 || '%'
		ORDER BY id`

	rows, err := p.q.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []models.TrackedProduct
	for rows.Next() {
		var product models.TrackedProduct
		if err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.URL,
			&product.SKU,
			&product.CurrentPrice,
			&product.OriginalPrice,
			&product.LastChecked,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

func (p *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.q.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// WithTx runs fn against a transaction-scoped Postgres view. Nested calls
// reuse the outer transaction.
func (p *Postgres) WithTx(ctx context.Context, fn func(Store) error) error {
	if p.pool == nil {
		return fn(p)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&Postgres{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
