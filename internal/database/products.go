package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/CatalogLoader/internal/core"
)

// CatalogStore is the PostgreSQL implementation of core.CatalogStore.
//
// Per-SKU exclusion uses transaction-scoped advisory locks, so two
// imports (even in different processes sharing the database) can never
// both take the create branch for one SKU.
type CatalogStore struct {
	pool *pgxpool.Pool
}

var _ core.CatalogStore = (*CatalogStore)(nil)

// NewCatalogStore creates a CatalogStore backed by pool.
func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

const productColumns = `id, sku, name, description, category, price, stock,
	pending_asset_name, primary_asset_id, created_at, updated_at`

// FindBySKU implements core.CatalogStore.
func (s *CatalogStore) FindBySKU(ctx context.Context, sku string) (*core.CatalogRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE sku = $1`,
		sku,
	)
	return scanProduct(row)
}

// Create implements core.CatalogStore.
func (s *CatalogStore) Create(ctx context.Context, sku string, fields core.ProductFields) (*core.CatalogRecord, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO products
			(sku, name, description, category, price, stock, pending_asset_name)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		RETURNING `+productColumns,
		sku, fields.Name, fields.Description, fields.Category,
		fields.Price, fields.Stock, fields.PendingAssetName,
	)
	return scanProduct(row)
}

// Update implements core.CatalogStore.
func (s *CatalogStore) Update(ctx context.Context, rec *core.CatalogRecord, fields core.ProductFields) (*core.CatalogRecord, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE products SET
			name = $2, description = $3, category = $4, price = $5,
			stock = $6, pending_asset_name = NULLIF($7, ''),
			updated_at = now()
		WHERE sku = $1
		RETURNING `+productColumns,
		rec.SKU, fields.Name, fields.Description, fields.Category,
		fields.Price, fields.Stock, fields.PendingAssetName,
	)
	return scanProduct(row)
}

// WithSKULock implements core.CatalogStore. The advisory lock is held
// on a dedicated connection for the duration of fn.
func (s *CatalogStore) WithSKULock(ctx context.Context, sku string, fn func(ctx context.Context) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx,
		`SELECT pg_advisory_lock(hashtext('product:' || $1))`, sku,
	); err != nil {
		return fmt.Errorf("lock sku %s: %w", sku, err)
	}
	defer func() {
		// Unlock on the same connection that took the lock.
		_, _ = conn.Exec(context.WithoutCancel(ctx),
			`SELECT pg_advisory_unlock(hashtext('product:' || $1))`, sku)
	}()

	return fn(ctx)
}

// FindByPendingAsset implements core.CatalogStore.
func (s *CatalogStore) FindByPendingAsset(ctx context.Context, name string) ([]*core.CatalogRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE pending_asset_name = $1`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending assets: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

// SetPrimaryAsset implements core.CatalogStore.
func (s *CatalogStore) SetPrimaryAsset(ctx context.Context, sku string, assetID int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE products SET
			primary_asset_id = $2, pending_asset_name = NULL, updated_at = now()
		WHERE sku = $1`,
		sku, assetID,
	)
	if err != nil {
		return fmt.Errorf("set primary asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrProductNotFound
	}
	return nil
}

// List implements core.CatalogStore.
func (s *CatalogStore) List(ctx context.Context, limit, offset int) ([]*core.CatalogRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY sku LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

func collectProducts(rows pgx.Rows) ([]*core.CatalogRecord, error) {
	var out []*core.CatalogRecord
	for rows.Next() {
		rec, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (*core.CatalogRecord, error) {
	var (
		rec     core.CatalogRecord
		pending *string
		primary *int64
	)
	err := row.Scan(
		&rec.ID, &rec.SKU, &rec.Name, &rec.Description, &rec.Category,
		&rec.Price, &rec.Stock, &pending, &primary,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan product: %w", err)
	}
	if pending != nil {
		rec.PendingAssetName = *pending
	}
	if primary != nil {
		rec.PrimaryAssetID = *primary
	}
	return &rec, nil
}
