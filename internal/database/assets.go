package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/CatalogLoader/internal/core"
)

// AssetStore is the PostgreSQL implementation of core.AssetStore.
type AssetStore struct {
	db DBTX
}

var _ core.AssetStore = (*AssetStore)(nil)

// NewAssetStore creates an AssetStore over db, typically the
// connection pool.
func NewAssetStore(db DBTX) *AssetStore {
	return &AssetStore{db: db}
}

const assetColumns = `id, upload_id, variant, key, width, height, size,
	owner_kind, owner_id`

// CreateAsset implements core.AssetStore.
func (s *AssetStore) CreateAsset(ctx context.Context, a *core.Asset) error {
	var (
		ownerKind *string
		ownerID   *int64
	)
	if a.Owner != nil {
		kind := string(a.Owner.Kind)
		ownerKind, ownerID = &kind, &a.Owner.ID
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO assets
			(upload_id, variant, key, width, height, size, owner_kind, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		a.UploadID, a.Variant, a.Key, a.Width, a.Height, a.Size,
		ownerKind, ownerID,
	)
	if err := row.Scan(&a.ID); err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// AssetsByUpload implements core.AssetStore.
func (s *AssetStore) AssetsByUpload(ctx context.Context, uploadID int64) ([]*core.Asset, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE upload_id = $1 ORDER BY id`,
		uploadID,
	)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var out []*core.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AttachAssets implements core.AssetStore.
func (s *AssetStore) AttachAssets(ctx context.Context, uploadID int64, owner core.AssetOwner) error {
	if _, err := s.db.Exec(ctx,
		`UPDATE assets SET owner_kind = $2, owner_id = $3 WHERE upload_id = $1`,
		uploadID, string(owner.Kind), owner.ID,
	); err != nil {
		return fmt.Errorf("attach assets: %w", err)
	}
	return nil
}

// DeleteAsset implements core.AssetStore.
func (s *AssetStore) DeleteAsset(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM assets WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return nil
}

func scanAsset(row pgx.Row) (*core.Asset, error) {
	var (
		a         core.Asset
		ownerKind *string
		ownerID   *int64
	)
	err := row.Scan(
		&a.ID, &a.UploadID, &a.Variant, &a.Key, &a.Width, &a.Height,
		&a.Size, &ownerKind, &ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("scan asset: %w", err)
	}
	if ownerKind != nil && ownerID != nil {
		a.Owner = &core.AssetOwner{Kind: core.OwnerKind(*ownerKind), ID: *ownerID}
	}
	return &a, nil
}
