package core

import (
	"context"
	"sort"
	"sync"
	"time"
)

// CatalogStore is the upsert-by-key persistence contract for catalog
// records. The import engine performs every existence check and
// create/update inside WithSKULock, so implementations must make that
// callback mutually exclusive per key: two rows targeting the same SKU
// must never both take the create branch.
type CatalogStore interface {
	// FindBySKU returns the record for a natural key, or
	// ErrProductNotFound.
	FindBySKU(ctx context.Context, sku string) (*CatalogRecord, error)

	// Create inserts a new record and assigns its id.
	Create(ctx context.Context, sku string, fields ProductFields) (*CatalogRecord, error)

	// Update overwrites the mutable fields of an existing record.
	Update(ctx context.Context, rec *CatalogRecord, fields ProductFields) (*CatalogRecord, error)

	// WithSKULock runs fn while holding an exclusive per-key lock.
	WithSKULock(ctx context.Context, sku string, fn func(ctx context.Context) error) error

	// FindByPendingAsset returns all records whose pending asset name
	// matches name. Used for eventual asset linking.
	FindByPendingAsset(ctx context.Context, name string) ([]*CatalogRecord, error)

	// SetPrimaryAsset records the primary asset id and clears the
	// pending asset name.
	SetPrimaryAsset(ctx context.Context, sku string, assetID int64) error

	// List returns records ordered by SKU, for the read API.
	List(ctx context.Context, limit, offset int) ([]*CatalogRecord, error)
}

// MemoryCatalogStore is an in-memory CatalogStore used by tests and
// database-less deployments. Per-key exclusion uses a KeyMutex.
type MemoryCatalogStore struct {
	mu     sync.RWMutex
	nextID int64
	bySKU  map[string]*CatalogRecord
	locks  *KeyMutex
}

// NewMemoryCatalogStore creates an empty MemoryCatalogStore.
func NewMemoryCatalogStore() *MemoryCatalogStore {
	return &MemoryCatalogStore{
		bySKU: make(map[string]*CatalogRecord),
		locks: NewKeyMutex(),
	}
}

// FindBySKU implements CatalogStore.
func (m *MemoryCatalogStore) FindBySKU(_ context.Context, sku string) (*CatalogRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.bySKU[sku]
	if !ok {
		return nil, ErrProductNotFound
	}
	return cloneRecord(rec), nil
}

// Create implements CatalogStore.
func (m *MemoryCatalogStore) Create(_ context.Context, sku string, fields ProductFields) (*CatalogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	now := time.Now()
	rec := &CatalogRecord{
		ID:               m.nextID,
		SKU:              sku,
		Name:             fields.Name,
		Description:      fields.Description,
		Category:         fields.Category,
		Price:            fields.Price,
		Stock:            fields.Stock,
		PendingAssetName: fields.PendingAssetName,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	m.bySKU[sku] = rec
	return cloneRecord(rec), nil
}

// Update implements CatalogStore.
func (m *MemoryCatalogStore) Update(_ context.Context, rec *CatalogRecord, fields ProductFields) (*CatalogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.bySKU[rec.SKU]
	if !ok {
		return nil, ErrProductNotFound
	}
	stored.Name = fields.Name
	stored.Description = fields.Description
	stored.Category = fields.Category
	stored.Price = fields.Price
	stored.Stock = fields.Stock
	stored.PendingAssetName = fields.PendingAssetName
	stored.UpdatedAt = time.Now()
	return cloneRecord(stored), nil
}

// WithSKULock implements CatalogStore.
func (m *MemoryCatalogStore) WithSKULock(ctx context.Context, sku string, fn func(ctx context.Context) error) error {
	m.locks.Lock(sku)
	defer m.locks.Unlock(sku)
	return fn(ctx)
}

// FindByPendingAsset implements CatalogStore.
func (m *MemoryCatalogStore) FindByPendingAsset(_ context.Context, name string) ([]*CatalogRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*CatalogRecord
	for _, rec := range m.bySKU {
		if rec.PendingAssetName == name {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// SetPrimaryAsset implements CatalogStore.
func (m *MemoryCatalogStore) SetPrimaryAsset(_ context.Context, sku string, assetID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.bySKU[sku]
	if !ok {
		return ErrProductNotFound
	}
	rec.PrimaryAssetID = assetID
	rec.PendingAssetName = ""
	rec.UpdatedAt = time.Now()
	return nil
}

// List implements CatalogStore.
func (m *MemoryCatalogStore) List(_ context.Context, limit, offset int) ([]*CatalogRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	skus := make([]string, 0, len(m.bySKU))
	for sku := range m.bySKU {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	var out []*CatalogRecord
	for i, sku := range skus {
		if i < offset {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, cloneRecord(m.bySKU[sku]))
	}
	return out, nil
}

func cloneRecord(r *CatalogRecord) *CatalogRecord {
	c := *r
	return &c
}
