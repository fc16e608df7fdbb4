package core

// assets.go links completed uploads to catalog records and manages the
// stored renditions of each upload.
//
// Linking is eventual in both directions: an import row naming an
// asset that has not arrived yet leaves a pending asset name on the
// record, and a completing upload sweeps records waiting on its name.
// Either side finishing second completes the link, so import order and
// upload order never matter.
//
// Resizing itself is a collaborator: a Resizer is a pure function from
// image bytes and a bounding box to resized bytes. The engine only
// decides which renditions exist and where they are stored.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Variants are the bounding-box sizes generated for each asset, keyed
// by variant name.
var Variants = map[string]int{
	"256":  256,
	"512":  512,
	"1024": 1024,
}

// VariantOriginal names the unresized rendition.
const VariantOriginal = "original"

// primaryVariant is preferred when picking a record's primary asset.
const primaryVariant = "512"

// Resizer scales image bytes to fit within a square bounding box while
// keeping aspect ratio, returning the resized bytes and the resulting
// dimensions. A maxBox <= 0 must return the input unchanged along with
// its natural dimensions.
type Resizer func(src []byte, maxBox int) (out []byte, width, height int, err error)

// AssetStore persists asset records.
type AssetStore interface {
	// CreateAsset persists a new asset and assigns its id.
	CreateAsset(ctx context.Context, a *Asset) error

	// AssetsByUpload returns all renditions of one upload.
	AssetsByUpload(ctx context.Context, uploadID int64) ([]*Asset, error)

	// AttachAssets sets the owner on every rendition of an upload.
	AttachAssets(ctx context.Context, uploadID int64, owner AssetOwner) error

	// DeleteAsset removes an asset record.
	DeleteAsset(ctx context.Context, id int64) error
}

// MemoryAssetStore is an in-memory AssetStore.
type MemoryAssetStore struct {
	mu     sync.RWMutex
	nextID int64
	assets []*Asset
}

// NewMemoryAssetStore creates an empty MemoryAssetStore.
func NewMemoryAssetStore() *MemoryAssetStore {
	return &MemoryAssetStore{}
}

// CreateAsset implements AssetStore.
func (m *MemoryAssetStore) CreateAsset(_ context.Context, a *Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	a.ID = m.nextID
	c := *a
	m.assets = append(m.assets, &c)
	return nil
}

// AssetsByUpload implements AssetStore.
func (m *MemoryAssetStore) AssetsByUpload(_ context.Context, uploadID int64) ([]*Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Asset
	for _, a := range m.assets {
		if a.UploadID == uploadID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

// AttachAssets implements AssetStore.
func (m *MemoryAssetStore) AttachAssets(_ context.Context, uploadID int64, owner AssetOwner) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.assets {
		if a.UploadID == uploadID {
			o := owner
			a.Owner = &o
		}
	}
	return nil
}

// DeleteAsset implements AssetStore.
func (m *MemoryAssetStore) DeleteAsset(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, a := range m.assets {
		if a.ID == id {
			m.assets = append(m.assets[:i], m.assets[i+1:]...)
			return nil
		}
	}
	return nil
}

// AssetLinker generates asset renditions for completed uploads and
// attaches them to catalog records.
type AssetLinker struct {
	sessions SessionStore
	catalog  CatalogStore
	assets   AssetStore
	chunks   ChunkStore
	resize   Resizer
}

// NewAssetLinker creates an AssetLinker.
func NewAssetLinker(sessions SessionStore, catalog CatalogStore, assets AssetStore, chunks ChunkStore, resize Resizer) *AssetLinker {
	return &AssetLinker{
		sessions: sessions,
		catalog:  catalog,
		assets:   assets,
		chunks:   chunks,
		resize:   resize,
	}
}

// ProcessUpload generates the original and resized renditions for a
// completed upload. On any failure the renditions created so far are
// removed, so processing is all-or-nothing.
func (l *AssetLinker) ProcessUpload(ctx context.Context, upload *UploadSession) ([]*Asset, error) {
	if !upload.IsComplete() {
		return nil, ErrUploadIncomplete
	}

	src, err := l.chunks.Get(ctx, upload.Path)
	if err != nil {
		return nil, &StorageError{Op: "read upload", Err: err}
	}

	var created []*Asset
	fail := func(err error) ([]*Asset, error) {
		for _, a := range created {
			if delErr := l.chunks.Delete(ctx, a.Key); delErr != nil {
				slog.Error("cleanup asset object", "key", a.Key, "error", delErr)
			}
			if delErr := l.assets.DeleteAsset(ctx, a.ID); delErr != nil {
				slog.Error("cleanup asset record", "id", a.ID, "error", delErr)
			}
		}
		return nil, err
	}

	original, err := l.storeVariant(ctx, upload, src, VariantOriginal, 0)
	if err != nil {
		return fail(err)
	}
	created = append(created, original)

	for variant, maxBox := range Variants {
		a, err := l.storeVariant(ctx, upload, src, variant, maxBox)
		if err != nil {
			return fail(err)
		}
		created = append(created, a)
	}

	return created, nil
}

// storeVariant resizes, stores and records one rendition.
func (l *AssetLinker) storeVariant(ctx context.Context, upload *UploadSession, src []byte, variant string, maxBox int) (*Asset, error) {
	out, width, height, err := l.resize(src, maxBox)
	if err != nil {
		return nil, fmt.Errorf("resize %s: %w", variant, err)
	}

	key := AssetKey(upload.Filename, variant)
	if err := l.chunks.Put(ctx, key, out); err != nil {
		return nil, &StorageError{Op: "write asset", Err: err}
	}

	asset := &Asset{
		UploadID: upload.ID,
		Variant:  variant,
		Key:      key,
		Width:    width,
		Height:   height,
		Size:     int64(len(out)),
	}
	if err := l.assets.CreateAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("record asset: %w", err)
	}
	return asset, nil
}

// AttachToProduct links every rendition of a completed upload to a
// catalog record, processing the upload first if it has no renditions
// yet. Attaching twice is a no-op.
func (l *AssetLinker) AttachToProduct(ctx context.Context, rec *CatalogRecord, upload *UploadSession) error {
	if !upload.IsComplete() {
		return ErrUploadIncomplete
	}

	existing, err := l.assets.AssetsByUpload(ctx, upload.ID)
	if err != nil {
		return err
	}

	owner := AssetOwner{Kind: OwnerProduct, ID: rec.ID}
	for _, a := range existing {
		if a.Owner != nil && *a.Owner == owner {
			return nil // already attached
		}
	}

	if len(existing) == 0 {
		existing, err = l.ProcessUpload(ctx, upload)
		if err != nil {
			return err
		}
	}

	if err := l.assets.AttachAssets(ctx, upload.ID, owner); err != nil {
		return err
	}

	primary := pickPrimary(existing)
	if primary == nil {
		return nil
	}
	return l.catalog.SetPrimaryAsset(ctx, rec.SKU, primary.ID)
}

// LinkByName resolves a completed upload by its client-declared
// filename and attaches it. Returns ErrSessionNotFound when no such
// upload exists yet; the caller leaves the pending name in place.
func (l *AssetLinker) LinkByName(ctx context.Context, rec *CatalogRecord, name string) error {
	upload, err := l.sessions.CompletedByOriginalName(ctx, name)
	if err != nil {
		return err
	}
	return l.AttachToProduct(ctx, rec, upload)
}

// LinkPendingProducts attaches a freshly completed upload to every
// record waiting on its name and returns how many were linked. Called
// after upload completion so records imported before the upload
// arrived get their asset without a re-import.
func (l *AssetLinker) LinkPendingProducts(ctx context.Context, upload *UploadSession) int {
	records, err := l.catalog.FindByPendingAsset(ctx, upload.OriginalName)
	if err != nil {
		slog.Error("find pending records", "asset", upload.OriginalName, "error", err)
		return 0
	}

	linked := 0
	for _, rec := range records {
		if err := l.AttachToProduct(ctx, rec, upload); err != nil {
			slog.Error("link pending record",
				"sku", rec.SKU,
				"upload_id", upload.ID,
				"error", err,
			)
			continue
		}
		linked++
	}
	return linked
}

func pickPrimary(assets []*Asset) *Asset {
	var original *Asset
	for _, a := range assets {
		if a.Variant == primaryVariant {
			return a
		}
		if a.Variant == VariantOriginal {
			original = a
		}
	}
	return original
}
