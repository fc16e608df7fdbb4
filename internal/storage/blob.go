// Package storage implements the chunk store over Go CDK blob buckets.
//
// Supported URL schemes: file:// (production default), mem:// (tests),
// s3:// (object storage deployments). The store holds raw chunks under
// chunks/{token}/{index}, assembled uploads under uploads/, and asset
// renditions under images/.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/JonMunkholm/CatalogLoader/internal/core"

	// Drivers
	_ "gocloud.dev/blob/fileblob" // file:// URLs
	_ "gocloud.dev/blob/memblob"  // mem:// URLs
	_ "gocloud.dev/blob/s3blob"   // s3:// URLs
)

// BlobChunkStore is a core.ChunkStore backed by a blob bucket.
type BlobChunkStore struct {
	bucket *blob.Bucket
}

var _ core.ChunkStore = (*BlobChunkStore)(nil)

// Open opens a bucket by URL, e.g. "file:///var/lib/loader/storage",
// "mem://" or "s3://bucket?region=us-east-1".
func Open(ctx context.Context, bucketURL string) (*BlobChunkStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return &BlobChunkStore{bucket: bucket}, nil
}

// NewWithBucket wraps an already-open bucket. The caller retains
// ownership unless Close is used.
func NewWithBucket(bucket *blob.Bucket) *BlobChunkStore {
	return &BlobChunkStore{bucket: bucket}
}

// Close releases the underlying bucket.
func (s *BlobChunkStore) Close() error {
	return s.bucket.Close()
}

// Put writes data under key, overwriting any existing value.
func (s *BlobChunkStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.bucket.WriteAll(ctx, key, data, nil); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Get returns the bytes stored under key.
func (s *BlobChunkStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether key is present.
func (s *BlobChunkStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return ok, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *BlobChunkStore) Delete(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, key)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// DeleteAll removes every key with the given prefix.
func (s *BlobChunkStore) DeleteAll(ctx context.Context, prefix string) error {
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("list %s: %w", prefix, err)
		}
		if err := s.Delete(ctx, obj.Key); err != nil {
			return err
		}
	}
}

// Size returns the byte length of the value stored under key.
func (s *BlobChunkStore) Size(ctx context.Context, key string) (int64, error) {
	attrs, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("attributes %s: %w", key, err)
	}
	return attrs.Size, nil
}
