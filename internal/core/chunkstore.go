package core

import (
	"context"
	"fmt"
	"strconv"
)

// ChunkStore stores named binary chunks and assembled files by key.
// Keys are hierarchical strings; chunk keys are scoped by session token
// and chunk index so that one DeleteAll removes a session's remnants.
//
// Implementations must be safe for concurrent use. See
// internal/storage for the blob-backed implementation.
type ChunkStore interface {
	// Put writes data under key, overwriting any existing value.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the bytes stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteAll removes every key with the given prefix.
	DeleteAll(ctx context.Context, prefix string) error

	// Size returns the byte length of the value stored under key.
	Size(ctx context.Context, key string) (int64, error)
}

// ChunkKey returns the store key for one chunk of a session.
func ChunkKey(token string, index int) string {
	return "chunks/" + token + "/" + strconv.Itoa(index)
}

// ChunkPrefix returns the key prefix covering all chunks of a session.
func ChunkPrefix(token string) string {
	return "chunks/" + token + "/"
}

// FinalKey returns the store key for a session's assembled file.
func FinalKey(filename string) string {
	return "uploads/" + filename
}

// AssetKey returns the store key for a rendition of a completed upload.
// Variant "original" keeps the storage filename unchanged; resized
// variants insert the variant before the extension.
func AssetKey(filename, variant string) string {
	if variant == "original" {
		return "images/" + filename
	}
	base, ext := splitExt(filename)
	return fmt.Sprintf("images/%s_%s%s", base, variant, ext)
}

func splitExt(name string) (base, ext string) {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i], name[i:]
		}
	}
	return name, ""
}
