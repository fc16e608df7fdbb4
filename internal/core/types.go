// Package core provides the business logic for chunked uploads and
// catalog CSV imports. This package has no transport dependencies and
// can be used by web handlers, CLI tools, or tests without modification.
package core

import (
	"time"
)

// UploadStatus is the lifecycle state of an upload session.
type UploadStatus string

const (
	// UploadPending means the session exists but no chunk has been accepted.
	UploadPending UploadStatus = "pending"
	// UploadInProgress means at least one chunk has been accepted.
	UploadInProgress UploadStatus = "uploading"
	// UploadCompleted means assembly succeeded and the final checksum matched.
	UploadCompleted UploadStatus = "completed"
	// UploadFailed means assembly hit an I/O error or a missing chunk.
	UploadFailed UploadStatus = "failed"
)

// UploadSession tracks one in-progress or completed chunked upload.
//
// Token is the opaque identifier exposed to clients; ID is internal.
// ChunkIndices holds the distinct chunk indices accepted so far. The
// invariant UploadedChunks == len(ChunkIndices) is maintained by the
// engine, which serializes all mutations per session.
type UploadSession struct {
	ID             int64
	Token          string
	Filename       string // collision-resistant internal storage name
	OriginalName   string // filename as declared by the client
	Size           int64
	MimeType       string
	Checksum       string // final content hash, set on completion
	Status         UploadStatus
	TotalChunks    int
	UploadedChunks int
	ChunkIndices   []int
	ChunkSize      int64
	Path           string // key of the assembled object, set on completion
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasChunk reports whether the given chunk index has been accepted.
func (s *UploadSession) HasChunk(index int) bool {
	for _, i := range s.ChunkIndices {
		if i == index {
			return true
		}
	}
	return false
}

// IsComplete reports whether the session reached the completed state.
func (s *UploadSession) IsComplete() bool {
	return s.Status == UploadCompleted
}

// Progress returns upload progress as a percentage (0-100).
func (s *UploadSession) Progress() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return float64(s.UploadedChunks) / float64(s.TotalChunks) * 100
}

// InitRequest carries the client-declared parameters for a new upload.
type InitRequest struct {
	Filename    string
	TotalSize   int64
	MimeType    string
	TotalChunks int
}

// ChunkResult is returned from AcceptChunk.
// IsComplete is informational only; completion still requires an
// explicit Complete call.
type ChunkResult struct {
	Accepted       bool
	UploadedChunks int
	TotalChunks    int
	IsComplete     bool
}

// ResumeInfo lets a client skip chunks that were already delivered.
type ResumeInfo struct {
	UploadedChunks int
	TotalChunks    int
	ChunkIndices   []int
	Status         UploadStatus
}

// RunStatus is the lifecycle state of an import run.
type RunStatus string

const (
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// RowError records the validation messages for a single rejected row.
// Row numbers are 1-based and count the header as row 1, so the first
// data row is row 2.
type RowError struct {
	Row      int      `json:"row"`
	Messages []string `json:"errors"`
}

// ImportRun is the persisted record of one CSV import invocation.
//
// When Status is RunCompleted, TotalRows equals
// Imported + Updated + Invalid + Duplicates.
type ImportRun struct {
	ID         int64
	Filename   string
	Status     RunStatus
	TotalRows  int
	Imported   int
	Updated    int
	Invalid    int
	Duplicates int
	RowErrors  []RowError
	Failure    string // general message when the whole run aborted
	StartedAt  time.Time
	FinishedAt time.Time
}

// CatalogRecord is a product row in the catalog store, keyed by SKU.
type CatalogRecord struct {
	ID               int64
	SKU              string
	Name             string
	Description      string
	Category         string
	Price            string // decimal, validated but stored verbatim
	Stock            int
	PendingAssetName string // original upload name awaiting linking
	PrimaryAssetID   int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProductFields holds the mutable fields applied by an upsert.
type ProductFields struct {
	Name             string
	Description      string
	Category         string
	Price            string
	Stock            int
	PendingAssetName string
}

// OwnerKind identifies the type of record an asset is attached to.
// Modeled as a closed enum rather than an open-ended entity reference.
type OwnerKind string

const (
	// OwnerProduct attaches an asset to a catalog record.
	OwnerProduct OwnerKind = "product"
)

// AssetOwner identifies the record an asset variant belongs to.
type AssetOwner struct {
	Kind OwnerKind
	ID   int64
}

// Asset is one stored rendition of a completed upload: the original
// bytes or a resized variant.
type Asset struct {
	ID       int64
	UploadID int64
	Variant  string // "original", "256", "512", "1024"
	Key      string // chunk store key of the rendition
	Width    int
	Height   int
	Size     int64
	Owner    *AssetOwner // nil until attached
}
