package core

// errors.go defines the error taxonomy shared by the upload and import
// engines, plus the mapping to user-facing messages with support codes.
//
// Categories:
//
//   - NotFound:   unknown session or record; safe to report verbatim
//   - Validation: bad input shape or type; no state was mutated
//   - Integrity:  checksum mismatch; recoverable by retrying the transfer
//   - Conflict:   operation ordering problems (completing too early,
//     completing twice)
//   - Storage:    I/O failure; the affected session transitions to failed
//
// Validation and integrity errors are always returned to the immediate
// caller as structured results; storage errors abort the operation that
// hit them and never leak into unrelated sessions.

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSessionNotFound is returned when no upload session matches the token.
var ErrSessionNotFound = errors.New("upload session not found")

// ErrChunkOutOfRange is returned when a chunk index falls outside
// [0, totalChunks).
var ErrChunkOutOfRange = errors.New("chunk index out of range")

// ErrChunkChecksum is returned when a chunk's content hash does not match
// the checksum the client sent with it. The chunk is not persisted and no
// session state changes; the client is expected to resend.
var ErrChunkChecksum = errors.New("chunk checksum mismatch")

// ErrFinalChecksum is returned when the assembled file's hash does not
// match the expected final checksum. The assembled object and all chunk
// remnants are removed; the session stays in the uploading state so the
// client can resend chunks and complete again.
var ErrFinalChecksum = errors.New("final checksum mismatch")

// ErrChunksMissing is returned when Complete is called before every
// chunk index has been accepted.
var ErrChunksMissing = errors.New("not all chunks uploaded")

// ErrAlreadyCompleted is returned when Complete is called on a completed
// session with a checksum that differs from the recorded one.
var ErrAlreadyCompleted = errors.New("upload already completed")

// ErrSessionFailed is returned when an operation targets a session that
// previously failed. Failed sessions are terminal.
var ErrSessionFailed = errors.New("upload session failed")

// ErrProductNotFound is returned by catalog stores for unknown SKUs.
var ErrProductNotFound = errors.New("product not found")

// ErrRunNotFound is returned by run stores for unknown import run ids.
var ErrRunNotFound = errors.New("import run not found")

// ErrUploadIncomplete is returned when asset processing is requested for
// a session that has not completed.
var ErrUploadIncomplete = errors.New("upload is not complete")

// StorageError wraps an underlying chunk store or catalog store failure.
// Sessions that hit one during assembly transition to UploadFailed.
type StorageError struct {
	Op  string // operation that failed, e.g. "put chunk", "assemble"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// UserMessage is a user-friendly error with a support code.
type UserMessage struct {
	Message string // What happened, in plain language
	Action  string // What the user can do about it
	Code    string // Support reference code
}

// errorMapping pairs a sentinel (or substring pattern) with its message.
type errorMapping struct {
	target  error
	pattern string
	msg     UserMessage
}

var errorMappings = []errorMapping{
	// Upload session errors (UPL001-UPL006)
	{
		target: ErrSessionNotFound,
		msg: UserMessage{
			Message: "Upload session not found",
			Action:  "Initialize a new upload and try again",
			Code:    "UPL001",
		},
	},
	{
		target: ErrChunkChecksum,
		msg: UserMessage{
			Message: "Chunk was corrupted in transit",
			Action:  "Resend the chunk; no progress was lost",
			Code:    "UPL002",
		},
	},
	{
		target: ErrFinalChecksum,
		msg: UserMessage{
			Message: "Assembled file failed integrity verification",
			Action:  "Re-upload the file chunks and complete again",
			Code:    "UPL003",
		},
	},
	{
		target: ErrChunksMissing,
		msg: UserMessage{
			Message: "Some chunks have not been uploaded yet",
			Action:  "Check resume info for missing chunk indices",
			Code:    "UPL004",
		},
	},
	{
		target: ErrAlreadyCompleted,
		msg: UserMessage{
			Message: "This upload was already completed",
			Action:  "Initialize a new upload for new content",
			Code:    "UPL005",
		},
	},
	{
		target: ErrChunkOutOfRange,
		msg: UserMessage{
			Message: "Chunk index is outside the declared range",
			Action:  "Verify the chunk count declared at initialization",
			Code:    "UPL006",
		},
	},

	// Import errors (IMP001-IMP003)
	{
		target: ErrRunNotFound,
		msg: UserMessage{
			Message: "Import run not found",
			Action:  "Check the import log id",
			Code:    "IMP001",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a CSV file with a header and data rows",
			Code:    "IMP002",
		},
	},
	{
		pattern: "missing required header",
		msg: UserMessage{
			Message: "Required column is missing from CSV",
			Action:  "The header row must include sku, name and price",
			Code:    "IMP003",
		},
	},

	// Catalog errors (CAT001)
	{
		target: ErrProductNotFound,
		msg: UserMessage{
			Message: "Product not found",
			Action:  "Check the SKU or product id",
			Code:    "CAT001",
		},
	},
}

// MapError converts a technical error to a user-friendly message.
// Unrecognized errors get a generic message with code GEN001; the
// technical detail should be logged server-side, never shown.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return UserMessage{
			Message: "A storage operation failed",
			Action:  "Please try again in a few moments",
			Code:    "STO001",
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, m := range errorMappings {
		if m.target != nil && errors.Is(err, m.target) {
			return m.msg
		}
		if m.pattern != "" && strings.Contains(errStr, m.pattern) {
			return m.msg
		}
	}

	return UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or contact support",
		Code:    "GEN001",
	}
}
