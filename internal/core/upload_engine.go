package core

// upload_engine.go implements the resumable chunked-upload protocol.
//
// A client initializes a session declaring size, mime type and chunk
// count, then delivers chunks in any order. Each chunk is verified
// against its checksum before it is persisted; accepting a chunk twice
// is a no-op for the counters, so retries are always safe. Completion
// assembles the chunks in index order, verifies the full-file checksum
// and transitions the session to completed.
//
// Concurrency: counter and index-set mutations for one session run
// under a per-token mutex. Chunk byte writes happen outside that
// critical section, so chunks for different indices stream to storage
// in parallel. Sessions never contend with each other.

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DefaultChunkSize is the chunk size advertised to clients (1MB).
const DefaultChunkSize = 1 << 20

// storageNameLength is the number of random bytes in an internal
// storage filename (hex doubles it).
const storageNameLength = 20

// UploadEngine drives the chunked-upload protocol against a
// SessionStore and a ChunkStore.
type UploadEngine struct {
	sessions SessionStore
	chunks   ChunkStore
	locks    *KeyMutex
}

// NewUploadEngine creates an UploadEngine.
func NewUploadEngine(sessions SessionStore, chunks ChunkStore) *UploadEngine {
	return &UploadEngine{
		sessions: sessions,
		chunks:   chunks,
		locks:    NewKeyMutex(),
	}
}

// Initialize creates a new upload session in the pending state.
// It generates the client token and a collision-resistant internal
// storage filename; no storage is pre-allocated.
func (e *UploadEngine) Initialize(ctx context.Context, req InitRequest) (*UploadSession, error) {
	if req.TotalSize < 1 {
		return nil, fmt.Errorf("total size must be at least 1 byte")
	}
	if req.TotalChunks < 1 {
		return nil, fmt.Errorf("total chunks must be at least 1")
	}

	session := &UploadSession{
		Token:        uuid.New().String(),
		Filename:     randomStorageName(req.Filename),
		OriginalName: req.Filename,
		Size:         req.TotalSize,
		MimeType:     req.MimeType,
		Status:       UploadPending,
		TotalChunks:  req.TotalChunks,
		ChunkSize:    DefaultChunkSize,
	}

	if err := e.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	slog.Info("upload initialized",
		"token", session.Token,
		"filename", req.Filename,
		"size", req.TotalSize,
		"total_chunks", req.TotalChunks,
	)

	return session, nil
}

// AcceptChunk verifies and persists one chunk.
//
// The chunk's hash must match expectedChecksum or the chunk is
// rejected with ErrChunkChecksum and nothing changes. Accepted chunks
// overwrite any prior write for the same index, and re-accepting an
// index never double-counts. The first accepted chunk moves the
// session from pending to uploading. Completed and failed sessions are
// terminal and reject chunks with ErrAlreadyCompleted or
// ErrSessionFailed.
func (e *UploadEngine) AcceptChunk(ctx context.Context, token string, index int, data []byte, expectedChecksum string) (ChunkResult, error) {
	session, err := e.sessions.SessionByToken(ctx, token)
	if err != nil {
		return ChunkResult{}, err
	}
	if err := terminalStatus(session); err != nil {
		return ChunkResult{}, err
	}

	if index < 0 || index >= session.TotalChunks {
		return ChunkResult{}, fmt.Errorf("%w: index %d, total %d", ErrChunkOutOfRange, index, session.TotalChunks)
	}

	if !VerifyChecksum(data, expectedChecksum) {
		return ChunkResult{
			Accepted:       false,
			UploadedChunks: session.UploadedChunks,
			TotalChunks:    session.TotalChunks,
		}, ErrChunkChecksum
	}

	// Persist the bytes before touching session state. Overwrites for
	// the same index are harmless: the content already passed its
	// checksum, so any accepted write for an index is equivalent.
	if err := e.chunks.Put(ctx, ChunkKey(token, index), data); err != nil {
		return ChunkResult{}, &StorageError{Op: "put chunk", Err: err}
	}

	var result ChunkResult
	err = e.locks.WithLock(token, func() error {
		session, err := e.sessions.SessionByToken(ctx, token)
		if err != nil {
			return err
		}

		// A Complete racing the byte write may have reached a terminal
		// state after the check above; drop the stray chunk so cleanup
		// stays exact.
		if termErr := terminalStatus(session); termErr != nil {
			if delErr := e.chunks.Delete(ctx, ChunkKey(token, index)); delErr != nil {
				slog.Warn("delete stray chunk", "token", token, "index", index, "error", delErr)
			}
			return termErr
		}

		if !session.HasChunk(index) {
			session.ChunkIndices = append(session.ChunkIndices, index)
			session.UploadedChunks = len(session.ChunkIndices)
			if session.Status == UploadPending {
				session.Status = UploadInProgress
			}
			if err := e.sessions.UpdateSession(ctx, session); err != nil {
				return fmt.Errorf("update session: %w", err)
			}
		}

		result = ChunkResult{
			Accepted:       true,
			UploadedChunks: session.UploadedChunks,
			TotalChunks:    session.TotalChunks,
			IsComplete:     session.UploadedChunks >= session.TotalChunks,
		}
		return nil
	})
	if err != nil {
		return ChunkResult{}, err
	}

	slog.Debug("chunk accepted",
		"token", token,
		"index", index,
		"uploaded", result.UploadedChunks,
		"total", result.TotalChunks,
	)

	return result, nil
}

// terminalStatus maps a terminal session status to its sentinel error,
// nil for the live states.
func terminalStatus(session *UploadSession) error {
	switch session.Status {
	case UploadCompleted:
		return ErrAlreadyCompleted
	case UploadFailed:
		return ErrSessionFailed
	}
	return nil
}

// Complete assembles the chunks in index order, verifies the final
// checksum and transitions the session to completed.
//
// Calling Complete before all chunks arrived returns ErrChunksMissing
// and leaves the session untouched. On a final-checksum mismatch the
// assembled object and all chunk remnants are deleted but the session
// stays in the uploading state, so the client can resend chunks and
// try again. An I/O failure or missing chunk during assembly marks the
// session failed.
//
// A second Complete on an already-completed session returns the
// session unchanged when the checksum matches the recorded one, and
// ErrAlreadyCompleted otherwise; it never re-assembles.
func (e *UploadEngine) Complete(ctx context.Context, token, expectedChecksum string) (*UploadSession, error) {
	var completed *UploadSession

	err := e.locks.WithLock(token, func() error {
		session, err := e.sessions.SessionByToken(ctx, token)
		if err != nil {
			return err
		}

		switch session.Status {
		case UploadCompleted:
			if session.Checksum == expectedChecksum {
				completed = session
				return nil
			}
			return ErrAlreadyCompleted
		case UploadFailed:
			return ErrSessionFailed
		}

		if session.UploadedChunks < session.TotalChunks {
			return fmt.Errorf("%w: %d of %d", ErrChunksMissing, session.UploadedChunks, session.TotalChunks)
		}

		finalKey, checksum, err := e.assemble(ctx, session)
		if err != nil {
			session.Status = UploadFailed
			if updateErr := e.sessions.UpdateSession(ctx, session); updateErr != nil {
				slog.Error("mark session failed", "token", token, "error", updateErr)
			}
			return err
		}

		if checksum != expectedChecksum {
			// Remove the bad object and every chunk remnant. The
			// session remains resumable by re-uploading chunks.
			if err := e.chunks.Delete(ctx, finalKey); err != nil {
				slog.Error("delete mismatched object", "token", token, "error", err)
			}
			if err := e.chunks.DeleteAll(ctx, ChunkPrefix(token)); err != nil {
				slog.Error("cleanup chunks", "token", token, "error", err)
			}
			return fmt.Errorf("%w: server %s, client %s", ErrFinalChecksum, checksum, expectedChecksum)
		}

		session.Status = UploadCompleted
		session.Checksum = checksum
		session.Path = finalKey
		if err := e.sessions.UpdateSession(ctx, session); err != nil {
			return fmt.Errorf("update session: %w", err)
		}

		// Chunk remnants are unconditionally removed after success.
		if err := e.chunks.DeleteAll(ctx, ChunkPrefix(token)); err != nil {
			slog.Warn("cleanup chunks after completion", "token", token, "error", err)
		}

		completed = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("upload completed",
		"token", token,
		"path", completed.Path,
		"size", completed.Size,
	)

	return completed, nil
}

// assemble concatenates the session's chunks in strict index order,
// writes the result to the final key and returns the key and the
// content hash of the assembled bytes.
func (e *UploadEngine) assemble(ctx context.Context, session *UploadSession) (string, string, error) {
	finalKey := FinalKey(session.Filename)
	hasher := NewChecksumHash()
	assembled := make([]byte, 0, session.Size)

	for i := 0; i < session.TotalChunks; i++ {
		key := ChunkKey(session.Token, i)

		ok, err := e.chunks.Exists(ctx, key)
		if err != nil {
			return "", "", &StorageError{Op: "stat chunk", Err: err}
		}
		if !ok {
			return "", "", &StorageError{Op: "assemble", Err: fmt.Errorf("chunk %d not found", i)}
		}

		data, err := e.chunks.Get(ctx, key)
		if err != nil {
			return "", "", &StorageError{Op: "read chunk", Err: err}
		}

		hasher.Write(data)
		assembled = append(assembled, data...)
	}

	if err := e.chunks.Put(ctx, finalKey, assembled); err != nil {
		return "", "", &StorageError{Op: "write final object", Err: err}
	}

	return finalKey, HexChecksum(hasher), nil
}

// Status returns the current session state. Pure read.
func (e *UploadEngine) Status(ctx context.Context, token string) (*UploadSession, error) {
	return e.sessions.SessionByToken(ctx, token)
}

// Resume returns the accepted chunk indices so a client can skip
// chunks that were already delivered. This is what makes the protocol
// survive connection loss. Pure read.
func (e *UploadEngine) Resume(ctx context.Context, token string) (ResumeInfo, error) {
	session, err := e.sessions.SessionByToken(ctx, token)
	if err != nil {
		return ResumeInfo{}, err
	}

	return ResumeInfo{
		UploadedChunks: session.UploadedChunks,
		TotalChunks:    session.TotalChunks,
		ChunkIndices:   session.ChunkIndices,
		Status:         session.Status,
	}, nil
}

// Cleanup removes a session record and any chunk or object remnants.
// Intended for operator-triggered reclamation of stale sessions after
// a retention window; the engine itself enforces no policy.
func (e *UploadEngine) Cleanup(ctx context.Context, token string, olderThan time.Duration) error {
	return e.locks.WithLock(token, func() error {
		session, err := e.sessions.SessionByToken(ctx, token)
		if err != nil {
			return err
		}

		if time.Since(session.UpdatedAt) < olderThan {
			return fmt.Errorf("session %s is newer than %s", token, olderThan)
		}

		if err := e.chunks.DeleteAll(ctx, ChunkPrefix(token)); err != nil {
			return &StorageError{Op: "cleanup chunks", Err: err}
		}
		if session.Path != "" {
			if err := e.chunks.Delete(ctx, session.Path); err != nil {
				return &StorageError{Op: "cleanup object", Err: err}
			}
		}
		return e.sessions.DeleteSession(ctx, token)
	})
}

// randomStorageName builds an internal storage filename from random
// hex plus the original extension, so concurrent uploads of files with
// the same name never collide.
func randomStorageName(original string) string {
	buf := make([]byte, storageNameLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to
		// a uuid rather than panic.
		return uuid.New().String() + filepath.Ext(original)
	}
	return hex.EncodeToString(buf) + filepath.Ext(original)
}
