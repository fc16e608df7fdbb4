package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/CatalogLoader/internal/core"
)

// SessionStore is the PostgreSQL implementation of core.SessionStore.
type SessionStore struct {
	db DBTX
}

var _ core.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a SessionStore over db, typically the
// connection pool.
func NewSessionStore(db DBTX) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `id, token, filename, original_name, size, mime_type,
	checksum, status, total_chunks, uploaded_chunks, chunk_indices,
	chunk_size, path, created_at, updated_at`

// CreateSession implements core.SessionStore.
func (s *SessionStore) CreateSession(ctx context.Context, sess *core.UploadSession) error {
	row := s.db.QueryRow(ctx, `
		INSERT INTO upload_sessions
			(token, filename, original_name, size, mime_type, checksum,
			 status, total_chunks, uploaded_chunks, chunk_indices,
			 chunk_size, path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`,
		sess.Token, sess.Filename, sess.OriginalName, sess.Size,
		sess.MimeType, sess.Checksum, string(sess.Status),
		sess.TotalChunks, sess.UploadedChunks, intsTo32(sess.ChunkIndices),
		sess.ChunkSize, sess.Path,
	)
	if err := row.Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SessionByToken implements core.SessionStore.
func (s *SessionStore) SessionByToken(ctx context.Context, token string) (*core.UploadSession, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM upload_sessions WHERE token = $1`,
		token,
	)
	return scanSession(row)
}

// SessionByID implements core.SessionStore.
func (s *SessionStore) SessionByID(ctx context.Context, id int64) (*core.UploadSession, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM upload_sessions WHERE id = $1`,
		id,
	)
	return scanSession(row)
}

// CompletedByOriginalName implements core.SessionStore.
func (s *SessionStore) CompletedByOriginalName(ctx context.Context, name string) (*core.UploadSession, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM upload_sessions
		 WHERE original_name = $1 AND status = 'completed'
		 ORDER BY updated_at DESC LIMIT 1`,
		name,
	)
	return scanSession(row)
}

// UpdateSession implements core.SessionStore.
func (s *SessionStore) UpdateSession(ctx context.Context, sess *core.UploadSession) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE upload_sessions SET
			checksum = $2, status = $3, uploaded_chunks = $4,
			chunk_indices = $5, path = $6, updated_at = now()
		WHERE token = $1`,
		sess.Token, sess.Checksum, string(sess.Status),
		sess.UploadedChunks, intsTo32(sess.ChunkIndices), sess.Path,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

// DeleteSession implements core.SessionStore.
func (s *SessionStore) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM upload_sessions WHERE token = $1`, token,
	); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func scanSession(row pgx.Row) (*core.UploadSession, error) {
	var (
		sess    core.UploadSession
		status  string
		indices []int32
	)
	err := row.Scan(
		&sess.ID, &sess.Token, &sess.Filename, &sess.OriginalName,
		&sess.Size, &sess.MimeType, &sess.Checksum, &status,
		&sess.TotalChunks, &sess.UploadedChunks, &indices,
		&sess.ChunkSize, &sess.Path, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.Status = core.UploadStatus(status)
	sess.ChunkIndices = ints32To(indices)
	return &sess, nil
}
