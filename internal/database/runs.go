package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/CatalogLoader/internal/core"
)

// RunStore is the PostgreSQL implementation of core.RunStore. Row
// errors are stored as a jsonb column so the API can return them
// without a join.
type RunStore struct {
	db DBTX
}

var _ core.RunStore = (*RunStore)(nil)

// NewRunStore creates a RunStore over db, typically the connection
// pool.
func NewRunStore(db DBTX) *RunStore {
	return &RunStore{db: db}
}

const runColumns = `id, filename, status, total_rows, imported, updated,
	invalid, duplicates, row_errors, failure, started_at, finished_at`

// CreateRun implements core.RunStore.
func (s *RunStore) CreateRun(ctx context.Context, run *core.ImportRun) error {
	rowErrors, err := marshalRowErrors(run.RowErrors)
	if err != nil {
		return err
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO import_runs
			(filename, status, total_rows, imported, updated, invalid,
			 duplicates, row_errors, failure)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, started_at`,
		run.Filename, string(run.Status), run.TotalRows, run.Imported,
		run.Updated, run.Invalid, run.Duplicates, rowErrors, run.Failure,
	)
	if err := row.Scan(&run.ID, &run.StartedAt); err != nil {
		return fmt.Errorf("insert import run: %w", err)
	}
	return nil
}

// UpdateRun implements core.RunStore.
func (s *RunStore) UpdateRun(ctx context.Context, run *core.ImportRun) error {
	rowErrors, err := marshalRowErrors(run.RowErrors)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE import_runs SET
			status = $2, total_rows = $3, imported = $4, updated = $5,
			invalid = $6, duplicates = $7, row_errors = $8, failure = $9,
			finished_at = CASE WHEN $2 = 'processing' THEN finished_at ELSE now() END
		WHERE id = $1`,
		run.ID, string(run.Status), run.TotalRows, run.Imported,
		run.Updated, run.Invalid, run.Duplicates, rowErrors, run.Failure,
	)
	if err != nil {
		return fmt.Errorf("update import run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrRunNotFound
	}
	return nil
}

// RunByID implements core.RunStore.
func (s *RunStore) RunByID(ctx context.Context, id int64) (*core.ImportRun, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+runColumns+` FROM import_runs WHERE id = $1`,
		id,
	)
	return scanRun(row)
}

// ListRuns implements core.RunStore. Newest runs come first.
func (s *RunStore) ListRuns(ctx context.Context, limit, offset int) ([]*core.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+runColumns+` FROM import_runs
		 ORDER BY started_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	defer rows.Close()

	var out []*core.ImportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func marshalRowErrors(errs []core.RowError) ([]byte, error) {
	if len(errs) == 0 {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return nil, fmt.Errorf("marshal row errors: %w", err)
	}
	return data, nil
}

func scanRun(row pgx.Row) (*core.ImportRun, error) {
	var (
		run       core.ImportRun
		status    string
		rowErrors []byte
		finished  *time.Time
	)
	err := row.Scan(
		&run.ID, &run.Filename, &status, &run.TotalRows, &run.Imported,
		&run.Updated, &run.Invalid, &run.Duplicates, &rowErrors,
		&run.Failure, &run.StartedAt, &finished,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan import run: %w", err)
	}
	run.Status = core.RunStatus(status)
	if finished != nil {
		run.FinishedAt = *finished
	}
	if len(rowErrors) > 0 {
		if err := json.Unmarshal(rowErrors, &run.RowErrors); err != nil {
			return nil, fmt.Errorf("decode row errors: %w", err)
		}
	}
	return &run, nil
}
