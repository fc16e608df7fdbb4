package core

// import_engine.go drives the streaming CSV import pipeline:
// read -> validate -> dedupe -> upsert -> stats.
//
// Memory is O(1) relative to file size; only the accumulated row-error
// list and the within-run seen-SKU set grow, both bounded by the
// number of distinct rows. Per-row errors never abort a run; only
// stream-level failures (unreadable source, broken header) do, and
// rows already processed keep their effects.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// ProgressInterval is the row interval for progress logging.
var ProgressInterval = 1000

// ImportEngine performs idempotent create-or-update imports from CSV
// streams into a CatalogStore, recording an ImportRun per invocation.
type ImportEngine struct {
	catalog CatalogStore
	runs    RunStore
	linker  *AssetLinker // nil disables asset linking
}

// NewImportEngine creates an ImportEngine. linker may be nil when
// asset linking is not configured.
func NewImportEngine(catalog CatalogStore, runs RunStore, linker *AssetLinker) *ImportEngine {
	return &ImportEngine{
		catalog: catalog,
		runs:    runs,
		linker:  linker,
	}
}

// Import streams src as CSV and upserts every valid row into the
// catalog. It always returns the run record; the error is non-nil only
// when the run record itself could not be persisted.
func (e *ImportEngine) Import(ctx context.Context, src io.Reader, filename string) (*ImportRun, error) {
	run := &ImportRun{
		Filename: filename,
		Status:   RunProcessing,
	}
	if err := e.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create import run: %w", err)
	}

	logger := slog.With("run_id", run.ID, "filename", filename)
	start := time.Now()

	if err := e.process(ctx, src, run, logger); err != nil {
		run.Status = RunFailed
		run.Failure = err.Error()
		run.FinishedAt = time.Now()
		logger.Error("import failed", "error", err, "rows", run.TotalRows)
		if updateErr := e.runs.UpdateRun(ctx, run); updateErr != nil {
			return run, fmt.Errorf("persist failed run: %w", updateErr)
		}
		return run, nil
	}

	run.Status = RunCompleted
	run.FinishedAt = time.Now()
	if err := e.runs.UpdateRun(ctx, run); err != nil {
		return run, fmt.Errorf("persist completed run: %w", err)
	}

	logger.Info("import completed",
		"total_rows", run.TotalRows,
		"imported", run.Imported,
		"updated", run.Updated,
		"invalid", run.Invalid,
		"duplicates", run.Duplicates,
		"duration", time.Since(start),
	)

	return run, nil
}

// process consumes the row stream and mutates the run counters.
// Returned errors are stream-level and fail the whole run.
func (e *ImportEngine) process(ctx context.Context, src io.Reader, run *ImportRun, logger *slog.Logger) error {
	reader, err := NewCsvStreamReader(src)
	if err != nil {
		return err
	}

	for _, col := range requiredColumns {
		if !reader.HasHeader(col) {
			return fmt.Errorf("missing required header: %s", col)
		}
	}

	// First occurrence of a SKU wins within a run; later duplicates
	// are discarded, not merged.
	seen := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		run.TotalRows++

		if row.Err != nil {
			run.Invalid++
			run.RowErrors = append(run.RowErrors, RowError{
				Row:      row.Number,
				Messages: []string{row.Err.Error()},
			})
			continue
		}

		if result := ValidateRow(row.Fields); !result.Valid {
			run.Invalid++
			run.RowErrors = append(run.RowErrors, RowError{
				Row:      row.Number,
				Messages: result.Errors,
			})
			continue
		}

		sku := strings.TrimSpace(row.Fields[ColSKU])
		if _, dup := seen[sku]; dup {
			run.Duplicates++
			continue
		}
		seen[sku] = struct{}{}

		created, err := e.upsertRow(ctx, sku, row.Fields)
		if err != nil {
			return fmt.Errorf("upsert row %d: %w", row.Number, err)
		}
		if created {
			run.Imported++
		} else {
			run.Updated++
		}

		if run.TotalRows%ProgressInterval == 0 {
			logger.Debug("import progress",
				"rows", run.TotalRows,
				"imported", run.Imported,
				"updated", run.Updated,
			)
		}
	}
}

// upsertRow performs the check-then-write for one row under the
// per-SKU lock, so concurrent imports targeting the same key never
// both create. Returns true when a new record was created.
func (e *ImportEngine) upsertRow(ctx context.Context, sku string, row map[string]string) (created bool, err error) {
	fields := ProductFields{
		Name:             strings.TrimSpace(row[ColName]),
		Description:      row[ColDescription],
		Category:         row[ColCategory],
		Price:            strings.TrimSpace(row[ColPrice]),
		Stock:            ParseStock(row[ColStock]),
		PendingAssetName: strings.TrimSpace(row[ColImage]),
	}

	err = e.catalog.WithSKULock(ctx, sku, func(ctx context.Context) error {
		existing, err := e.catalog.FindBySKU(ctx, sku)
		switch {
		case errors.Is(err, ErrProductNotFound):
			rec, err := e.catalog.Create(ctx, sku, fields)
			if err != nil {
				return err
			}
			created = true
			e.tryLinkAsset(ctx, rec, fields.PendingAssetName)
			return nil
		case err != nil:
			return err
		default:
			rec, err := e.catalog.Update(ctx, existing, fields)
			if err != nil {
				return err
			}
			e.tryLinkAsset(ctx, rec, fields.PendingAssetName)
			return nil
		}
	})
	return created, err
}

// tryLinkAsset attaches a completed upload to the record when one
// matching the declared asset name already exists. When it does not,
// the pending asset name stays on the record and a later-arriving
// upload will complete the link without a re-import.
func (e *ImportEngine) tryLinkAsset(ctx context.Context, rec *CatalogRecord, assetName string) {
	if e.linker == nil || assetName == "" {
		return
	}
	if err := e.linker.LinkByName(ctx, rec, assetName); err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			slog.Warn("asset link deferred",
				"sku", rec.SKU,
				"asset", assetName,
				"error", err,
			)
		}
	}
}
