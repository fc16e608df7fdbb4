package core

import (
	"context"
	"strings"
	"testing"
)

func newTestImportEngine() (*ImportEngine, *MemoryCatalogStore, *MemoryRunStore) {
	catalog := NewMemoryCatalogStore()
	runs := NewMemoryRunStore()
	return NewImportEngine(catalog, runs, nil), catalog, runs
}

func TestImportEngine_CountsAndDedupe(t *testing.T) {
	e, catalog, _ := newTestImportEngine()

	csv := "sku,name,price\n" +
		"A1,First,1.00\n" +
		"A2,Second,2.00\n" +
		"A1,First Again,3.00\n"

	run, err := e.Import(context.Background(), strings.NewReader(csv), "products.csv")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if run.Status != RunCompleted {
		t.Errorf("Status = %s, want %s", run.Status, RunCompleted)
	}
	if run.TotalRows != 3 {
		t.Errorf("TotalRows = %d, want 3", run.TotalRows)
	}
	if run.Imported != 2 {
		t.Errorf("Imported = %d, want 2", run.Imported)
	}
	if run.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", run.Duplicates)
	}
	if run.Updated != 0 || run.Invalid != 0 {
		t.Errorf("Updated = %d, Invalid = %d, want 0, 0", run.Updated, run.Invalid)
	}

	// First occurrence wins: the duplicate row's values are discarded.
	rec, err := catalog.FindBySKU(context.Background(), "A1")
	if err != nil {
		t.Fatalf("FindBySKU failed: %v", err)
	}
	if rec.Name != "First" {
		t.Errorf("Name = %q, want %q (first occurrence wins)", rec.Name, "First")
	}
	if rec.Price != "1.00" {
		t.Errorf("Price = %q, want %q", rec.Price, "1.00")
	}
}

func TestImportEngine_ReimportUpdates(t *testing.T) {
	e, catalog, _ := newTestImportEngine()
	ctx := context.Background()

	first := "sku,name,price,stock\nA1,Widget,1.00,5\n"
	if _, err := e.Import(ctx, strings.NewReader(first), "v1.csv"); err != nil {
		t.Fatalf("first Import failed: %v", err)
	}

	second := "sku,name,price,stock\nA1,Widget v2,2.50,9\n"
	run, err := e.Import(ctx, strings.NewReader(second), "v2.csv")
	if err != nil {
		t.Fatalf("second Import failed: %v", err)
	}

	if run.Imported != 0 {
		t.Errorf("Imported = %d, want 0", run.Imported)
	}
	if run.Updated != 1 {
		t.Errorf("Updated = %d, want 1", run.Updated)
	}

	rec, err := catalog.FindBySKU(ctx, "A1")
	if err != nil {
		t.Fatalf("FindBySKU failed: %v", err)
	}
	if rec.Name != "Widget v2" {
		t.Errorf("Name = %q, want %q", rec.Name, "Widget v2")
	}
	if rec.Price != "2.50" {
		t.Errorf("Price = %q, want %q", rec.Price, "2.50")
	}
	if rec.Stock != 9 {
		t.Errorf("Stock = %d, want 9", rec.Stock)
	}
}

func TestImportEngine_InvalidRows(t *testing.T) {
	e, catalog, _ := newTestImportEngine()

	csv := "sku,name,price\n" +
		"A1,Widget,\n" + // missing price -> row 2 invalid
		"A2,Other,3.00\n"

	run, err := e.Import(context.Background(), strings.NewReader(csv), "products.csv")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if run.Invalid != 1 {
		t.Fatalf("Invalid = %d, want 1", run.Invalid)
	}
	if run.Imported != 1 {
		t.Errorf("Imported = %d, want 1", run.Imported)
	}
	if len(run.RowErrors) != 1 {
		t.Fatalf("RowErrors = %v, want one entry", run.RowErrors)
	}
	if run.RowErrors[0].Row != 2 {
		t.Errorf("RowErrors[0].Row = %d, want 2 (header is row 1)", run.RowErrors[0].Row)
	}
	if len(run.RowErrors[0].Messages) != 1 || !strings.Contains(run.RowErrors[0].Messages[0], "price") {
		t.Errorf("Messages = %v, want a price message", run.RowErrors[0].Messages)
	}

	// The invalid row must not create a record.
	if _, err := catalog.FindBySKU(context.Background(), "A1"); err == nil {
		t.Error("invalid row should not be upserted")
	}
}

func TestImportEngine_MalformedRowDoesNotAbort(t *testing.T) {
	e, _, _ := newTestImportEngine()

	csv := "sku,name,price\n" +
		"A1,TooFewColumns\n" +
		"A2,Good,2.00\n"

	run, err := e.Import(context.Background(), strings.NewReader(csv), "products.csv")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if run.Status != RunCompleted {
		t.Errorf("Status = %s, want %s", run.Status, RunCompleted)
	}
	if run.Invalid != 1 || run.Imported != 1 {
		t.Errorf("Invalid = %d, Imported = %d, want 1, 1", run.Invalid, run.Imported)
	}
}

func TestImportEngine_MissingHeaderFailsRun(t *testing.T) {
	e, _, runs := newTestImportEngine()

	csv := "name,price\nWidget,1.00\n"
	run, err := e.Import(context.Background(), strings.NewReader(csv), "products.csv")
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}

	if run.Status != RunFailed {
		t.Fatalf("Status = %s, want %s", run.Status, RunFailed)
	}
	if !strings.Contains(run.Failure, "missing required header: sku") {
		t.Errorf("Failure = %q", run.Failure)
	}

	// The failed run is persisted for diagnostics.
	stored, err := runs.RunByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("RunByID failed: %v", err)
	}
	if stored.Status != RunFailed {
		t.Errorf("stored Status = %s, want %s", stored.Status, RunFailed)
	}
}

func TestImportEngine_EmptyFileFailsRun(t *testing.T) {
	e, _, _ := newTestImportEngine()

	run, err := e.Import(context.Background(), strings.NewReader(""), "empty.csv")
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if run.Status != RunFailed {
		t.Errorf("Status = %s, want %s", run.Status, RunFailed)
	}
	if !strings.Contains(run.Failure, "empty file") {
		t.Errorf("Failure = %q", run.Failure)
	}
}

func TestImportEngine_CompletedCountersAddUp(t *testing.T) {
	e, _, _ := newTestImportEngine()

	csv := "sku,name,price\n" +
		"A1,One,1\n" +
		"A1,Dup,1\n" +
		"A2,Two,bad\n" +
		"A3,Three,3\n"

	run, err := e.Import(context.Background(), strings.NewReader(csv), "mix.csv")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	sum := run.Imported + run.Updated + run.Invalid + run.Duplicates
	if sum != run.TotalRows {
		t.Errorf("counter sum = %d, TotalRows = %d; must be equal on completion", sum, run.TotalRows)
	}
}

func TestImportEngine_PendingAssetName(t *testing.T) {
	e, catalog, _ := newTestImportEngine()

	csv := "sku,name,price,image\nA1,Widget,1.00,photo.jpg\n"
	if _, err := e.Import(context.Background(), strings.NewReader(csv), "products.csv"); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	// No upload named photo.jpg exists, so the name stays pending.
	rec, err := catalog.FindBySKU(context.Background(), "A1")
	if err != nil {
		t.Fatalf("FindBySKU failed: %v", err)
	}
	if rec.PendingAssetName != "photo.jpg" {
		t.Errorf("PendingAssetName = %q, want %q", rec.PendingAssetName, "photo.jpg")
	}
}

func TestImportEngine_RunsListedNewestFirst(t *testing.T) {
	e, _, runs := newTestImportEngine()
	ctx := context.Background()

	csv := "sku,name,price\nA1,Widget,1.00\n"
	first, _ := e.Import(ctx, strings.NewReader(csv), "first.csv")
	second, _ := e.Import(ctx, strings.NewReader(csv), "second.csv")

	list, err := runs.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("list order = [%d %d], want [%d %d]", list[0].ID, list[1].ID, second.ID, first.ID)
	}
}
