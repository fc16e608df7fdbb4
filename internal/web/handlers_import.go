package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/CatalogLoader/internal/core"
)

// importRunJSON is the wire shape of an import run. RowErrors is capped
// at the configured display limit; ErrorsTruncated reports the cap hit.
type importRunJSON struct {
	ID              int64           `json:"id"`
	Filename        string          `json:"filename"`
	Status          string          `json:"status"`
	TotalRows       int             `json:"total_rows"`
	Imported        int             `json:"imported"`
	Updated         int             `json:"updated"`
	Invalid         int             `json:"invalid"`
	Duplicates      int             `json:"duplicates"`
	RowErrors       []core.RowError `json:"row_errors"`
	ErrorsTruncated bool            `json:"errors_truncated"`
	Failure         string          `json:"failure,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
}

func (s *Server) runJSON(run *core.ImportRun) importRunJSON {
	out := importRunJSON{
		ID:         run.ID,
		Filename:   run.Filename,
		Status:     string(run.Status),
		TotalRows:  run.TotalRows,
		Imported:   run.Imported,
		Updated:    run.Updated,
		Invalid:    run.Invalid,
		Duplicates: run.Duplicates,
		RowErrors:  run.RowErrors,
		Failure:    run.Failure,
		StartedAt:  run.StartedAt,
	}
	if !run.FinishedAt.IsZero() {
		t := run.FinishedAt
		out.FinishedAt = &t
	}
	if limit := s.cfg.Import.ErrorDisplayCap; len(out.RowErrors) > limit {
		out.RowErrors = out.RowErrors[:limit]
		out.ErrorsTruncated = true
	}
	if out.RowErrors == nil {
		out.RowErrors = []core.RowError{}
	}
	return out
}

// handleImport runs a CSV import from an uploaded file. The file is
// streamed through the import engine; memory stays bounded regardless
// of file size.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		s.respondBadRequest(w, r, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondBadRequest(w, r, "no file provided")
		return
	}
	defer file.Close()

	if err := s.limiter.Acquire(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	defer s.limiter.Release()

	run, err := s.imports.Import(r.Context(), file, header.Filename)
	if run == nil && err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, s.runJSON(run))
}

// handleListImportLogs returns recent import runs, newest first.
func (s *Server) handleListImportLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	runs, err := s.runs.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]importRunJSON, 0, len(runs))
	for _, run := range runs {
		out = append(out, s.runJSON(run))
	}
	writeJSON(w, map[string]interface{}{"import_logs": out})
}

// handleImportLog returns one import run with its row errors.
func (s *Server) handleImportLog(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondBadRequest(w, r, "invalid import log id")
		return
	}

	run, err := s.runs.RunByID(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, s.runJSON(run))
}

// pagination reads limit/offset query parameters with defaults.
func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
