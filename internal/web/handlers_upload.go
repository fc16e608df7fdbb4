package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/CatalogLoader/internal/core"
)

// uploadSessionJSON is the wire shape of an upload session.
type uploadSessionJSON struct {
	Token          string  `json:"token"`
	OriginalName   string  `json:"original_name"`
	Size           int64   `json:"size"`
	Status         string  `json:"status"`
	TotalChunks    int     `json:"total_chunks"`
	UploadedChunks int     `json:"uploaded_chunks"`
	Progress       float64 `json:"progress"`
	Checksum       string  `json:"checksum,omitempty"`
}

func sessionJSON(sess *core.UploadSession) uploadSessionJSON {
	return uploadSessionJSON{
		Token:          sess.Token,
		OriginalName:   sess.OriginalName,
		Size:           sess.Size,
		Status:         string(sess.Status),
		TotalChunks:    sess.TotalChunks,
		UploadedChunks: sess.UploadedChunks,
		Progress:       sess.Progress(),
		Checksum:       sess.Checksum,
	}
}

// handleUploadInit starts a new upload session.
func (s *Server) handleUploadInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename    string `json:"filename"`
		TotalSize   int64  `json:"total_size"`
		MimeType    string `json:"mime_type"`
		TotalChunks int    `json:"total_chunks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondBadRequest(w, r, "invalid JSON body")
		return
	}
	if req.Filename == "" {
		s.respondBadRequest(w, r, "filename is required")
		return
	}
	if req.TotalSize > s.cfg.Upload.MaxFileSize {
		s.respondBadRequest(w, r, "declared size exceeds the upload limit")
		return
	}

	sess, err := s.uploads.Initialize(r.Context(), core.InitRequest{
		Filename:    req.Filename,
		TotalSize:   req.TotalSize,
		MimeType:    req.MimeType,
		TotalChunks: req.TotalChunks,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSONStatus(w, http.StatusCreated, sessionJSON(sess))
}

// handleUploadChunk accepts one chunk as multipart form data.
// Expected fields: chunk_index, checksum, and a "chunk" file part.
func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		s.respondBadRequest(w, r, "missing upload token")
		return
	}

	maxSize := s.cfg.Upload.MaxChunkSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+4096)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		s.respondBadRequest(w, r, "chunk too large or invalid form")
		return
	}

	index, err := strconv.Atoi(r.FormValue("chunk_index"))
	if err != nil {
		s.respondBadRequest(w, r, "invalid chunk_index")
		return
	}
	checksum := r.FormValue("checksum")
	if checksum == "" {
		s.respondBadRequest(w, r, "checksum is required")
		return
	}

	file, _, err := r.FormFile("chunk")
	if err != nil {
		s.respondBadRequest(w, r, "no chunk provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, &core.StorageError{Op: "read chunk", Err: err})
		return
	}

	result, err := s.uploads.AcceptChunk(r.Context(), token, index, data, checksum)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, map[string]interface{}{
		"accepted":        result.Accepted,
		"uploaded_chunks": result.UploadedChunks,
		"total_chunks":    result.TotalChunks,
		"is_complete":     result.IsComplete,
	})
}

// handleUploadComplete assembles the chunks and verifies the final
// checksum supplied by the client.
func (s *Server) handleUploadComplete(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		s.respondBadRequest(w, r, "missing upload token")
		return
	}

	var req struct {
		Checksum string `json:"checksum"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondBadRequest(w, r, "invalid JSON body")
		return
	}
	if req.Checksum == "" {
		s.respondBadRequest(w, r, "checksum is required")
		return
	}

	sess, err := s.uploads.Complete(r.Context(), token, req.Checksum)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	// Sweep catalog records that were imported before this upload
	// arrived and are waiting on its name.
	linked := 0
	if s.linker != nil {
		linked = s.linker.LinkPendingProducts(r.Context(), sess)
	}

	resp := struct {
		uploadSessionJSON
		LinkedProducts int `json:"linked_products"`
	}{sessionJSON(sess), linked}
	writeJSON(w, resp)
}

// handleUploadStatus reports session progress.
func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		s.respondBadRequest(w, r, "missing upload token")
		return
	}

	sess, err := s.uploads.Status(r.Context(), token)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, sessionJSON(sess))
}

// handleUploadResume returns the chunk indices already accepted so a
// client can skip them after an interruption.
func (s *Server) handleUploadResume(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		s.respondBadRequest(w, r, "missing upload token")
		return
	}

	info, err := s.uploads.Resume(r.Context(), token)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	indices := info.ChunkIndices
	if indices == nil {
		indices = []int{}
	}
	writeJSON(w, map[string]interface{}{
		"uploaded_chunks": info.UploadedChunks,
		"total_chunks":    info.TotalChunks,
		"chunk_indices":   indices,
		"status":          string(info.Status),
	})
}
