package web

// errors.go provides unified error response handling for the API.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Error is mapped via core.MapError to get user-friendly message
//  4. Technical error + context is logged with request ID for correlation
//  5. User message is returned as JSON with an appropriate status code

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/CatalogLoader/internal/core"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error server-side and returns a
// user-friendly JSON error to the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := statusForError(err)
	userMsg := core.MapError(err)

	// Get request ID for correlation
	requestID := middleware.GetReqID(r.Context())

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", requestID,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// respondBadRequest reports a request shape problem before any engine
// was invoked.
func (s *Server) respondBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	requestID := middleware.GetReqID(r.Context())
	slog.Warn("bad request",
		"path", r.URL.Path,
		"method", r.Method,
		"detail", message,
		"request_id", requestID,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Message: message,
		Code:    "REQ001",
	})
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, core.ErrProductNotFound),
		errors.Is(err, core.ErrRunNotFound):
		return http.StatusNotFound

	case errors.Is(err, core.ErrChunkChecksum),
		errors.Is(err, core.ErrFinalChecksum):
		return http.StatusUnprocessableEntity

	case errors.Is(err, core.ErrChunkOutOfRange),
		errors.Is(err, core.ErrUploadIncomplete):
		return http.StatusBadRequest

	case errors.Is(err, core.ErrChunksMissing),
		errors.Is(err, core.ErrAlreadyCompleted),
		errors.Is(err, core.ErrSessionFailed):
		return http.StatusConflict

	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusTooManyRequests
	}

	var storageErr *core.StorageError
	if errors.As(err, &storageErr) {
		return http.StatusInternalServerError
	}

	return http.StatusInternalServerError
}
