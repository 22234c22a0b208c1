package web

// errors.go provides unified error responses for the web layer.
//
// Every error response is JSON. The technical error is logged with the
// request ID; the client gets the mapped user message and its code.
//
// Two shapes are used, matching what the front end expects:
//   - read endpoints: {"error": "..."}
//   - the update endpoint: {"status": "error", "message": "...", "code": "..."}

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/JonMunkholm/trackstats/internal/core"
	"github.com/JonMunkholm/trackstats/internal/logging"
)

// Messages fixed by the API contract.
const (
	msgDataNotLoaded    = "Data not loaded"
	msgNotFound         = "Resource not found"
	msgMethodNotAllowed = "Method not allowed"
	msgInvalidJSON      = "Invalid JSON request"
	msgInternal         = "Internal server error"
)

// ErrorResponse is the body of read-endpoint errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// StatusResponse is the body of update endpoint responses.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// respondError logs err and writes {"error": ...}. An empty dataset maps to
// the fixed "Data not loaded" message.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)
	logError(r, err, status, msg.Code)

	body := ErrorResponse{Error: msg.Message, Code: msg.Code}
	if errors.Is(err, core.ErrDataUnavailable) {
		body = ErrorResponse{Error: msgDataNotLoaded}
	}
	render.Status(r, status)
	render.JSON(w, r, body)
}

// respondStatusError writes {"status":"error", ...} for the update endpoint.
func respondStatusError(w http.ResponseWriter, r *http.Request, status int, message, code string) {
	render.Status(r, status)
	render.JSON(w, r, StatusResponse{Status: "error", Message: message, Code: code})
}

// reloadErrorStatus picks the HTTP status for a failed reload.
func reloadErrorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyReloads):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func logError(r *http.Request, err error, status int, code string) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", code,
		"request_id", middleware.GetReqID(r.Context()),
	)
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusNotFound)
	render.JSON(w, r, ErrorResponse{Error: msgNotFound})
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusMethodNotAllowed)
	render.JSON(w, r, ErrorResponse{Error: msgMethodNotAllowed})
}

// setRetryAfter advertises when a busy reload may be retried.
func setRetryAfter(w http.ResponseWriter, seconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
}
