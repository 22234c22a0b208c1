package web

import (
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/trackstats/internal/audit"
	"github.com/JonMunkholm/trackstats/internal/core"
	"github.com/JonMunkholm/trackstats/internal/logging"
)

// maxRequestBody bounds the update request body.
const maxRequestBody = 1 << 20

// busyRetrySeconds is advertised in Retry-After when every reload slot is taken.
const busyRetrySeconds = 5

// UpdateDataRequest is the body of POST /api/update-data. A missing
// file_path selects the configured update file.
type UpdateDataRequest struct {
	FilePath *string `json:"file_path" validate:"omitempty,min=1,max=1024"`
}

// UpdateDataResponse is returned after a successful reload.
type UpdateDataResponse struct {
	Status       string        `json:"status"`
	Message      string        `json:"message"`
	TotalRecords int           `json:"total_records"`
	Data         []core.Record `json:"data"`
}

// ReloadsResponse is the body of GET /api/reloads.
type ReloadsResponse struct {
	Total int           `json:"total"`
	Data  []audit.Entry `json:"data"`
}

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Server) handleUpdateData(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	if render.GetRequestContentType(r) != render.ContentTypeJSON {
		respondStatusError(w, r, http.StatusBadRequest, msgInvalidJSON, "REQ001")
		return
	}

	var req UpdateDataRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("update request rejected", "error", err)
		respondStatusError(w, r, http.StatusBadRequest, msgInvalidJSON, "REQ001")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		logger.Warn("update request rejected", "error", err)
		respondStatusError(w, r, http.StatusBadRequest, "Invalid request: "+validationMessage(err), "REQ001")
		return
	}

	path := s.service.UpdateFile()
	if req.FilePath != nil {
		path = *req.FilePath
	}
	logger.Info("reload requested", "file_path", path)

	ds, err := s.service.Reload(WithRequestMetadata(r.Context(), r), core.ReloadRequest{
		Path:    path,
		Trigger: audit.TriggerAPI,
	})
	if err != nil {
		status := reloadErrorStatus(err)
		msg := core.MapError(err)
		logError(r, err, status, msg.Code)

		message := msg.Message
		if status == http.StatusInternalServerError {
			message = "Failed to load data from " + path + ": " + msg.Message
		}
		if status == http.StatusTooManyRequests {
			setRetryAfter(w, busyRetrySeconds)
		}
		respondStatusError(w, r, status, message, msg.Code)
		return
	}

	render.JSON(w, r, UpdateDataResponse{
		Status:       "success",
		Message:      "Data updated from " + path,
		TotalRecords: ds.Len(),
		Data:         ds.Records(),
	})
}

func (s *Server) handleReloads(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", audit.DefaultLimit, audit.MaxLimit)
	entries, err := s.service.RecentReloads(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, ReloadsResponse{Total: len(entries), Data: entries})
}

func (s *Server) handleReloadStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.service.LimiterStatus())
}

// validationMessage summarizes validator errors as "field: tag" pairs.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		parts[i] = fe.Field() + " failed " + fe.Tag()
	}
	return strings.Join(parts, "; ")
}
