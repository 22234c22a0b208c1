package web

import (
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/go-chi/render"

	"github.com/JonMunkholm/trackstats/internal/logging"
)

// parseIntParam parses a positive integer query parameter, falling back to
// defaultVal when absent or invalid and clamping to maxVal.
func parseIntParam(r *http.Request, name string, defaultVal, maxVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return min(i, maxVal)
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status        string `json:"status"`
	DatasetLoaded bool   `json:"dataset_loaded"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, loaded := s.service.Current()
	render.JSON(w, r, HealthResponse{Status: "ok", DatasetLoaded: loaded})
}

// recoverer turns a handler panic into a JSON 500 and logs the stack.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			logging.FromContext(r.Context()).Error("panic recovered",
				"path", r.URL.Path,
				"panic", rvr,
				"stack", string(debug.Stack()),
			)
			if r.Header.Get("Connection") != "Upgrade" {
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, ErrorResponse{Error: msgInternal})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
