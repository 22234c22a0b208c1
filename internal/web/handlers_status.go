package web

import (
	"net/http"

	"github.com/JonMunkholm/trackstats/internal/web/templates"
)

// statusReloads is how many audit entries the status page lists.
const statusReloads = 10

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	view := templates.StatusView{Limiter: s.service.LimiterStatus()}

	if ds, ok := s.service.Current(); ok {
		view.Loaded = true
		view.Summary = ds.Summary()
		view.Platforms = ds.PlatformComparison()
		view.TopArtists = ds.TopArtists(0)
	}

	reloads, err := s.service.RecentReloads(r.Context(), statusReloads)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	view.Reloads = reloads

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.StatusPage(view).Render(r.Context(), w); err != nil {
		logError(r, err, http.StatusInternalServerError, "ERR000")
	}
}
