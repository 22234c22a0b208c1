package web

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/JonMunkholm/trackstats/internal/core"
)

// maxTopArtists caps ?limit= on /api/top-artists.
const maxTopArtists = 1000

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Engine().TracksView()
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, view)
}

func (s *Server) handleTopArtists(w http.ResponseWriter, r *http.Request) {
	k := parseIntParam(r, "limit", core.DefaultTopArtists, maxTopArtists)
	artists, err := s.service.Engine().TopArtists(k)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, artists)
}

func (s *Server) handlePlatformComparison(w http.ResponseWriter, r *http.Request) {
	cmp, err := s.service.Engine().PlatformComparison()
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, cmp)
}

func (s *Server) handleDebugInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.Engine().DebugInfo()
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, info)
}
