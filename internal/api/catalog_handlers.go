package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/challenge-bot/internal/models"
)

// Catalog handlers: levels, the challenges on one level, and languages

func (s *Server) handleListLevels(w http.ResponseWriter, r *http.Request) {
	levels := s.deps.Catalog.Levels()
	respondJSON(w, http.StatusOK, map[string]any{
		"levels": levels,
		"total":  len(levels),
	})
}

func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(chi.URLParam(r, "level"))
	if err != nil || level < 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "level must be a non-negative number")
		return
	}

	challenges := s.deps.Catalog.Challenges(level)
	if len(challenges) == 0 {
		respondError(w, http.StatusNotFound, "not_found", "no challenges on this level")
		return
	}

	lang := models.Language("")
	if q := r.URL.Query().Get("language"); q != "" {
		parsed, ok := models.ParseLanguage(q)
		if !ok {
			respondError(w, http.StatusBadRequest, "validation_error", "unknown language: "+q)
			return
		}
		lang = parsed
	}

	summaries := make([]models.ChallengeSummary, 0, len(challenges))
	for _, ch := range challenges {
		if lang != "" && !ch.Supports(lang) {
			continue
		}
		summaries = append(summaries, ch.Summary())
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"challenges": summaries,
		"total":      len(summaries),
	})
}

func (s *Server) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	languages := s.deps.Catalog.Languages()
	respondJSON(w, http.StatusOK, map[string]any{
		"languages": languages,
		"total":     len(languages),
	})
}
