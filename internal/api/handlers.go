package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/terra-clan/challenge-bot/internal/health"
	"github.com/terra-clan/challenge-bot/internal/models"
)

// Response helpers

type apiResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// queryInt returns a non-negative integer query parameter or def
func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	results := map[string]error{}
	if s.deps.Health != nil {
		results = s.deps.Health.CheckAll(r.Context())
	}

	checks := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			slog.Warn("dependency not ready", "dependency", name, "error", err)
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	if !health.Healthy(results) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(apiResponse{
			Success: false,
			Data:    map[string]any{"status": "not_ready", "checks": checks},
			Error:   &apiError{Code: "not_ready", Message: "service not ready"},
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"checks":     checks,
		"challenges": s.deps.Catalog.Count(),
	})
}

// Compilation handlers

func (s *Server) handleListCompilations(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		respondError(w, http.StatusServiceUnavailable, "journal_disabled", "compilation journal is not configured")
		return
	}

	filters := models.CompilationFilters{
		OwnerID: r.URL.Query().Get("owner_id"),
		Limit:   queryInt(r, "limit", 50),
		Offset:  queryInt(r, "offset", 0),
	}
	if lang := r.URL.Query().Get("language"); lang != "" {
		parsed, ok := models.ParseLanguage(lang)
		if !ok {
			respondError(w, http.StatusBadRequest, "validation_error", "unknown language: "+lang)
			return
		}
		filters.Language = parsed
	}

	records, err := s.deps.Journal.ListCompilations(r.Context(), filters)
	if err != nil {
		slog.Error("failed to list compilations", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list compilations")
		return
	}
	if records == nil {
		records = []*models.CompilationRecord{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"compilations": records,
		"total":        len(records),
	})
}

func (s *Server) handleCompilationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Stats.CompilationStats(r.Context())
	if err != nil {
		slog.Error("failed to read compilation stats", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to read compilation stats")
		return
	}
	if stats == nil {
		stats = []models.CompilationStats{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"stats": stats,
	})
}
