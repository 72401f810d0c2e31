package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/challenge-bot/internal/models"
	"github.com/terra-clan/challenge-bot/internal/session"
)

// cancelTimeout bounds how long a cancel request waits for teardown
const cancelTimeout = 15 * time.Second

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	all := s.deps.Sessions.List()

	owner := r.URL.Query().Get("owner_id")
	channel := r.URL.Query().Get("channel_id")
	sessions := make([]models.SessionInfo, 0, len(all))
	for _, info := range all {
		if owner != "" && info.OwnerID != owner {
			continue
		}
		if channel != "" && info.ChannelID != channel {
			continue
		}
		sessions = append(sessions, info)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	info, ok := s.deps.Sessions.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), cancelTimeout)
	defer cancel()

	if err := s.deps.Sessions.Cancel(ctx, id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		slog.Error("failed to cancel session", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to cancel session")
		return
	}

	slog.Info("session cancelled via API", "session_id", id, "client", callerName(r.Context()))

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "session cancelled",
	})
}
