package api

import (
	"errors"
	"net/http"

	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/convo"
)

func handleListSessions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	sessions, err := deps.Agent.Sessions(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_LIST_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	sessionID := r.PathValue("id")
	messages, err := deps.Agent.SessionMessages(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, convo.ErrSessionNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "no session with that id", false, map[string]any{"session_id": sessionID})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_LOOKUP_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   messages,
		"count":      len(messages),
	})
}

func handleClearSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	sessionID := r.PathValue("id")
	if err := deps.Agent.ClearSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, convo.ErrSessionNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "no session with that id", false, map[string]any{"session_id": sessionID})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_CLEAR_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "cleared": true})
}

func handleClearAllSessions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	if err := deps.Agent.ClearAllSessions(r.Context()); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_CLEAR_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}
