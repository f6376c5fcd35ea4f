package api

import (
	"net/http"

	"github.com/askdb/askdb/internal/auth"
)

func handleCacheStats(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	stats, err := deps.Agent.CacheStats()
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func handleCacheCleanup(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	removed, err := deps.Agent.CacheCleanup(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func handleCacheClear(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	if err := deps.Agent.CacheClear(r.Context()); err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}
