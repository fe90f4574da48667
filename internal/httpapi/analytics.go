package httpapi

import (
	"net/http"
)

func (s *Server) handlePlatform(w http.ResponseWriter, r *http.Request) {
	t := s.authenticate(w, r)
	if t == nil {
		return
	}
	stats, err := s.analytics.Platform(r.Context(), queryDays(r))
	if err != nil {
		s.log.Error("httpapi: platform analytics", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "analytics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	t := s.authenticate(w, r)
	if t == nil {
		return
	}
	// A tenant may only read its own cost rollup.
	if q := r.URL.Query().Get("tenant"); q != "" && q != t.ID {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "cost rollups are per-tenant")
		return
	}
	costs, err := s.analytics.TenantCosts(r.Context(), t.ID, queryDays(r))
	if err != nil {
		s.log.Error("httpapi: tenant cost analytics", "tenant", t.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "analytics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant": t.ID,
		"days":   queryDays(r),
		"costs":  costs,
	})
}
