package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/syncgate/internal/changeset"
)

// handleChangesSince returns every change recorded after the caller's
// cursor. Repeating the call with the same cursor is safe: the read
// mutates nothing.
func (s *Server) handleChangesSince(w http.ResponseWriter, r *http.Request) {
	cursor := chi.URLParam(r, "cursor")
	cs, err := storeFrom(r).ChangesSince(r.Context(), cursor)
	if err != nil {
		s.storeError(w, r, err, "fetching changes")
		return
	}
	writeJSON(w, http.StatusOK, cs.ToMap())
}

// handleApplyChanges applies a posted change set atomically. The store
// commits all of it or none of it; side effects (feed broadcast, broker
// notification, history point, account bump) run only after the commit.
func (s *Server) handleApplyChanges(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	cs, err := changeset.FromMap(raw)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	h := storeFrom(r)
	start := time.Now()
	if err := h.Apply(r.Context(), cs); err != nil {
		s.storeError(w, r, err, "applying changes")
		return
	}
	duration := time.Since(start)

	tenantID := h.TenantID()
	if err := s.backend.UpdateIfAppChanges(r.Context(), tenantID, cs); err != nil {
		s.logger.Warn("updating tenant after apply", "tenant_id", tenantID, "error", err)
	}

	observeApply(tenantID, cs.Len(), duration)
	if s.hub != nil {
		s.hub.BroadcastChanges(tenantID, cs)
	}
	if s.notifier != nil {
		s.notifier.Publish(tenantID, cs.Len(), cs.Until)
	}
	if s.history != nil {
		s.history.RecordApply(tenantID, cs.Len(), duration)
	}

	writeJSON(w, http.StatusOK, map[string]any{})
}
