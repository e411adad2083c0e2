package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/syncgate/internal/store"
)

// handleRunQuery executes either a stored query (id in the path) or an ad
// hoc definition (request body). A stored id takes precedence: when both
// are present the body is ignored.
func (s *Server) handleRunQuery(w http.ResponseWriter, r *http.Request) {
	h := storeFrom(r)

	var def map[string]any
	if queryID := chi.URLParam(r, "query_id"); queryID != "" {
		stored, err := h.Get(r.Context(), store.KindQuery, queryID)
		if err != nil {
			s.storeError(w, r, err, "loading stored query")
			return
		}
		def = queryDefinition(stored)
	} else {
		if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	results, err := h.RunQuery(r.Context(), def)
	if err != nil {
		s.storeError(w, r, err, "running query")
		return
	}
	writeJSON(w, http.StatusOK, multiItem(results))
}

// queryDefinition extracts the executable definition from a stored query
// entity. Definitions live under "def"; older clients store the filter
// fields directly on the entity, so absent a "def" key the entity itself
// (minus its own identity fields) is the definition.
func queryDefinition(stored store.Entity) map[string]any {
	if def, ok := stored["def"].(map[string]any); ok {
		return def
	}
	def := make(map[string]any, len(stored))
	for k, v := range stored {
		if k == "_id" || k == "name" {
			continue
		}
		def[k] = v
	}
	return def
}
