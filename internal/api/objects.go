package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/syncgate/internal/store"
)

// handleGetObject fetches one object by id.
func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "object_id")
	obj, err := storeFrom(r).GetObject(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err, "fetching object")
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

// objectStringRequest is the POST /object-string payload.
type objectStringRequest struct {
	ObjectRef string `json:"objectRef"`
}

// handleObjectString resolves a reference string to its entity. Unknown
// references are a 404; resolution never records anything.
func (s *Server) handleObjectString(w http.ResponseWriter, r *http.Request) {
	var req objectStringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ObjectRef == "" {
		writeBadRequest(w, "objectRef is required")
		return
	}

	entity, err := storeFrom(r).ResolveRef(r.Context(), req.ObjectRef)
	if err != nil {
		s.storeError(w, r, err, "resolving object reference")
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// bulkLoadRequest is the POST /bulk-load payload.
type bulkLoadRequest struct {
	IDs []string `json:"ids"`
}

// handleBulkLoad batch-fetches objects by id. Ids with no object are
// silently skipped; the caller diffs the result against the request.
func (s *Server) handleBulkLoad(w http.ResponseWriter, r *http.Request) {
	var req bulkLoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	objects, err := storeFrom(r).BulkLoad(r.Context(), req.IDs)
	if err != nil {
		s.storeError(w, r, err, "bulk loading objects")
		return
	}
	if objects == nil {
		objects = []store.Entity{}
	}
	writeJSON(w, http.StatusOK, multiItem(objects))
}
