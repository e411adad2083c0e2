package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/syncgate/internal/store"
)

// The six metadata collections share one handler set: /tags, /groups,
// /roles, /attributes, /classes and /queries all route here with the kind
// baked into the closure.

// handleListKind returns every instance of a collection.
func (s *Server) handleListKind(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entities, err := storeFrom(r).List(r.Context(), kind)
		if err != nil {
			s.storeError(w, r, err, "listing "+kind)
			return
		}
		if entities == nil {
			entities = []store.Entity{}
		}
		writeJSON(w, http.StatusOK, entities)
	}
}

// handleCreateKind creates a new instance from the posted field map.
func (s *Server) handleCreateKind(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		entity, err := storeFrom(r).Create(r.Context(), kind, fields)
		if err != nil {
			s.storeError(w, r, err, "creating "+kind)
			return
		}
		writeJSON(w, http.StatusOK, entity)
	}
}

// handleModifyKind merges the posted fields into an existing instance.
// The identifier is taken from the path; an "_id" key in the body is
// discarded so the stored id can never change.
func (s *Server) handleModifyKind(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		delete(fields, "_id")

		id := chi.URLParam(r, "id")
		entity, err := storeFrom(r).Modify(r.Context(), kind, id, fields)
		if err != nil {
			s.storeError(w, r, err, "modifying "+kind)
			return
		}
		writeJSON(w, http.StatusOK, entity)
	}
}

// handleDeleteKind removes an instance.
func (s *Server) handleDeleteKind(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := storeFrom(r).Delete(r.Context(), kind, id); err != nil {
			s.storeError(w, r, err, "deleting "+kind)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})
	}
}

// handleMetadata dumps every metadata instance, keyed kind then id.
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := storeFrom(r).Metadata(r.Context())
	if err != nil {
		s.storeError(w, r, err, "loading metadata")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// storeError maps store sentinel errors onto the response envelope.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeNotFound(w, "entity not found")
	case errors.Is(err, store.ErrUnknownKind):
		writeBadRequest(w, "unknown kind")
	case errors.Is(err, store.ErrBadCursor):
		writeBadRequest(w, "invalid change cursor")
	default:
		s.logger.Error(action,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, action)
	}
}
