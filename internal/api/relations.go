package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Relation endpoints come in symmetric pairs: GET reads the current set as
// {count, results}, PUT unions the posted ids into the set, POST replaces
// the set wholesale.

// decodeIDList reads a JSON array of id strings from the request body.
func decodeIDList(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var ids []string
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		writeBadRequest(w, "expected a JSON array of ids")
		return nil, false
	}
	return ids, true
}

// fanOut runs one assignment per id concurrently and joins them before
// responding. On failure the first error wins, but the caller is told how
// many of the batch landed; nothing is silently dropped.
func fanOut(ctx context.Context, ids []string, assign func(ctx context.Context, id string) error) (succeeded int, first error) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := assign(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if first == nil {
					first = err
				}
				return
			}
			succeeded++
		}(id)
	}
	wg.Wait()
	return succeeded, first
}

// writeFanOutResult reports a joined batch: full success is an empty body,
// partial failure is a 500 carrying the success count.
func (s *Server) writeFanOutResult(w http.ResponseWriter, r *http.Request, succeeded int, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	s.logger.Error("batch relation assignment failed",
		"error", err,
		"succeeded", succeeded,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)
	writeJSON(w, http.StatusInternalServerError, Error{
		Status:    http.StatusInternalServerError,
		Code:      ErrCodeInternal,
		Message:   err.Error(),
		Succeeded: succeeded,
	})
}

// --- object -> tags ---

func (s *Server) handleGetObjectTags(w http.ResponseWriter, r *http.Request) {
	ids, err := storeFrom(r).ObjectTags(r.Context(), chi.URLParam(r, "object_id"))
	if err != nil {
		s.storeError(w, r, err, "reading object tags")
		return
	}
	writeJSON(w, http.StatusOK, multiItem(ids))
}

func (s *Server) handleAddObjectTags(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDList(w, r)
	if !ok {
		return
	}
	oid := chi.URLParam(r, "object_id")
	h := storeFrom(r)
	succeeded, err := fanOut(r.Context(), ids, func(ctx context.Context, tagID string) error {
		return h.Tag(ctx, oid, tagID)
	})
	s.writeFanOutResult(w, r, succeeded, err)
}

func (s *Server) handleSetObjectTags(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDList(w, r)
	if !ok {
		return
	}
	if err := storeFrom(r).SetObjectTags(r.Context(), chi.URLParam(r, "object_id"), ids); err != nil {
		s.storeError(w, r, err, "replacing object tags")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleTagObject(w http.ResponseWriter, r *http.Request) {
	err := storeFrom(r).Tag(r.Context(), chi.URLParam(r, "object_id"), chi.URLParam(r, "tag_id"))
	if err != nil {
		s.storeError(w, r, err, "tagging object")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// --- object -> groups ---

func (s *Server) handleGetObjectGroups(w http.ResponseWriter, r *http.Request) {
	ids, err := storeFrom(r).ObjectGroups(r.Context(), chi.URLParam(r, "object_id"))
	if err != nil {
		s.storeError(w, r, err, "reading object groups")
		return
	}
	writeJSON(w, http.StatusOK, multiItem(ids))
}

func (s *Server) handleAddObjectGroups(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDList(w, r)
	if !ok {
		return
	}
	oid := chi.URLParam(r, "object_id")
	h := storeFrom(r)
	succeeded, err := fanOut(r.Context(), ids, func(ctx context.Context, groupID string) error {
		return h.Group(ctx, oid, groupID)
	})
	s.writeFanOutResult(w, r, succeeded, err)
}

func (s *Server) handleSetObjectGroups(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDList(w, r)
	if !ok {
		return
	}
	if err := storeFrom(r).SetObjectGroups(r.Context(), chi.URLParam(r, "object_id"), ids); err != nil {
		s.storeError(w, r, err, "replacing object groups")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleGroupObject(w http.ResponseWriter, r *http.Request) {
	err := storeFrom(r).Group(r.Context(), chi.URLParam(r, "object_id"), chi.URLParam(r, "group_id"))
	if err != nil {
		s.storeError(w, r, err, "grouping object")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// --- reverse side: tag/group -> objects ---

func (s *Server) handleGetTagged(w http.ResponseWriter, r *http.Request) {
	ids, err := storeFrom(r).TagSet(r.Context(), chi.URLParam(r, "tag_id"))
	if err != nil {
		s.storeError(w, r, err, "reading tag set")
		return
	}
	writeJSON(w, http.StatusOK, multiItem(ids))
}

func (s *Server) handleAddTagged(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDList(w, r)
	if !ok {
		return
	}
	if err := storeFrom(r).AddTagObjects(r.Context(), chi.URLParam(r, "tag_id"), ids); err != nil {
		s.storeError(w, r, err, "adding tagged objects")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleSetTagged(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDList(w, r)
	if !ok {
		return
	}
	if err := storeFrom(r).SetTagObjects(r.Context(), chi.URLParam(r, "tag_id"), ids); err != nil {
		s.storeError(w, r, err, "replacing tag set")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleGetGroupged(w http.ResponseWriter, r *http.Request) {
	ids, err := storeFrom(r).GroupSet(r.Context(), chi.URLParam(r, "group_id"))
	if err != nil {
		s.storeError(w, r, err, "reading group set")
		return
	}
	writeJSON(w, http.StatusOK, multiItem(ids))
}

func (s *Server) handleAddGroupged(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDList(w, r)
	if !ok {
		return
	}
	if err := storeFrom(r).AddGroupObjects(r.Context(), chi.URLParam(r, "group_id"), ids); err != nil {
		s.storeError(w, r, err, "adding grouped objects")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleSetGroupged(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDList(w, r)
	if !ok {
		return
	}
	if err := storeFrom(r).SetGroupObjects(r.Context(), chi.URLParam(r, "group_id"), ids); err != nil {
		s.storeError(w, r, err, "replacing group set")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// --- role-typed relations ---

func (s *Server) handleGetObjectRoles(w http.ResponseWriter, r *http.Request) {
	ids, err := storeFrom(r).ObjectRoles(r.Context(), chi.URLParam(r, "object_id"))
	if err != nil {
		s.storeError(w, r, err, "reading object roles")
		return
	}
	writeJSON(w, http.StatusOK, multiItem(ids))
}

func (s *Server) handleGetRelated(w http.ResponseWriter, r *http.Request) {
	ids, err := storeFrom(r).RoleSet(r.Context(), chi.URLParam(r, "object_id"), chi.URLParam(r, "role_id"))
	if err != nil {
		s.storeError(w, r, err, "reading role set")
		return
	}
	writeJSON(w, http.StatusOK, multiItem(ids))
}

func (s *Server) handleAddRelated(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDList(w, r)
	if !ok {
		return
	}
	err := storeFrom(r).AddRelated(r.Context(), chi.URLParam(r, "object_id"), chi.URLParam(r, "role_id"), ids)
	if err != nil {
		s.storeError(w, r, err, "relating objects")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleSetRelated(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDList(w, r)
	if !ok {
		return
	}
	err := storeFrom(r).SetRelated(r.Context(), chi.URLParam(r, "object_id"), chi.URLParam(r, "role_id"), ids)
	if err != nil {
		s.storeError(w, r, err, "replacing related objects")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// --- adjacency ---

func (s *Server) handleTagNeighbors(w http.ResponseWriter, r *http.Request) {
	neighbors, err := storeFrom(r).TagNeighbors(r.Context(), chi.URLParam(r, "object_id"))
	if err != nil {
		s.storeError(w, r, err, "reading tag neighbors")
		return
	}
	writeJSON(w, http.StatusOK, neighbors)
}

func (s *Server) handleGroupNeighbors(w http.ResponseWriter, r *http.Request) {
	neighbors, err := storeFrom(r).GroupNeighbors(r.Context(), chi.URLParam(r, "object_id"))
	if err != nil {
		s.storeError(w, r, err, "reading group neighbors")
		return
	}
	writeJSON(w, http.StatusOK, neighbors)
}

func (s *Server) handleRoleNeighbors(w http.ResponseWriter, r *http.Request) {
	neighbors, err := storeFrom(r).Relationships(r.Context(), chi.URLParam(r, "object_id"))
	if err != nil {
		s.storeError(w, r, err, "reading role neighbors")
		return
	}
	writeJSON(w, http.StatusOK, neighbors)
}
