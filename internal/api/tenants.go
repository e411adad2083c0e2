package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/syncgate/internal/backend"
)

// handleListTenants returns every registered tenant. Admin only.
func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := s.backend.Tenants(r.Context())
	if err != nil {
		s.logger.Error("listing tenants", "error", err)
		writeInternalError(w, "listing tenants")
		return
	}
	writeJSON(w, http.StatusOK, multiItem(tenants))
}

// registerRequest is the POST /register payload.
type registerRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"isAdmin"`
}

// handleRegister creates a new tenant account. Admin only.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Password == "" {
		writeBadRequest(w, "name and password are required")
		return
	}

	tenant, err := s.backend.Register(r.Context(), req.Name, req.Password, req.IsAdmin)
	if err != nil {
		if errors.Is(err, backend.ErrTenantExists) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "tenant name already registered")
			return
		}
		s.logger.Error("registering tenant", "error", err)
		writeInternalError(w, "registering tenant")
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

// handleDropTenant removes a tenant account.
func (s *Server) handleDropTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenant_id")
	if err := s.backend.DropTenant(r.Context(), id); err != nil {
		if errors.Is(err, backend.ErrTenantNotFound) {
			writeNotFound(w, "tenant not found")
			return
		}
		s.logger.Error("dropping tenant", "tenant_id", id, "error", err)
		writeInternalError(w, "dropping tenant")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}
