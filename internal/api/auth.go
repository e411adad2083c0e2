package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/syncgate/internal/backend"
	"github.com/nerrad567/syncgate/internal/session"
)

// loginRequest is the POST /login payload.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin authenticates a tenant and mints the session cookie.
// The tenant's store handle is activated here, so every authorized request
// afterwards finds it in the registry.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	tenant, err := s.backend.LoginTenant(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, backend.ErrInvalidCredentials) {
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.logger.Error("login failed", "error", err)
		writeInternalError(w, "login failed")
		return
	}

	s.registry.Activate(tenant.ID)

	sess := &session.Session{
		TenantID:  tenant.ID,
		IsAdmin:   tenant.IsAdmin,
		LastVisit: time.Now().UTC(),
	}
	if err := s.sessions.Save(w, sess); err != nil {
		s.logger.Error("saving session", "error", err)
		writeInternalError(w, "creating session")
		return
	}

	// The Tenant JSON rendering omits credential material.
	writeJSON(w, http.StatusOK, tenant)
}

// handleLoginProbe reports whether the request carries a live session.
// Unauthenticated probes get logged_in=false with status 200, not a 401.
func (s *Server) handleLoginProbe(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"logged_in": false})
		return
	}

	res := map[string]any{
		"logged_in": true,
		"isAdmin":   sess.IsAdmin,
	}
	if tenant, err := s.backend.GetTenant(r.Context(), sess.TenantID); err == nil {
		res["tenant"] = tenant
	}
	writeJSON(w, http.StatusOK, res)
}

// handleLogout clears the session cookie. Idempotent; logging out twice is
// not an error.
func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.sessions.Clear(w)
	writeJSON(w, http.StatusOK, map[string]any{})
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
