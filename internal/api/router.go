package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/syncgate/internal/shell"
	"github.com/nerrad567/syncgate/internal/store"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Unauthenticated surface
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/login", s.handleLoginProbe)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	// Authenticated surface
	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		// Admin-only tenant administration
		r.With(s.requireAdmin).Get("/tenants", s.handleListTenants)
		r.With(s.requireAdmin).Post("/register", s.handleRegister)
		r.Delete("/tenants/{tenant_id}", s.handleDropTenant)

		// Change protocol
		r.Get("/changes/{cursor}", s.handleChangesSince)
		r.Post("/changes", s.handleApplyChanges)
		r.Get("/feed", s.handleFeed)

		// Metadata and objects
		r.Get("/metadata", s.handleMetadata)
		r.Get("/objects/{object_id}", s.handleGetObject)
		r.Post("/object-string", s.handleObjectString)
		r.Post("/bulk-load", s.handleBulkLoad)

		// Kind collections share one handler set; the path segment is the
		// only difference between them.
		kindRoutes := map[string]string{
			"/tags":       store.KindTag,
			"/groups":     store.KindGroup,
			"/roles":      store.KindRole,
			"/attributes": store.KindAttribute,
			"/classes":    store.KindClass,
			"/queries":    store.KindQuery,
		}
		for path, kind := range kindRoutes {
			r.Get(path, s.handleListKind(kind))
			r.Post(path, s.handleCreateKind(kind))
			r.Put(path+"/{id}", s.handleModifyKind(kind))
			r.Delete(path+"/{id}", s.handleDeleteKind(kind))
		}

		// Object -> tag/group membership
		r.Get("/object-tags/{object_id}", s.handleGetObjectTags)
		r.Put("/object-tags/{object_id}", s.handleAddObjectTags)
		r.Post("/object-tags/{object_id}", s.handleSetObjectTags)
		r.Post("/object-tags/{object_id}/{tag_id}", s.handleTagObject)

		r.Get("/object-groups/{object_id}", s.handleGetObjectGroups)
		r.Put("/object-groups/{object_id}", s.handleAddObjectGroups)
		r.Post("/object-groups/{object_id}", s.handleSetObjectGroups)
		r.Post("/object-groups/{object_id}/{group_id}", s.handleGroupObject)

		// Reverse membership
		r.Get("/tagged/{tag_id}", s.handleGetTagged)
		r.Put("/tagged/{tag_id}", s.handleAddTagged)
		r.Post("/tagged/{tag_id}", s.handleSetTagged)

		r.Get("/groupged/{group_id}", s.handleGetGroupged)
		r.Put("/groupged/{group_id}", s.handleAddGroupged)
		r.Post("/groupged/{group_id}", s.handleSetGroupged)

		// Role-typed relations and adjacency
		r.Get("/object-roles/{object_id}", s.handleGetObjectRoles)
		r.Get("/related-objects/{object_id}/{role_id}", s.handleGetRelated)
		r.Put("/related-objects/{object_id}/{role_id}", s.handleAddRelated)
		r.Post("/related-objects/{object_id}/{role_id}", s.handleSetRelated)

		r.Get("/tag-neighbors/{object_id}", s.handleTagNeighbors)
		r.Get("/group-neighbors/{object_id}", s.handleGroupNeighbors)
		r.Get("/role-neighbors/{object_id}", s.handleRoleNeighbors)

		// Query runner
		r.Post("/run-query", s.handleRunQuery)
		r.Post("/run-query/{query_id}", s.handleRunQuery)
	})

	// Application-shell fallback: any GET not matched above serves the
	// shell with 200, including GETs on write-only paths like /register.
	// Registered last so it never shadows an API route.
	shellHandler := shell.Handler(s.shellDir)
	r.NotFound(s.handleFallback(shellHandler))
	r.MethodNotAllowed(s.handleMethodMiss(shellHandler))

	return r
}

// handleFallback serves the application shell for unmatched GET paths.
// Non-GET misses keep their 404 so API typos stay visible.
func (s *Server) handleFallback(shellHandler http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeNotFound(w, "route not found")
			return
		}
		shellHandler.ServeHTTP(w, r)
	}
}

// handleMethodMiss handles a known path hit with an unregistered method.
// A GET still serves the shell, so deep links into the app work even when
// the path collides with a write-only API route.
func (s *Server) handleMethodMiss(shellHandler http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			shellHandler.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	}
}
