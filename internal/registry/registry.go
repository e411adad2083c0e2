// Package registry caches per-tenant store handles.
//
// Exactly one handle exists per tenant id for the life of the process. The
// cache is append-only: handles are created at login and never torn down,
// so two concurrent logins for the same tenant always converge on the same
// instance.
package registry

import (
	"database/sql"
	"errors"
	"sync"

	"github.com/nerrad567/syncgate/internal/store"
)

// ErrNotActivated indicates a lookup for a tenant that never logged in on
// this process. Sessions minted before a restart hit this.
var ErrNotActivated = errors.New("tenant not activated")

// Registry maps tenant ids to their store handles.
type Registry struct {
	db *sql.DB

	mu      sync.RWMutex
	handles map[string]store.Store
}

// New creates an empty registry over the shared database.
func New(db *sql.DB) *Registry {
	return &Registry{
		db:      db,
		handles: make(map[string]store.Store),
	}
}

// Activate returns the tenant's store handle, creating and caching it on
// first use. Safe for concurrent callers: all of them get the same handle.
func (r *Registry) Activate(tenantID string) store.Store {
	r.mu.RLock()
	h, ok := r.handles[tenantID]
	r.mu.RUnlock()
	if ok {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[tenantID]; ok {
		return h
	}
	h = store.NewSQLiteStore(r.db, tenantID)
	r.handles[tenantID] = h
	return h
}

// StoreFor looks up an already-activated handle. It never creates one:
// a miss means the session predates this process.
func (r *Registry) StoreFor(tenantID string) (store.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[tenantID]
	if !ok {
		return nil, ErrNotActivated
	}
	return h, nil
}

// Len reports how many tenants have been activated.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
