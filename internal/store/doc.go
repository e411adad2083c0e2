// Package store defines the tenant interface: the per-tenant handle through
// which all object, metadata, relation, change and query operations are
// performed.
//
// The Store interface is the contract the HTTP layer programs against; the
// SQLite implementation in this package is the reference backend. A handle is
// bound to exactly one tenant — the gateway's registry guarantees at most one
// handle per tenant id per process.
//
// Every mutation made through a Store is recorded in the tenant's change
// history inside the same transaction, so sync clients fetching "changes
// since cursor" observe server-side edits as well as replicated ones.
package store
