// Package backend manages tenant accounts: registration, credential
// verification, and the service-level operations a logged-in tenant can
// perform against the account collection.
//
// Tenants are the unit of isolation. Every other part of the gateway works
// through a store handle bound to exactly one tenant id; this package is
// where those ids come from.
package backend
