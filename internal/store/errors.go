package store

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist for the tenant.
	ErrNotFound = errors.New("entity not found")

	// ErrUnknownKind indicates a kind outside the supported collections.
	ErrUnknownKind = errors.New("unknown kind")

	// ErrBadCursor indicates a change cursor that is not a valid sequence value.
	ErrBadCursor = errors.New("invalid change cursor")
)
