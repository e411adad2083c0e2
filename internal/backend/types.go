package backend

import (
	"errors"
	"time"
)

// Tenant is an account known to the gateway. The password hash never
// leaves the process: it is excluded from every JSON rendering.
type Tenant struct {
	ID           string    `json:"_id"`
	Name         string    `json:"name"`
	IsAdmin      bool      `json:"isAdmin"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

var (
	// ErrTenantNotFound indicates no tenant exists with the given id or name.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantExists indicates a registration clash on the tenant name.
	ErrTenantExists = errors.New("tenant name already registered")

	// ErrInvalidCredentials indicates a failed login. Unknown name and wrong
	// password are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
