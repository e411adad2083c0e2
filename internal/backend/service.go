package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/syncgate/internal/changeset"
	"github.com/nerrad567/syncgate/internal/infrastructure/logging"
	"github.com/nerrad567/syncgate/internal/store"
)

// Service exposes the account-level operations the API surface needs.
type Service interface {
	// LoginTenant verifies credentials and returns the matching tenant.
	// Unknown names and wrong passwords both yield ErrInvalidCredentials.
	LoginTenant(ctx context.Context, name, password string) (*Tenant, error)

	// GetTenant fetches a tenant by id.
	GetTenant(ctx context.Context, id string) (*Tenant, error)

	// Tenants lists every registered tenant.
	Tenants(ctx context.Context) ([]Tenant, error)

	// Register creates a new tenant account.
	Register(ctx context.Context, name, password string, isAdmin bool) (*Tenant, error)

	// DropTenant removes a tenant account.
	DropTenant(ctx context.Context, id string) error

	// UpdateIfAppChanges bumps the tenant's account record when an applied
	// change set touches application definitions rather than plain objects.
	UpdateIfAppChanges(ctx context.Context, tenantID string, cs *changeset.ChangeSet) error
}

// TenantService implements Service over a TenantRepository.
type TenantService struct {
	repo   TenantRepository
	logger *logging.Logger
}

// NewTenantService creates the account service.
func NewTenantService(repo TenantRepository, logger *logging.Logger) *TenantService {
	return &TenantService{repo: repo, logger: logger}
}

// LoginTenant verifies credentials against the stored Argon2id hash.
func (s *TenantService) LoginTenant(ctx context.Context, name, password string) (*Tenant, error) {
	tenant, err := s.repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	ok, err := VerifyPassword(password, tenant.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		s.logger.Warn("failed login attempt", "tenant", name)
		return nil, ErrInvalidCredentials
	}
	return tenant, nil
}

// GetTenant fetches a tenant by id.
func (s *TenantService) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// Tenants lists every registered tenant.
func (s *TenantService) Tenants(ctx context.Context) ([]Tenant, error) {
	return s.repo.List(ctx)
}

// Register creates a new tenant account with a hashed password.
func (s *TenantService) Register(ctx context.Context, name, password string, isAdmin bool) (*Tenant, error) {
	if name == "" || password == "" {
		return nil, fmt.Errorf("name and password are required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	tenant := &Tenant{Name: name, PasswordHash: hash, IsAdmin: isAdmin}
	if err := s.repo.Create(ctx, tenant); err != nil {
		return nil, err
	}
	s.logger.Info("registered tenant", "tenant_id", tenant.ID, "name", name, "is_admin", isAdmin)
	return tenant, nil
}

// DropTenant removes a tenant account.
func (s *TenantService) DropTenant(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("dropped tenant", "tenant_id", id)
	return nil
}

// UpdateIfAppChanges bumps the account record when the change set touches
// metadata definitions. Object-only change sets leave it alone.
func (s *TenantService) UpdateIfAppChanges(ctx context.Context, tenantID string, cs *changeset.ChangeSet) error {
	if cs == nil || !touchesAppDefinitions(cs) {
		return nil
	}
	return s.repo.Touch(ctx, tenantID)
}

func touchesAppDefinitions(cs *changeset.ChangeSet) bool {
	for _, c := range cs.Changes {
		if store.IsKind(c.Kind) {
			return true
		}
	}
	return false
}
