package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TenantRepository defines the interface for tenant account persistence.
type TenantRepository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetByName(ctx context.Context, name string) (*Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	Touch(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// SQLiteTenantRepository implements TenantRepository using SQLite.
type SQLiteTenantRepository struct {
	db *sql.DB
}

// NewTenantRepository creates a new SQLite-backed tenant repository.
func NewTenantRepository(db *sql.DB) *SQLiteTenantRepository {
	return &SQLiteTenantRepository{db: db}
}

// Create inserts a new tenant account. The ID is generated if empty.
func (r *SQLiteTenantRepository) Create(ctx context.Context, tenant *Tenant) error {
	if tenant.ID == "" {
		tenant.ID = "tnt-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Truncate(time.Second)
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, password_hash, is_admin, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tenant.ID, tenant.Name, tenant.PasswordHash, boolToInt(tenant.IsAdmin),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTenantExists
		}
		return fmt.Errorf("creating tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by its unique ID.
func (r *SQLiteTenantRepository) GetByID(ctx context.Context, id string) (*Tenant, error) {
	return r.getTenant(ctx,
		"SELECT id, name, password_hash, is_admin, created_at, updated_at FROM tenants WHERE id = ?", id)
}

// GetByName retrieves a tenant by its login name.
func (r *SQLiteTenantRepository) GetByName(ctx context.Context, name string) (*Tenant, error) {
	return r.getTenant(ctx,
		"SELECT id, name, password_hash, is_admin, created_at, updated_at FROM tenants WHERE name = ?", name)
}

func (r *SQLiteTenantRepository) getTenant(ctx context.Context, query string, arg any) (*Tenant, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	tenant, err := scanTenant(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("querying tenant: %w", err)
	}
	return tenant, nil
}

// List retrieves every tenant, ordered by name.
func (r *SQLiteTenantRepository) List(ctx context.Context) ([]Tenant, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, password_hash, is_admin, created_at, updated_at FROM tenants ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning tenant row: %w", err)
		}
		out = append(out, *tenant)
	}
	return out, rows.Err()
}

// Touch bumps a tenant's updated_at timestamp.
func (r *SQLiteTenantRepository) Touch(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE tenants SET updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("touching tenant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// Delete removes a tenant account.
func (r *SQLiteTenantRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM tenants WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting tenant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// Count returns the number of registered tenants.
func (r *SQLiteTenantRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tenants").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting tenants: %w", err)
	}
	return n, nil
}

func scanTenant(scan func(...any) error) (*Tenant, error) {
	var (
		t                    Tenant
		isAdmin              int
		createdAt, updatedAt string
	)
	if err := scan(&t.ID, &t.Name, &t.PasswordHash, &isAdmin, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.IsAdmin = isAdmin != 0
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
