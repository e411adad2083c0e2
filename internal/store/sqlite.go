package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/syncgate/internal/changeset"
)

// SQLiteStore implements Store against a shared SQLite database. Every query
// carries the tenant id, so handles for different tenants never see each
// other's rows.
type SQLiteStore struct {
	db       *sql.DB
	tenantID string
}

// NewSQLiteStore creates a store handle bound to a single tenant.
func NewSQLiteStore(db *sql.DB, tenantID string) *SQLiteStore {
	return &SQLiteStore{db: db, tenantID: tenantID}
}

// TenantID returns the id of the tenant this handle is bound to.
func (s *SQLiteStore) TenantID() string {
	return s.tenantID
}

// idPrefixes maps each kind to the short prefix its generated ids carry.
var idPrefixes = map[string]string{
	KindTag:       "tag",
	KindGroup:     "group",
	KindRole:      "role",
	KindAttribute: "attr",
	KindClass:     "class",
	KindQuery:     "query",
}

func newID(kind string) string {
	prefix, ok := idPrefixes[kind]
	if !ok {
		prefix = "obj"
	}
	return prefix + "-" + uuid.NewString()[:8]
}

// NewObjectID generates an identifier for a freshly created object.
func NewObjectID() string {
	return "obj-" + uuid.NewString()[:8]
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// recordChange appends a row to the change log inside the caller's
// transaction, so a mutation and its log entry commit or fail together.
func (s *SQLiteStore) recordChange(ctx context.Context, tx *sql.Tx, c changeset.Change) error {
	payload, err := json.Marshal(c.Payload)
	if err != nil {
		return fmt.Errorf("encoding change payload: %w", err)
	}
	id := c.ID
	if id == "" {
		id = "chg-" + uuid.NewString()[:8]
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO changes (tenant_id, change_id, op, kind, entity_id, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.tenantID, id, c.Op, c.Kind, c.EntityID, string(payload), nowRFC3339())
	if err != nil {
		return fmt.Errorf("recording change: %w", err)
	}
	return nil
}

// nowRFC3339 is the timestamp format stored in created_at/updated_at
// columns, matching the tenant table's bookkeeping.
func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func decodeEntity(raw string) (Entity, error) {
	var e Entity
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("decoding entity fields: %w", err)
	}
	return e, nil
}

func encodeFields(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encoding entity fields: %w", err)
	}
	return string(raw), nil
}
