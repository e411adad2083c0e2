package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nerrad567/syncgate/internal/changeset"
)

// Metadata returns every metadata instance, keyed kind -> id -> entity.
func (s *SQLiteStore) Metadata(ctx context.Context) (map[string]map[string]Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, id, name, fields
		FROM metadata
		WHERE tenant_id = ?`, s.tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]Entity, len(Kinds))
	for _, k := range Kinds {
		out[k] = map[string]Entity{}
	}
	for rows.Next() {
		var kind, id, name, fields string
		if err := rows.Scan(&kind, &id, &name, &fields); err != nil {
			return nil, fmt.Errorf("scanning metadata row: %w", err)
		}
		entity, err := decodeEntity(fields)
		if err != nil {
			return nil, err
		}
		entity["_id"] = id
		entity["name"] = name
		if out[kind] == nil {
			out[kind] = map[string]Entity{}
		}
		out[kind][id] = entity
	}
	return out, rows.Err()
}

// List retrieves every instance of a kind, ordered by name.
func (s *SQLiteStore) List(ctx context.Context, kind string) ([]Entity, error) {
	if !IsKind(kind) {
		return nil, ErrUnknownKind
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, fields
		FROM metadata
		WHERE tenant_id = ? AND kind = ?
		ORDER BY name`, s.tenantID, kind)
	if err != nil {
		return nil, fmt.Errorf("querying %s list: %w", kind, err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var id, name, fields string
		if err := rows.Scan(&id, &name, &fields); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", kind, err)
		}
		entity, err := decodeEntity(fields)
		if err != nil {
			return nil, err
		}
		entity["_id"] = id
		entity["name"] = name
		out = append(out, entity)
	}
	return out, rows.Err()
}

// Get retrieves a single instance by id.
func (s *SQLiteStore) Get(ctx context.Context, kind, id string) (Entity, error) {
	if !IsKind(kind) {
		return nil, ErrUnknownKind
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT name, fields
		FROM metadata
		WHERE tenant_id = ? AND kind = ? AND id = ?`, s.tenantID, kind, id)

	var name, fields string
	if err := row.Scan(&name, &fields); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying %s by id: %w", kind, err)
	}
	entity, err := decodeEntity(fields)
	if err != nil {
		return nil, err
	}
	entity["_id"] = id
	entity["name"] = name
	return entity, nil
}

// GetByName retrieves a single instance by its name.
func (s *SQLiteStore) GetByName(ctx context.Context, kind, name string) (Entity, error) {
	if !IsKind(kind) {
		return nil, ErrUnknownKind
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, fields
		FROM metadata
		WHERE tenant_id = ? AND kind = ? AND name = ?`, s.tenantID, kind, name)

	var id, fields string
	if err := row.Scan(&id, &fields); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying %s by name: %w", kind, err)
	}
	entity, err := decodeEntity(fields)
	if err != nil {
		return nil, err
	}
	entity["_id"] = id
	entity["name"] = name
	return entity, nil
}

// Create inserts a new instance, generating its id, and logs the change.
func (s *SQLiteStore) Create(ctx context.Context, kind string, fields map[string]any) (Entity, error) {
	if !IsKind(kind) {
		return nil, ErrUnknownKind
	}
	id := newID(kind)
	entity, err := s.createWithID(ctx, kind, id, fields)
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (s *SQLiteStore) createWithID(ctx context.Context, kind, id string, fields map[string]any) (Entity, error) {
	clean := stripBookkeeping(fields)
	name, _ := clean["name"].(string)
	raw, err := encodeFields(clean)
	if err != nil {
		return nil, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowRFC3339()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO metadata (tenant_id, kind, id, name, fields, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, s.tenantID, kind, id, name, raw, now, now)
		if err != nil {
			return fmt.Errorf("inserting %s: %w", kind, err)
		}
		return s.recordChange(ctx, tx, changeset.Change{
			Op: changeset.OpCreate, Kind: kind, EntityID: id, Payload: clean,
		})
	})
	if err != nil {
		return nil, err
	}
	entity := Entity{}
	for k, v := range clean {
		entity[k] = v
	}
	entity["_id"] = id
	return entity, nil
}

// Modify merges the given fields into an existing instance. The id itself is
// never modified; an "_id" key in fields is discarded.
func (s *SQLiteStore) Modify(ctx context.Context, kind, id string, fields map[string]any) (Entity, error) {
	if !IsKind(kind) {
		return nil, ErrUnknownKind
	}
	current, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	clean := stripBookkeeping(fields)
	for k, v := range clean {
		current[k] = v
	}
	name, _ := current["name"].(string)
	persisted := stripBookkeeping(current)
	raw, err := encodeFields(persisted)
	if err != nil {
		return nil, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE metadata SET name = ?, fields = ?, updated_at = ?
			WHERE tenant_id = ? AND kind = ? AND id = ?`, name, raw, nowRFC3339(), s.tenantID, kind, id)
		if err != nil {
			return fmt.Errorf("updating %s: %w", kind, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return s.recordChange(ctx, tx, changeset.Change{
			Op: changeset.OpModify, Kind: kind, EntityID: id, Payload: clean,
		})
	})
	if err != nil {
		return nil, err
	}
	current["_id"] = id
	return current, nil
}

// Delete removes an instance and its memberships or relations. Deleting a
// tag or group clears its assignments; deleting a role clears relations
// typed with it.
func (s *SQLiteStore) Delete(ctx context.Context, kind, id string) error {
	if !IsKind(kind) {
		return ErrUnknownKind
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM metadata
			WHERE tenant_id = ? AND kind = ? AND id = ?`, s.tenantID, kind, id)
		if err != nil {
			return fmt.Errorf("deleting %s: %w", kind, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		switch kind {
		case KindTag, KindGroup:
			_, err = tx.ExecContext(ctx, `
				DELETE FROM memberships
				WHERE tenant_id = ? AND kind = ? AND target_id = ?`, s.tenantID, kind, id)
		case KindRole:
			_, err = tx.ExecContext(ctx, `
				DELETE FROM relations
				WHERE tenant_id = ? AND role_id = ?`, s.tenantID, id)
		}
		if err != nil {
			return fmt.Errorf("clearing %s references: %w", kind, err)
		}
		return s.recordChange(ctx, tx, changeset.Change{
			Op: changeset.OpDelete, Kind: kind, EntityID: id,
		})
	})
}

// stripBookkeeping returns a copy of fields without identifier keys.
func stripBookkeeping(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "_id" {
			continue
		}
		out[k] = v
	}
	return out
}
