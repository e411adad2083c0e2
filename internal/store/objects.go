package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/syncgate/internal/changeset"
)

// GetObject retrieves an object by id.
func (s *SQLiteStore) GetObject(ctx context.Context, id string) (Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ref, data
		FROM objects
		WHERE tenant_id = ? AND id = ?`, s.tenantID, id)

	var ref, data string
	if err := row.Scan(&ref, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying object by id: %w", err)
	}
	entity, err := decodeEntity(data)
	if err != nil {
		return nil, err
	}
	entity["_id"] = id
	if ref != "" {
		entity["_ref"] = ref
	}
	return entity, nil
}

// PutObject creates or fully replaces an object and logs the change. If id is
// empty a fresh one is generated.
func (s *SQLiteStore) PutObject(ctx context.Context, id string, data map[string]any) (Entity, error) {
	if id == "" {
		id = NewObjectID()
	}
	clean := stripBookkeeping(data)
	ref, _ := clean["_ref"].(string)
	delete(clean, "_ref")
	raw, err := encodeFields(clean)
	if err != nil {
		return nil, err
	}
	var existed bool
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM objects
			WHERE tenant_id = ? AND id = ?`, s.tenantID, id)
		var n int
		if err := row.Scan(&n); err != nil {
			return fmt.Errorf("checking object existence: %w", err)
		}
		existed = n > 0
		now := nowRFC3339()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO objects (tenant_id, id, ref, data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (tenant_id, id) DO UPDATE SET ref = excluded.ref, data = excluded.data, updated_at = excluded.updated_at`,
			s.tenantID, id, ref, raw, now, now)
		if err != nil {
			return fmt.Errorf("upserting object: %w", err)
		}
		op := changeset.OpCreate
		if existed {
			op = changeset.OpModify
		}
		return s.recordChange(ctx, tx, changeset.Change{
			Op: op, Kind: changeset.KindObject, EntityID: id, Payload: clean,
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
	if ref != "" {
		entity["_ref"] = ref
	}
	return entity, nil
}

// DeleteObject removes an object along with its memberships and relations.
func (s *SQLiteStore) DeleteObject(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM objects
			WHERE tenant_id = ? AND id = ?`, s.tenantID, id)
		if err != nil {
			return fmt.Errorf("deleting object: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM memberships
			WHERE tenant_id = ? AND object_id = ?`, s.tenantID, id); err != nil {
			return fmt.Errorf("clearing object memberships: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM relations
			WHERE tenant_id = ? AND (subject_id = ? OR object_id = ?)`, s.tenantID, id, id); err != nil {
			return fmt.Errorf("clearing object relations: %w", err)
		}
		return s.recordChange(ctx, tx, changeset.Change{
			Op: changeset.OpDelete, Kind: changeset.KindObject, EntityID: id,
		})
	})
}

// ResolveRef resolves a "kind:name" reference string. A metadata kind prefix
// resolves against that collection's names; anything else is matched against
// stored object refs. Unknown references are ErrNotFound.
func (s *SQLiteStore) ResolveRef(ctx context.Context, ref string) (Entity, error) {
	if kind, name, ok := strings.Cut(ref, ":"); ok && IsKind(kind) {
		return s.GetByName(ctx, kind, name)
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, data
		FROM objects
		WHERE tenant_id = ? AND ref = ?`, s.tenantID, ref)

	var id, data string
	if err := row.Scan(&id, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying object by ref: %w", err)
	}
	entity, err := decodeEntity(data)
	if err != nil {
		return nil, err
	}
	entity["_id"] = id
	entity["_ref"] = ref
	return entity, nil
}

// BulkLoad fetches the objects named by ids. Missing ids are skipped rather
// than failing the batch.
func (s *SQLiteStore) BulkLoad(ctx context.Context, ids []string) ([]Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, s.tenantID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ref, data
		FROM objects
		WHERE tenant_id = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying objects in bulk: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var id, ref, data string
		if err := rows.Scan(&id, &ref, &data); err != nil {
			return nil, fmt.Errorf("scanning object row: %w", err)
		}
		entity, err := decodeEntity(data)
		if err != nil {
			return nil, err
		}
		entity["_id"] = id
		if ref != "" {
			entity["_ref"] = ref
		}
		out = append(out, entity)
	}
	return out, rows.Err()
}
