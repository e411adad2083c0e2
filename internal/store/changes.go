package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/nerrad567/syncgate/internal/changeset"
)

// ChangesSince returns every change logged after the given cursor, oldest
// first, along with a new cursor covering them. An empty or "0" cursor reads
// from the beginning. The read does not mutate anything: repeating it with
// the same cursor yields the same set plus anything applied in between.
func (s *SQLiteStore) ChangesSince(ctx context.Context, cursor string) (*changeset.ChangeSet, error) {
	since := int64(0)
	if cursor != "" {
		v, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil || v < 0 {
			return nil, ErrBadCursor
		}
		since = v
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, change_id, op, kind, entity_id, payload
		FROM changes
		WHERE tenant_id = ? AND seq > ?
		ORDER BY seq`, s.tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("querying changes: %w", err)
	}
	defer rows.Close()

	cs := &changeset.ChangeSet{Until: strconv.FormatInt(since, 10)}
	for rows.Next() {
		var (
			seq     int64
			c       changeset.Change
			payload string
		)
		if err := rows.Scan(&seq, &c.ID, &c.Op, &c.Kind, &c.EntityID, &payload); err != nil {
			return nil, fmt.Errorf("scanning change row: %w", err)
		}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &c.Payload); err != nil {
				return nil, fmt.Errorf("decoding change payload: %w", err)
			}
		}
		cs.Changes = append(cs.Changes, c)
		cs.Until = strconv.FormatInt(seq, 10)
	}
	return cs, rows.Err()
}

// Apply commits a whole change set in a single transaction: either every
// change lands, or none do. Each applied change is appended to the log so
// other replicas see it through ChangesSince.
func (s *SQLiteStore) Apply(ctx context.Context, cs *changeset.ChangeSet) error {
	if cs == nil || len(cs.Changes) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for i, c := range cs.Changes {
			if err := s.applyChange(ctx, tx, c); err != nil {
				return fmt.Errorf("applying change %d (%s %s): %w", i, c.Op, c.Kind, err)
			}
			if err := s.recordChange(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) applyChange(ctx context.Context, tx *sql.Tx, c changeset.Change) error {
	switch c.Kind {
	case changeset.KindTagging:
		return s.applyMembership(ctx, tx, KindTag, c)
	case changeset.KindGrouping:
		return s.applyMembership(ctx, tx, KindGroup, c)
	case changeset.KindRelation:
		return s.applyRelation(ctx, tx, c)
	case changeset.KindObject:
		return s.applyObject(ctx, tx, c)
	}
	if IsKind(c.Kind) {
		return s.applyMetadata(ctx, tx, c)
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
}

func (s *SQLiteStore) applyMetadata(ctx context.Context, tx *sql.Tx, c changeset.Change) error {
	switch c.Op {
	case changeset.OpCreate:
		fields := c.Fields()
		name, _ := fields["name"].(string)
		raw, err := encodeFields(fields)
		if err != nil {
			return err
		}
		id := c.EntityID
		if id == "" {
			id = newID(c.Kind)
		}
		now := nowRFC3339()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO metadata (tenant_id, kind, id, name, fields, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (tenant_id, kind, id) DO UPDATE SET name = excluded.name, fields = excluded.fields, updated_at = excluded.updated_at`,
			s.tenantID, c.Kind, id, name, raw, now, now)
		return err
	case changeset.OpModify:
		row := tx.QueryRowContext(ctx, `
			SELECT name, fields
			FROM metadata
			WHERE tenant_id = ? AND kind = ? AND id = ?`, s.tenantID, c.Kind, c.EntityID)
		var name, raw string
		if err := row.Scan(&name, &raw); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		current, err := decodeEntity(raw)
		if err != nil {
			return err
		}
		for k, v := range c.Fields() {
			current[k] = v
		}
		if n, ok := current["name"].(string); ok {
			name = n
		}
		merged, err := encodeFields(current)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE metadata SET name = ?, fields = ?, updated_at = ?
			WHERE tenant_id = ? AND kind = ? AND id = ?`, name, merged, nowRFC3339(), s.tenantID, c.Kind, c.EntityID)
		return err
	case changeset.OpDelete:
		_, err := tx.ExecContext(ctx, `
			DELETE FROM metadata
			WHERE tenant_id = ? AND kind = ? AND id = ?`, s.tenantID, c.Kind, c.EntityID)
		return err
	}
	return fmt.Errorf("op %q not valid for kind %q", c.Op, c.Kind)
}

func (s *SQLiteStore) applyObject(ctx context.Context, tx *sql.Tx, c changeset.Change) error {
	switch c.Op {
	case changeset.OpCreate, changeset.OpModify:
		fields := c.Fields()
		ref, _ := fields["_ref"].(string)
		delete(fields, "_ref")
		raw, err := encodeFields(fields)
		if err != nil {
			return err
		}
		id := c.EntityID
		if id == "" {
			id = NewObjectID()
		}
		now := nowRFC3339()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO objects (tenant_id, id, ref, data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (tenant_id, id) DO UPDATE SET ref = excluded.ref, data = excluded.data, updated_at = excluded.updated_at`,
			s.tenantID, id, ref, raw, now, now)
		return err
	case changeset.OpDelete:
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM objects
			WHERE tenant_id = ? AND id = ?`, s.tenantID, c.EntityID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM memberships
			WHERE tenant_id = ? AND object_id = ?`, s.tenantID, c.EntityID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM relations
			WHERE tenant_id = ? AND (subject_id = ? OR object_id = ?)`,
			s.tenantID, c.EntityID, c.EntityID)
		return err
	}
	return fmt.Errorf("op %q not valid for objects", c.Op)
}

func (s *SQLiteStore) applyMembership(ctx context.Context, tx *sql.Tx, kind string, c changeset.Change) error {
	ids := c.IDs()
	switch c.Op {
	case changeset.OpAssign:
		for _, tid := range ids {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO memberships (tenant_id, kind, object_id, target_id)
				VALUES (?, ?, ?, ?)`, s.tenantID, kind, c.EntityID, tid); err != nil {
				return err
			}
		}
		return nil
	case changeset.OpUnassign:
		for _, tid := range ids {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM memberships
				WHERE tenant_id = ? AND kind = ? AND object_id = ? AND target_id = ?`,
				s.tenantID, kind, c.EntityID, tid); err != nil {
				return err
			}
		}
		return nil
	case changeset.OpReplace:
		// A replace recorded from the tag/group side carries the target id
		// in EntityID and objects in "ids"; replay it against the same
		// columns it was recorded from, or replicas invert the edge.
		if c.Inverse() {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM memberships
				WHERE tenant_id = ? AND kind = ? AND target_id = ?`, s.tenantID, kind, c.EntityID); err != nil {
				return err
			}
			for _, oid := range ids {
				if _, err := tx.ExecContext(ctx, `
					INSERT OR IGNORE INTO memberships (tenant_id, kind, object_id, target_id)
					VALUES (?, ?, ?, ?)`, s.tenantID, kind, oid, c.EntityID); err != nil {
					return err
				}
			}
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM memberships
			WHERE tenant_id = ? AND kind = ? AND object_id = ?`, s.tenantID, kind, c.EntityID); err != nil {
			return err
		}
		for _, tid := range ids {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO memberships (tenant_id, kind, object_id, target_id)
				VALUES (?, ?, ?, ?)`, s.tenantID, kind, c.EntityID, tid); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("op %q not valid for memberships", c.Op)
}

func (s *SQLiteStore) applyRelation(ctx context.Context, tx *sql.Tx, c changeset.Change) error {
	role := c.RoleID()
	if role == "" {
		return errors.New("relation change missing role_id")
	}
	ids := c.IDs()
	switch c.Op {
	case changeset.OpAssign:
		for _, oid := range ids {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO relations (tenant_id, subject_id, role_id, object_id)
				VALUES (?, ?, ?, ?)`, s.tenantID, c.EntityID, role, oid); err != nil {
				return err
			}
		}
		return nil
	case changeset.OpUnassign:
		for _, oid := range ids {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM relations
				WHERE tenant_id = ? AND subject_id = ? AND role_id = ? AND object_id = ?`,
				s.tenantID, c.EntityID, role, oid); err != nil {
				return err
			}
		}
		return nil
	case changeset.OpReplace:
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM relations
			WHERE tenant_id = ? AND subject_id = ? AND role_id = ?`,
			s.tenantID, c.EntityID, role); err != nil {
			return err
		}
		for _, oid := range ids {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO relations (tenant_id, subject_id, role_id, object_id)
				VALUES (?, ?, ?, ?)`, s.tenantID, c.EntityID, role, oid); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("op %q not valid for relations", c.Op)
}
