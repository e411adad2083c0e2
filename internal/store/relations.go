package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nerrad567/syncgate/internal/changeset"
)

// ObjectTags returns the ids of the tags assigned to an object.
func (s *SQLiteStore) ObjectTags(ctx context.Context, objectID string) ([]string, error) {
	return s.membershipTargets(ctx, KindTag, objectID)
}

// ObjectGroups returns the ids of the groups an object belongs to.
func (s *SQLiteStore) ObjectGroups(ctx context.Context, objectID string) ([]string, error) {
	return s.membershipTargets(ctx, KindGroup, objectID)
}

func (s *SQLiteStore) membershipTargets(ctx context.Context, kind, objectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_id
		FROM memberships
		WHERE tenant_id = ? AND kind = ? AND object_id = ?
		ORDER BY target_id`, s.tenantID, kind, objectID)
	if err != nil {
		return nil, fmt.Errorf("querying object %ss: %w", kind, err)
	}
	return scanIDs(rows)
}

// Tag assigns a single tag to an object. Assigning an already-present tag is
// a no-op and is not logged.
func (s *SQLiteStore) Tag(ctx context.Context, objectID, tagID string) error {
	return s.assignMembership(ctx, KindTag, objectID, tagID)
}

// Group adds an object to a single group. Adding to an already-joined group
// is a no-op and is not logged.
func (s *SQLiteStore) Group(ctx context.Context, objectID, groupID string) error {
	return s.assignMembership(ctx, KindGroup, objectID, groupID)
}

func (s *SQLiteStore) assignMembership(ctx context.Context, kind, objectID, targetID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO memberships (tenant_id, kind, object_id, target_id)
			VALUES (?, ?, ?, ?)`, s.tenantID, kind, objectID, targetID)
		if err != nil {
			return fmt.Errorf("assigning %s: %w", kind, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		changeKind := changeset.KindTagging
		if kind == KindGroup {
			changeKind = changeset.KindGrouping
		}
		return s.recordChange(ctx, tx, changeset.Change{
			Op: changeset.OpAssign, Kind: changeKind, EntityID: objectID,
			Payload: map[string]any{"ids": []string{targetID}},
		})
	})
}

// SetObjectTags replaces an object's full tag set.
func (s *SQLiteStore) SetObjectTags(ctx context.Context, objectID string, tagIDs []string) error {
	return s.replaceMemberships(ctx, KindTag, objectID, tagIDs)
}

// SetObjectGroups replaces an object's full group set.
func (s *SQLiteStore) SetObjectGroups(ctx context.Context, objectID string, groupIDs []string) error {
	return s.replaceMemberships(ctx, KindGroup, objectID, groupIDs)
}

func (s *SQLiteStore) replaceMemberships(ctx context.Context, kind, objectID string, targetIDs []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM memberships
			WHERE tenant_id = ? AND kind = ? AND object_id = ?`, s.tenantID, kind, objectID); err != nil {
			return fmt.Errorf("clearing %s memberships: %w", kind, err)
		}
		for _, tid := range targetIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO memberships (tenant_id, kind, object_id, target_id)
				VALUES (?, ?, ?, ?)`, s.tenantID, kind, objectID, tid); err != nil {
				return fmt.Errorf("inserting %s membership: %w", kind, err)
			}
		}
		changeKind := changeset.KindTagging
		if kind == KindGroup {
			changeKind = changeset.KindGrouping
		}
		return s.recordChange(ctx, tx, changeset.Change{
			Op: changeset.OpReplace, Kind: changeKind, EntityID: objectID,
			Payload: map[string]any{"ids": targetIDs},
		})
	})
}

// TagSet returns the ids of the objects carrying a tag.
func (s *SQLiteStore) TagSet(ctx context.Context, tagID string) ([]string, error) {
	return s.membershipObjects(ctx, KindTag, tagID)
}

// GroupSet returns the ids of the objects in a group.
func (s *SQLiteStore) GroupSet(ctx context.Context, groupID string) ([]string, error) {
	return s.membershipObjects(ctx, KindGroup, groupID)
}

func (s *SQLiteStore) membershipObjects(ctx context.Context, kind, targetID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT object_id
		FROM memberships
		WHERE tenant_id = ? AND kind = ? AND target_id = ?
		ORDER BY object_id`, s.tenantID, kind, targetID)
	if err != nil {
		return nil, fmt.Errorf("querying %s set: %w", kind, err)
	}
	return scanIDs(rows)
}

// AddTagObjects assigns the tag to each object, keeping existing assignments.
func (s *SQLiteStore) AddTagObjects(ctx context.Context, tagID string, objectIDs []string) error {
	return s.addMembershipObjects(ctx, KindTag, tagID, objectIDs)
}

// AddGroupObjects adds each object to the group, keeping existing members.
func (s *SQLiteStore) AddGroupObjects(ctx context.Context, groupID string, objectIDs []string) error {
	return s.addMembershipObjects(ctx, KindGroup, groupID, objectIDs)
}

func (s *SQLiteStore) addMembershipObjects(ctx context.Context, kind, targetID string, objectIDs []string) error {
	for _, oid := range objectIDs {
		if err := s.assignMembership(ctx, kind, oid, targetID); err != nil {
			return err
		}
	}
	return nil
}

// SetTagObjects replaces the full set of objects carrying a tag.
func (s *SQLiteStore) SetTagObjects(ctx context.Context, tagID string, objectIDs []string) error {
	return s.setMembershipObjects(ctx, KindTag, tagID, objectIDs)
}

// SetGroupObjects replaces the full membership of a group.
func (s *SQLiteStore) SetGroupObjects(ctx context.Context, groupID string, objectIDs []string) error {
	return s.setMembershipObjects(ctx, KindGroup, groupID, objectIDs)
}

func (s *SQLiteStore) setMembershipObjects(ctx context.Context, kind, targetID string, objectIDs []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM memberships
			WHERE tenant_id = ? AND kind = ? AND target_id = ?`, s.tenantID, kind, targetID); err != nil {
			return fmt.Errorf("clearing %s set: %w", kind, err)
		}
		for _, oid := range objectIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO memberships (tenant_id, kind, object_id, target_id)
				VALUES (?, ?, ?, ?)`, s.tenantID, kind, oid, targetID); err != nil {
				return fmt.Errorf("inserting %s membership: %w", kind, err)
			}
		}
		changeKind := changeset.KindTagging
		if kind == KindGroup {
			changeKind = changeset.KindGrouping
		}
		return s.recordChange(ctx, tx, changeset.Change{
			Op: changeset.OpReplace, Kind: changeKind, EntityID: targetID,
			Payload: map[string]any{"ids": objectIDs, "inverse": true},
		})
	})
}

// ObjectRoles returns the ids of the roles the object relates through as
// subject.
func (s *SQLiteStore) ObjectRoles(ctx context.Context, objectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT role_id
		FROM relations
		WHERE tenant_id = ? AND subject_id = ?
		ORDER BY role_id`, s.tenantID, objectID)
	if err != nil {
		return nil, fmt.Errorf("querying object roles: %w", err)
	}
	return scanIDs(rows)
}

// RoleSet returns the ids of the objects related to the subject through the
// given role.
func (s *SQLiteStore) RoleSet(ctx context.Context, objectID, roleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT object_id
		FROM relations
		WHERE tenant_id = ? AND subject_id = ? AND role_id = ?
		ORDER BY object_id`, s.tenantID, objectID, roleID)
	if err != nil {
		return nil, fmt.Errorf("querying role set: %w", err)
	}
	return scanIDs(rows)
}

// AddRelated relates the subject to each target through the role, keeping
// existing relations.
func (s *SQLiteStore) AddRelated(ctx context.Context, objectID, roleID string, objectIDs []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var added []string
		for _, oid := range objectIDs {
			res, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO relations (tenant_id, subject_id, role_id, object_id)
				VALUES (?, ?, ?, ?)`, s.tenantID, objectID, roleID, oid)
			if err != nil {
				return fmt.Errorf("inserting relation: %w", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				added = append(added, oid)
			}
		}
		if len(added) == 0 {
			return nil
		}
		return s.recordChange(ctx, tx, changeset.Change{
			Op: changeset.OpAssign, Kind: changeset.KindRelation, EntityID: objectID,
			Payload: map[string]any{"role_id": roleID, "ids": added},
		})
	})
}

// SetRelated replaces the full set of objects related to the subject through
// the role.
func (s *SQLiteStore) SetRelated(ctx context.Context, objectID, roleID string, objectIDs []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM relations
			WHERE tenant_id = ? AND subject_id = ? AND role_id = ?`, s.tenantID, objectID, roleID); err != nil {
			return fmt.Errorf("clearing role set: %w", err)
		}
		for _, oid := range objectIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO relations (tenant_id, subject_id, role_id, object_id)
				VALUES (?, ?, ?, ?)`, s.tenantID, objectID, roleID, oid); err != nil {
				return fmt.Errorf("inserting relation: %w", err)
			}
		}
		return s.recordChange(ctx, tx, changeset.Change{
			Op: changeset.OpReplace, Kind: changeset.KindRelation, EntityID: objectID,
			Payload: map[string]any{"role_id": roleID, "ids": objectIDs},
		})
	})
}

// TagNeighbors returns, per tag on the object, the other objects carrying
// that tag.
func (s *SQLiteStore) TagNeighbors(ctx context.Context, objectID string) (map[string][]string, error) {
	return s.membershipNeighbors(ctx, KindTag, objectID)
}

// GroupNeighbors returns, per group the object belongs to, its fellow
// members.
func (s *SQLiteStore) GroupNeighbors(ctx context.Context, objectID string) (map[string][]string, error) {
	return s.membershipNeighbors(ctx, KindGroup, objectID)
}

func (s *SQLiteStore) membershipNeighbors(ctx context.Context, kind, objectID string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.target_id, m.object_id
		FROM memberships m
		JOIN memberships own
			ON own.tenant_id = m.tenant_id AND own.kind = m.kind AND own.target_id = m.target_id
		WHERE m.tenant_id = ? AND m.kind = ? AND own.object_id = ? AND m.object_id != ?
		ORDER BY m.target_id, m.object_id`, s.tenantID, kind, objectID, objectID)
	if err != nil {
		return nil, fmt.Errorf("querying %s neighbors: %w", kind, err)
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var target, neighbor string
		if err := rows.Scan(&target, &neighbor); err != nil {
			return nil, fmt.Errorf("scanning neighbor row: %w", err)
		}
		out[target] = append(out[target], neighbor)
	}
	return out, rows.Err()
}

// Relationships returns the object's full relation neighbourhood in both
// directions, keyed direction ("out"/"in") then role id.
func (s *SQLiteStore) Relationships(ctx context.Context, objectID string) (map[string]map[string][]string, error) {
	out := map[string]map[string][]string{
		"out": {},
		"in":  {},
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT role_id, object_id
		FROM relations
		WHERE tenant_id = ? AND subject_id = ?
		ORDER BY role_id, object_id`, s.tenantID, objectID)
	if err != nil {
		return nil, fmt.Errorf("querying outbound relations: %w", err)
	}
	if err := scanRolePairs(rows, out["out"]); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT role_id, subject_id
		FROM relations
		WHERE tenant_id = ? AND object_id = ?
		ORDER BY role_id, subject_id`, s.tenantID, objectID)
	if err != nil {
		return nil, fmt.Errorf("querying inbound relations: %w", err)
	}
	if err := scanRolePairs(rows, out["in"]); err != nil {
		return nil, err
	}
	return out, nil
}

func scanRolePairs(rows *sql.Rows, into map[string][]string) error {
	defer rows.Close()
	for rows.Next() {
		var role, id string
		if err := rows.Scan(&role, &id); err != nil {
			return fmt.Errorf("scanning relation row: %w", err)
		}
		into[role] = append(into[role], id)
	}
	return rows.Err()
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
