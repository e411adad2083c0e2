package store

import (
	"context"
	"fmt"
	"strings"
)

// RunQuery executes a query definition and returns the matching entities.
//
// A definition is a plain field map:
//
//	kind      match one metadata kind ("object" selects objects)
//	name      exact name match (metadata kinds only)
//	text      substring match over the stored fields
//	tags      objects carrying all of these tag ids
//	tags_any  objects carrying at least one of these tag ids
//	groups    objects belonging to all of these group ids
//	role      objects appearing as relation subject with this role id
//	limit     cap on the number of results
//
// Filters combine conjunctively. Membership and role filters force the
// object collection regardless of kind.
func (s *SQLiteStore) RunQuery(ctx context.Context, def map[string]any) ([]Entity, error) {
	q := parseQueryDef(def)
	if q.kind != "" && q.kind != "object" && !IsKind(q.kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, q.kind)
	}
	if q.overObjects() {
		return s.queryObjects(ctx, q)
	}
	return s.queryMetadata(ctx, q)
}

type queryDef struct {
	kind    string
	name    string
	text    string
	tags    []string
	tagsAny []string
	groups  []string
	role    string
	limit   int
}

func (q queryDef) overObjects() bool {
	if q.kind == "object" {
		return true
	}
	if q.kind != "" {
		return false
	}
	return len(q.tags) > 0 || len(q.tagsAny) > 0 || len(q.groups) > 0 || q.role != ""
}

func parseQueryDef(def map[string]any) queryDef {
	q := queryDef{}
	q.kind, _ = def["kind"].(string)
	q.name, _ = def["name"].(string)
	q.text, _ = def["text"].(string)
	q.tags = toStringSlice(def["tags"])
	q.tagsAny = toStringSlice(def["tags_any"])
	q.groups = toStringSlice(def["groups"])
	q.role, _ = def["role"].(string)
	switch v := def["limit"].(type) {
	case float64:
		q.limit = int(v)
	case int:
		q.limit = v
	}
	return q
}

func toStringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (s *SQLiteStore) queryMetadata(ctx context.Context, q queryDef) ([]Entity, error) {
	var (
		where = []string{"tenant_id = ?"}
		args  = []any{s.tenantID}
	)
	if q.kind != "" {
		where = append(where, "kind = ?")
		args = append(args, q.kind)
	}
	if q.name != "" {
		where = append(where, "name = ?")
		args = append(args, q.name)
	}
	if q.text != "" {
		where = append(where, "(name LIKE ? OR fields LIKE ?)")
		pat := "%" + q.text + "%"
		args = append(args, pat, pat)
	}
	sql := `SELECT id, name, fields FROM metadata WHERE ` + strings.Join(where, " AND ") + ` ORDER BY name`
	if q.limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", q.limit)
	}
	rows, err := s.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("running metadata query: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var id, name, fields string
		if err := rows.Scan(&id, &name, &fields); err != nil {
			return nil, fmt.Errorf("scanning query row: %w", err)
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

func (s *SQLiteStore) queryObjects(ctx context.Context, q queryDef) ([]Entity, error) {
	var (
		where = []string{"o.tenant_id = ?"}
		args  = []any{s.tenantID}
	)
	for _, tid := range q.tags {
		where = append(where, `EXISTS (
			SELECT 1 FROM memberships m
			WHERE m.tenant_id = o.tenant_id AND m.kind = 'tag' AND m.object_id = o.id AND m.target_id = ?)`)
		args = append(args, tid)
	}
	if len(q.tagsAny) > 0 {
		where = append(where, `EXISTS (
			SELECT 1 FROM memberships m
			WHERE m.tenant_id = o.tenant_id AND m.kind = 'tag' AND m.object_id = o.id
				AND m.target_id IN (`+placeholders(len(q.tagsAny))+`))`)
		for _, tid := range q.tagsAny {
			args = append(args, tid)
		}
	}
	for _, gid := range q.groups {
		where = append(where, `EXISTS (
			SELECT 1 FROM memberships m
			WHERE m.tenant_id = o.tenant_id AND m.kind = 'group' AND m.object_id = o.id AND m.target_id = ?)`)
		args = append(args, gid)
	}
	if q.role != "" {
		where = append(where, `EXISTS (
			SELECT 1 FROM relations r
			WHERE r.tenant_id = o.tenant_id AND r.subject_id = o.id AND r.role_id = ?)`)
		args = append(args, q.role)
	}
	if q.text != "" {
		where = append(where, "o.data LIKE ?")
		args = append(args, "%"+q.text+"%")
	}
	sql := `SELECT o.id, o.ref, o.data FROM objects o WHERE ` + strings.Join(where, " AND ") + ` ORDER BY o.id`
	if q.limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", q.limit)
	}
	rows, err := s.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("running object query: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var id, ref, data string
		if err := rows.Scan(&id, &ref, &data); err != nil {
			return nil, fmt.Errorf("scanning query row: %w", err)
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
