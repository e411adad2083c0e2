package store

import (
	"context"

	"github.com/nerrad567/syncgate/internal/changeset"
)

// Metadata kinds: the six uniform collections.
const (
	KindTag       = "tag"
	KindGroup     = "group"
	KindRole      = "role"
	KindAttribute = "attribute"
	KindClass     = "class"
	KindQuery     = "query"
)

// Kinds lists the metadata kinds in a stable order.
var Kinds = []string{KindTag, KindGroup, KindRole, KindAttribute, KindClass, KindQuery}

// IsKind reports whether s names a metadata kind.
func IsKind(s string) bool {
	for _, k := range Kinds {
		if s == k {
			return true
		}
	}
	return false
}

// Entity is a metadata instance or object as a field map. The id travels
// under "_id"; metadata entities also carry "name".
type Entity = map[string]any

// Store is the tenant interface. All operations are scoped to the single
// tenant the handle was created for.
type Store interface {
	// TenantID returns the id of the tenant this handle is bound to.
	TenantID() string

	// Metadata returns every metadata instance, keyed kind -> id -> entity.
	Metadata(ctx context.Context) (map[string]map[string]Entity, error)

	// Kind-collection CRUD. Modify never changes "_id": callers strip it,
	// and the implementation ignores it if present.
	List(ctx context.Context, kind string) ([]Entity, error)
	Get(ctx context.Context, kind, id string) (Entity, error)
	GetByName(ctx context.Context, kind, name string) (Entity, error)
	Create(ctx context.Context, kind string, fields map[string]any) (Entity, error)
	Modify(ctx context.Context, kind, id string, fields map[string]any) (Entity, error)
	Delete(ctx context.Context, kind, id string) error

	// Objects.
	GetObject(ctx context.Context, id string) (Entity, error)
	PutObject(ctx context.Context, id string, data map[string]any) (Entity, error)
	DeleteObject(ctx context.Context, id string) error
	ResolveRef(ctx context.Context, ref string) (Entity, error)
	BulkLoad(ctx context.Context, ids []string) ([]Entity, error)

	// Tag and group membership of an object. Tag/Group are set-union single
	// assigns; SetObjectTags/SetObjectGroups replace the full set.
	ObjectTags(ctx context.Context, objectID string) ([]string, error)
	ObjectGroups(ctx context.Context, objectID string) ([]string, error)
	Tag(ctx context.Context, objectID, tagID string) error
	Group(ctx context.Context, objectID, groupID string) error
	SetObjectTags(ctx context.Context, objectID string, tagIDs []string) error
	SetObjectGroups(ctx context.Context, objectID string, groupIDs []string) error

	// Reverse side of the same relations: the objects carrying a tag/group.
	TagSet(ctx context.Context, tagID string) ([]string, error)
	GroupSet(ctx context.Context, groupID string) ([]string, error)
	AddTagObjects(ctx context.Context, tagID string, objectIDs []string) error
	SetTagObjects(ctx context.Context, tagID string, objectIDs []string) error
	AddGroupObjects(ctx context.Context, groupID string, objectIDs []string) error
	SetGroupObjects(ctx context.Context, groupID string, objectIDs []string) error

	// Role-typed directed relations: (subject, role) -> set of objects.
	ObjectRoles(ctx context.Context, objectID string) ([]string, error)
	RoleSet(ctx context.Context, objectID, roleID string) ([]string, error)
	AddRelated(ctx context.Context, objectID, roleID string, objectIDs []string) error
	SetRelated(ctx context.Context, objectID, roleID string, objectIDs []string) error

	// Adjacency for graph traversal: objects sharing a tag/group with the
	// given object, and the full relation neighbourhood.
	TagNeighbors(ctx context.Context, objectID string) (map[string][]string, error)
	GroupNeighbors(ctx context.Context, objectID string) (map[string][]string, error)
	Relationships(ctx context.Context, objectID string) (map[string]map[string][]string, error)

	// Change protocol. ChangesSince is an idempotent read; Apply commits the
	// whole set in one transaction or not at all.
	ChangesSince(ctx context.Context, cursor string) (*changeset.ChangeSet, error)
	Apply(ctx context.Context, cs *changeset.ChangeSet) error

	// RunQuery executes a query definition and returns matching entities.
	RunQuery(ctx context.Context, def map[string]any) ([]Entity, error)
}
