// Package changeset defines the ordered batch of mutations exchanged by
// sync clients and the gateway.
//
// A ChangeSet is a value type: it serialises to a plain map and can be
// reconstructed from one without loss, so a set fetched from one replica can
// be applied verbatim to another.
package changeset

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Operations a change record can carry.
const (
	OpCreate   = "create"
	OpModify   = "modify"
	OpDelete   = "delete"
	OpAssign   = "assign"
	OpUnassign = "unassign"
	OpReplace  = "replace"
)

// Change targets beyond the six metadata kinds.
const (
	KindObject   = "object"
	KindTagging  = "tagging"
	KindGrouping = "grouping"
	KindRelation = "relation"
)

// validOps is the closed set of change operations.
var validOps = map[string]bool{
	OpCreate:   true,
	OpModify:   true,
	OpDelete:   true,
	OpAssign:   true,
	OpUnassign: true,
	OpReplace:  true,
}

// Change is a single recorded mutation.
type Change struct {
	// ID uniquely identifies the change record.
	ID string `json:"id"`

	// Op is one of the Op* constants.
	Op string `json:"op"`

	// Kind names what the change targets: a metadata kind (tag, group,
	// role, attribute, class, query), an object, or a relation kind.
	Kind string `json:"kind"`

	// EntityID is the id of the entity or relation subject the change
	// applies to.
	EntityID string `json:"entity_id"`

	// Payload carries op-specific data: the field map for create/modify,
	// member ids under "ids" for relation ops, and "role_id" for named
	// relation edges.
	Payload map[string]any `json:"payload,omitempty"`
}

// ChangeSet is an ordered sequence of changes.
type ChangeSet struct {
	// Until is the cursor of the last change in the set. Populated on
	// fetch; ignored on apply.
	Until string `json:"until,omitempty"`

	// Changes are applied in order.
	Changes []Change `json:"changes"`
}

// New creates a ChangeSet from the given changes, assigning ids to any
// change that lacks one.
func New(changes ...Change) *ChangeSet {
	cs := &ChangeSet{Changes: changes}
	for i := range cs.Changes {
		if cs.Changes[i].ID == "" {
			cs.Changes[i].ID = "chg-" + uuid.NewString()[:8]
		}
	}
	return cs
}

// FromMap reconstructs a ChangeSet from its plain-map representation.
// The map shape is exactly what ToMap produces (and what the wire carries).
func FromMap(m map[string]any) (*ChangeSet, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding changeset map: %w", err)
	}

	var cs ChangeSet
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("decoding changeset: %w", err)
	}

	if err := cs.Validate(); err != nil {
		return nil, err
	}
	return &cs, nil
}

// ToMap serialises the ChangeSet to a plain map. The result round-trips
// through FromMap without loss.
func (cs *ChangeSet) ToMap() map[string]any {
	changes := make([]any, 0, len(cs.Changes))
	for _, c := range cs.Changes {
		entry := map[string]any{
			"id":        c.ID,
			"op":        c.Op,
			"kind":      c.Kind,
			"entity_id": c.EntityID,
		}
		if c.Payload != nil {
			entry["payload"] = c.Payload
		}
		changes = append(changes, entry)
	}

	m := map[string]any{"changes": changes}
	if cs.Until != "" {
		m["until"] = cs.Until
	}
	return m
}

// Validate checks every change carries a known operation and a target.
func (cs *ChangeSet) Validate() error {
	for i, c := range cs.Changes {
		if !validOps[c.Op] {
			return fmt.Errorf("change %d: unknown op %q", i, c.Op)
		}
		if c.Kind == "" {
			return fmt.Errorf("change %d: missing kind", i)
		}
		if c.EntityID == "" && c.Op != OpCreate {
			return fmt.Errorf("change %d: missing entity_id", i)
		}
	}
	return nil
}

// Len returns the number of changes in the set.
func (cs *ChangeSet) Len() int {
	return len(cs.Changes)
}

// IDs returns the payload's "ids" list for relation ops, tolerating both
// []string and the []any produced by JSON decoding.
func (c Change) IDs() []string {
	if c.Payload == nil {
		return nil
	}
	switch v := c.Payload["ids"].(type) {
	case []string:
		return v
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids
	default:
		return nil
	}
}

// Inverse reports whether a membership replace was recorded from the
// tag/group side: EntityID is the target id and "ids" are the objects.
func (c Change) Inverse() bool {
	if c.Payload == nil {
		return false
	}
	v, _ := c.Payload["inverse"].(bool) //nolint:errcheck // false on wrong type
	return v
}

// RoleID returns the payload's "role_id" for named relation edges.
func (c Change) RoleID() string {
	if c.Payload == nil {
		return ""
	}
	s, _ := c.Payload["role_id"].(string) //nolint:errcheck // empty string on wrong type
	return s
}

// Fields returns the payload's field map for create/modify ops, with the
// relation bookkeeping keys removed.
func (c Change) Fields() map[string]any {
	if c.Payload == nil {
		return map[string]any{}
	}
	fields := make(map[string]any, len(c.Payload))
	for k, v := range c.Payload {
		if k == "ids" || k == "role_id" || k == "inverse" {
			continue
		}
		fields[k] = v
	}
	return fields
}
