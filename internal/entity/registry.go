package entity

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/warden/internal/permission"
)

// Registry tracks every entity ever registered. IDs are never recycled:
// the record map retains deleted entities for the process lifetime so a
// deleted id can never be re-registered.
//
// Secondary indexes by role and kind are maintained incrementally on
// register/delete for O(1) lookups; ad-hoc filtering falls back to a
// full linear scan over non-deleted entities.
//
// Safe for concurrent use; owned by a single engine instance.
type Registry struct {
	mu       sync.Mutex
	entities map[string]*Entity
	byRole   map[permission.Role]map[string]bool
	byKind   map[string]map[string]bool
	now      func() int64
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithNow overrides the timestamp source (deterministic tests).
func WithNow(now func() int64) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entities: make(map[string]*Entity),
		byRole:   make(map[permission.Role]map[string]bool),
		byKind:   make(map[string]map[string]bool),
		now:      func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates an entity. Fails with ENTITY_DUPLICATE if the id was
// ever registered, including soft-deleted ids.
func (r *Registry) Register(id string, role permission.Role, kind string, meta map[string]any) (Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		return Entity{}, fmt.Errorf("register: entity id is required")
	}
	if kind == "" {
		return Entity{}, fmt.Errorf("register: entity kind is required")
	}
	if !permission.ValidRole(role) {
		return Entity{}, fmt.Errorf("register: unknown role %q", role)
	}
	if _, exists := r.entities[id]; exists {
		return Entity{}, duplicateError(id)
	}

	ts := r.now()
	e := &Entity{
		ID:        id,
		Role:      role,
		Kind:      kind,
		CreatedAt: ts,
		Meta:      make(map[string]any, len(meta)),
		State:     State{Status: StatusActive, LastUpdated: ts},
		Lifecycle: []LifecycleEvent{{Event: "registered", Timestamp: ts}},
	}
	for k, v := range meta {
		e.Meta[k] = v
	}

	r.entities[id] = e
	r.indexAdd(e)

	slog.Debug("entity registered", "entity_id", id, "role", role, "kind", kind)
	return e.clone(), nil
}

// Get returns an entity by id. Deleted entities are treated as absent.
func (r *Registry) Get(id string) (Entity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.live(id)
	if !ok {
		return Entity{}, false
	}
	return e.clone(), true
}

// Has reports whether a non-deleted entity exists with the id.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.live(id)
	return ok
}

// UpdateMeta shallow-merges patch into the entity's meta; patch values
// win on key collision. Fails with ENTITY_NOT_FOUND for missing or
// deleted entities.
func (r *Registry) UpdateMeta(id string, patch map[string]any) (Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.live(id)
	if !ok {
		return Entity{}, notFoundError(id)
	}

	for k, v := range patch {
		e.Meta[k] = v
	}
	r.touch(e, "meta-updated", "")
	return e.clone(), nil
}

// Deactivate flips the entity to inactive with an optional reason.
func (r *Registry) Deactivate(id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.live(id)
	if !ok {
		return notFoundError(id)
	}
	e.State.Status = StatusInactive
	r.touch(e, "deactivated", reason)
	return nil
}

// Activate flips the entity back to active. Activating a deleted entity
// fails with ENTITY_NOT_FOUND.
func (r *Registry) Activate(id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.live(id)
	if !ok {
		return notFoundError(id)
	}
	e.State.Status = StatusActive
	r.touch(e, "activated", reason)
	return nil
}

// Delete is terminal: the status flips to deleted and the entity leaves
// the secondary indexes, but the record is never physically removed, so
// the id can never be reused.
func (r *Registry) Delete(id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.live(id)
	if !ok {
		return notFoundError(id)
	}

	e.State.Status = StatusDeleted
	r.touch(e, "deleted", reason)
	r.indexRemove(e)

	slog.Debug("entity deleted", "entity_id", id, "reason", reason)
	return nil
}

// ByRole returns non-deleted entities with the role, ordered by id.
func (r *Registry) ByRole(role permission.Role) []Entity {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.collect(r.byRole[role])
}

// ByKind returns non-deleted entities of the kind, ordered by id.
func (r *Registry) ByKind(kind string) []Entity {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.collect(r.byKind[kind])
}

// Query holds optional predicates for an ad-hoc scan. Zero-valued
// fields are skipped; Where, if set, runs last.
type Query struct {
	Role   permission.Role
	Kind   string
	Status Status
	Where  func(Entity) bool
}

// Find runs a full linear scan over non-deleted entities, applying
// every set predicate. Results are ordered by id.
func (r *Registry) Find(q Query) []Entity {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Entity
	for _, e := range r.entities {
		if e.State.Status == StatusDeleted {
			continue
		}
		if q.Role != "" && e.Role != q.Role {
			continue
		}
		if q.Kind != "" && e.Kind != q.Kind {
			continue
		}
		if q.Status != "" && e.State.Status != q.Status {
			continue
		}
		c := e.clone()
		if q.Where != nil && !q.Where(c) {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Entity) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Count returns the number of non-deleted entities.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entities {
		if e.State.Status != StatusDeleted {
			n++
		}
	}
	return n
}

// IDs returns non-deleted entity ids in lexicographic order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.entities))
	for id, e := range r.entities {
		if e.State.Status != StatusDeleted {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Statistics summarizes the registry contents, excluding deleted
// entities.
type Statistics struct {
	Total    int
	ByRole   map[permission.Role]int
	ByKind   map[string]int
	ByStatus map[Status]int
}

// Stats scans non-deleted entities and aggregates counts.
func (r *Registry) Stats() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Statistics{
		ByRole:   make(map[permission.Role]int),
		ByKind:   make(map[string]int),
		ByStatus: make(map[Status]int),
	}
	for _, e := range r.entities {
		if e.State.Status == StatusDeleted {
			continue
		}
		s.Total++
		s.ByRole[e.Role]++
		s.ByKind[e.Kind]++
		s.ByStatus[e.State.Status]++
	}
	return s
}

// RawSnapshot returns every record ever registered, deleted included,
// ordered by id. This is the only read path that exposes deleted
// entities.
func (r *Registry) RawSnapshot() []Entity {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e.clone())
	}
	slices.SortFunc(out, func(a, b Entity) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Clear drops every record and index. Used by engine shutdown; after a
// Clear, ids may be registered again.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities = make(map[string]*Entity)
	r.byRole = make(map[permission.Role]map[string]bool)
	r.byKind = make(map[string]map[string]bool)
}

func (r *Registry) live(id string) (*Entity, bool) {
	e, ok := r.entities[id]
	if !ok || e.State.Status == StatusDeleted {
		return nil, false
	}
	return e, true
}

func (r *Registry) touch(e *Entity, event, reason string) {
	ts := r.now()
	e.State.LastUpdated = ts
	e.State.UpdateCount++
	e.Lifecycle = append(e.Lifecycle, LifecycleEvent{Event: event, Timestamp: ts, Reason: reason})
}

func (r *Registry) indexAdd(e *Entity) {
	if r.byRole[e.Role] == nil {
		r.byRole[e.Role] = make(map[string]bool)
	}
	r.byRole[e.Role][e.ID] = true

	if r.byKind[e.Kind] == nil {
		r.byKind[e.Kind] = make(map[string]bool)
	}
	r.byKind[e.Kind][e.ID] = true
}

func (r *Registry) indexRemove(e *Entity) {
	delete(r.byRole[e.Role], e.ID)
	delete(r.byKind[e.Kind], e.ID)
}

func (r *Registry) collect(ids map[string]bool) []Entity {
	out := make([]Entity, 0, len(ids))
	for id := range ids {
		if e, ok := r.live(id); ok {
			out = append(out, e.clone())
		}
	}
	slices.SortFunc(out, func(a, b Entity) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}
