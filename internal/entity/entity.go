// Package entity implements entity registration, metadata, lifecycle,
// and indexed queries.
package entity

import (
	"errors"
	"fmt"

	"github.com/roach88/warden/internal/permission"
)

// Status is an entity's lifecycle status.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeleted  Status = "deleted"
)

// LifecycleEvent records one transition in an entity's history.
type LifecycleEvent struct {
	Event     string
	Timestamp int64
	Reason    string
}

// State holds the mutable portion of an entity record.
type State struct {
	Status      Status
	LastUpdated int64
	UpdateCount int
}

// Entity is a registered simulation participant. Deleted entities are
// retained in soft state but excluded from queries and lookups.
type Entity struct {
	ID        string
	Role      permission.Role
	Kind      string
	CreatedAt int64
	Meta      map[string]any
	State     State
	Lifecycle []LifecycleEvent
}

// clone returns a defensive copy so callers cannot mutate registry
// state through returned records.
func (e *Entity) clone() Entity {
	out := *e
	out.Meta = make(map[string]any, len(e.Meta))
	for k, v := range e.Meta {
		out.Meta[k] = v
	}
	out.Lifecycle = make([]LifecycleEvent, len(e.Lifecycle))
	copy(out.Lifecycle, e.Lifecycle)
	return out
}

// Error codes for registry failures.
const (
	CodeDuplicate = "ENTITY_DUPLICATE"
	CodeNotFound  = "ENTITY_NOT_FOUND"
)

// Error is a registry failure with a stable machine-readable code.
type Error struct {
	Code     string
	EntityID string
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (entity=%s)", e.Code, e.Message, e.EntityID)
}

// IsDuplicate reports whether err is an ENTITY_DUPLICATE error.
func IsDuplicate(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Code == CodeDuplicate
}

// IsNotFound reports whether err is an ENTITY_NOT_FOUND error.
func IsNotFound(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Code == CodeNotFound
}

func duplicateError(id string) *Error {
	return &Error{Code: CodeDuplicate, EntityID: id, Message: "entity id already registered"}
}

func notFoundError(id string) *Error {
	return &Error{Code: CodeNotFound, EntityID: id, Message: "entity not found"}
}
