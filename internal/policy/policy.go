// Package policy compiles declarative world policies written in CUE
// into engine bootstrap operations: permission grants and revocations,
// seeded entities, scheduled actions, and an initial strategy.
package policy

import (
	"github.com/roach88/warden/internal/permission"
	"github.com/roach88/warden/internal/schedule"
)

// RoleCapability is one grant or revocation line.
type RoleCapability struct {
	Role       permission.Role
	Capability permission.Capability
}

// EntitySeed describes one entity to register at bootstrap.
type EntitySeed struct {
	ID   string
	Role permission.Role
	Kind string
	Meta map[string]any
}

// Policy is a compiled world policy.
type Policy struct {
	Name        string
	Strategy    string
	Grants      []RoleCapability
	Revocations []RoleCapability
	Entities    []EntitySeed
	Actions     []schedule.Input
}
