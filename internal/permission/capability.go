// Package permission implements the role/capability authorization matrix
// and its append-only audit log.
package permission

// Role is the coarse-grained actor category used for authorization.
type Role string

const (
	RoleHuman    Role = "HUMAN"
	RoleSimulant Role = "SIMULANT"
	RoleSystem   Role = "SYSTEM"
)

// Roles lists the defined roles.
var Roles = []Role{RoleHuman, RoleSimulant, RoleSystem}

// ValidRole reports whether r is one of the defined roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleHuman, RoleSimulant, RoleSystem:
		return true
	default:
		return false
	}
}

// Capability is an atomic permission token checked against a role's
// granted set.
type Capability string

const (
	CapWorldRead        Capability = "WORLD_READ"
	CapWorldMutate      Capability = "WORLD_MUTATE"
	CapEntityRegister   Capability = "ENTITY_REGISTER"
	CapEntityDelete     Capability = "ENTITY_DELETE"
	CapScheduleAction   Capability = "SCHEDULE_ACTION"
	CapAgentDecide      Capability = "AGENT_DECIDE"
	CapLLMRequest       Capability = "LLM_REQUEST"
	CapEngineIntrospect Capability = "ENGINE_INTROSPECT"
	CapEngineAdmin      Capability = "ENGINE_ADMIN"
	CapStrategySwitch   Capability = "STRATEGY_SWITCH"
	CapPermissionManage Capability = "PERMISSION_MANAGE"
)

// AllCapabilities lists every defined capability. SYSTEM is seeded with
// this full set.
var AllCapabilities = []Capability{
	CapWorldRead,
	CapWorldMutate,
	CapEntityRegister,
	CapEntityDelete,
	CapScheduleAction,
	CapAgentDecide,
	CapLLMRequest,
	CapEngineIntrospect,
	CapEngineAdmin,
	CapStrategySwitch,
	CapPermissionManage,
}

// ValidCapability reports whether c is one of the defined capabilities.
func ValidCapability(c Capability) bool {
	for _, known := range AllCapabilities {
		if c == known {
			return true
		}
	}
	return false
}

// defaultGrants is the seed table applied to every new Matrix.
// SIMULANT holds WORLD_MUTATE by default; scoped mutation enforcement
// is left to the request validation seam.
func defaultGrants() map[Role]map[Capability]bool {
	grants := map[Role]map[Capability]bool{
		RoleHuman: asSet(
			CapWorldRead,
			CapWorldMutate,
			CapEngineIntrospect,
			CapScheduleAction,
			CapEntityRegister,
		),
		RoleSimulant: asSet(
			CapWorldRead,
			CapAgentDecide,
			CapScheduleAction,
			CapWorldMutate,
			CapLLMRequest,
		),
		RoleSystem: asSet(AllCapabilities...),
	}
	return grants
}

func asSet(caps ...Capability) map[Capability]bool {
	set := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return set
}
