// Package request implements typed request validation, authorization,
// and dispatch to registered handlers.
package request

import (
	"github.com/roach88/warden/internal/permission"
)

// Type is the closed tag selecting a request's handler and required
// capabilities.
type Type string

const (
	TypeEntityRegister    Type = "entity.register"
	TypeEntityUpdateMeta  Type = "entity.updateMeta"
	TypeWorldMutate       Type = "world.mutate"
	TypeSchedulerSchedule Type = "scheduler.schedule"
	TypeAgentCycle        Type = "agent.cycle"
	TypeEngineSnapshot    Type = "engine.snapshot"
	TypeStrategySwitch    Type = "strategy.switch"
)

// Types lists the supported request types.
var Types = []Type{
	TypeEntityRegister,
	TypeEntityUpdateMeta,
	TypeWorldMutate,
	TypeSchedulerSchedule,
	TypeAgentCycle,
	TypeEngineSnapshot,
	TypeStrategySwitch,
}

// Supported reports whether t is a known request type.
func Supported(t Type) bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// requiredCapabilities maps request types to the capabilities the actor
// must hold. Types with no entry require no capability.
var requiredCapabilities = map[Type][]permission.Capability{
	TypeEntityRegister:    {permission.CapEntityRegister},
	TypeEntityUpdateMeta:  {permission.CapEntityRegister},
	TypeWorldMutate:       {permission.CapWorldMutate},
	TypeSchedulerSchedule: {permission.CapScheduleAction},
	TypeAgentCycle:        {permission.CapAgentDecide},
	TypeEngineSnapshot:    {permission.CapEngineIntrospect},
	TypeStrategySwitch:    {permission.CapStrategySwitch},
}

// RequiredCapabilities returns the capability list for a request type.
func RequiredCapabilities(t Type) []permission.Capability {
	return requiredCapabilities[t]
}

// Request is an immutable mutation/query intent, identified by a
// process-unique id.
type Request struct {
	ID        string
	ActorID   string
	Role      permission.Role
	Type      Type
	Timestamp int64 // epoch milliseconds
	Payload   map[string]any
}

// Error codes returned in responses. Callers branch on code, not
// message text.
const (
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeEntityNotFound     = "ENTITY_NOT_FOUND"
	CodeEntityDuplicate    = "ENTITY_DUPLICATE"
	CodeSchedulerConflict  = "SCHEDULER_CONFLICT"
	CodeNotInitialized     = "NOT_INITIALIZED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeUnsupportedRequest = "UNSUPPORTED_REQUEST"
	CodeEventOverflow      = "EVENT_OVERFLOW"
)

// ErrorInfo is the structured failure payload of a response.
type ErrorInfo struct {
	Code    string
	Message string
	Details map[string]any
}

// Response is produced exactly once per processed request, never
// partially.
type Response struct {
	RequestID string
	OK        bool
	Result    any
	Error     *ErrorInfo
	ElapsedMs int64
}

// Stats tracks running router statistics, updated after every processed
// request regardless of outcome.
type Stats struct {
	Total        int
	Succeeded    int
	Failed       int
	AvgLatencyMs float64
}
