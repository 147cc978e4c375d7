package event

// Type identifies one of the seventeen engine event types. The set is
// closed: the bus accepts any Type value, but the engine only emits
// these.
type Type string

const (
	TypeEngineInit       Type = "engine:init"
	TypeEngineStopped    Type = "engine:stopped"
	TypeTickStart        Type = "engine:tick:start"
	TypeTickEnd          Type = "engine:tick:end"
	TypeRequestReceived  Type = "engine:request:received"
	TypeRequestCompleted Type = "engine:request:completed"
	TypeRequestFailed    Type = "engine:request:failed"
	TypeEntityRegistered Type = "entity:registered"
	TypeEntityUpdated    Type = "entity:updated"
	TypeEntityDeleted    Type = "entity:deleted"
	TypeActionScheduled  Type = "scheduler:action:scheduled"
	TypeActionExecuted   Type = "scheduler:action:executed"
	TypeActionCancelled  Type = "scheduler:action:cancelled"
	TypeAgentCycleStart  Type = "agent:cycle:start"
	TypeAgentCycleEnd    Type = "agent:cycle:end"
	TypeStrategyChanged  Type = "strategy:changed"
	TypeErrorRaised      Type = "error:raised"
)

// Types lists every defined event type. Used by introspection tooling
// to subscribe to the full set.
var Types = []Type{
	TypeEngineInit,
	TypeEngineStopped,
	TypeTickStart,
	TypeTickEnd,
	TypeRequestReceived,
	TypeRequestCompleted,
	TypeRequestFailed,
	TypeEntityRegistered,
	TypeEntityUpdated,
	TypeEntityDeleted,
	TypeActionScheduled,
	TypeActionExecuted,
	TypeActionCancelled,
	TypeAgentCycleStart,
	TypeAgentCycleEnd,
	TypeStrategyChanged,
	TypeErrorRaised,
}

// CodeOverflow is the error code carried by an error:raised event
// synthesized when emit depth reaches the configured maximum.
const CodeOverflow = "EVENT_OVERFLOW"

// CodeListenerPanic is the error code carried by an error:raised event
// synthesized when a listener panics during dispatch.
const CodeListenerPanic = "INTERNAL_ERROR"

// Event is a transient notification. Events are consumed synchronously
// by subscribers at emit time and never persisted.
type Event struct {
	ID        string
	Type      Type
	Timestamp int64 // epoch milliseconds
	Payload   map[string]any
}
