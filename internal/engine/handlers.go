package engine

import (
	"context"

	"github.com/roach88/warden/internal/event"
	"github.com/roach88/warden/internal/permission"
	"github.com/roach88/warden/internal/request"
	"github.com/roach88/warden/internal/schedule"
)

// registerHandlers wires the built-in request handlers plus the
// injected world and agent collaborators. Handlers run without the
// engine mutex (Request releases it before dispatch), so built-ins go
// through the same locked public surface injected handlers use.
func (e *Engine) registerHandlers(opts Options) {
	must := func(err error) {
		if err != nil {
			panic(err) // registration of built-ins cannot fail
		}
	}

	must(e.router.RegisterHandler(request.TypeEntityRegister, e.handleEntityRegister))
	must(e.router.RegisterHandler(request.TypeEntityUpdateMeta, e.handleEntityUpdateMeta))
	must(e.router.RegisterHandler(request.TypeSchedulerSchedule, e.handleSchedulerSchedule))
	must(e.router.RegisterHandler(request.TypeEngineSnapshot, e.handleEngineSnapshot))
	must(e.router.RegisterHandler(request.TypeStrategySwitch, e.handleStrategySwitch))

	if opts.WorldMutate != nil {
		must(e.router.RegisterHandler(request.TypeWorldMutate, opts.WorldMutate))
	}
	if opts.AgentCycle != nil {
		must(e.router.RegisterHandler(request.TypeAgentCycle, e.wrapAgentCycle(opts.AgentCycle)))
	}
}

func (e *Engine) handleEntityRegister(_ context.Context, req request.Request) (any, error) {
	entityID, _ := req.Payload["entityId"].(string)
	kind, _ := req.Payload["kind"].(string)

	// Role is optional and validated upstream; absent means SIMULANT.
	role := permission.RoleSimulant
	if name, ok := req.Payload["role"].(string); ok {
		role = permission.Role(name)
	}

	var meta map[string]any
	if m, ok := req.Payload["meta"].(map[string]any); ok {
		meta = m
	}

	ent, err := e.RegisterEntity(entityID, role, kind, meta)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"entityId":     ent.ID,
		"role":         string(ent.Role),
		"kind":         ent.Kind,
		"registeredAt": ent.CreatedAt,
	}, nil
}

func (e *Engine) handleEntityUpdateMeta(_ context.Context, req request.Request) (any, error) {
	entityID, _ := req.Payload["entityId"].(string)
	patch, _ := req.Payload["patch"].(map[string]any)

	ent, err := e.UpdateEntityMeta(entityID, patch)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"entityId":    ent.ID,
		"updateCount": ent.State.UpdateCount,
	}, nil
}

func (e *Engine) handleSchedulerSchedule(_ context.Context, req request.Request) (any, error) {
	raw, _ := req.Payload["action"].(map[string]any)

	in := schedule.Input{ActionType: stringField(raw, "actionType")}
	if id := stringField(raw, "id"); id != "" {
		in.ID = id
	}
	in.RunAt = intField(raw, "runAt")
	in.RepeatEveryMs = intField(raw, "repeatEveryMs")
	in.Priority = int(intField(raw, "priority"))
	if p, ok := raw["payload"].(map[string]any); ok {
		in.Payload = p
	}

	a, err := e.ScheduleAction(in)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"actionId": a.ID,
		"runAt":    a.RunAt,
		"priority": a.Priority,
	}, nil
}

func (e *Engine) handleEngineSnapshot(context.Context, request.Request) (any, error) {
	return e.Snapshot().resultMap(), nil
}

func (e *Engine) handleStrategySwitch(_ context.Context, req request.Request) (any, error) {
	next, _ := req.Payload["strategy"].(string)

	from := e.switchStrategy(next)
	return map[string]any{"from": from, "to": next}, nil
}

// wrapAgentCycle brackets the injected agent handler with
// agent:cycle:start / agent:cycle:end events.
func (e *Engine) wrapAgentCycle(h request.Handler) request.Handler {
	return func(ctx context.Context, req request.Request) (any, error) {
		agentID, _ := req.Payload["agentId"].(string)
		e.emitLocked(event.TypeAgentCycleStart, map[string]any{"agent_id": agentID})

		result, err := h(ctx, req)

		e.emitLocked(event.TypeAgentCycleEnd, map[string]any{
			"agent_id": agentID,
			"ok":       err == nil,
		})
		return result, err
	}
}

func patchKeys(patch map[string]any) []any {
	keys := make([]any, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	return keys
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// intField tolerates the numeric types JSON and YAML decoders produce.
func intField(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}
