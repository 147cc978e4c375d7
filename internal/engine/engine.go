// Package engine implements the authority orchestrator: it owns the
// event bus, permission matrix, entity registry, action scheduler, and
// request router, and exposes the single external API surface.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/warden/internal/entity"
	"github.com/roach88/warden/internal/event"
	"github.com/roach88/warden/internal/ident"
	"github.com/roach88/warden/internal/permission"
	"github.com/roach88/warden/internal/request"
	"github.com/roach88/warden/internal/schedule"
)

// State is the engine lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateRunning       State = "running"
	StateStopping      State = "stopping"
	StateStopped       State = "stopped"
	StateError         State = "error"
)

// DefaultStrategy is the mediation strategy an engine boots with.
const DefaultStrategy = "balanced"

// Options injects external collaborators at construction time.
//
// WorldMutate and AgentCycle are the handlers for their request types;
// the engine defines their contracts but never their domain logic.
// Executors are keyed by action type.
type Options struct {
	// Guard, when set, enforces the single-production-engine invariant.
	// Manual-tick engines (TickIntervalMs = 0) never acquire it.
	Guard *Guard

	// IDs generates event and action ids. Defaults to UUIDv7.
	IDs ident.Generator

	// Now is the logical time base in epoch ms. Defaults to wall clock.
	Now func() int64

	WorldMutate request.Handler
	AgentCycle  request.Handler
	Executors   map[string]schedule.Executor
}

// Engine mediates all state-changing interactions.
//
// The engine mutex guards engine-local state (lifecycle, strategy,
// metrics, logical clock); each subsystem carries its own lock.
// Injected handlers and executors always run with the engine mutex
// released, so they may call back into the public API.
type Engine struct {
	mu sync.Mutex

	cfg      Config
	state    State
	strategy string

	bus       *event.Bus
	matrix    *permission.Matrix
	entities  *entity.Registry
	scheduler *schedule.Scheduler
	router    *request.Router

	metrics  Metrics
	guard    *Guard
	now      func() int64
	lastTick int64

	tickStop chan struct{}
	tickDone chan struct{}
}

// New constructs an engine. Constructing a second production engine
// against the same Guard fails: duplicate authority instances are a
// configuration error, not a runtime condition.
func New(cfg Config, opts Options) (*Engine, error) {
	cfg = cfg.withDefaults()
	if cfg.TickIntervalMs < 0 {
		return nil, fmt.Errorf("new engine: tickIntervalMs must be >= 0, got %d", cfg.TickIntervalMs)
	}

	ids := opts.IDs
	if ids == nil {
		ids = ident.UUIDv7Generator{}
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}

	schedOpts := []schedule.Option{schedule.WithIDGenerator(ids)}
	if cfg.HistoryCapacity > 0 {
		schedOpts = append(schedOpts, schedule.WithHistoryCapacity(cfg.HistoryCapacity))
	}

	e := &Engine{
		cfg:       cfg,
		state:     StateUninitialized,
		strategy:  DefaultStrategy,
		bus:       event.NewBus(cfg.MaxEventDepth, event.WithIDGenerator(ids), event.WithNow(now)),
		matrix:    permission.NewMatrix(cfg.AuditCapacity, permission.WithNow(now)),
		entities:  entity.NewRegistry(entity.WithNow(now)),
		scheduler: schedule.NewScheduler(schedOpts...),
		guard:     opts.Guard,
		now:       now,
	}
	e.router = request.NewRouter(e.matrix)
	e.registerHandlers(opts)

	for actionType, exec := range opts.Executors {
		if err := e.scheduler.RegisterExecutor(actionType, exec); err != nil {
			return nil, fmt.Errorf("new engine: %w", err)
		}
	}

	if cfg.Production() && e.guard != nil {
		if err := e.guard.acquire(e); err != nil {
			return nil, fmt.Errorf("new engine: %w", err)
		}
	}
	return e, nil
}

// Init transitions uninitialized → initializing → running and starts
// the automatic tick timer for production engines. Valid only from the
// uninitialized state: calling Init again is rejected without touching
// the lifecycle state, so a running engine stays running. The error
// state is reserved for a failed initialization.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateUninitialized {
		return fmt.Errorf("init: engine is %s, expected %s", e.state, StateUninitialized)
	}
	e.state = StateInitializing

	e.lastTick = e.now()
	e.state = StateRunning
	e.emit(event.TypeEngineInit, map[string]any{
		"engine_id": e.cfg.ID,
		"strategy":  e.strategy,
	})
	slog.Info("engine initialized",
		"engine_id", e.cfg.ID,
		"tick_interval_ms", e.cfg.TickIntervalMs,
	)

	if e.cfg.Production() {
		e.tickStop = make(chan struct{})
		e.tickDone = make(chan struct{})
		go e.tickLoop(ctx, e.tickStop, e.tickDone)
	}
	return nil
}

func (e *Engine) tickLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Duration(e.cfg.TickIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Tick(0); err != nil {
				return
			}
		}
	}
}

// Stop is idempotent. It halts the tick timer, emits engine:stopped,
// clears all subsystems, and releases the guard handle if this
// instance holds it.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == StateStopped || e.state == StateUninitialized {
		e.mu.Unlock()
		return
	}
	e.state = StateStopping
	stop := e.tickStop
	done := e.tickDone
	e.tickStop = nil
	e.tickDone = nil
	e.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.emit(event.TypeEngineStopped, map[string]any{"engine_id": e.cfg.ID})
	e.entities.Clear()
	e.scheduler.Clear()
	e.matrix.Clear()
	e.bus.RemoveAll()
	if e.guard != nil {
		e.guard.release(e)
	}
	e.state = StateStopped
	slog.Info("engine stopped", "engine_id", e.cfg.ID)
}

// Request is the universal entry point for all mutation and query
// intents. It always returns a structured response and never panics
// outward.
func (e *Engine) Request(ctx context.Context, req request.Request) request.Response {
	e.mu.Lock()
	if e.state != StateRunning {
		state := e.state
		e.mu.Unlock()
		return request.Response{
			RequestID: req.ID,
			OK:        false,
			Error: &request.ErrorInfo{
				Code:    request.CodeNotInitialized,
				Message: fmt.Sprintf("engine is %s, not running", state),
			},
		}
	}

	e.emit(event.TypeRequestReceived, map[string]any{
		"request_id": req.ID,
		"type":       string(req.Type),
		"actor_id":   req.ActorID,
		"role":       string(req.Role),
	})
	e.mu.Unlock()

	// The handler runs without the engine mutex so it can call back
	// into the public API.
	resp := e.router.Process(ctx, req)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.metrics.RequestsTotal++
	if resp.OK {
		e.emit(event.TypeRequestCompleted, map[string]any{
			"request_id": req.ID,
			"type":       string(req.Type),
		})
	} else {
		e.metrics.RequestsFailed++
		e.emit(event.TypeRequestFailed, map[string]any{
			"request_id": req.ID,
			"type":       string(req.Type),
			"code":       resp.Error.Code,
		})
	}
	e.metrics.AvgLatencyMs += (float64(resp.ElapsedMs) - e.metrics.AvgLatencyMs) / float64(e.metrics.RequestsTotal)

	return resp
}

// TickResult summarizes one tick.
type TickResult struct {
	Now      int64
	Promoted int
	Executed int
	Failed   int
}

// Tick advances logical time by deltaMs (the configured tick interval
// when deltaMs <= 0), promotes due actions, and drains the immediate
// queue. Given a fixed sequence of deltas, ticks replay identically
// regardless of wall-clock time.
func (e *Engine) Tick(deltaMs int64) (TickResult, error) {
	e.mu.Lock()
	if e.state != StateRunning {
		state := e.state
		e.mu.Unlock()
		return TickResult{}, fmt.Errorf("tick: engine is %s, not running", state)
	}
	if deltaMs <= 0 {
		deltaMs = e.cfg.TickIntervalMs
	}

	now := e.lastTick + deltaMs
	e.emit(event.TypeTickStart, map[string]any{"now": now})
	e.mu.Unlock()

	// Executors run without the engine mutex so they can call back
	// into the public API.
	promoted := e.scheduler.PromoteDue(now)
	results := e.scheduler.DrainImmediate(context.Background())

	e.mu.Lock()
	defer e.mu.Unlock()

	res := TickResult{Now: now, Promoted: promoted}
	for _, r := range results {
		if r.OK {
			res.Executed++
			e.metrics.ActionsExecuted++
			e.emit(event.TypeActionExecuted, map[string]any{
				"action_id":   r.Action.ID,
				"action_type": r.Action.ActionType,
				"runs":        r.Action.Runs,
			})
		} else {
			res.Failed++
			e.metrics.ActionsFailed++
		}
	}

	e.metrics.Ticks++
	e.emit(event.TypeTickEnd, map[string]any{
		"now":      now,
		"executed": res.Executed,
		"failed":   res.Failed,
	})
	e.lastTick = now
	return res, nil
}

// On subscribes to an engine event type and returns an unsubscribe
// function.
func (e *Engine) On(t event.Type, fn event.Listener) func() {
	return e.bus.On(t, fn)
}

// RegisterEntity registers an entity directly, bypassing the request
// pipeline. Emits entity:registered on success.
func (e *Engine) RegisterEntity(id string, role permission.Role, kind string, meta map[string]any) (entity.Entity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registerEntity(id, role, kind, meta)
}

// UpdateEntityMeta merges a metadata patch into a live entity. Emits
// entity:updated on success.
func (e *Engine) UpdateEntityMeta(id string, patch map[string]any) (entity.Entity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, err := e.entities.UpdateMeta(id, patch)
	if err != nil {
		return entity.Entity{}, err
	}
	e.emit(event.TypeEntityUpdated, map[string]any{
		"entity_id": ent.ID,
		"keys":      patchKeys(patch),
	})
	return ent, nil
}

// DeleteEntity soft-deletes an entity. Emits entity:deleted on
// success.
func (e *Engine) DeleteEntity(id, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.entities.Delete(id, reason); err != nil {
		return err
	}
	e.emit(event.TypeEntityDeleted, map[string]any{
		"entity_id": id,
		"reason":    reason,
	})
	return nil
}

// ScheduleAction schedules an action directly, bypassing the request
// pipeline. Emits scheduler:action:scheduled on success.
func (e *Engine) ScheduleAction(in schedule.Input) (schedule.Action, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scheduleAction(in)
}

// CancelAction cancels a scheduled action. Emits
// scheduler:action:cancelled the first time a tracked action is
// cancelled.
func (e *Engine) CancelAction(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, tracked := e.scheduler.Get(id)
	ok := e.scheduler.Cancel(id)
	if ok && tracked && !a.Cancelled {
		e.emit(event.TypeActionCancelled, map[string]any{"action_id": id})
	}
	return ok
}

// Entity returns a copy of a live entity.
func (e *Engine) Entity(id string) (entity.Entity, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entities.Get(id)
}

// FindEntities runs a registry query.
func (e *Engine) FindEntities(q entity.Query) []entity.Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entities.Find(q)
}

// Snapshot returns a point-in-time read of engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *Engine) snapshot() Snapshot {
	delay, ok := e.scheduler.NextRunDelay(e.lastTick)
	if !ok {
		delay = -1
	}
	return Snapshot{
		TakenAt:        e.now(),
		State:          e.state,
		Strategy:       e.strategy,
		EntityCount:    e.entities.Count(),
		EntityIDs:      e.entities.IDs(),
		PendingActions: e.scheduler.PendingCount(),
		NextRunDelayMs: delay,
		Metrics:        e.metrics,
		ConfigDigest:   e.cfg.Digest(),
	}
}

// Metrics returns a copy of the aggregate counters.
func (e *Engine) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Strategy returns the active mediation strategy name.
func (e *Engine) Strategy() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.strategy
}

// SetStrategy switches the mediation strategy directly, bypassing the
// request pipeline. Emits strategy:changed unless the strategy is
// unchanged.
func (e *Engine) SetStrategy(next string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setStrategy(next)
}

// switchStrategy atomically reads the current strategy and applies the
// switch, returning the strategy that was active before.
func (e *Engine) switchStrategy(next string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.strategy
	e.setStrategy(next)
	return from
}

func (e *Engine) setStrategy(next string) {
	if next == "" || next == e.strategy {
		return
	}
	from := e.strategy
	e.strategy = next
	e.emit(event.TypeStrategyChanged, map[string]any{
		"from": from,
		"to":   next,
	})
}

// AuditStats exposes the permission report for tooling.
func (e *Engine) AuditStats(topN int) permission.Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.matrix.Stats(topN)
}

// AuditLog exposes retained audit entries for tooling.
func (e *Engine) AuditLog() []permission.AuditEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.matrix.AuditLog()
}

// ExecutionHistory exposes retained action execution records.
func (e *Engine) ExecutionHistory() []schedule.ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scheduler.History()
}

// Grant adds a capability to a role at runtime.
func (e *Engine) Grant(role permission.Role, c permission.Capability) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.matrix.Grant(role, c)
}

// Revoke removes a capability from a role at runtime.
func (e *Engine) Revoke(role permission.Role, c permission.Capability) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.matrix.Revoke(role, c)
}

// emit sends an event through the bus and counts it. Callers hold the
// engine mutex.
func (e *Engine) emit(t event.Type, payload map[string]any) {
	e.metrics.EventsEmitted++
	e.bus.Emit(event.Event{Type: t, Payload: payload})
}

// emitLocked is emit for callers running outside the engine mutex.
func (e *Engine) emitLocked(t event.Type, payload map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit(t, payload)
}

func (e *Engine) registerEntity(id string, role permission.Role, kind string, meta map[string]any) (entity.Entity, error) {
	ent, err := e.entities.Register(id, role, kind, meta)
	if err != nil {
		return entity.Entity{}, err
	}
	e.emit(event.TypeEntityRegistered, map[string]any{
		"entity_id": ent.ID,
		"role":      string(ent.Role),
		"kind":      ent.Kind,
	})
	return ent, nil
}

func (e *Engine) scheduleAction(in schedule.Input) (schedule.Action, error) {
	a, err := e.scheduler.Schedule(in, e.lastTick)
	if err != nil {
		return schedule.Action{}, err
	}
	e.emit(event.TypeActionScheduled, map[string]any{
		"action_id":   a.ID,
		"action_type": a.ActionType,
		"run_at":      a.RunAt,
		"priority":    a.Priority,
	})
	return a, nil
}
