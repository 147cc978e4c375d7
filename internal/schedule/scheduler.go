package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/warden/internal/ident"
	"github.com/roach88/warden/internal/ring"
)

// DefaultHistoryCapacity bounds the execution history ring.
const DefaultHistoryCapacity = 1024

// Executor runs one action. Registered per action type; the seam for
// injecting world and agent logic.
type Executor func(ctx context.Context, a Action) (any, error)

// ExecutionResult is the outcome of one action execution.
type ExecutionResult struct {
	Action     Action
	OK         bool
	Result     any
	Err        error
	DurationMs int64
}

// ExecutionRecord is the history entry retained per execution.
type ExecutionRecord struct {
	ActionID   string
	ActionType string
	StartedAt  int64 // epoch ms, wall clock
	DurationMs int64
	OK         bool
	Error      string
}

// Statistics is a point-in-time summary of scheduler state.
type Statistics struct {
	Tracked            int
	ImmediateQueueSize int
	DelayedCount       int
	Executed           int
	Failed             int
	Cancelled          int
}

// Scheduler owns the immediate priority queue, the time-ordered delayed
// list, and the executor registry.
//
// Time never advances inside the scheduler: callers pass a logical
// "now" to Schedule and PromoteDue, so ticks are replayable independent
// of wall-clock time. Wall clock is used only to measure execution
// duration.
//
// Executors run with the internal mutex released, so an executor may
// call back into the scheduler (or the engine that owns it).
type Scheduler struct {
	mu        sync.Mutex
	ids       ident.Generator
	actions   map[string]*Action
	immediate *immediateQueue
	delayed   []*Action // sorted by (RunAt asc, Priority desc, ID asc)
	seq       int64
	executors map[string]Executor
	history   *ring.Buffer[ExecutionRecord]

	executed  int
	failed    int
	cancelled int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithIDGenerator overrides the action ID generator.
func WithIDGenerator(g ident.Generator) Option {
	return func(s *Scheduler) { s.ids = g }
}

// WithHistoryCapacity overrides the execution history ring size.
func WithHistoryCapacity(n int) Option {
	return func(s *Scheduler) { s.history = ring.New[ExecutionRecord](n) }
}

// NewScheduler creates an empty scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		ids:       ident.UUIDv7Generator{},
		actions:   make(map[string]*Action),
		immediate: &immediateQueue{},
		executors: make(map[string]Executor),
		history:   ring.New[ExecutionRecord](DefaultHistoryCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterExecutor binds an executor to an action type. Later
// registrations replace earlier ones; the late-binding registry is
// intentional.
func (s *Scheduler) RegisterExecutor(actionType string, fn Executor) error {
	if actionType == "" {
		return fmt.Errorf("register executor: action type is required")
	}
	if fn == nil {
		return fmt.Errorf("register executor: executor is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executors[actionType] = fn
	return nil
}

// Schedule validates and tracks an action. Actions whose RunAt is at or
// before now go straight to the immediate queue; others join the
// delayed list in time order.
func (s *Scheduler) Schedule(in Input, now int64) (Action, error) {
	if err := validateInput(in); err != nil {
		return Action{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := in.ID
	if id == "" {
		id = s.ids.Generate()
	}
	if _, exists := s.actions[id]; exists {
		return Action{}, conflictError(id)
	}

	a := &Action{
		ID:            id,
		RunAt:         in.RunAt,
		RepeatEveryMs: in.RepeatEveryMs,
		ActionType:    in.ActionType,
		Payload:       in.Payload,
		Priority:      in.Priority,
		CreatedAt:     now,
	}
	s.actions[id] = a

	if a.RunAt <= now {
		s.seq++
		s.immediate.push(a, s.seq)
	} else {
		s.insertDelayed(a)
	}

	slog.Debug("action scheduled",
		"action_id", a.ID,
		"action_type", a.ActionType,
		"run_at", a.RunAt,
		"priority", a.Priority,
		"recurring", a.Recurring(),
	)
	return *a, nil
}

// Cancel marks an action cancelled. Idempotent: cancelling a tracked
// action always returns true, including re-cancels. The entry is
// cleaned up lazily when it would otherwise have run.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[id]
	if !ok {
		return false
	}
	if !a.Cancelled {
		a.Cancelled = true
		s.cancelled++
		slog.Debug("action cancelled", "action_id", id)
	}
	return true
}

// PromoteDue moves delayed, non-cancelled actions whose RunAt <= now
// into the immediate queue, preserving priority ordering. Cancelled
// actions that come due are dropped from tracking here. Executes
// nothing itself. Returns the number promoted.
func (s *Scheduler) PromoteDue(now int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	promoted := 0
	// The delayed list is sorted by (RunAt, Priority desc, ID), so due
	// actions form a prefix and promotion preserves the deterministic
	// order via increasing insertion seq.
	i := 0
	for ; i < len(s.delayed); i++ {
		a := s.delayed[i]
		if a.RunAt > now {
			break
		}
		if a.Cancelled {
			delete(s.actions, a.ID)
			continue
		}
		s.seq++
		s.immediate.push(a, s.seq)
		promoted++
	}
	if i > 0 {
		s.delayed = append(s.delayed[:0], s.delayed[i:]...)
	}
	return promoted
}

// DrainImmediate executes queued actions one at a time until the queue
// is empty, skipping cancelled entries. Execution failures never stop
// the drain. Successful recurring actions advance RunAt by their repeat
// interval and rejoin the delayed list; everything else leaves
// tracking.
func (s *Scheduler) DrainImmediate(ctx context.Context) []ExecutionResult {
	var results []ExecutionResult
	for {
		s.mu.Lock()
		a, ok := s.immediate.pop()
		if !ok {
			s.mu.Unlock()
			return results
		}
		if a.Cancelled {
			delete(s.actions, a.ID)
			s.mu.Unlock()
			continue
		}
		exec := s.executors[a.ActionType]
		snap := *a
		s.mu.Unlock()

		results = append(results, s.execute(ctx, a, snap, exec))
	}
}

// execute runs one action. The executor itself runs unlocked (against a
// copy of the action) so it can schedule or cancel actions; bookkeeping
// re-acquires the mutex afterwards.
func (s *Scheduler) execute(ctx context.Context, a *Action, snap Action, exec Executor) ExecutionResult {
	started := time.Now()
	var (
		result any
		err    error
	)

	if exec == nil {
		err = fmt.Errorf("no executor registered for action type %q", a.ActionType)
	} else {
		result, err = runExecutor(ctx, exec, snap)
	}

	duration := time.Since(started).Milliseconds()

	s.mu.Lock()
	defer s.mu.Unlock()

	a.Runs++

	rec := ExecutionRecord{
		ActionID:   a.ID,
		ActionType: a.ActionType,
		StartedAt:  started.UnixMilli(),
		DurationMs: duration,
		OK:         err == nil,
	}
	if err != nil {
		rec.Error = err.Error()
		s.failed++
		slog.Error("action execution failed",
			"action_id", a.ID,
			"action_type", a.ActionType,
			"error", err,
		)
	} else {
		s.executed++
	}
	s.history.Append(rec)

	if err == nil && a.Recurring() && !a.Cancelled {
		a.RunAt += a.RepeatEveryMs
		s.insertDelayed(a)
	} else {
		// One-shot actions leave tracking regardless of outcome; failed
		// or mid-execution-cancelled recurring actions are not
		// rescheduled.
		delete(s.actions, a.ID)
	}

	return ExecutionResult{
		Action:     *a,
		OK:         err == nil,
		Result:     result,
		Err:        err,
		DurationMs: duration,
	}
}

// runExecutor isolates executor panics so a broken executor cannot
// crash the drain loop.
func runExecutor(ctx context.Context, exec Executor, a Action) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return exec(ctx, a)
}

// insertDelayed places an action into the delayed list keeping the
// (RunAt asc, Priority desc, ID asc) order. The id comparison is the
// deterministic tiebreak of last resort.
func (s *Scheduler) insertDelayed(a *Action) {
	idx, _ := slices.BinarySearchFunc(s.delayed, a, func(x, target *Action) int {
		if x.RunAt != target.RunAt {
			if x.RunAt < target.RunAt {
				return -1
			}
			return 1
		}
		if x.Priority != target.Priority {
			if x.Priority > target.Priority {
				return -1
			}
			return 1
		}
		if x.ID < target.ID {
			return -1
		}
		if x.ID > target.ID {
			return 1
		}
		return 0
	})
	s.delayed = slices.Insert(s.delayed, idx, a)
}

// Get returns a tracked action by id.
func (s *Scheduler) Get(id string) (Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[id]
	if !ok {
		return Action{}, false
	}
	return *a, true
}

// PendingCount returns the number of tracked, non-cancelled actions.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, a := range s.actions {
		if !a.Cancelled {
			n++
		}
	}
	return n
}

// NextRunDelay returns the delay in ms until the next runnable action,
// relative to now. Zero when the immediate queue is non-empty; false
// when nothing is pending.
func (s *Scheduler) NextRunDelay(now int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.immediate.entries {
		if !e.action.Cancelled {
			return 0, true
		}
	}
	for _, a := range s.delayed {
		if a.Cancelled {
			continue
		}
		d := a.RunAt - now
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// History returns retained execution records, oldest first.
func (s *Scheduler) History() []ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Snapshot()
}

// Stats summarizes scheduler state.
func (s *Scheduler) Stats() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Statistics{
		Tracked:            len(s.actions),
		ImmediateQueueSize: s.immediate.Len(),
		DelayedCount:       len(s.delayed),
		Executed:           s.executed,
		Failed:             s.failed,
		Cancelled:          s.cancelled,
	}
}

// Clear drops all tracked actions and history. Executor registrations
// survive; they are construction-time wiring, not state.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actions = make(map[string]*Action)
	s.immediate = &immediateQueue{}
	s.delayed = nil
	s.seq = 0
	s.history = ring.New[ExecutionRecord](s.history.Cap())
	s.executed = 0
	s.failed = 0
	s.cancelled = 0
}
