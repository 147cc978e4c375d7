package harness

import (
	"context"
	"fmt"

	"github.com/roach88/warden/internal/debug"
	"github.com/roach88/warden/internal/engine"
	"github.com/roach88/warden/internal/event"
	"github.com/roach88/warden/internal/ident"
	"github.com/roach88/warden/internal/permission"
	"github.com/roach88/warden/internal/policy"
	"github.com/roach88/warden/internal/request"
	"github.com/roach88/warden/internal/schedule"
)

// logicalStart is the frozen clock value for every scenario run. All
// timestamps in a trace are derived from it, never from wall clock.
const logicalStart int64 = 1000

const traceCapacity = 1024

// TraceEvent is one captured engine event.
type TraceEvent struct {
	ID        string
	Type      event.Type
	Timestamp int64
	Payload   map[string]any
}

// ResponseRecord is the outcome of one request step.
type ResponseRecord struct {
	RequestID string
	Type      request.Type
	OK        bool
	Code      string
}

// Result captures a completed scenario run.
type Result struct {
	Scenario  *Scenario
	Trace     []TraceEvent
	Responses []ResponseRecord
	Snapshot  engine.Snapshot
}

// Run executes a scenario on a fresh manual-tick engine with
// sequential ids and a frozen clock, so two runs of the same scenario
// produce byte-identical traces.
func Run(scenario *Scenario) (*Result, error) {
	executors := make(map[string]schedule.Executor, len(scenario.Executors))
	for _, actionType := range scenario.Executors {
		executors[actionType] = func(context.Context, schedule.Action) (any, error) {
			return nil, nil
		}
	}

	e, err := engine.New(engine.Config{ID: scenario.Name, TickIntervalMs: 0}, engine.Options{
		IDs:       ident.NewSequential("id"),
		Now:       func() int64 { return logicalStart },
		Executors: executors,
	})
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	in := debug.AttachWithCapacity(e, traceCapacity)
	defer in.Close()

	if err := e.Init(context.Background()); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	defer e.Stop()

	if scenario.Policy != "" {
		p, err := policy.CompileSource(scenario.Policy)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		if err := policy.Apply(p, e); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
	}

	result := &Result{Scenario: scenario}
	reqSeq := 0
	for i, step := range scenario.Steps {
		switch {
		case step.Request != nil:
			reqSeq++
			resp := e.Request(context.Background(), request.Request{
				ID:        fmt.Sprintf("req-%d", reqSeq),
				ActorID:   step.Request.Actor,
				Role:      permission.Role(step.Request.Role),
				Type:      request.Type(step.Request.Type),
				Timestamp: logicalStart,
				Payload:   step.Request.Payload,
			})

			rec := ResponseRecord{
				RequestID: resp.RequestID,
				Type:      request.Type(step.Request.Type),
				OK:        resp.OK,
			}
			if resp.Error != nil {
				rec.Code = resp.Error.Code
			}
			result.Responses = append(result.Responses, rec)

			if expect := step.Request.Expect; expect != nil {
				if resp.OK != expect.OK {
					return nil, fmt.Errorf("scenario %s: steps[%d]: expected ok=%v, got ok=%v (code %s)",
						scenario.Name, i, expect.OK, resp.OK, rec.Code)
				}
				if expect.Code != "" && rec.Code != expect.Code {
					return nil, fmt.Errorf("scenario %s: steps[%d]: expected code %s, got %s",
						scenario.Name, i, expect.Code, rec.Code)
				}
			}

		case step.Tick != nil:
			if _, err := e.Tick(step.Tick.Delta); err != nil {
				return nil, fmt.Errorf("scenario %s: steps[%d]: %w", scenario.Name, i, err)
			}
		}
	}

	for _, ev := range in.Recent() {
		result.Trace = append(result.Trace, TraceEvent{
			ID:        ev.ID,
			Type:      ev.Type,
			Timestamp: ev.Timestamp,
			Payload:   ev.Payload,
		})
	}
	result.Snapshot = e.Snapshot()

	if err := checkAssertions(scenario, result, e); err != nil {
		return nil, err
	}
	return result, nil
}

func checkAssertions(scenario *Scenario, result *Result, e *engine.Engine) error {
	for i, a := range scenario.Assertions {
		switch a.Type {
		case AssertEventCount:
			count := 0
			for _, ev := range result.Trace {
				if string(ev.Type) == a.Event {
					count++
				}
			}
			if count != a.Count {
				return fmt.Errorf("scenario %s: assertions[%d]: event %s occurred %d times, expected %d",
					scenario.Name, i, a.Event, count, a.Count)
			}

		case AssertEventOrder:
			next := 0
			for _, ev := range result.Trace {
				if next < len(a.Events) && string(ev.Type) == a.Events[next] {
					next++
				}
			}
			if next != len(a.Events) {
				return fmt.Errorf("scenario %s: assertions[%d]: event order not satisfied, matched %d of %d",
					scenario.Name, i, next, len(a.Events))
			}

		case AssertEntityExists:
			if _, ok := e.Entity(a.EntityID); !ok {
				return fmt.Errorf("scenario %s: assertions[%d]: entity %s does not exist",
					scenario.Name, i, a.EntityID)
			}

		case AssertPendingActions:
			if result.Snapshot.PendingActions != a.Count {
				return fmt.Errorf("scenario %s: assertions[%d]: %d pending actions, expected %d",
					scenario.Name, i, result.Snapshot.PendingActions, a.Count)
			}
		}
	}
	return nil
}
