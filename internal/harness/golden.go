package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/warden/internal/canon"
)

// snapshotMap renders a result as a canonical-JSON-ready map. Elapsed
// times never appear: wall-clock values would break byte-for-byte
// golden comparison.
func snapshotMap(result *Result) map[string]any {
	trace := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		entry := map[string]any{
			"id":   ev.ID,
			"type": string(ev.Type),
			"ts":   ev.Timestamp,
		}
		if ev.Payload != nil {
			entry["payload"] = ev.Payload
		}
		trace[i] = entry
	}

	responses := make([]any, len(result.Responses))
	for i, r := range result.Responses {
		entry := map[string]any{
			"request_id": r.RequestID,
			"type":       string(r.Type),
			"ok":         r.OK,
		}
		if r.Code != "" {
			entry["code"] = r.Code
		}
		responses[i] = entry
	}

	return map[string]any{
		"scenario_name": result.Scenario.Name,
		"trace":         trace,
		"responses":     responses,
		"final": map[string]any{
			"state":           string(result.Snapshot.State),
			"strategy":        result.Snapshot.Strategy,
			"entity_count":    result.Snapshot.EntityCount,
			"pending_actions": result.Snapshot.PendingActions,
			"ticks":           result.Snapshot.Metrics.Ticks,
		},
	}
}

// RunWithGolden executes a scenario and compares the canonical trace
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	traceJSON, err := canon.Marshal(snapshotMap(result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)
	return nil
}
