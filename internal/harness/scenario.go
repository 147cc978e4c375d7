// Package harness executes declarative YAML scenarios against a
// deterministic engine and captures the resulting event trace for
// assertions and golden comparison.
package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one deterministic engine run: an optional policy,
// a sequence of requests and ticks, and assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policy is optional CUE policy source applied after init.
	Policy string `yaml:"policy,omitempty"`

	// Executors lists action types that get a no-op executor. Scenario
	// outcomes are observed through the event trace, not executor side
	// effects.
	Executors []string `yaml:"executors,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is either a request or a tick; exactly one must be set.
type Step struct {
	Request *RequestStep `yaml:"request,omitempty"`
	Tick    *TickStep    `yaml:"tick,omitempty"`
}

// RequestStep submits one request. IDs are assigned sequentially
// (req-1, req-2, ...) so traces stay deterministic.
type RequestStep struct {
	Type    string         `yaml:"type"`
	Actor   string         `yaml:"actor"`
	Role    string         `yaml:"role"`
	Payload map[string]any `yaml:"payload,omitempty"`

	// Expect, when set, fails the run if the response differs.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected response shape.
type ExpectClause struct {
	OK   bool   `yaml:"ok"`
	Code string `yaml:"code,omitempty"`
}

// TickStep advances logical time.
type TickStep struct {
	Delta int64 `yaml:"delta"`
}

// Assertion validates the trace or final engine state.
type Assertion struct {
	// Type selects the assertion:
	//   - "event_count": event Type appears exactly Count times
	//   - "event_order": events appear in this relative order
	//   - "entity_exists": EntityID is live in the registry
	//   - "pending_actions": exactly Count actions remain pending
	Type string `yaml:"type"`

	Event    string   `yaml:"event,omitempty"`
	Events   []string `yaml:"events,omitempty"`
	EntityID string   `yaml:"entityId,omitempty"`
	Count    int      `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertEventCount     = "event_count"
	AssertEventOrder     = "event_order"
	AssertEntityExists   = "entity_exists"
	AssertPendingActions = "pending_actions"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected to catch typos.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch {
		case step.Request != nil && step.Tick != nil:
			return fmt.Errorf("steps[%d]: request and tick are mutually exclusive", i)
		case step.Request != nil:
			if step.Request.Type == "" {
				return fmt.Errorf("steps[%d].request: type is required", i)
			}
			if step.Request.Actor == "" {
				return fmt.Errorf("steps[%d].request: actor is required", i)
			}
			if step.Request.Role == "" {
				return fmt.Errorf("steps[%d].request: role is required", i)
			}
		case step.Tick != nil:
			if step.Tick.Delta <= 0 {
				return fmt.Errorf("steps[%d].tick: delta must be positive", i)
			}
		default:
			return fmt.Errorf("steps[%d]: request or tick is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertEntityExists:
		if a.EntityID == "" {
			return fmt.Errorf("assertions[%d]: entityId is required for entity_exists", index)
		}
	case AssertPendingActions:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
