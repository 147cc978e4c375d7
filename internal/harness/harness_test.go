package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/warden/internal/canon"
)

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "register-and-tick.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "register-and-tick", s.Name)
	assert.Len(t, s.Steps, 3)
	assert.Len(t, s.Assertions, 4)
	require.NotNil(t, s.Steps[0].Request)
	assert.Equal(t, "entity.register", s.Steps[0].Request.Type)
	require.NotNil(t, s.Steps[2].Tick)
	assert.Equal(t, int64(100), s.Steps[2].Tick.Delta)
}

func TestLoadScenario_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: typo
description: has a typo
step:
  - tick:
      delta: 1
`), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"missing name",
			"description: d\nsteps:\n  - tick: {delta: 1}\n",
			"name is required",
		},
		{
			"empty steps",
			"name: n\ndescription: d\nsteps: []\n",
			"steps list is required",
		},
		{
			"request without actor",
			"name: n\ndescription: d\nsteps:\n  - request: {type: engine.snapshot, role: SYSTEM}\n",
			"actor is required",
		},
		{
			"tick with zero delta",
			"name: n\ndescription: d\nsteps:\n  - tick: {delta: 0}\n",
			"delta must be positive",
		},
		{
			"unknown assertion type",
			"name: n\ndescription: d\nsteps:\n  - tick: {delta: 1}\nassertions:\n  - type: trace_contains\n",
			"unknown assertion type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "scenario.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_RegisterAndTickGolden(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "register-and-tick.yaml"))
	require.NoError(t, err)

	require.NoError(t, RunWithGolden(t, s))
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "register-and-tick.yaml"))
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := canon.Marshal(snapshotMap(first))
	require.NoError(t, err)
	b, err := canon.Marshal(snapshotMap(second))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_DeniedRequestRecordsCode(t *testing.T) {
	s := &Scenario{
		Name:        "denied-snapshot",
		Description: "A simulant is refused engine introspection.",
		Steps: []Step{
			{Request: &RequestStep{
				Type:   "engine.snapshot",
				Actor:  "npc-1",
				Role:   "SIMULANT",
				Expect: &ExpectClause{OK: false, Code: "PERMISSION_DENIED"},
			}},
		},
		Assertions: []Assertion{
			{Type: AssertEventCount, Event: "engine:request:failed", Count: 1},
			{Type: AssertEventCount, Event: "engine:request:completed", Count: 0},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	require.Len(t, result.Responses, 1)
	assert.False(t, result.Responses[0].OK)
	assert.Equal(t, "PERMISSION_DENIED", result.Responses[0].Code)
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	s := &Scenario{
		Name:        "expect-mismatch",
		Description: "Expecting success from a denied request fails the run.",
		Steps: []Step{
			{Request: &RequestStep{
				Type:   "engine.snapshot",
				Actor:  "npc-1",
				Role:   "SIMULANT",
				Expect: &ExpectClause{OK: true},
			}},
		},
	}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected ok=true")
}

func TestRun_PolicyBootstrap(t *testing.T) {
	s := &Scenario{
		Name:        "policy-bootstrap",
		Description: "A CUE policy seeds the world before any step runs.",
		Policy: `
policy: {
	name:     "bootstrap"
	strategy: "cautious"
	entities: [{id: "well-1", role: "SYSTEM", kind: "fixture"}]
}
`,
		Steps: []Step{
			{Tick: &TickStep{Delta: 100}},
		},
		Assertions: []Assertion{
			{Type: AssertEntityExists, EntityID: "well-1"},
			{Type: AssertEventCount, Event: "strategy:changed", Count: 1},
			{Type: AssertPendingActions, Count: 0},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.Equal(t, "cautious", result.Snapshot.Strategy)
	assert.Equal(t, 1, result.Snapshot.EntityCount)
}

func TestRun_FailedAssertionSurfaces(t *testing.T) {
	s := &Scenario{
		Name:        "bad-assertion",
		Description: "An unmet assertion fails the run.",
		Steps: []Step{
			{Tick: &TickStep{Delta: 100}},
		},
		Assertions: []Assertion{
			{Type: AssertEntityExists, EntityID: "ghost"},
		},
	}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}
