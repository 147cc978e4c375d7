package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatrix(capacity int) *Matrix {
	ts := int64(0)
	return NewMatrix(capacity, WithNow(func() int64 {
		ts++
		return ts
	}))
}

func TestMatrix_DefaultGrants(t *testing.T) {
	m := newTestMatrix(64)

	tests := []struct {
		name       string
		role       Role
		capability Capability
		allowed    bool
	}{
		{"human reads world", RoleHuman, CapWorldRead, true},
		{"human mutates world", RoleHuman, CapWorldMutate, true},
		{"human introspects", RoleHuman, CapEngineIntrospect, true},
		{"human schedules", RoleHuman, CapScheduleAction, true},
		{"human registers entities", RoleHuman, CapEntityRegister, true},
		{"human cannot decide as agent", RoleHuman, CapAgentDecide, false},
		{"human cannot manage permissions", RoleHuman, CapPermissionManage, false},
		{"simulant reads world", RoleSimulant, CapWorldRead, true},
		{"simulant decides", RoleSimulant, CapAgentDecide, true},
		{"simulant mutates world", RoleSimulant, CapWorldMutate, true},
		{"simulant requests llm", RoleSimulant, CapLLMRequest, true},
		{"simulant cannot introspect", RoleSimulant, CapEngineIntrospect, false},
		{"simulant cannot register entities", RoleSimulant, CapEntityRegister, false},
		{"system introspects", RoleSystem, CapEngineIntrospect, true},
		{"system manages permissions", RoleSystem, CapPermissionManage, true},
		{"system switches strategies", RoleSystem, CapStrategySwitch, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := m.Check("u1", tt.role, tt.capability, "")
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestMatrix_SystemHoldsAllCapabilities(t *testing.T) {
	m := newTestMatrix(64)

	for _, c := range AllCapabilities {
		d := m.Check("sys", RoleSystem, c, "")
		assert.True(t, d.Allowed, "SYSTEM should hold %s", c)
	}
	assert.Len(t, AllCapabilities, 11)
}

func TestMatrix_UnknownRoleDenied(t *testing.T) {
	m := newTestMatrix(64)

	d := m.Check("u1", Role("GHOST"), CapWorldRead, "")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "unknown role")
}

func TestMatrix_EveryCheckAudited(t *testing.T) {
	m := newTestMatrix(64)

	m.Check("u1", RoleHuman, CapWorldRead, "req-1")
	m.Check("u1", RoleHuman, CapAgentDecide, "req-2")

	log := m.AuditLog()
	require.Len(t, log, 2)
	assert.True(t, log[0].Allowed)
	assert.Equal(t, "req-1", log[0].RequestID)
	assert.False(t, log[1].Allowed)
	assert.Equal(t, CapAgentDecide, log[1].Capability)
}

func TestMatrix_CheckAllAuditsEveryCapability(t *testing.T) {
	m := newTestMatrix(64)

	ok, missing := m.CheckAll("u1", RoleSimulant,
		[]Capability{CapEngineIntrospect, CapWorldRead, CapEntityRegister}, "req-1")

	assert.False(t, ok)
	assert.Equal(t, []Capability{CapEngineIntrospect, CapEntityRegister}, missing)
	// No short-circuit on auditing: all three checks recorded.
	assert.Equal(t, 3, m.AuditSize())
}

func TestMatrix_CheckAny(t *testing.T) {
	m := newTestMatrix(64)

	assert.True(t, m.CheckAny("u1", RoleSimulant,
		[]Capability{CapEngineIntrospect, CapWorldRead}, ""))
	assert.False(t, m.CheckAny("u1", RoleSimulant,
		[]Capability{CapEngineIntrospect, CapEngineAdmin}, ""))
}

func TestMatrix_GrantRevoke(t *testing.T) {
	m := newTestMatrix(64)

	require.NoError(t, m.Grant(RoleSimulant, CapEngineIntrospect))
	assert.True(t, m.Check("u1", RoleSimulant, CapEngineIntrospect, "").Allowed)

	require.NoError(t, m.Revoke(RoleSimulant, CapEngineIntrospect))
	assert.False(t, m.Check("u1", RoleSimulant, CapEngineIntrospect, "").Allowed)
}

func TestMatrix_GrantRejectsUnknowns(t *testing.T) {
	m := newTestMatrix(64)

	assert.Error(t, m.Grant(Role("GHOST"), CapWorldRead))
	assert.Error(t, m.Grant(RoleHuman, Capability("FLY")))
}

func TestMatrix_RevokeRejectsUnknowns(t *testing.T) {
	m := newTestMatrix(64)

	assert.Error(t, m.Revoke(Role("GHOST"), CapWorldRead))
	assert.Error(t, m.Revoke(RoleHuman, Capability("FLY")))
}

func TestMatrix_AuditRingDropsOldest(t *testing.T) {
	m := newTestMatrix(3)

	m.Check("a", RoleHuman, CapWorldRead, "")
	m.Check("b", RoleHuman, CapWorldRead, "")
	m.Check("c", RoleHuman, CapWorldRead, "")
	m.Check("d", RoleHuman, CapWorldRead, "")

	log := m.AuditLog()
	require.Len(t, log, 3)
	assert.Equal(t, "b", log[0].ActorID)
	assert.Equal(t, "d", log[2].ActorID)
}

func TestMatrix_Capabilities(t *testing.T) {
	m := newTestMatrix(64)

	caps := m.Capabilities(RoleHuman)
	assert.Len(t, caps, 5)
	assert.Contains(t, caps, CapWorldRead)
	assert.NotContains(t, caps, CapAgentDecide)
}

func TestMatrix_Stats(t *testing.T) {
	m := newTestMatrix(64)

	m.Check("u1", RoleSimulant, CapEngineIntrospect, "") // denied
	m.Check("u1", RoleSimulant, CapEngineIntrospect, "") // denied
	m.Check("u1", RoleSimulant, CapEntityRegister, "")   // denied
	m.Check("u2", RoleSystem, CapEngineIntrospect, "")   // allowed

	r := m.Stats(10)
	assert.Equal(t, 4, r.Total)
	assert.Equal(t, 1, r.Approved)
	assert.Equal(t, 3, r.Denied)
	assert.InDelta(t, 0.75, r.DenialRate, 1e-9)
	assert.Equal(t, 3, r.ByRole[RoleSimulant])
	assert.Equal(t, 1, r.ByActor["u2"])

	require.Len(t, r.TopDenied, 2)
	assert.Equal(t, CapEngineIntrospect, r.TopDenied[0].Capability)
	assert.Equal(t, 2, r.TopDenied[0].Count)
}

func TestMatrix_StatsTopNAndTieBreak(t *testing.T) {
	m := newTestMatrix(64)

	// Equal denial counts: ranking must tie-break on capability name.
	m.Check("u1", RoleSimulant, CapStrategySwitch, "")
	m.Check("u1", RoleSimulant, CapEngineAdmin, "")

	r := m.Stats(1)
	require.Len(t, r.TopDenied, 1)
	assert.Equal(t, CapEngineAdmin, r.TopDenied[0].Capability)
}
