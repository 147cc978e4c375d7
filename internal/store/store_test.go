package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/warden/internal/permission"
	"github.com/roach88/warden/internal/schedule"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleAudit() []permission.AuditEntry {
	return []permission.AuditEntry{
		{Timestamp: 1000, ActorID: "operator", Role: permission.RoleHuman, Capability: permission.CapWorldRead, Allowed: true, RequestID: "req-1"},
		{Timestamp: 1001, ActorID: "npc-1", Role: permission.RoleSimulant, Capability: permission.CapEngineIntrospect, Allowed: false, Reason: "capability not granted", RequestID: "req-2"},
		{Timestamp: 1002, ActorID: "npc-1", Role: permission.RoleSimulant, Capability: permission.CapWorldRead, Allowed: true, RequestID: "req-3"},
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestArchiveAudit_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.ArchiveAudit(ctx, sampleAudit())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.ReadAudit(ctx, AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, sampleAudit(), got)
}

func TestArchiveAudit_RearchiveIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.ArchiveAudit(ctx, sampleAudit())
	require.NoError(t, err)

	// Overlapping snapshot: two old entries plus one new.
	overlap := append(sampleAudit()[1:], permission.AuditEntry{
		Timestamp: 1003, ActorID: "operator", Role: permission.RoleHuman,
		Capability: permission.CapWorldMutate, Allowed: true, RequestID: "req-4",
	})
	n, err := s.ArchiveAudit(ctx, overlap)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the new entry is inserted")

	total, denied, err := s.AuditCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, 1, denied)
}

func TestReadAudit_Filters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.ArchiveAudit(ctx, sampleAudit())
	require.NoError(t, err)

	denied, err := s.ReadAudit(ctx, AuditFilter{DeniedOnly: true})
	require.NoError(t, err)
	require.Len(t, denied, 1)
	assert.Equal(t, "req-2", denied[0].RequestID)

	byActor, err := s.ReadAudit(ctx, AuditFilter{ActorID: "npc-1"})
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	byCap, err := s.ReadAudit(ctx, AuditFilter{Capability: "WORLD_READ", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byCap, 1)
	assert.Equal(t, "req-1", byCap[0].RequestID, "limit keeps the earliest")
}

func TestArchiveHistory_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	records := []schedule.ExecutionRecord{
		{ActionID: "a1", ActionType: "patrol", StartedAt: 2000, DurationMs: 3, OK: true},
		{ActionID: "a2", ActionType: "dawn", StartedAt: 2001, DurationMs: 1, OK: false, Error: "no executor registered"},
	}

	n, err := s.ArchiveHistory(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.ArchiveHistory(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "re-archive inserts nothing")

	got, err := s.ReadHistory(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}
