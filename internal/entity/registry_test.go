package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/warden/internal/permission"
)

func newTestRegistry() *Registry {
	ts := int64(0)
	return NewRegistry(WithNow(func() int64 {
		ts++
		return ts
	}))
}

func TestRegistry_RegisterRoundTrip(t *testing.T) {
	r := newTestRegistry()

	created, err := r.Register("e1", permission.RoleHuman, "avatar", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, created.State.Status)

	got, ok := r.Get("e1")
	require.True(t, ok)
	assert.Equal(t, "e1", got.ID)
	assert.Equal(t, permission.RoleHuman, got.Role)
	assert.Equal(t, "avatar", got.Kind)
	assert.Equal(t, "Ada", got.Meta["name"])
	require.Len(t, got.Lifecycle, 1)
	assert.Equal(t, "registered", got.Lifecycle[0].Event)
}

func TestRegistry_DuplicateID(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Register("e1", permission.RoleHuman, "avatar", nil)
	require.NoError(t, err)

	_, err = r.Register("e1", permission.RoleSystem, "probe", nil)
	require.Error(t, err)
	assert.True(t, IsDuplicate(err))
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Register("", permission.RoleHuman, "avatar", nil)
	assert.Error(t, err)

	_, err = r.Register("e1", permission.RoleHuman, "", nil)
	assert.Error(t, err)

	_, err = r.Register("e1", permission.Role("GHOST"), "avatar", nil)
	assert.Error(t, err)
}

func TestRegistry_UpdateMetaShallowMerge(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Register("e1", permission.RoleHuman, "avatar", map[string]any{"name": "Ada", "hp": int64(10)})
	require.NoError(t, err)

	updated, err := r.UpdateMeta("e1", map[string]any{"hp": int64(20), "zone": "north"})
	require.NoError(t, err)

	// Patch values win on collision; untouched keys survive.
	assert.Equal(t, int64(20), updated.Meta["hp"])
	assert.Equal(t, "Ada", updated.Meta["name"])
	assert.Equal(t, "north", updated.Meta["zone"])
	assert.Equal(t, 1, updated.State.UpdateCount)
}

func TestRegistry_UpdateMetaNotFound(t *testing.T) {
	r := newTestRegistry()

	_, err := r.UpdateMeta("missing", map[string]any{"k": "v"})
	assert.True(t, IsNotFound(err))
}

func TestRegistry_DeactivateActivate(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Register("e1", permission.RoleHuman, "avatar", nil)
	require.NoError(t, err)

	require.NoError(t, r.Deactivate("e1", "idle timeout"))
	got, ok := r.Get("e1")
	require.True(t, ok, "inactive entities remain visible")
	assert.Equal(t, StatusInactive, got.State.Status)
	assert.Equal(t, "idle timeout", got.Lifecycle[1].Reason)

	require.NoError(t, r.Activate("e1", "returned"))
	got, _ = r.Get("e1")
	assert.Equal(t, StatusActive, got.State.Status)
}

func TestRegistry_DeleteIsTerminal(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Register("e1", permission.RoleHuman, "avatar", nil)
	require.NoError(t, err)
	require.NoError(t, r.Delete("e1", "cleanup"))

	_, ok := r.Get("e1")
	assert.False(t, ok)
	assert.False(t, r.Has("e1"))

	// Deleted entities cannot be mutated or revived.
	_, err = r.UpdateMeta("e1", map[string]any{"k": "v"})
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(r.Activate("e1", "")))

	// The id is never recycled.
	_, err = r.Register("e1", permission.RoleHuman, "avatar", nil)
	assert.True(t, IsDuplicate(err))
}

func TestRegistry_DeletedExcludedFromIndexes(t *testing.T) {
	r := newTestRegistry()

	_, _ = r.Register("e1", permission.RoleHuman, "avatar", nil)
	_, _ = r.Register("e2", permission.RoleHuman, "avatar", nil)
	require.NoError(t, r.Delete("e1", ""))

	byRole := r.ByRole(permission.RoleHuman)
	require.Len(t, byRole, 1)
	assert.Equal(t, "e2", byRole[0].ID)

	byKind := r.ByKind("avatar")
	require.Len(t, byKind, 1)
	assert.Equal(t, "e2", byKind[0].ID)

	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []string{"e2"}, r.IDs())
}

func TestRegistry_RawSnapshotIncludesDeleted(t *testing.T) {
	r := newTestRegistry()

	_, _ = r.Register("e1", permission.RoleHuman, "avatar", nil)
	_, _ = r.Register("e2", permission.RoleSimulant, "npc", nil)
	require.NoError(t, r.Delete("e1", "gone"))

	raw := r.RawSnapshot()
	require.Len(t, raw, 2)
	assert.Equal(t, "e1", raw[0].ID)
	assert.Equal(t, StatusDeleted, raw[0].State.Status)
}

func TestRegistry_Find(t *testing.T) {
	r := newTestRegistry()

	_, _ = r.Register("b", permission.RoleHuman, "avatar", map[string]any{"zone": "north"})
	_, _ = r.Register("a", permission.RoleHuman, "avatar", map[string]any{"zone": "south"})
	_, _ = r.Register("c", permission.RoleSimulant, "npc", map[string]any{"zone": "north"})
	require.NoError(t, r.Deactivate("a", ""))
	require.NoError(t, r.Delete("b", ""))

	humans := r.Find(Query{Role: permission.RoleHuman})
	require.Len(t, humans, 1)
	assert.Equal(t, "a", humans[0].ID)

	active := r.Find(Query{Status: StatusActive})
	require.Len(t, active, 1)
	assert.Equal(t, "c", active[0].ID)

	north := r.Find(Query{Where: func(e Entity) bool { return e.Meta["zone"] == "north" }})
	require.Len(t, north, 1)
	assert.Equal(t, "c", north[0].ID)
}

func TestRegistry_FindOrderedByID(t *testing.T) {
	r := newTestRegistry()

	for _, id := range []string{"delta", "alpha", "charlie", "bravo"} {
		_, err := r.Register(id, permission.RoleSystem, "probe", nil)
		require.NoError(t, err)
	}

	got := r.Find(Query{Kind: "probe"})
	ids := make([]string, len(got))
	for i, e := range got {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"alpha", "bravo", "charlie", "delta"}, ids)
}

func TestRegistry_Stats(t *testing.T) {
	r := newTestRegistry()

	_, _ = r.Register("e1", permission.RoleHuman, "avatar", nil)
	_, _ = r.Register("e2", permission.RoleSimulant, "npc", nil)
	_, _ = r.Register("e3", permission.RoleSimulant, "npc", nil)
	require.NoError(t, r.Deactivate("e3", ""))
	require.NoError(t, r.Delete("e1", ""))

	s := r.Stats()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 2, s.ByRole[permission.RoleSimulant])
	assert.Equal(t, 0, s.ByRole[permission.RoleHuman])
	assert.Equal(t, 2, s.ByKind["npc"])
	assert.Equal(t, 1, s.ByStatus[StatusInactive])
}

func TestRegistry_ReturnedCopiesAreDefensive(t *testing.T) {
	r := newTestRegistry()

	_, _ = r.Register("e1", permission.RoleHuman, "avatar", map[string]any{"hp": int64(10)})

	got, _ := r.Get("e1")
	got.Meta["hp"] = int64(999)

	again, _ := r.Get("e1")
	assert.Equal(t, int64(10), again.Meta["hp"])
}

func TestRegistry_ClearAllowsReuse(t *testing.T) {
	r := newTestRegistry()

	_, _ = r.Register("e1", permission.RoleHuman, "avatar", nil)
	r.Clear()

	_, err := r.Register("e1", permission.RoleHuman, "avatar", nil)
	assert.NoError(t, err)
}
