package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/warden/internal/ident"
)

func newTestBus(maxDepth int) *Bus {
	return NewBus(maxDepth,
		WithIDGenerator(ident.NewSequential("ev")),
		WithNow(func() int64 { return 1000 }),
	)
}

func TestBus_EmitDeliversToListeners(t *testing.T) {
	b := newTestBus(32)

	var got []Event
	b.On(TypeEntityRegistered, func(ev Event) { got = append(got, ev) })

	ok := b.Emit(Event{Type: TypeEntityRegistered, Payload: map[string]any{"entity_id": "e1"}})
	require.True(t, ok)

	require.Len(t, got, 1)
	assert.Equal(t, "ev-1", got[0].ID)
	assert.Equal(t, int64(1000), got[0].Timestamp)
	assert.Equal(t, "e1", got[0].Payload["entity_id"])
}

func TestBus_EmitOnlyMatchingType(t *testing.T) {
	b := newTestBus(32)

	var entityCount, tickCount int
	b.On(TypeEntityRegistered, func(Event) { entityCount++ })
	b.On(TypeTickStart, func(Event) { tickCount++ })

	b.Emit(Event{Type: TypeEntityRegistered})

	assert.Equal(t, 1, entityCount)
	assert.Equal(t, 0, tickCount)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := newTestBus(32)

	var count int
	unsub := b.On(TypeTickStart, func(Event) { count++ })

	b.Emit(Event{Type: TypeTickStart})
	unsub()
	b.Emit(Event{Type: TypeTickStart})

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, b.ListenerCount(TypeTickStart))
}

func TestBus_UnsubscribeIdempotent(t *testing.T) {
	b := newTestBus(32)

	unsub := b.On(TypeTickStart, func(Event) {})
	unsub()
	unsub() // second call is a no-op

	assert.Equal(t, 0, b.ListenerCount(TypeTickStart))
}

func TestBus_SnapshotSemantics(t *testing.T) {
	b := newTestBus(32)

	var calls []string
	b.On(TypeTickStart, func(Event) {
		calls = append(calls, "first")
		// Added during dispatch: must not fire in this pass.
		b.On(TypeTickStart, func(Event) { calls = append(calls, "late") })
	})

	b.Emit(Event{Type: TypeTickStart})
	assert.Equal(t, []string{"first"}, calls)

	b.Emit(Event{Type: TypeTickStart})
	assert.Equal(t, []string{"first", "first", "late"}, calls)
}

func TestBus_RemoveDuringDispatchAffectsNextPassOnly(t *testing.T) {
	b := newTestBus(32)

	var aCalls, bCalls int
	var unsubB func()
	b.On(TypeTickStart, func(Event) {
		aCalls++
		unsubB()
	})
	unsubB = b.On(TypeTickStart, func(Event) { bCalls++ })

	b.Emit(Event{Type: TypeTickStart})

	// B was removed mid-dispatch but the snapshot still includes it.
	assert.Equal(t, 1, aCalls)
	assert.Equal(t, 1, bCalls)

	b.Emit(Event{Type: TypeTickStart})
	assert.Equal(t, 2, aCalls)
	assert.Equal(t, 1, bCalls)
}

func TestBus_ReentrantEmit(t *testing.T) {
	b := newTestBus(32)

	var order []string
	b.On(TypeTickStart, func(Event) {
		order = append(order, "tick")
		b.Emit(Event{Type: TypeTickEnd})
	})
	b.On(TypeTickEnd, func(Event) { order = append(order, "end") })

	b.Emit(Event{Type: TypeTickStart})
	assert.Equal(t, []string{"tick", "end"}, order)
}

func TestBus_OverflowRefusedWithSynthesizedError(t *testing.T) {
	const maxDepth = 5
	b := newTestBus(maxDepth)

	var errorEvents []Event
	b.On(TypeErrorRaised, func(ev Event) { errorEvents = append(errorEvents, ev) })

	emits := 0
	var innermost bool
	b.On(TypeTickStart, func(Event) {
		emits++
		ok := b.Emit(Event{Type: TypeTickStart})
		if !ok {
			innermost = true
		}
	})

	ok := b.Emit(Event{Type: TypeTickStart})
	assert.True(t, ok, "outermost emit is within the limit")
	assert.True(t, innermost, "innermost emit must be refused")
	assert.Equal(t, maxDepth, emits)

	require.Len(t, errorEvents, 1, "exactly one synthesized overflow event")
	assert.Equal(t, CodeOverflow, errorEvents[0].Payload["code"])
	assert.Equal(t, 0, b.Depth(), "depth must unwind to zero")
}

func TestBus_OverflowingErrorEventNotResynthesized(t *testing.T) {
	b := newTestBus(1)

	var errorEvents int
	b.On(TypeErrorRaised, func(Event) { errorEvents++ })
	b.On(TypeTickStart, func(Event) {
		// error:raised refused at depth limit must not synthesize another
		// error:raised (infinite recursion guard).
		assert.False(t, b.Emit(Event{Type: TypeErrorRaised}))
	})

	b.Emit(Event{Type: TypeTickStart})
	assert.Equal(t, 0, errorEvents)
}

func TestBus_ListenerPanicIsolated(t *testing.T) {
	b := newTestBus(32)

	var errorEvents []Event
	var survived bool
	b.On(TypeErrorRaised, func(ev Event) { errorEvents = append(errorEvents, ev) })
	b.On(TypeTickStart, func(Event) { panic("boom") })
	b.On(TypeTickStart, func(Event) { survived = true })

	ok := b.Emit(Event{Type: TypeTickStart})

	assert.True(t, ok, "emit succeeds despite listener panic")
	assert.True(t, survived, "remaining listeners still fire")
	require.Len(t, errorEvents, 1)
	assert.Equal(t, CodeListenerPanic, errorEvents[0].Payload["code"])
}

func TestBus_PanicInErrorListenerSwallowed(t *testing.T) {
	b := newTestBus(32)

	b.On(TypeErrorRaised, func(Event) { panic("error listener boom") })
	b.On(TypeTickStart, func(Event) { panic("boom") })

	assert.NotPanics(t, func() {
		b.Emit(Event{Type: TypeTickStart})
	})
}

func TestBus_RemoveAll(t *testing.T) {
	b := newTestBus(32)

	b.On(TypeTickStart, func(Event) {})
	b.On(TypeTickStart, func(Event) {})
	b.On(TypeTickEnd, func(Event) {})

	b.RemoveAll(TypeTickStart)
	assert.Equal(t, 0, b.ListenerCount(TypeTickStart))
	assert.Equal(t, 1, b.ListenerCount(TypeTickEnd))

	b.RemoveAll()
	assert.Equal(t, 0, b.ListenerCount(TypeTickEnd))
}

func TestTypes_SeventeenDefined(t *testing.T) {
	assert.Len(t, Types, 17)

	seen := make(map[Type]bool)
	for _, typ := range Types {
		assert.False(t, seen[typ], "duplicate type %s", typ)
		seen[typ] = true
	}
}
