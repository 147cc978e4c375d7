// Package event implements the synchronous typed pub/sub bus used for
// engine lifecycle notifications.
//
// Emit is fully synchronous and re-entrant: a listener may itself emit
// further events. A per-bus recursion counter refuses emits once the
// configured depth is reached, synthesizing a single error:raised event
// instead of recursing forever. Listener panics are caught per listener
// and never abort the dispatch loop.
package event

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/warden/internal/ident"
)

// DefaultMaxDepth bounds re-entrant emit nesting.
const DefaultMaxDepth = 32

// Listener receives events synchronously during Emit.
type Listener func(Event)

// Bus is a synchronous typed pub/sub bus.
//
// The internal mutex guards subscription bookkeeping and the depth
// counter only; listeners always run with the mutex released, so a
// listener may emit further events or change subscriptions.
type Bus struct {
	mu       sync.Mutex
	maxDepth int
	depth    int
	nextSub  int
	subs     map[Type][]subscription
	ids      ident.Generator
	now      func() int64
}

type subscription struct {
	id int
	fn Listener
}

// Option configures a Bus.
type Option func(*Bus)

// WithIDGenerator overrides the event ID generator (deterministic tests).
func WithIDGenerator(g ident.Generator) Option {
	return func(b *Bus) { b.ids = g }
}

// WithNow overrides the timestamp source (deterministic tests).
func WithNow(now func() int64) Option {
	return func(b *Bus) { b.now = now }
}

// NewBus creates a bus with the given recursion depth limit.
// A non-positive maxDepth falls back to DefaultMaxDepth.
func NewBus(maxDepth int, opts ...Option) *Bus {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	b := &Bus{
		maxDepth: maxDepth,
		subs:     make(map[Type][]subscription),
		ids:      ident.UUIDv7Generator{},
		now:      func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// On subscribes a listener to an event type and returns an unsubscribe
// function. Each subscription fires at most once per emit.
func (b *Bus) On(t Type, fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSub++
	id := b.nextSub
	b.subs[t] = append(b.subs[t], subscription{id: id, fn: fn})

	return func() { b.off(t, id) }
}

func (b *Bus) off(t Type, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[t]
	for i, s := range subs {
		if s.id == id {
			b.subs[t] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// RemoveAll drops every listener for the given types, or all listeners
// when no type is given.
func (b *Bus) RemoveAll(types ...Type) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(types) == 0 {
		b.subs = make(map[Type][]subscription)
		return
	}
	for _, t := range types {
		delete(b.subs, t)
	}
}

// ListenerCount returns the number of live subscriptions for a type.
func (b *Bus) ListenerCount(t Type) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[t])
}

// Depth returns the current emit nesting depth. Zero outside dispatch.
func (b *Bus) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.depth
}

// Emit delivers an event to a snapshot of the current listener set,
// taken at emit time, so listeners added or removed during dispatch do
// not affect this pass.
//
// Returns false when the emit is refused by the recursion guard. Unless
// the overflowing event is itself an error:raised event, a synthesized
// error:raised event is delivered directly to the error listener set,
// bypassing the depth check.
//
// Missing ID or Timestamp fields are filled in before dispatch.
func (b *Bus) Emit(ev Event) bool {
	b.mu.Lock()
	if b.depth >= b.maxDepth {
		depth := b.depth
		b.mu.Unlock()
		slog.Warn("event emit refused: depth limit reached",
			"event_type", ev.Type,
			"depth", depth,
			"max_depth", b.maxDepth,
		)
		if ev.Type != TypeErrorRaised {
			b.deliverError(map[string]any{
				"code":    CodeOverflow,
				"message": fmt.Sprintf("event depth limit %d reached emitting %s", b.maxDepth, ev.Type),
				"source":  string(ev.Type),
			})
		}
		return false
	}

	b.depth++
	b.stamp(&ev)

	// Snapshot so subscription changes made by listeners apply only to
	// subsequent emits.
	subs := make([]subscription, len(b.subs[ev.Type]))
	copy(subs, b.subs[ev.Type])
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.depth--
		b.mu.Unlock()
	}()

	for _, s := range subs {
		b.dispatch(s, ev)
	}
	return true
}

// dispatch invokes one listener, converting a panic into a synthesized
// error:raised event (unless the originating event was itself an error
// event, which would recurse).
func (b *Bus) dispatch(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event listener panicked",
				"event_type", ev.Type,
				"event_id", ev.ID,
				"panic", r,
			)
			if ev.Type != TypeErrorRaised {
				b.deliverError(map[string]any{
					"code":    CodeListenerPanic,
					"message": fmt.Sprintf("listener panic during %s: %v", ev.Type, r),
					"source":  string(ev.Type),
				})
			}
		}
	}()
	s.fn(ev)
}

// deliverError hands a synthesized error:raised event directly to its
// listener set, bypassing the recursion guard. Listener panics here are
// logged and swallowed without further synthesis.
func (b *Bus) deliverError(payload map[string]any) {
	ev := Event{Type: TypeErrorRaised, Payload: payload}

	b.mu.Lock()
	b.stamp(&ev)
	subs := make([]subscription, len(b.subs[TypeErrorRaised]))
	copy(subs, b.subs[TypeErrorRaised])
	b.mu.Unlock()

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("error listener panicked", "panic", r)
				}
			}()
			s.fn(ev)
		}()
	}
}

func (b *Bus) stamp(ev *Event) {
	if ev.ID == "" {
		ev.ID = b.ids.Generate()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = b.now()
	}
}
