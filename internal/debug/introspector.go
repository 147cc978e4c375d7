// Package debug provides a development-time introspector that taps the
// engine event stream and answers "what has happened recently".
package debug

import (
	"sort"

	"github.com/roach88/warden/internal/event"
	"github.com/roach88/warden/internal/ring"
)

// DefaultRecentCapacity bounds the recent-event ring.
const DefaultRecentCapacity = 256

// Bus is the subscription surface the introspector needs. Satisfied by
// both *event.Bus and *engine.Engine.
type Bus interface {
	On(t event.Type, fn event.Listener) func()
}

// TypeCount pairs an event type with its observed count.
type TypeCount struct {
	Type  event.Type
	Count int
}

// Report is a deterministic summary of observed traffic. Counts are
// ordered by count descending, then type ascending.
type Report struct {
	Total  int
	Counts []TypeCount
	Recent []event.Event
}

// Introspector counts every known event type and retains the most
// recent events. Attach is cheap; detach with Close.
//
// Not safe for concurrent use: listeners run synchronously on the
// engine's dispatch path.
type Introspector struct {
	counts map[event.Type]int
	recent *ring.Buffer[event.Event]
	total  int
	offs   []func()
}

// Attach subscribes to every known event type on the bus.
func Attach(bus Bus) *Introspector {
	return AttachWithCapacity(bus, DefaultRecentCapacity)
}

// AttachWithCapacity subscribes with an explicit recent-ring capacity.
func AttachWithCapacity(bus Bus, capacity int) *Introspector {
	in := &Introspector{
		counts: make(map[event.Type]int, len(event.Types)),
		recent: ring.New[event.Event](capacity),
	}
	for _, t := range event.Types {
		in.offs = append(in.offs, bus.On(t, in.observe))
	}
	return in
}

func (in *Introspector) observe(ev event.Event) {
	in.counts[ev.Type]++
	in.total++
	in.recent.Append(ev)
}

// Close unsubscribes from the bus. Idempotent.
func (in *Introspector) Close() {
	for _, off := range in.offs {
		off()
	}
	in.offs = nil
}

// Count returns the observed count for one type.
func (in *Introspector) Count(t event.Type) int {
	return in.counts[t]
}

// Total returns the number of observed events.
func (in *Introspector) Total() int {
	return in.total
}

// Recent returns retained events, oldest first.
func (in *Introspector) Recent() []event.Event {
	return in.recent.Snapshot()
}

// Report summarizes observed traffic. Types never observed are
// omitted.
func (in *Introspector) Report() Report {
	counts := make([]TypeCount, 0, len(in.counts))
	for t, n := range in.counts {
		counts = append(counts, TypeCount{Type: t, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Type < counts[j].Type
	})
	return Report{Total: in.total, Counts: counts, Recent: in.recent.Snapshot()}
}

// Reset clears counts and retained events while staying attached.
func (in *Introspector) Reset() {
	in.counts = make(map[event.Type]int, len(event.Types))
	in.total = 0
	in.recent = ring.New[event.Event](in.recent.Cap())
}
