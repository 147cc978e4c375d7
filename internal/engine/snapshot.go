package engine

// Metrics aggregates engine activity counters. Accessors return
// copies; callers cannot mutate live counters.
type Metrics struct {
	RequestsTotal   int
	RequestsFailed  int
	AvgLatencyMs    float64
	ActionsExecuted int
	ActionsFailed   int
	EventsEmitted   int
	Ticks           int
}

// Snapshot is a point-in-time read of engine state.
type Snapshot struct {
	TakenAt        int64
	State          State
	Strategy       string
	EntityCount    int
	EntityIDs      []string
	PendingActions int
	// NextRunDelayMs is the delay until the next runnable scheduled
	// action relative to the engine's logical clock; -1 when nothing is
	// pending.
	NextRunDelayMs int64
	Metrics        Metrics
	ConfigDigest   string
}

// resultMap renders the snapshot as the map returned from
// engine.snapshot requests.
func (s Snapshot) resultMap() map[string]any {
	ids := make([]any, len(s.EntityIDs))
	for i, id := range s.EntityIDs {
		ids[i] = id
	}
	return map[string]any{
		"takenAt":         s.TakenAt,
		"state":           string(s.State),
		"strategy":        s.Strategy,
		"entityCount":     s.EntityCount,
		"entityIds":       ids,
		"pendingActions":  s.PendingActions,
		"nextRunDelayMs":  s.NextRunDelayMs,
		"configDigest":    s.ConfigDigest,
		"requestsTotal":   s.Metrics.RequestsTotal,
		"requestsFailed":  s.Metrics.RequestsFailed,
		"avgLatencyMs":    s.Metrics.AvgLatencyMs,
		"actionsExecuted": s.Metrics.ActionsExecuted,
		"actionsFailed":   s.Metrics.ActionsFailed,
		"eventsEmitted":   s.Metrics.EventsEmitted,
		"ticks":           s.Metrics.Ticks,
	}
}
