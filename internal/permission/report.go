package permission

import (
	"slices"
)

// DeniedCapability is one entry in a top-N denial ranking.
type DeniedCapability struct {
	Capability Capability
	Count      int
}

// Report aggregates audit-log statistics. Reports are computed by
// scanning the retained audit entries on demand, never incrementally
// cached: correctness stays simple at the cost of O(n) generation.
type Report struct {
	Total      int
	Approved   int
	Denied     int
	DenialRate float64
	TopDenied  []DeniedCapability
	ByRole     map[Role]int
	ByActor    map[string]int
}

// Stats scans the audit log and builds a report. topN bounds the denied
// capability ranking; ties break on capability name for determinism.
func (m *Matrix) Stats(topN int) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Report{
		ByRole:  make(map[Role]int),
		ByActor: make(map[string]int),
	}

	deniedBy := make(map[Capability]int)
	m.audit.Each(func(e AuditEntry) {
		r.Total++
		r.ByRole[e.Role]++
		r.ByActor[e.ActorID]++
		if e.Allowed {
			r.Approved++
		} else {
			r.Denied++
			deniedBy[e.Capability]++
		}
	})

	if r.Total > 0 {
		r.DenialRate = float64(r.Denied) / float64(r.Total)
	}

	for c, n := range deniedBy {
		r.TopDenied = append(r.TopDenied, DeniedCapability{Capability: c, Count: n})
	}
	slices.SortFunc(r.TopDenied, func(a, b DeniedCapability) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		if a.Capability < b.Capability {
			return -1
		}
		if a.Capability > b.Capability {
			return 1
		}
		return 0
	})
	if topN > 0 && len(r.TopDenied) > topN {
		r.TopDenied = r.TopDenied[:topN]
	}

	return r
}
