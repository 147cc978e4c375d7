package permission

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/warden/internal/ring"
)

// DefaultAuditCapacity bounds the audit ring buffer. Oldest entries are
// silently dropped once the cap is exceeded.
const DefaultAuditCapacity = 4096

// Decision is the outcome of a single permission check.
type Decision struct {
	Allowed bool
	Reason  string
}

// AuditEntry records one permission-check outcome. Entries are used for
// security reporting, never for authorization itself.
type AuditEntry struct {
	Timestamp  int64 // epoch milliseconds
	ActorID    string
	Role       Role
	Capability Capability
	Allowed    bool
	Reason     string
	RequestID  string
}

// Matrix is the role→capability authorization table. Every check
// appends one audit entry regardless of outcome. Safe for concurrent
// use.
type Matrix struct {
	mu     sync.Mutex
	grants map[Role]map[Capability]bool
	audit  *ring.Buffer[AuditEntry]
	now    func() int64
}

// MatrixOption configures a Matrix.
type MatrixOption func(*Matrix)

// WithNow overrides the audit timestamp source (deterministic tests).
func WithNow(now func() int64) MatrixOption {
	return func(m *Matrix) { m.now = now }
}

// NewMatrix creates a matrix seeded with the default per-role grants.
// A non-positive auditCapacity falls back to DefaultAuditCapacity.
func NewMatrix(auditCapacity int, opts ...MatrixOption) *Matrix {
	if auditCapacity <= 0 {
		auditCapacity = DefaultAuditCapacity
	}
	m := &Matrix{
		grants: defaultGrants(),
		audit:  ring.New[AuditEntry](auditCapacity),
		now:    func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check tests whether the role holds the capability. O(1) set lookup.
// The outcome is always audited.
func (m *Matrix) Check(actorID string, role Role, capability Capability, requestID string) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.decide(role, capability)
	m.audit.Append(AuditEntry{
		Timestamp:  m.now(),
		ActorID:    actorID,
		Role:       role,
		Capability: capability,
		Allowed:    d.Allowed,
		Reason:     d.Reason,
		RequestID:  requestID,
	})
	if !d.Allowed {
		slog.Debug("permission denied",
			"actor_id", actorID,
			"role", role,
			"capability", capability,
			"reason", d.Reason,
		)
	}
	return d
}

func (m *Matrix) decide(role Role, capability Capability) Decision {
	set, ok := m.grants[role]
	if !ok {
		return Decision{Allowed: false, Reason: fmt.Sprintf("unknown role %q", role)}
	}
	if !set[capability] {
		return Decision{Allowed: false, Reason: fmt.Sprintf("role %s lacks capability %s", role, capability)}
	}
	return Decision{Allowed: true}
}

// CheckAll tests every capability and returns the missing ones. The
// result is false on the first failing capability, but every capability
// is still checked so each one gets an audit entry.
func (m *Matrix) CheckAll(actorID string, role Role, capabilities []Capability, requestID string) (bool, []Capability) {
	var missing []Capability
	for _, c := range capabilities {
		if d := m.Check(actorID, role, c, requestID); !d.Allowed {
			missing = append(missing, c)
		}
	}
	return len(missing) == 0, missing
}

// CheckAny reports whether the role holds at least one of the
// capabilities. Every capability is checked and audited.
func (m *Matrix) CheckAny(actorID string, role Role, capabilities []Capability, requestID string) bool {
	any := false
	for _, c := range capabilities {
		if d := m.Check(actorID, role, c, requestID); d.Allowed {
			any = true
		}
	}
	return any
}

// Grant adds a capability to a role's set at runtime.
func (m *Matrix) Grant(role Role, capability Capability) error {
	if !ValidRole(role) {
		return fmt.Errorf("grant: unknown role %q", role)
	}
	if !ValidCapability(capability) {
		return fmt.Errorf("grant: unknown capability %q", capability)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[role][capability] = true
	slog.Info("capability granted", "role", role, "capability", capability)
	return nil
}

// Revoke removes a capability from a role's set at runtime.
func (m *Matrix) Revoke(role Role, capability Capability) error {
	if !ValidRole(role) {
		return fmt.Errorf("revoke: unknown role %q", role)
	}
	if !ValidCapability(capability) {
		return fmt.Errorf("revoke: unknown capability %q", capability)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants[role], capability)
	slog.Info("capability revoked", "role", role, "capability", capability)
	return nil
}

// Capabilities returns a copy of the role's current capability set.
func (m *Matrix) Capabilities(role Role) []Capability {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.grants[role]
	out := make([]Capability, 0, len(set))
	// Iterate the defined order for a deterministic result.
	for _, c := range AllCapabilities {
		if set[c] {
			out = append(out, c)
		}
	}
	return out
}

// AuditLog returns retained audit entries, oldest first.
func (m *Matrix) AuditLog() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audit.Snapshot()
}

// AuditSize returns the number of retained audit entries.
func (m *Matrix) AuditSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audit.Len()
}

// Clear drops all grants and audit history. Used by engine shutdown.
func (m *Matrix) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants = defaultGrants()
	m.audit = ring.New[AuditEntry](m.audit.Cap())
}
