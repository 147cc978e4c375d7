package store

import (
	"context"
	"fmt"

	"github.com/roach88/warden/internal/permission"
	"github.com/roach88/warden/internal/schedule"
)

// AuditFilter narrows ReadAudit results. Zero-valued fields match
// everything.
type AuditFilter struct {
	ActorID    string
	Capability string
	DeniedOnly bool
	Limit      int
}

// ReadAudit returns archived entries ordered by timestamp then insert
// order.
func (s *Store) ReadAudit(ctx context.Context, f AuditFilter) ([]permission.AuditEntry, error) {
	query := `
		SELECT ts, actor_id, role, capability, allowed, reason, request_id
		FROM audit_entries
		WHERE 1=1
	`
	var args []any
	if f.ActorID != "" {
		query += " AND actor_id = ?"
		args = append(args, f.ActorID)
	}
	if f.Capability != "" {
		query += " AND capability = ?"
		args = append(args, f.Capability)
	}
	if f.DeniedOnly {
		query += " AND allowed = 0"
	}
	query += " ORDER BY ts, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read audit: %w", err)
	}
	defer rows.Close()

	var out []permission.AuditEntry
	for rows.Next() {
		var (
			e          permission.AuditEntry
			role, capa string
		)
		if err := rows.Scan(&e.Timestamp, &e.ActorID, &role, &capa, &e.Allowed, &e.Reason, &e.RequestID); err != nil {
			return nil, fmt.Errorf("read audit: %w", err)
		}
		e.Role = permission.Role(role)
		e.Capability = permission.Capability(capa)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read audit: %w", err)
	}
	return out, nil
}

// ReadHistory returns archived execution records ordered by start time
// then insert order. limit <= 0 means no limit.
func (s *Store) ReadHistory(ctx context.Context, limit int) ([]schedule.ExecutionRecord, error) {
	query := `
		SELECT action_id, action_type, started_at, duration_ms, ok, error
		FROM execution_history
		ORDER BY started_at, id
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	var out []schedule.ExecutionRecord
	for rows.Next() {
		var r schedule.ExecutionRecord
		if err := rows.Scan(&r.ActionID, &r.ActionType, &r.StartedAt, &r.DurationMs, &r.OK, &r.Error); err != nil {
			return nil, fmt.Errorf("read history: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return out, nil
}

// AuditCounts reports archived totals.
func (s *Store) AuditCounts(ctx context.Context) (total, denied int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN allowed = 0 THEN 1 ELSE 0 END), 0)
		FROM audit_entries
	`).Scan(&total, &denied)
	if err != nil {
		return 0, 0, fmt.Errorf("audit counts: %w", err)
	}
	return total, denied, nil
}
