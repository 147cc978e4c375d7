package store

import (
	"context"
	"fmt"

	"github.com/roach88/warden/internal/canon"
	"github.com/roach88/warden/internal/permission"
	"github.com/roach88/warden/internal/schedule"
)

// ArchiveAudit inserts audit entries, deduplicating on content digest
// so re-archiving an overlapping ring snapshot is idempotent. Returns
// the number of entries actually inserted.
func (s *Store) ArchiveAudit(ctx context.Context, entries []permission.AuditEntry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("archive audit: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_entries
		(ts, actor_id, role, capability, allowed, reason, request_id, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(digest) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("archive audit: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range entries {
		digest, err := auditDigest(e)
		if err != nil {
			return 0, fmt.Errorf("archive audit: %w", err)
		}
		res, err := stmt.ExecContext(ctx,
			e.Timestamp,
			e.ActorID,
			string(e.Role),
			string(e.Capability),
			e.Allowed,
			e.Reason,
			e.RequestID,
			digest,
		)
		if err != nil {
			return 0, fmt.Errorf("archive audit: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("archive audit: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("archive audit: %w", err)
	}
	return inserted, nil
}

// ArchiveHistory inserts execution records with the same
// digest-deduplication contract as ArchiveAudit.
func (s *Store) ArchiveHistory(ctx context.Context, records []schedule.ExecutionRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("archive history: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO execution_history
		(action_id, action_type, started_at, duration_ms, ok, error, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(digest) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("archive history: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		digest, err := historyDigest(r)
		if err != nil {
			return 0, fmt.Errorf("archive history: %w", err)
		}
		res, err := stmt.ExecContext(ctx,
			r.ActionID,
			r.ActionType,
			r.StartedAt,
			r.DurationMs,
			r.OK,
			r.Error,
			digest,
		)
		if err != nil {
			return 0, fmt.Errorf("archive history: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("archive history: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("archive history: %w", err)
	}
	return inserted, nil
}

// auditDigest fingerprints an entry over all fields; identical checks
// at the same millisecond for the same request collapse to one row.
func auditDigest(e permission.AuditEntry) (string, error) {
	return canon.Digest(canon.DomainAudit, map[string]any{
		"ts":         e.Timestamp,
		"actor_id":   e.ActorID,
		"role":       string(e.Role),
		"capability": string(e.Capability),
		"allowed":    e.Allowed,
		"reason":     e.Reason,
		"request_id": e.RequestID,
	})
}

func historyDigest(r schedule.ExecutionRecord) (string, error) {
	return canon.Digest(canon.DomainAudit, map[string]any{
		"action_id":   r.ActionID,
		"action_type": r.ActionType,
		"started_at":  r.StartedAt,
		"duration_ms": r.DurationMs,
		"ok":          r.OK,
		"error":       r.Error,
	})
}
