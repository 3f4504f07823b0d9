package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hilops/titleflow/internal/types"
)

// RecordAuditEvent appends an audit trail entry. The table is append-only;
// nothing in this subsystem mutates or deletes rows.
func (s *Store) RecordAuditEvent(ctx context.Context, e *types.AuditEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Metadata == "" {
		e.Metadata = "{}"
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (actor, action, resource_type, resource_id,
			old_value, new_value, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Actor, e.Action, e.ResourceType, e.ResourceID,
		e.OldValue, e.NewValue, e.Metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// GetAuditEvents returns the audit trail for a resource, newest first.
func (s *Store) GetAuditEvents(ctx context.Context, resourceID string, limit int) ([]*types.AuditEvent, error) {
	query := `
		SELECT id, actor, action, resource_type, resource_id,
			old_value, new_value, metadata, created_at
		FROM audit_events WHERE resource_id = ?
		ORDER BY created_at DESC, id DESC`
	args := []any{resourceID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.AuditEvent
	for rows.Next() {
		var e types.AuditEvent
		var oldValue, newValue sql.NullString
		err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.ResourceType,
			&e.ResourceID, &oldValue, &newValue, &e.Metadata, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if oldValue.Valid {
			e.OldValue = &oldValue.String
		}
		if newValue.Valid {
			e.NewValue = &newValue.String
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
