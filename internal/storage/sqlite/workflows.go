package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hilops/titleflow/internal/storage"
	"github.com/hilops/titleflow/internal/types"
)

const workflowColumns = `id, type, status, priority, assigned_to, metadata,
	due_date, completed_at, cancelled, created_by, created_at, updated_at`

// CreateWorkflow inserts a new workflow. Missing ID and timestamps are
// populated; defaults are applied before validation.
func (s *Store) CreateWorkflow(ctx context.Context, w *types.Workflow) error {
	w.SetDefaults()
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now

	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}

	meta, err := marshalMetadata(w.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, type, status, priority, assigned_to, metadata,
			due_date, completed_at, cancelled, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.Type, w.Status, w.Priority, w.AssignedTo, meta,
		w.DueDate, w.CompletedAt, w.Cancelled, w.CreatedBy, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// GetWorkflow fetches a workflow by ID.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	w, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workflow %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return w, nil
}

// UpdateWorkflowStatus performs the conditional status write. The UPDATE only
// succeeds if the row still carries the expected status; a zero row count
// distinguishes a lost race from a missing row.
func (s *Store) UpdateWorkflowStatus(ctx context.Context, id string, expect, next types.WorkflowStatus, upd storage.WorkflowStatusUpdate) error {
	now := time.Now().UTC()

	args := []any{next, now}
	set := "status = ?, updated_at = ?"
	if upd.CompletedAt != nil {
		set += ", completed_at = ?"
		args = append(args, upd.CompletedAt.UTC())
	}
	if upd.SetCancelled {
		set += ", cancelled = 1"
	}
	args = append(args, id, expect)

	result, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET `+set+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update workflow status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Either the workflow is gone or its status moved under us.
		var current string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM workflows WHERE id = ?`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return fmt.Errorf("workflow %s: %w", id, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check workflow status: %w", err)
		}
		return fmt.Errorf("workflow %s is %s, expected %s: %w", id, current, expect, storage.ErrConflict)
	}
	return nil
}

// ListWorkflows returns workflows matching the filter, newest first.
func (s *Store) ListWorkflows(ctx context.Context, filter types.WorkflowFilter) ([]*types.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE 1=1`
	var args []any
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, *filter.Status)
	}
	if filter.Type != nil {
		query += ` AND type = ?`
		args = append(args, *filter.Type)
	}
	if filter.Priority != nil {
		query += ` AND priority = ?`
		args = append(args, *filter.Priority)
	}
	if filter.AssignedTo != nil {
		query += ` AND assigned_to = ?`
		args = append(args, *filter.AssignedTo)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteWorkflow removes a terminal workflow. Tasks cascade via foreign key.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	w, err := s.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	if !w.IsTerminal() {
		return fmt.Errorf("workflow %s is %s: %w", id, w.Status, storage.ErrNotTerminal)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(r rowScanner) (*types.Workflow, error) {
	var w types.Workflow
	var meta string
	var assignedTo, createdBy sql.NullString
	var dueDate, completedAt sql.NullTime
	err := r.Scan(&w.ID, &w.Type, &w.Status, &w.Priority, &assignedTo, &meta,
		&dueDate, &completedAt, &w.Cancelled, &createdBy, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.AssignedTo = assignedTo.String
	w.CreatedBy = createdBy.String
	if dueDate.Valid {
		t := dueDate.Time
		w.DueDate = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		w.CompletedAt = &t
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &w.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &w, nil
}

func marshalMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Interface compliance check
var _ storage.Storage = (*Store)(nil)
