package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hilops/titleflow/internal/storage"
	"github.com/hilops/titleflow/internal/types"
)

const taskColumns = `id, workflow_id, name, status, interrupt_type, executor_type,
	sla_hours, started_at, sla_due_at, sla_status, retry_count, output_data,
	created_at, updated_at`

// CreateTask inserts a new task under an existing workflow.
func (s *Store) CreateTask(ctx context.Context, t *types.Task) error {
	t.SetDefaults()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	if t.OutputData == "" {
		t.OutputData = "{}"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, workflow_id, name, status, interrupt_type, executor_type,
			sla_hours, started_at, sla_due_at, sla_status, retry_count, output_data,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.WorkflowID, t.Name, t.Status, t.InterruptType, t.ExecutorType,
		t.SLAHours, t.StartedAt, t.SLADueAt, t.SLAStatus, t.RetryCount, t.OutputData,
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask fetches a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// StartTask stamps started_at and the derived sla_due_at in one write and
// moves the task to in_progress. dueAt is nil for tasks without SLA config.
func (s *Store) StartTask(ctx context.Context, id string, startedAt time.Time, dueAt *time.Time) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, started_at = ?, sla_due_at = ?, updated_at = ?
		WHERE id = ?
	`, types.TaskInProgress, startedAt.UTC(), dueAt, now, id)
	if err != nil {
		return fmt.Errorf("failed to start task: %w", err)
	}
	return requireRow(result, id)
}

// InterruptTask parks a task in awaiting_review pending human input.
func (s *Store) InterruptTask(ctx context.Context, id, interruptType string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, interrupt_type = ?, updated_at = ? WHERE id = ?
	`, types.TaskAwaitingReview, interruptType, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to interrupt task: %w", err)
	}
	return requireRow(result, id)
}

// UpdateTaskStatus moves a task to the given status.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status types.TaskStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid task status: %s", status)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return requireRow(result, id)
}

// RetryTask resets a task to pending for another attempt. started_at and
// sla_due_at are cleared so the next start recomputes the deadline; the
// breach flag is reset with them since the retried attempt gets a fresh clock.
func (s *Store) RetryTask(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, started_at = NULL, sla_due_at = NULL, sla_status = ?,
			retry_count = retry_count + 1, updated_at = ?
		WHERE id = ?
	`, types.TaskPending, types.SLAOnTime, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to retry task: %w", err)
	}
	return requireRow(result, id)
}

// ListTasks returns tasks matching the filter, oldest first.
func (s *Store) ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any
	if filter.WorkflowID != nil {
		query += ` AND workflow_id = ?`
		args = append(args, *filter.WorkflowID)
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, *filter.Status)
	}
	if filter.SLAStatus != nil {
		query += ` AND sla_status = ?`
		args = append(args, *filter.SLAStatus)
	}
	query += ` ORDER BY created_at ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return s.queryTasks(ctx, query, args...)
}

// OverdueTasks returns configured-path breach candidates: the deadline has
// passed, the task is not completed, and no scan has claimed it yet.
func (s *Store) OverdueTasks(ctx context.Context, now time.Time) ([]*types.Task, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE sla_due_at IS NOT NULL
		  AND sla_due_at < ?
		  AND status != ?
		  AND sla_status = ?
		ORDER BY sla_due_at ASC
	`, now.UTC(), types.TaskCompleted, types.SLAOnTime)
}

// StaleUnconfiguredTasks returns fallback-path candidates: tasks without SLA
// configuration that have waited in pending or awaiting_review longer than
// the default window.
func (s *Store) StaleUnconfiguredTasks(ctx context.Context, now time.Time, window time.Duration) ([]*types.Task, error) {
	cutoff := now.UTC().Add(-window)
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE sla_hours IS NULL
		  AND created_at < ?
		  AND status IN (?, ?)
		  AND sla_status = ?
		ORDER BY created_at ASC
	`, cutoff, types.TaskPending, types.TaskAwaitingReview, types.SLAOnTime)
}

// ClaimBreach atomically claims a task as breached using compare-and-swap
// semantics. The UPDATE only succeeds if sla_status is still on_time at
// update time, so overlapping scanner runs cannot both win the same task.
func (s *Store) ClaimBreach(ctx context.Context, taskID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET sla_status = ?, updated_at = ?
		WHERE id = ? AND sla_status = ?
	`, types.SLABreached, time.Now().UTC(), taskID, types.SLAOnTime)
	if err != nil {
		return fmt.Errorf("failed to claim breach: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Lost the race, or the task is gone. Either way the caller skips it.
		var current string
		err := s.db.QueryRowContext(ctx, `SELECT sla_status FROM tasks WHERE id = ?`, taskID).Scan(&current)
		if err == sql.ErrNoRows {
			return fmt.Errorf("task %s: %w", taskID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check sla_status: %w", err)
		}
		return fmt.Errorf("task %s: %w", taskID, storage.ErrAlreadyBreached)
	}
	return nil
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]*types.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTask(r rowScanner) (*types.Task, error) {
	var t types.Task
	var interruptType sql.NullString
	var slaHours sql.NullFloat64
	var startedAt, dueAt sql.NullTime
	err := r.Scan(&t.ID, &t.WorkflowID, &t.Name, &t.Status, &interruptType,
		&t.ExecutorType, &slaHours, &startedAt, &dueAt, &t.SLAStatus,
		&t.RetryCount, &t.OutputData, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.InterruptType = interruptType.String
	if slaHours.Valid {
		h := slaHours.Float64
		t.SLAHours = &h
	}
	if startedAt.Valid {
		v := startedAt.Time
		t.StartedAt = &v
	}
	if dueAt.Valid {
		v := dueAt.Time
		t.SLADueAt = &v
	}
	return &t, nil
}

func requireRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	return nil
}
