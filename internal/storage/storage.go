// Package storage provides shared types for workflow storage.
//
// The concrete implementation lives in the sqlite sub-package. This package
// holds the interface and sentinel errors referenced by both the
// implementation and its consumers (engine, scanner, cmd/titleflow).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hilops/titleflow/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional status write lost a race: the
// row's status changed between read and write. Callers may retry.
var ErrConflict = errors.New("status changed concurrently")

// ErrAlreadyBreached is returned by ClaimBreach when another scanner run
// claimed the task first. The loser must skip the task silently.
var ErrAlreadyBreached = errors.New("task already claimed as breached")

// ErrNotTerminal is returned when deleting a workflow that is still active.
var ErrNotTerminal = errors.New("workflow is not in a terminal status")

// Storage is the interface satisfied by *sqlite.Store. Consumers depend on
// this interface so mocks and alternative backends can be substituted.
type Storage interface {
	// Workflows
	CreateWorkflow(ctx context.Context, w *types.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*types.Workflow, error)
	// UpdateWorkflowStatus writes the new status conditioned on the status
	// being unchanged since read (compare-and-swap). Returns ErrConflict if
	// the row no longer matches expect.
	UpdateWorkflowStatus(ctx context.Context, id string, expect, next types.WorkflowStatus, upd WorkflowStatusUpdate) error
	ListWorkflows(ctx context.Context, filter types.WorkflowFilter) ([]*types.Workflow, error)
	// DeleteWorkflow removes a workflow and its tasks. Only terminal
	// workflows may be deleted; ErrNotTerminal otherwise.
	DeleteWorkflow(ctx context.Context, id string) error

	// Tasks
	CreateTask(ctx context.Context, t *types.Task) error
	GetTask(ctx context.Context, id string) (*types.Task, error)
	// StartTask stamps started_at and the derived sla_due_at together and
	// moves the task to in_progress.
	StartTask(ctx context.Context, id string, startedAt time.Time, dueAt *time.Time) error
	UpdateTaskStatus(ctx context.Context, id string, status types.TaskStatus) error
	// InterruptTask parks a task in awaiting_review and records why a
	// human is needed.
	InterruptTask(ctx context.Context, id, interruptType string) error
	// RetryTask resets a failed task to pending, bumps retry_count, and
	// clears started_at/sla_due_at so a restart recomputes the deadline.
	RetryTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error)
	// OverdueTasks returns configured-path candidates: sla_due_at < now,
	// status not completed, sla_status still on_time.
	OverdueTasks(ctx context.Context, now time.Time) ([]*types.Task, error)
	// StaleUnconfiguredTasks returns fallback-path candidates: no sla_hours,
	// created before now-window, status pending or awaiting_review,
	// sla_status still on_time.
	StaleUnconfiguredTasks(ctx context.Context, now time.Time, window time.Duration) ([]*types.Task, error)
	// ClaimBreach performs the conditional on_time -> breached update.
	// Exactly one caller wins per task; losers get ErrAlreadyBreached.
	ClaimBreach(ctx context.Context, taskID string) error

	// Notifications
	CreateNotification(ctx context.Context, n *types.Notification) error
	ListNotifications(ctx context.Context, filter types.NotificationFilter) ([]*types.Notification, error)
	MarkNotificationRead(ctx context.Context, id string, read bool) error

	// Audit trail
	RecordAuditEvent(ctx context.Context, e *types.AuditEvent) error
	GetAuditEvents(ctx context.Context, resourceID string, limit int) ([]*types.AuditEvent, error)

	// Configuration
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)

	// Lifecycle
	Close() error
}

// WorkflowStatusUpdate carries the side fields a transition may set along
// with the status itself, applied in the same conditional write.
type WorkflowStatusUpdate struct {
	CompletedAt  *time.Time
	SetCancelled bool
}
