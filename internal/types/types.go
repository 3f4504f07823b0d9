// Package types defines core data structures for the titleflow workflow engine.
package types

import (
	"fmt"
	"time"
)

// Workflow represents a long-lived unit of title work (a payoff request, an
// HOA acquisition, a lien search) moving through an explicit status lifecycle.
type Workflow struct {
	ID          string            `json:"id"`
	Type        WorkflowType      `json:"type"`
	Status      WorkflowStatus    `json:"status"`
	Priority    Priority          `json:"priority"`
	AssignedTo  string            `json:"assigned_to,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	DueDate     *time.Time        `json:"due_date,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Cancelled   bool              `json:"cancelled,omitempty"` // Set when a cancel action parked the workflow in blocked
	CreatedBy   string            `json:"created_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Validate checks if the workflow has valid field values.
func (w *Workflow) Validate() error {
	if !w.Type.IsValid() {
		return fmt.Errorf("invalid workflow type: %s", w.Type)
	}
	if !w.Status.IsValid() {
		return fmt.Errorf("invalid workflow status: %s", w.Status)
	}
	if !w.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", w.Priority)
	}
	// Enforce completed_at invariant: set if and only if status is completed
	if w.Status == WorkflowCompleted && w.CompletedAt == nil {
		return fmt.Errorf("completed workflows must have completed_at timestamp")
	}
	if w.Status != WorkflowCompleted && w.CompletedAt != nil {
		return fmt.Errorf("non-completed workflows cannot have completed_at timestamp")
	}
	return nil
}

// IsTerminal returns true if the workflow is in a state that permits deletion.
// Active workflows are never physically deleted.
func (w *Workflow) IsTerminal() bool {
	return w.Status == WorkflowCompleted || w.Status == WorkflowFailed ||
		(w.Status == WorkflowBlocked && w.Cancelled)
}

// SetDefaults applies default values for fields omitted at creation.
func (w *Workflow) SetDefaults() {
	if w.Status == "" {
		w.Status = WorkflowPending
	}
	if w.Priority == "" {
		w.Priority = PriorityNormal
	}
}

// WorkflowType categorizes the kind of title work
type WorkflowType string

// Workflow type constants
const (
	TypePayoff         WorkflowType = "payoff"
	TypeHOAAcquisition WorkflowType = "hoa_acquisition"
	TypeLienSearch     WorkflowType = "lien_search"
)

// IsValid checks if the workflow type value is valid
func (t WorkflowType) IsValid() bool {
	switch t {
	case TypePayoff, TypeHOAAcquisition, TypeLienSearch:
		return true
	}
	return false
}

// WorkflowStatus represents the current state of a workflow
type WorkflowStatus string

// Workflow status constants
const (
	WorkflowPending        WorkflowStatus = "pending"
	WorkflowInProgress     WorkflowStatus = "in_progress"
	WorkflowAwaitingReview WorkflowStatus = "awaiting_review"
	WorkflowBlocked        WorkflowStatus = "blocked"
	WorkflowCompleted      WorkflowStatus = "completed"
	WorkflowFailed         WorkflowStatus = "failed"
)

// IsValid checks if the workflow status value is valid
func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowPending, WorkflowInProgress, WorkflowAwaitingReview,
		WorkflowBlocked, WorkflowCompleted, WorkflowFailed:
		return true
	}
	return false
}

// WorkflowAction is a requested lifecycle operation on a workflow
type WorkflowAction string

// Workflow action constants
const (
	ActionStart    WorkflowAction = "start"
	ActionPause    WorkflowAction = "pause"
	ActionResume   WorkflowAction = "resume"
	ActionComplete WorkflowAction = "complete"
	ActionCancel   WorkflowAction = "cancel"
	ActionRetry    WorkflowAction = "retry"
)

// IsValid checks if the action value is valid
func (a WorkflowAction) IsValid() bool {
	switch a {
	case ActionStart, ActionPause, ActionResume, ActionComplete, ActionCancel, ActionRetry:
		return true
	}
	return false
}

// Priority ranks urgency for workflows and notifications
type Priority string

// Priority constants
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid checks if the priority value is valid
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Task is a single step of a workflow. Tasks carry the SLA clock: started_at
// and sla_due_at are stamped together when the task starts, and sla_status
// moves on_time -> breached exactly once.
type Task struct {
	ID            string       `json:"id"`
	WorkflowID    string       `json:"workflow_id"`
	Name          string       `json:"name"`
	Status        TaskStatus   `json:"status"`
	InterruptType string       `json:"interrupt_type,omitempty"` // Set when human input is required
	ExecutorType  ExecutorType `json:"executor_type"`
	SLAHours      *float64     `json:"sla_hours,omitempty"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	SLADueAt      *time.Time   `json:"sla_due_at,omitempty"`
	SLAStatus     SLAStatus    `json:"sla_status"`
	RetryCount    int          `json:"retry_count"`
	OutputData    string       `json:"output_data,omitempty"` // JSON blob
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Validate checks if the task has valid field values.
func (t *Task) Validate() error {
	if t.WorkflowID == "" {
		return fmt.Errorf("workflow_id is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid task status: %s", t.Status)
	}
	if !t.ExecutorType.IsValid() {
		return fmt.Errorf("invalid executor type: %s", t.ExecutorType)
	}
	if !t.SLAStatus.IsValid() {
		return fmt.Errorf("invalid sla status: %s", t.SLAStatus)
	}
	if t.SLAHours != nil && *t.SLAHours <= 0 {
		return fmt.Errorf("sla_hours must be positive")
	}
	if t.RetryCount < 0 {
		return fmt.Errorf("retry_count cannot be negative")
	}
	// sla_due_at is derived from started_at; one without the other is corrupt
	if t.SLADueAt != nil && t.StartedAt == nil {
		return fmt.Errorf("tasks with sla_due_at must have started_at")
	}
	return nil
}

// IsTerminal returns true once the task can no longer breach its SLA.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

// HasSLA reports whether the task carries explicit SLA configuration.
// Tasks without it fall back to the default breach window from creation time.
func (t *Task) HasSLA() bool {
	return t.SLAHours != nil
}

// SetDefaults applies default values for fields omitted at creation.
func (t *Task) SetDefaults() {
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.ExecutorType == "" {
		t.ExecutorType = ExecutorAI
	}
	if t.SLAStatus == "" {
		t.SLAStatus = SLAOnTime
	}
}

// TaskStatus represents the current state of a task
type TaskStatus string

// Task status constants
const (
	TaskPending        TaskStatus = "pending"
	TaskInProgress     TaskStatus = "in_progress"
	TaskAwaitingReview TaskStatus = "awaiting_review"
	TaskCompleted      TaskStatus = "completed"
	TaskFailed         TaskStatus = "failed"
)

// IsValid checks if the task status value is valid
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskAwaitingReview, TaskCompleted, TaskFailed:
		return true
	}
	return false
}

// SLAStatus tracks whether the task deadline has been claimed as breached.
// The transition on_time -> breached is monotonic and happens through the
// store's conditional update only.
type SLAStatus string

// SLA status constants
const (
	SLAOnTime   SLAStatus = "on_time"
	SLABreached SLAStatus = "breached"
)

// IsValid checks if the SLA status value is valid
func (s SLAStatus) IsValid() bool {
	return s == SLAOnTime || s == SLABreached
}

// ExecutorType identifies who performs a task
type ExecutorType string

// Executor type constants
const (
	ExecutorAI    ExecutorType = "ai"
	ExecutorHuman ExecutorType = "human"
)

// IsValid checks if the executor type value is valid
func (e ExecutorType) IsValid() bool {
	return e == ExecutorAI || e == ExecutorHuman
}

// Notification is a persisted operator-facing message. The row is always
// written; only the obtrusive popup is gated by delivery preferences.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Type      NotificationType  `json:"type"`
	Priority  Priority          `json:"priority"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	ActionURL string            `json:"action_url,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Read      bool              `json:"read"`
	ReadAt    *time.Time        `json:"read_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NotificationType categorizes operator notifications
type NotificationType string

// Notification type constants
const (
	NotifySLAWarning     NotificationType = "sla_warning"
	NotifyTaskInterrupt  NotificationType = "task_interrupt"
	NotifyWorkflowUpdate NotificationType = "workflow_update"
	NotifyAgentFailure   NotificationType = "agent_failure"
	NotifyTaskCompletion NotificationType = "task_completion"
	NotifyMention        NotificationType = "mention"
)

// IsValid checks if the notification type value is valid
func (n NotificationType) IsValid() bool {
	switch n {
	case NotifySLAWarning, NotifyTaskInterrupt, NotifyWorkflowUpdate,
		NotifyAgentFailure, NotifyTaskCompletion, NotifyMention:
		return true
	}
	return false
}

// AuditEvent is an append-only record of a state mutation
type AuditEvent struct {
	ID           int64     `json:"id"`
	Actor        string    `json:"actor"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	OldValue     *string   `json:"old_value,omitempty"`
	NewValue     *string   `json:"new_value,omitempty"`
	Metadata     string    `json:"metadata,omitempty"` // JSON blob
	CreatedAt    time.Time `json:"created_at"`
}

// WorkflowFilter is used to filter workflow queries
type WorkflowFilter struct {
	Status     *WorkflowStatus
	Type       *WorkflowType
	Priority   *Priority
	AssignedTo *string
	Limit      int
}

// TaskFilter is used to filter task queries
type TaskFilter struct {
	WorkflowID *string
	Status     *TaskStatus
	SLAStatus  *SLAStatus
	Limit      int
}

// NotificationFilter is used to filter notification queries
type NotificationFilter struct {
	UserID       string
	UnreadOnly   bool
	CreatedAfter *time.Time
	Limit        int
}
