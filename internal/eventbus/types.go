package eventbus

import "github.com/hilops/titleflow/internal/types"

// EventType identifies a lifecycle event flowing through the bus.
type EventType string

const (
	// Workflow lifecycle events.
	EventWorkflowUpdated   EventType = "workflow.updated"
	EventWorkflowCompleted EventType = "workflow.completed"
	EventWorkflowCancelled EventType = "workflow.cancelled"

	// Task lifecycle events.
	EventTaskInterrupt EventType = "task.interrupt"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"

	// Breach events emitted by the scanner.
	EventSLABreached EventType = "sla.breached"
)

// IsWorkflowEvent returns true for workflow lifecycle event types.
func (t EventType) IsWorkflowEvent() bool {
	switch t {
	case EventWorkflowUpdated, EventWorkflowCompleted, EventWorkflowCancelled:
		return true
	}
	return false
}

// IsTaskEvent returns true for task lifecycle event types.
func (t EventType) IsTaskEvent() bool {
	switch t {
	case EventTaskInterrupt, EventTaskCompleted, EventTaskFailed:
		return true
	}
	return false
}

// Event is a single lifecycle occurrence.
type Event struct {
	Type       EventType      `json:"type"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Priority   types.Priority `json:"priority,omitempty"`
	Title      string         `json:"title,omitempty"`
	Message    string         `json:"message,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Result accumulates handler outcomes for one dispatch.
type Result struct {
	// Notified counts notifications created by notification handlers.
	Notified int
	// Handled counts handlers that processed the event.
	Handled int
}
