// Package engine applies workflow actions and coordinates the surrounding
// side channels: audit, lifecycle events and the orchestrator trigger.
//
// The engine never mutates status directly. Every transition goes through the
// lifecycle table for validation and through the store's conditional write,
// so two racing actions on the same workflow resolve to exactly one winner.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hilops/titleflow/internal/audit"
	"github.com/hilops/titleflow/internal/eventbus"
	"github.com/hilops/titleflow/internal/lifecycle"
	"github.com/hilops/titleflow/internal/sla"
	"github.com/hilops/titleflow/internal/storage"
	"github.com/hilops/titleflow/internal/telemetry"
	"github.com/hilops/titleflow/internal/types"
)

// PolicyLookup resolves the default SLA hours for a workflow type. It backs
// task starts whose tasks carry no sla_hours of their own.
type PolicyLookup func(types.WorkflowType) (float64, bool)

// Engine coordinates workflow and task mutations.
type Engine struct {
	store        storage.Storage
	recorder     *audit.Recorder
	bus          *eventbus.Bus
	orchestrator *OrchestratorClient
	policy       PolicyLookup
	now          func() time.Time
	log          zerolog.Logger
}

// Options configures optional collaborators. Zero values disable the
// corresponding side channel.
type Options struct {
	// Bus receives lifecycle events after successful mutations.
	Bus *eventbus.Bus
	// Orchestrator is triggered best-effort when a workflow starts.
	Orchestrator *OrchestratorClient
	// Policy resolves per-workflow-type default SLA hours.
	Policy PolicyLookup
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// New creates an Engine. recorder must not be nil.
func New(store storage.Storage, recorder *audit.Recorder, opts Options, log zerolog.Logger) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Policy == nil {
		opts.Policy = func(types.WorkflowType) (float64, bool) { return 0, false }
	}
	return &Engine{
		store:        store,
		recorder:     recorder,
		bus:          opts.Bus,
		orchestrator: opts.Orchestrator,
		policy:       opts.Policy,
		now:          opts.Now,
		log:          log.With().Str("component", "engine").Logger(),
	}
}

// CreateWorkflow persists a new workflow and records its creation.
func (e *Engine) CreateWorkflow(ctx context.Context, w *types.Workflow, actor string) error {
	if err := e.store.CreateWorkflow(ctx, w); err != nil {
		return err
	}
	status := string(w.Status)
	e.recorder.Record(ctx, actor, "workflow_created", "workflow", w.ID, nil, &status, "")
	e.publish(ctx, &eventbus.Event{
		Type:       eventbus.EventWorkflowUpdated,
		WorkflowID: w.ID,
		Actor:      actor,
		Priority:   w.Priority,
		Title:      "Workflow created",
		Message:    fmt.Sprintf("%s workflow created", w.Type),
	})
	return nil
}

// RequestAction validates and applies one workflow action.
//
// Rejected actions (lifecycle.ValidationError) leave no trace: no status
// change, no audit event, no lifecycle event. A lost write race surfaces as
// storage.ErrConflict; the caller re-reads and retries if it still wants the
// action.
func (e *Engine) RequestAction(ctx context.Context, workflowID string, action types.WorkflowAction, actor string) (*types.Workflow, error) {
	w, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	tr, err := lifecycle.Attempt(w.Status, action)
	if err != nil {
		return nil, err
	}

	upd := storage.WorkflowStatusUpdate{SetCancelled: tr.Cancelled}
	if tr.StampCompleted {
		now := e.now().UTC()
		upd.CompletedAt = &now
	}
	if err := e.store.UpdateWorkflowStatus(ctx, workflowID, tr.From, tr.To, upd); err != nil {
		return nil, err
	}

	telemetry.CountAction(ctx, string(action))
	e.recorder.RecordTransition(ctx, actor, string(action), "workflow", workflowID,
		string(tr.From), string(tr.To))
	e.publish(ctx, e.transitionEvent(w, tr, actor))

	if action == types.ActionStart && e.orchestrator != nil {
		// Outbound trigger is advisory. The transition is already committed
		// and stands whether or not the orchestrator can be reached.
		e.orchestrator.TriggerAsync(workflowID)
	}

	return e.store.GetWorkflow(ctx, workflowID)
}

// StartTask moves a task to in_progress and stamps its SLA clock. The
// effective SLA hours come from the task itself, falling back to the
// per-workflow-type policy; tasks with neither start without a deadline and
// are judged by the default window from creation time.
func (e *Engine) StartTask(ctx context.Context, taskID, actor string) (*types.Task, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	var dueAt *time.Time
	hours, ok := e.effectiveSLAHours(ctx, task)
	if ok {
		due := sla.DueAt(now, hours)
		dueAt = &due
	}

	if err := e.store.StartTask(ctx, taskID, now, dueAt); err != nil {
		return nil, err
	}

	e.recorder.RecordTransition(ctx, actor, "task_started", "task", taskID,
		string(task.Status), string(types.TaskInProgress))
	return e.store.GetTask(ctx, taskID)
}

// CompleteTask marks a task done. Its breach window closes with it.
func (e *Engine) CompleteTask(ctx context.Context, taskID, actor string) error {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := e.store.UpdateTaskStatus(ctx, taskID, types.TaskCompleted); err != nil {
		return err
	}
	e.recorder.RecordTransition(ctx, actor, "task_completed", "task", taskID,
		string(task.Status), string(types.TaskCompleted))
	e.publish(ctx, &eventbus.Event{
		Type:       eventbus.EventTaskCompleted,
		WorkflowID: task.WorkflowID,
		TaskID:     taskID,
		Actor:      actor,
		Title:      "Task completed",
		Message:    fmt.Sprintf("%s completed", task.Name),
	})
	return nil
}

// InterruptTask parks a task in awaiting_review because it needs human
// input, recording the interrupt type and notifying the operator audience.
func (e *Engine) InterruptTask(ctx context.Context, taskID, actor, interruptType string) error {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := e.store.InterruptTask(ctx, taskID, interruptType); err != nil {
		return err
	}
	e.recorder.RecordTransition(ctx, actor, "task_interrupted", "task", taskID,
		string(task.Status), string(types.TaskAwaitingReview))
	e.publish(ctx, &eventbus.Event{
		Type:       eventbus.EventTaskInterrupt,
		WorkflowID: task.WorkflowID,
		TaskID:     taskID,
		Actor:      actor,
		Priority:   types.PriorityHigh,
		Title:      "Human input needed",
		Message:    fmt.Sprintf("%s needs human input (%s)", task.Name, interruptType),
		Metadata:   map[string]string{"interrupt_type": interruptType},
	})
	return nil
}

// FailTask marks a task failed and raises an agent failure event.
func (e *Engine) FailTask(ctx context.Context, taskID, actor, reason string) error {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := e.store.UpdateTaskStatus(ctx, taskID, types.TaskFailed); err != nil {
		return err
	}
	e.recorder.RecordTransition(ctx, actor, "task_failed", "task", taskID,
		string(task.Status), string(types.TaskFailed))
	e.publish(ctx, &eventbus.Event{
		Type:       eventbus.EventTaskFailed,
		WorkflowID: task.WorkflowID,
		TaskID:     taskID,
		Actor:      actor,
		Priority:   types.PriorityUrgent,
		Title:      "Agent failed",
		Message:    fmt.Sprintf("%s failed: %s", task.Name, reason),
	})
	return nil
}

// RetryTask resets a failed or stalled task for another attempt. The SLA
// clock and breach flag are cleared with it.
func (e *Engine) RetryTask(ctx context.Context, taskID, actor string) (*types.Task, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := e.store.RetryTask(ctx, taskID); err != nil {
		return nil, err
	}
	e.recorder.RecordTransition(ctx, actor, "task_retried", "task", taskID,
		string(task.Status), string(types.TaskPending))
	return e.store.GetTask(ctx, taskID)
}

// effectiveSLAHours resolves the hours governing a task's deadline.
func (e *Engine) effectiveSLAHours(ctx context.Context, task *types.Task) (float64, bool) {
	if task.HasSLA() {
		return *task.SLAHours, true
	}
	w, err := e.store.GetWorkflow(ctx, task.WorkflowID)
	if err != nil {
		e.log.Warn().Err(err).Str("task", task.ID).Msg("workflow lookup for SLA policy failed")
		return 0, false
	}
	return e.policy(w.Type)
}

func (e *Engine) transitionEvent(w *types.Workflow, tr lifecycle.Transition, actor string) *eventbus.Event {
	eventType := eventbus.EventWorkflowUpdated
	switch {
	case tr.StampCompleted:
		eventType = eventbus.EventWorkflowCompleted
	case tr.Cancelled:
		eventType = eventbus.EventWorkflowCancelled
	}
	return &eventbus.Event{
		Type:       eventType,
		WorkflowID: w.ID,
		Actor:      actor,
		Priority:   w.Priority,
		Title:      fmt.Sprintf("Workflow %s", tr.To),
		Message:    fmt.Sprintf("%s workflow moved from %s to %s", w.Type, tr.From, tr.To),
		Metadata:   map[string]string{"action": string(tr.Action)},
	}
}

// publish sends a lifecycle event when a bus is attached. Event delivery is a
// side channel; failures are logged, never returned.
func (e *Engine) publish(ctx context.Context, event *eventbus.Event) {
	if e.bus == nil {
		return
	}
	if _, err := e.bus.Dispatch(ctx, event); err != nil {
		e.log.Warn().Err(err).Str("event_type", string(event.Type)).Msg("event dispatch failed")
	}
}
