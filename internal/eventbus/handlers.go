package eventbus

import (
	"context"
	"fmt"

	"github.com/hilops/titleflow/internal/notify"
	"github.com/hilops/titleflow/internal/types"
)

// notificationTypeFor maps bus event types to notification types. Breach
// events are absent: the scanner notifies directly when it wins the claim,
// and routing them here as well would double-notify.
var notificationTypeFor = map[EventType]types.NotificationType{
	EventWorkflowUpdated:   types.NotifyWorkflowUpdate,
	EventWorkflowCompleted: types.NotifyWorkflowUpdate,
	EventWorkflowCancelled: types.NotifyWorkflowUpdate,
	EventTaskInterrupt:     types.NotifyTaskInterrupt,
	EventTaskCompleted:     types.NotifyTaskCompletion,
	EventTaskFailed:        types.NotifyAgentFailure,
}

// NotificationHandler bridges bus events to the notification dispatcher.
// It fans each matching event out to the operator audience as rows plus
// preference-gated popups.
type NotificationHandler struct {
	dispatcher *notify.Dispatcher
}

// NewNotificationHandler wires a dispatcher into the bus.
func NewNotificationHandler(d *notify.Dispatcher) *NotificationHandler {
	return &NotificationHandler{dispatcher: d}
}

func (h *NotificationHandler) ID() string { return "notifications" }

func (h *NotificationHandler) Handles() []EventType {
	out := make([]EventType, 0, len(notificationTypeFor))
	for t := range notificationTypeFor {
		out = append(out, t)
	}
	return out
}

func (h *NotificationHandler) Priority() int { return 10 }

func (h *NotificationHandler) Handle(ctx context.Context, event *Event, result *Result) error {
	ntype, ok := notificationTypeFor[event.Type]
	if !ok {
		return fmt.Errorf("eventbus: no notification mapping for %s", event.Type)
	}

	priority := event.Priority
	if priority == "" {
		priority = types.PriorityNormal
	}

	metadata := map[string]string{}
	for k, v := range event.Metadata {
		metadata[k] = v
	}
	if event.WorkflowID != "" {
		metadata["workflow_id"] = event.WorkflowID
	}
	if event.TaskID != "" {
		metadata["task_id"] = event.TaskID
	}

	created, err := h.dispatcher.Dispatch(ctx, notify.Event{
		Type:     ntype,
		Priority: priority,
		Title:    event.Title,
		Message:  event.Message,
		Metadata: metadata,
	})
	if err != nil {
		return err
	}
	result.Notified += len(created)
	return nil
}
