package eventbus

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hilops/titleflow/internal/notify"
	"github.com/hilops/titleflow/internal/storage/sqlite"
	"github.com/hilops/titleflow/internal/types"
)

type staticDirectory struct {
	users []string
}

func (d *staticDirectory) ListUsersByRole(ctx context.Context, role string) ([]string, error) {
	return d.users, nil
}

func newHandlerFixture(t *testing.T) (*NotificationHandler, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	dispatcher := notify.NewDispatcher(store,
		&staticDirectory{users: []string{"alice", "bob"}},
		nil, notify.Config{}, zerolog.Nop())
	return NewNotificationHandler(dispatcher), store
}

func TestNotificationHandlerCreatesRows(t *testing.T) {
	handler, store := newHandlerFixture(t)
	ctx := context.Background()

	result := &Result{}
	err := handler.Handle(ctx, &Event{
		Type:       EventTaskInterrupt,
		WorkflowID: "wf-1",
		TaskID:     "task-1",
		Priority:   types.PriorityHigh,
		Title:      "Human input required",
		Message:    "Payoff amount needs review",
	}, result)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Notified != 2 {
		t.Fatalf("expected 2 notifications, got %d", result.Notified)
	}

	for _, user := range []string{"alice", "bob"} {
		rows, err := store.ListNotifications(ctx, types.NotificationFilter{UserID: user})
		if err != nil {
			t.Fatalf("list for %s: %v", user, err)
		}
		if len(rows) != 1 {
			t.Fatalf("expected 1 row for %s, got %d", user, len(rows))
		}
		n := rows[0]
		if n.Type != types.NotifyTaskInterrupt {
			t.Errorf("expected type %s, got %s", types.NotifyTaskInterrupt, n.Type)
		}
		if n.Metadata["workflow_id"] != "wf-1" || n.Metadata["task_id"] != "task-1" {
			t.Errorf("expected workflow and task refs in metadata, got %v", n.Metadata)
		}
	}
}

func TestNotificationHandlerExcludesBreachEvents(t *testing.T) {
	handler, _ := newHandlerFixture(t)
	for _, et := range handler.Handles() {
		if et == EventSLABreached {
			t.Fatal("breach events must not route through the notification handler")
		}
	}
}

func TestNotificationHandlerDefaultsPriority(t *testing.T) {
	handler, store := newHandlerFixture(t)
	ctx := context.Background()

	err := handler.Handle(ctx, &Event{
		Type:       EventWorkflowUpdated,
		WorkflowID: "wf-2",
		Title:      "Workflow updated",
	}, &Result{})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	rows, err := store.ListNotifications(ctx, types.NotificationFilter{UserID: "alice"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Priority != types.PriorityNormal {
		t.Errorf("expected normal priority default, got %s", rows[0].Priority)
	}
}

func TestNotificationHandlerOnBus(t *testing.T) {
	handler, store := newHandlerFixture(t)
	bus := newTestBus()
	bus.Register(handler)

	ctx := context.Background()
	result, err := bus.Dispatch(ctx, &Event{
		Type:     EventTaskFailed,
		TaskID:   "task-9",
		Priority: types.PriorityUrgent,
		Title:    "Agent failed",
		Message:  "payoff agent crashed",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Notified != 2 {
		t.Errorf("expected 2 notifications, got %d", result.Notified)
	}

	rows, err := store.ListNotifications(ctx, types.NotificationFilter{UserID: "bob"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].Type != types.NotifyAgentFailure {
		t.Fatalf("expected one agent_failure row, got %v", rows)
	}
}
