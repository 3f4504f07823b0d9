package sqlite

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hilops/titleflow/internal/sla"
	"github.com/hilops/titleflow/internal/storage"
	"github.com/hilops/titleflow/internal/types"
)

func TestStartTaskStampsDeadline(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	w := newTestWorkflow(t, store)
	task := newTestTask(t, store, w.ID, hoursPtr(24))

	started := utc(2026, 3, 10, 9)
	due := sla.DueAt(started, 24)
	if err := store.StartTask(ctx, task.ID, started, &due); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	got, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != types.TaskInProgress {
		t.Errorf("expected in_progress, got %s", got.Status)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("started_at mismatch: %v", got.StartedAt)
	}
	if got.SLADueAt == nil || !got.SLADueAt.Equal(due) {
		t.Errorf("sla_due_at mismatch: %v", got.SLADueAt)
	}
}

func TestRetryTaskResetsClock(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	w := newTestWorkflow(t, store)
	task := newTestTask(t, store, w.ID, hoursPtr(4))

	started := utc(2026, 3, 10, 9)
	due := sla.DueAt(started, 4)
	if err := store.StartTask(ctx, task.ID, started, &due); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}
	if err := store.ClaimBreach(ctx, task.ID); err != nil {
		t.Fatalf("ClaimBreach failed: %v", err)
	}
	if err := store.UpdateTaskStatus(ctx, task.ID, types.TaskFailed); err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}

	if err := store.RetryTask(ctx, task.ID); err != nil {
		t.Fatalf("RetryTask failed: %v", err)
	}

	got, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != types.TaskPending {
		t.Errorf("retried task should be pending, got %s", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("expected retry_count 1, got %d", got.RetryCount)
	}
	if got.StartedAt != nil || got.SLADueAt != nil {
		t.Error("retry must clear started_at and sla_due_at for recomputation")
	}
	if got.SLAStatus != types.SLAOnTime {
		t.Errorf("retried attempt gets a fresh SLA clock, got %s", got.SLAStatus)
	}
}

func TestOverdueTasksQuery(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	w := newTestWorkflow(t, store)
	now := utc(2026, 3, 11, 15)

	// Overdue and unclaimed: candidate
	overdue := newTestTask(t, store, w.ID, hoursPtr(24))
	started := now.Add(-30 * time.Hour)
	due := sla.DueAt(started, 24)
	if err := store.StartTask(ctx, overdue.ID, started, &due); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	// Within deadline: not a candidate
	fresh := newTestTask(t, store, w.ID, hoursPtr(24))
	freshStart := now.Add(-1 * time.Hour)
	freshDue := sla.DueAt(freshStart, 24)
	if err := store.StartTask(ctx, fresh.ID, freshStart, &freshDue); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	// Overdue but completed: not a candidate
	done := newTestTask(t, store, w.ID, hoursPtr(1))
	doneStart := now.Add(-10 * time.Hour)
	doneDue := sla.DueAt(doneStart, 1)
	if err := store.StartTask(ctx, done.ID, doneStart, &doneDue); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}
	if err := store.UpdateTaskStatus(ctx, done.ID, types.TaskCompleted); err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}

	// Overdue but already claimed: never re-selected
	claimed := newTestTask(t, store, w.ID, hoursPtr(1))
	claimedStart := now.Add(-10 * time.Hour)
	claimedDue := sla.DueAt(claimedStart, 1)
	if err := store.StartTask(ctx, claimed.ID, claimedStart, &claimedDue); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}
	if err := store.ClaimBreach(ctx, claimed.ID); err != nil {
		t.Fatalf("ClaimBreach failed: %v", err)
	}

	got, err := store.OverdueTasks(ctx, now)
	if err != nil {
		t.Fatalf("OverdueTasks failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != overdue.ID {
		ids := make([]string, len(got))
		for i, task := range got {
			ids[i] = task.ID
		}
		t.Fatalf("expected only the unclaimed overdue task, got %v", ids)
	}
}

func TestStaleUnconfiguredTasksQuery(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	w := newTestWorkflow(t, store)
	window := 24 * time.Hour

	// Old unconfigured pending task: candidate
	stale := &types.Task{
		WorkflowID:   w.ID,
		Name:         "await-hoa-docs",
		ExecutorType: types.ExecutorHuman,
		CreatedAt:    time.Now().UTC().Add(-30 * time.Hour),
	}
	if err := store.CreateTask(ctx, stale); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	// Recent unconfigured task: not a candidate
	newTestTask(t, store, w.ID, nil)

	// Old but configured task: belongs to the precise query, not this one
	configured := &types.Task{
		WorkflowID:   w.ID,
		ExecutorType: types.ExecutorAI,
		SLAHours:     hoursPtr(48),
		CreatedAt:    time.Now().UTC().Add(-30 * time.Hour),
	}
	if err := store.CreateTask(ctx, configured); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	// Old unconfigured but in progress: fallback path skips in-flight tasks
	inFlight := &types.Task{
		WorkflowID:   w.ID,
		ExecutorType: types.ExecutorAI,
		Status:       types.TaskInProgress,
		CreatedAt:    time.Now().UTC().Add(-30 * time.Hour),
	}
	if err := store.CreateTask(ctx, inFlight); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	got, err := store.StaleUnconfiguredTasks(ctx, time.Now().UTC(), window)
	if err != nil {
		t.Fatalf("StaleUnconfiguredTasks failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != stale.ID {
		t.Fatalf("expected only the stale pending task, got %d results", len(got))
	}
}

func TestClaimBreachBasic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	w := newTestWorkflow(t, store)
	task := newTestTask(t, store, w.ID, hoursPtr(24))

	if err := store.ClaimBreach(ctx, task.ID); err != nil {
		t.Fatalf("ClaimBreach failed: %v", err)
	}

	got, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.SLAStatus != types.SLABreached {
		t.Errorf("expected breached, got %s", got.SLAStatus)
	}

	// Second claim loses
	err = store.ClaimBreach(ctx, task.ID)
	if !errors.Is(err, storage.ErrAlreadyBreached) {
		t.Fatalf("expected ErrAlreadyBreached, got %v", err)
	}
}

func TestClaimBreachNotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.ClaimBreach(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestClaimBreachConcurrent simulates overlapping scanner runs racing to
// claim the same tasks: each task must be won by exactly one claimer.
func TestClaimBreachConcurrent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	w := newTestWorkflow(t, store)

	const numTasks = 10
	const numClaimers = 4

	taskIDs := make([]string, numTasks)
	for i := range taskIDs {
		taskIDs[i] = newTestTask(t, store, w.ID, hoursPtr(1)).ID
	}

	wins := make([]atomic.Int32, numTasks)
	var wg sync.WaitGroup
	for c := 0; c < numClaimers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, id := range taskIDs {
				err := store.ClaimBreach(ctx, id)
				switch {
				case err == nil:
					wins[i].Add(1)
				case errors.Is(err, storage.ErrAlreadyBreached):
					// Lost the race: expected for all but one claimer
				default:
					t.Errorf("unexpected error claiming %s: %v", id, err)
				}
			}
		}()
	}
	wg.Wait()

	for i := range wins {
		if got := wins[i].Load(); got != 1 {
			t.Errorf("task %d claimed %d times, expected exactly 1", i, got)
		}
	}
}

func TestListTasksFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	w := newTestWorkflow(t, store)
	other := newTestWorkflow(t, store)

	newTestTask(t, store, w.ID, hoursPtr(24))
	newTestTask(t, store, w.ID, nil)
	newTestTask(t, store, other.ID, nil)

	got, err := store.ListTasks(ctx, types.TaskFilter{WorkflowID: &w.ID})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 tasks for workflow, got %d", len(got))
	}

	breached := types.SLABreached
	got, err = store.ListTasks(ctx, types.TaskFilter{SLAStatus: &breached})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no breached tasks, got %d", len(got))
	}
}
