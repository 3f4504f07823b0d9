package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/hilops/titleflow/internal/types"
)

// newTestStore creates a Store backed by a temp-file database.
//
// File-based databases are used instead of ":memory:" for test isolation:
// the shared in-memory database is visible across every test in the process.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	store, err := New(ctx, t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("Failed to close test database: %v", cerr)
		}
	})

	return store
}

// newTestWorkflow creates and persists a pending workflow for task tests.
func newTestWorkflow(t *testing.T, store *Store) *types.Workflow {
	t.Helper()

	w := &types.Workflow{
		Type:      types.TypePayoff,
		Priority:  types.PriorityNormal,
		CreatedBy: "test-user",
	}
	if err := store.CreateWorkflow(context.Background(), w); err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}
	return w
}

// newTestTask creates and persists a task with the given SLA configuration.
// slaHours nil means the task relies on the fallback policy.
func newTestTask(t *testing.T, store *Store, workflowID string, slaHours *float64) *types.Task {
	t.Helper()

	task := &types.Task{
		WorkflowID:   workflowID,
		Name:         "order-payoff-statement",
		ExecutorType: types.ExecutorAI,
		SLAHours:     slaHours,
	}
	if err := store.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	return task
}

func hoursPtr(h float64) *float64 { return &h }

func utc(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}
