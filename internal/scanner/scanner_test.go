package scanner

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hilops/titleflow/internal/audit"
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

type fixture struct {
	store   *sqlite.Store
	scanner *Scanner
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	dispatcher := notify.NewDispatcher(store,
		&staticDirectory{users: []string{"operator"}},
		nil, notify.Config{}, zerolog.Nop())
	recorder := audit.NewRecorder(store, zerolog.Nop())

	s := New(store, dispatcher, recorder, nil, Config{
		Now: func() time.Time { return now },
	}, zerolog.Nop())
	return &fixture{store: store, scanner: s, now: now}
}

func (f *fixture) newWorkflow(t *testing.T) *types.Workflow {
	t.Helper()
	w := &types.Workflow{
		Type:      types.TypePayoff,
		Priority:  types.PriorityNormal,
		CreatedBy: "test-user",
	}
	if err := f.store.CreateWorkflow(context.Background(), w); err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}
	return w
}

// newOverdueTask creates a started task whose deadline passed hoursAgo hours
// before the fixture clock.
func (f *fixture) newOverdueTask(t *testing.T, workflowID string, slaHours, hoursAgo float64) *types.Task {
	t.Helper()
	ctx := context.Background()

	task := &types.Task{
		WorkflowID:   workflowID,
		Name:         "Title Search",
		ExecutorType: types.ExecutorAI,
		SLAHours:     &slaHours,
	}
	if err := f.store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	due := f.now.Add(-time.Duration(hoursAgo * float64(time.Hour)))
	started := due.Add(-time.Duration(slaHours * float64(time.Hour)))
	if err := f.store.StartTask(ctx, task.ID, started, &due); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}
	return task
}

// newStaleTask creates an unstarted task without SLA config, created agedHours
// before the fixture clock.
func (f *fixture) newStaleTask(t *testing.T, workflowID string, agedHours float64) *types.Task {
	t.Helper()
	task := &types.Task{
		WorkflowID:   workflowID,
		Name:         "HOA Document Request",
		ExecutorType: types.ExecutorHuman,
		CreatedAt:    f.now.Add(-time.Duration(agedHours * float64(time.Hour))),
	}
	if err := f.store.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	return task
}

func TestRunClaimsOverdueConfiguredTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.newWorkflow(t)

	// 24h SLA, started 30h before the scan: 6 hours overdue.
	task := f.newOverdueTask(t, wf.ID, 24, 6)

	res, err := f.scanner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Found != 1 || res.Processed != 1 {
		t.Fatalf("expected found=1 processed=1, got %+v", res)
	}

	got, err := f.store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.SLAStatus != types.SLABreached {
		t.Errorf("expected sla_status breached, got %s", got.SLAStatus)
	}

	rows, err := f.store.ListNotifications(ctx, types.NotificationFilter{UserID: "operator"})
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(rows))
	}
	n := rows[0]
	if n.Type != types.NotifySLAWarning {
		t.Errorf("expected sla_warning, got %s", n.Type)
	}
	if n.Priority != types.PriorityHigh {
		t.Errorf("expected high priority, got %s", n.Priority)
	}
	if !strings.Contains(n.Message, "Title Search is 6 hours overdue") {
		t.Errorf("unexpected message: %q", n.Message)
	}
	if n.Metadata["task_id"] != task.ID {
		t.Errorf("expected task ref in metadata, got %v", n.Metadata)
	}

	events, err := f.store.GetAuditEvents(ctx, task.ID, 10)
	if err != nil {
		t.Fatalf("GetAuditEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	e := events[0]
	if e.Action != "sla_breached" {
		t.Errorf("expected action sla_breached, got %s", e.Action)
	}
	if e.OldValue == nil || *e.OldValue != "on_time" || e.NewValue == nil || *e.NewValue != "breached" {
		t.Errorf("expected on_time -> breached, got %v -> %v", e.OldValue, e.NewValue)
	}
}

// A task started through a per-type SLA policy has sla_due_at stamped but no
// sla_hours of its own. The breach must be judged against the stamped
// deadline, not the creation-time fallback window.
func TestRunClaimsPolicyStampedTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.newWorkflow(t)

	task := &types.Task{
		WorkflowID:   wf.ID,
		Name:         "Lien Search",
		ExecutorType: types.ExecutorAI,
	}
	if err := f.store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	due := f.now.Add(-6 * time.Hour)
	started := due.Add(-2 * time.Hour)
	if err := f.store.StartTask(ctx, task.ID, started, &due); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	res, err := f.scanner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Found != 1 || res.Processed != 1 {
		t.Fatalf("expected found=1 processed=1, got %+v", res)
	}

	rows, err := f.store.ListNotifications(ctx, types.NotificationFilter{UserID: "operator"})
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(rows))
	}
	n := rows[0]
	if !strings.Contains(n.Message, "Lien Search is 6 hours overdue") {
		t.Errorf("unexpected message: %q", n.Message)
	}
	if n.Metadata["sla_path"] != "configured" {
		t.Errorf("expected sla_path configured, got %v", n.Metadata)
	}
}

func TestRunClaimsStaleUnconfiguredTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.newWorkflow(t)

	// No SLA config, created 30h ago: 6 hours past the 24h default window.
	task := f.newStaleTask(t, wf.ID, 30)

	res, err := f.scanner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Processed != 1 {
		t.Fatalf("expected processed=1, got %+v", res)
	}

	got, err := f.store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.SLAStatus != types.SLABreached {
		t.Errorf("expected sla_status breached, got %s", got.SLAStatus)
	}

	rows, err := f.store.ListNotifications(ctx, types.NotificationFilter{UserID: "operator"})
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(rows))
	}
	if !strings.Contains(rows[0].Message, "6 hours overdue") {
		t.Errorf("unexpected message: %q", rows[0].Message)
	}
	if rows[0].Metadata["sla_path"] != "fallback" {
		t.Errorf("expected fallback path in metadata, got %v", rows[0].Metadata)
	}
}

func TestRunSkipsFreshAndCompletedTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.newWorkflow(t)

	// Fresh configured task: due in the future.
	fresh := &types.Task{
		WorkflowID:   wf.ID,
		Name:         "Lien Search",
		ExecutorType: types.ExecutorAI,
		SLAHours:     hoursPtr(24),
	}
	if err := f.store.CreateTask(ctx, fresh); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	futureDue := f.now.Add(2 * time.Hour)
	if err := f.store.StartTask(ctx, fresh.ID, f.now.Add(-22*time.Hour), &futureDue); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	// Overdue but completed.
	done := f.newOverdueTask(t, wf.ID, 24, 6)
	if err := f.store.UpdateTaskStatus(ctx, done.ID, types.TaskCompleted); err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}

	// Unconfigured but recent.
	f.newStaleTask(t, wf.ID, 3)

	res, err := f.scanner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Found != 0 || res.Processed != 0 {
		t.Fatalf("expected empty scan, got %+v", res)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.newWorkflow(t)
	f.newOverdueTask(t, wf.ID, 24, 6)

	if _, err := f.scanner.Run(ctx); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	// Breached rows leave the candidate set permanently.
	res, err := f.scanner.Run(ctx)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if res.Found != 0 || res.Processed != 0 {
		t.Fatalf("expected second scan empty, got %+v", res)
	}

	rows, err := f.store.ListNotifications(ctx, types.NotificationFilter{UserID: "operator"})
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", len(rows))
	}
}

func TestConcurrentRunsProduceNoDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := f.newWorkflow(t)

	const tasks = 8
	for i := 0; i < tasks; i++ {
		f.newOverdueTask(t, wf.ID, 24, 6)
	}

	const runners = 4
	var wg sync.WaitGroup
	results := make([]Result, runners)
	for i := 0; i < runners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.scanner.Run(ctx)
			if err != nil {
				t.Errorf("runner %d: %v", i, err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	total := 0
	for _, res := range results {
		total += res.Processed
	}
	if total != tasks {
		t.Errorf("expected %d total claims across runners, got %d", tasks, total)
	}

	// One notification per task, regardless of how many runners overlapped.
	rows, err := f.store.ListNotifications(ctx, types.NotificationFilter{UserID: "operator"})
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(rows) != tasks {
		t.Errorf("expected %d notifications, got %d", tasks, len(rows))
	}
}

func TestStartRunsOnTicker(t *testing.T) {
	f := newFixture(t)
	wf := f.newWorkflow(t)
	f.newOverdueTask(t, wf.ID, 24, 6)

	f.scanner.interval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.scanner.Start(ctx)

	deadline := time.After(2 * time.Second)
	for {
		rows, err := f.store.ListNotifications(context.Background(), types.NotificationFilter{UserID: "operator"})
		if err != nil {
			t.Fatalf("ListNotifications failed: %v", err)
		}
		if len(rows) == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("scan never ran, have %d notifications", len(rows))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func hoursPtr(h float64) *float64 { return &h }
