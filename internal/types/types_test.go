package types

import (
	"testing"
	"time"
)

func TestWorkflowValidateCompletedAtInvariant(t *testing.T) {
	now := time.Now()

	w := &Workflow{Type: TypePayoff, Status: WorkflowCompleted, Priority: PriorityNormal}
	if err := w.Validate(); err == nil {
		t.Fatal("expected error for completed workflow without completed_at")
	}

	w.CompletedAt = &now
	if err := w.Validate(); err != nil {
		t.Fatalf("expected valid workflow, got %v", err)
	}

	w.Status = WorkflowInProgress
	if err := w.Validate(); err == nil {
		t.Fatal("expected error for in_progress workflow with completed_at")
	}
}

func TestWorkflowValidateRejectsBadEnums(t *testing.T) {
	cases := []struct {
		name string
		w    Workflow
	}{
		{"bad type", Workflow{Type: "escrow", Status: WorkflowPending, Priority: PriorityLow}},
		{"bad status", Workflow{Type: TypeLienSearch, Status: "done", Priority: PriorityLow}},
		{"bad priority", Workflow{Type: TypeLienSearch, Status: WorkflowPending, Priority: "p1"}},
	}
	for _, tc := range cases {
		if err := tc.w.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestWorkflowIsTerminal(t *testing.T) {
	now := time.Now()
	done := &Workflow{Status: WorkflowCompleted, CompletedAt: &now}
	if !done.IsTerminal() {
		t.Error("completed workflow should be terminal")
	}
	cancelled := &Workflow{Status: WorkflowBlocked, Cancelled: true}
	if !cancelled.IsTerminal() {
		t.Error("cancelled workflow should be terminal")
	}
	parked := &Workflow{Status: WorkflowBlocked}
	if parked.IsTerminal() {
		t.Error("merely paused workflow should not be terminal")
	}
	active := &Workflow{Status: WorkflowInProgress}
	if active.IsTerminal() {
		t.Error("active workflow should not be terminal")
	}
}

func TestTaskValidateDueAtRequiresStartedAt(t *testing.T) {
	due := time.Now().Add(4 * time.Hour)
	task := &Task{
		WorkflowID:   "wf-1",
		Status:       TaskInProgress,
		ExecutorType: ExecutorAI,
		SLAStatus:    SLAOnTime,
		SLADueAt:     &due,
	}
	if err := task.Validate(); err == nil {
		t.Fatal("expected error for sla_due_at without started_at")
	}

	started := due.Add(-4 * time.Hour)
	task.StartedAt = &started
	if err := task.Validate(); err != nil {
		t.Fatalf("expected valid task, got %v", err)
	}
}

func TestTaskValidateSLAHours(t *testing.T) {
	bad := -2.0
	task := &Task{
		WorkflowID:   "wf-1",
		Status:       TaskPending,
		ExecutorType: ExecutorHuman,
		SLAStatus:    SLAOnTime,
		SLAHours:     &bad,
	}
	if err := task.Validate(); err == nil {
		t.Fatal("expected error for negative sla_hours")
	}
}

func TestTaskSetDefaults(t *testing.T) {
	task := &Task{WorkflowID: "wf-1"}
	task.SetDefaults()
	if task.Status != TaskPending {
		t.Errorf("expected pending, got %s", task.Status)
	}
	if task.ExecutorType != ExecutorAI {
		t.Errorf("expected ai executor, got %s", task.ExecutorType)
	}
	if task.SLAStatus != SLAOnTime {
		t.Errorf("expected on_time, got %s", task.SLAStatus)
	}
	if err := task.Validate(); err != nil {
		t.Fatalf("defaulted task should validate: %v", err)
	}
}

func TestEnumValidity(t *testing.T) {
	if WorkflowStatus("cancelled").IsValid() {
		t.Error("cancelled is not a workflow status; cancellation is a flag on blocked")
	}
	if !WorkflowAction("retry").IsValid() {
		t.Error("retry should be a valid action")
	}
	if SLAStatus("overdue").IsValid() {
		t.Error("overdue is not an SLA status")
	}
	if !NotificationType("mention").IsValid() {
		t.Error("mention should be a valid notification type")
	}
}
