package lifecycle

import (
	"errors"
	"testing"

	"github.com/hilops/titleflow/internal/types"
)

// allStatuses covers every workflow status for exhaustive rejection checks.
var allStatuses = []types.WorkflowStatus{
	types.WorkflowPending,
	types.WorkflowInProgress,
	types.WorkflowAwaitingReview,
	types.WorkflowBlocked,
	types.WorkflowCompleted,
	types.WorkflowFailed,
}

func TestAttemptPermittedTransitions(t *testing.T) {
	cases := []struct {
		from   types.WorkflowStatus
		action types.WorkflowAction
		to     types.WorkflowStatus
	}{
		{types.WorkflowPending, types.ActionStart, types.WorkflowInProgress},
		{types.WorkflowInProgress, types.ActionPause, types.WorkflowBlocked},
		{types.WorkflowBlocked, types.ActionResume, types.WorkflowInProgress},
		{types.WorkflowInProgress, types.ActionComplete, types.WorkflowCompleted},
		{types.WorkflowAwaitingReview, types.ActionComplete, types.WorkflowCompleted},
		{types.WorkflowPending, types.ActionCancel, types.WorkflowBlocked},
		{types.WorkflowInProgress, types.ActionCancel, types.WorkflowBlocked},
		{types.WorkflowAwaitingReview, types.ActionCancel, types.WorkflowBlocked},
		{types.WorkflowBlocked, types.ActionCancel, types.WorkflowBlocked},
		{types.WorkflowBlocked, types.ActionRetry, types.WorkflowPending},
		{types.WorkflowFailed, types.ActionRetry, types.WorkflowPending},
	}

	for _, tc := range cases {
		tr, err := Attempt(tc.from, tc.action)
		if err != nil {
			t.Errorf("%s from %s: unexpected error %v", tc.action, tc.from, err)
			continue
		}
		if tr.To != tc.to {
			t.Errorf("%s from %s: expected %s, got %s", tc.action, tc.from, tc.to, tr.To)
		}
		if tr.From != tc.from {
			t.Errorf("%s from %s: transition From mismatch: %s", tc.action, tc.from, tr.From)
		}
	}
}

// TestAttemptRejectsEverythingElse walks the full (status, action) grid and
// verifies every pair outside the table is rejected with a ValidationError.
func TestAttemptRejectsEverythingElse(t *testing.T) {
	permitted := map[types.WorkflowStatus]map[types.WorkflowAction]bool{
		types.WorkflowPending:        {types.ActionStart: true, types.ActionCancel: true},
		types.WorkflowInProgress:     {types.ActionPause: true, types.ActionComplete: true, types.ActionCancel: true},
		types.WorkflowAwaitingReview: {types.ActionComplete: true, types.ActionCancel: true},
		types.WorkflowBlocked:        {types.ActionResume: true, types.ActionCancel: true, types.ActionRetry: true},
		types.WorkflowCompleted:      {},
		types.WorkflowFailed:         {types.ActionRetry: true},
	}

	actions := []types.WorkflowAction{
		types.ActionStart, types.ActionPause, types.ActionResume,
		types.ActionComplete, types.ActionCancel, types.ActionRetry,
	}

	for _, status := range allStatuses {
		for _, action := range actions {
			if permitted[status][action] {
				continue
			}
			_, err := Attempt(status, action)
			if err == nil {
				t.Errorf("expected rejection for %s from %s", action, status)
				continue
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("%s from %s: expected *ValidationError, got %T", action, status, err)
				continue
			}
			if verr.Action != action || verr.Status != status {
				t.Errorf("error should name action and status, got %v", verr)
			}
		}
	}
}

func TestAttemptRejectsUnknownAction(t *testing.T) {
	_, err := Attempt(types.WorkflowPending, "archive")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError for unknown action, got %v", err)
	}
}

func TestCancelSetsFlag(t *testing.T) {
	tr, err := Attempt(types.WorkflowInProgress, types.ActionCancel)
	if err != nil {
		t.Fatalf("cancel from in_progress: %v", err)
	}
	if !tr.Cancelled {
		t.Error("cancel transition should set Cancelled")
	}
	if tr.To != types.WorkflowBlocked {
		t.Errorf("cancel should land in blocked, got %s", tr.To)
	}
}

func TestCompleteStampsCompletedAt(t *testing.T) {
	tr, err := Attempt(types.WorkflowAwaitingReview, types.ActionComplete)
	if err != nil {
		t.Fatalf("complete from awaiting_review: %v", err)
	}
	if !tr.StampCompleted {
		t.Error("complete transition should request completed_at stamping")
	}
}

func TestAllowed(t *testing.T) {
	if got := Allowed(types.WorkflowCompleted); len(got) != 0 {
		t.Errorf("completed should allow no actions, got %v", got)
	}
	got := Allowed(types.WorkflowBlocked)
	if len(got) != 3 {
		t.Errorf("blocked should allow resume, cancel, retry; got %v", got)
	}
}
