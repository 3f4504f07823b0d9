// Package lifecycle validates workflow status transitions.
//
// The transition table is the single source of truth for which action may be
// requested from which status. Callers apply the resulting status to the
// store with a conditional write; this package itself is pure.
package lifecycle

import (
	"fmt"

	"github.com/hilops/titleflow/internal/types"
)

// ValidationError reports an action requested from a status that does not
// permit it. No mutation has occurred when this is returned.
type ValidationError struct {
	Action types.WorkflowAction
	Status types.WorkflowStatus
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("action %q is not valid from status %q", e.Action, e.Status)
}

// Transition is the outcome of a permitted action.
type Transition struct {
	From   types.WorkflowStatus
	To     types.WorkflowStatus
	Action types.WorkflowAction

	// Cancelled is set when the action parks the workflow as cancelled
	// (cancel lands in blocked with the cancelled flag, not a separate status).
	Cancelled bool

	// StampCompleted is set when the transition must record completed_at.
	StampCompleted bool
}

// rule pairs the statuses an action may be requested from with its result.
type rule struct {
	from []types.WorkflowStatus
	to   types.WorkflowStatus
}

// transitions is the authoritative action table.
var transitions = map[types.WorkflowAction]rule{
	types.ActionStart: {
		from: []types.WorkflowStatus{types.WorkflowPending},
		to:   types.WorkflowInProgress,
	},
	types.ActionPause: {
		from: []types.WorkflowStatus{types.WorkflowInProgress},
		to:   types.WorkflowBlocked,
	},
	types.ActionResume: {
		from: []types.WorkflowStatus{types.WorkflowBlocked},
		to:   types.WorkflowInProgress,
	},
	types.ActionComplete: {
		from: []types.WorkflowStatus{types.WorkflowInProgress, types.WorkflowAwaitingReview},
		to:   types.WorkflowCompleted,
	},
	types.ActionCancel: {
		from: []types.WorkflowStatus{
			types.WorkflowPending, types.WorkflowInProgress,
			types.WorkflowAwaitingReview, types.WorkflowBlocked,
		},
		to: types.WorkflowBlocked,
	},
	types.ActionRetry: {
		// Paused and cancelled workflows both sit in blocked; retry revives
		// them and failed workflows alike.
		from: []types.WorkflowStatus{types.WorkflowFailed, types.WorkflowBlocked},
		to:   types.WorkflowPending,
	},
}

// Attempt computes the transition for the requested action. It returns a
// *ValidationError if the current status does not permit the action.
func Attempt(current types.WorkflowStatus, action types.WorkflowAction) (Transition, error) {
	r, ok := transitions[action]
	if !ok {
		return Transition{}, &ValidationError{Action: action, Status: current}
	}
	for _, from := range r.from {
		if from == current {
			return Transition{
				From:           current,
				To:             r.to,
				Action:         action,
				Cancelled:      action == types.ActionCancel,
				StampCompleted: action == types.ActionComplete,
			}, nil
		}
	}
	return Transition{}, &ValidationError{Action: action, Status: current}
}

// Allowed returns the actions permitted from the given status, in no
// particular order. Used for error messages and API discovery.
func Allowed(current types.WorkflowStatus) []types.WorkflowAction {
	var out []types.WorkflowAction
	for action, r := range transitions {
		for _, from := range r.from {
			if from == current {
				out = append(out, action)
				break
			}
		}
	}
	return out
}
