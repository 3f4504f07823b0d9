// Package sla computes task deadlines and breach eligibility.
package sla

import (
	"math"
	"time"

	"github.com/hilops/titleflow/internal/types"
)

// DefaultFallbackWindow is applied to tasks with no SLA configuration,
// measured from creation time rather than start time.
const DefaultFallbackWindow = 24 * time.Hour

// Path identifies which deadline policy applied to a task. The two policies
// stay distinct so that back-filling sla_hours switches a task onto the
// precise calculation without reprocessing already-resolved tasks.
type Path string

const (
	// PathConfigured means the task carries a stamped sla_due_at, whether
	// from its own sla_hours or a per-type policy default.
	PathConfigured Path = "configured"
	// PathFallback means the task has no stamped deadline and is judged by
	// the default window from creation time.
	PathFallback Path = "fallback"
)

// DueAt computes the SLA deadline for a task started at startedAt with the
// given configured hours. Pure function: calling it twice yields the same
// value for the same inputs.
func DueAt(startedAt time.Time, slaHours float64) time.Time {
	return startedAt.Add(time.Duration(slaHours * float64(time.Hour)))
}

// Eligibility is the breach-scan verdict for a single task.
type Eligibility struct {
	Path Path
	// Due is the effective deadline: sla_due_at on the configured path, or
	// created_at + fallback window on the fallback path.
	Due time.Time
	// Overdue is true when the deadline has passed and the task is still in
	// a status the path considers active.
	Overdue bool
}

// Evaluate determines whether a task is eligible for breach claiming at the
// given instant. fallbackWindow <= 0 selects DefaultFallbackWindow.
func Evaluate(task *types.Task, now time.Time, fallbackWindow time.Duration) Eligibility {
	if fallbackWindow <= 0 {
		fallbackWindow = DefaultFallbackWindow
	}

	// A stamped sla_due_at always wins, whether it came from the task's own
	// sla_hours or from a per-workflow-type policy applied at start.
	if task.SLADueAt != nil {
		return Eligibility{
			Path:    PathConfigured,
			Due:     *task.SLADueAt,
			Overdue: now.After(*task.SLADueAt) && task.Status != types.TaskCompleted,
		}
	}

	// Fallback path: unconfigured tasks are only considered while they sit
	// waiting on someone (pending or awaiting_review); once in flight the
	// lack of a configured deadline means there is nothing to judge against.
	due := task.CreatedAt.Add(fallbackWindow)
	active := task.Status == types.TaskPending || task.Status == types.TaskAwaitingReview
	return Eligibility{
		Path:    PathFallback,
		Due:     due,
		Overdue: active && now.After(due),
	}
}

// HoursOverdue returns the whole hours elapsed past the deadline, rounded to
// nearest. Never negative.
func HoursOverdue(due, now time.Time) int {
	if !now.After(due) {
		return 0
	}
	return int(math.Round(now.Sub(due).Hours()))
}
