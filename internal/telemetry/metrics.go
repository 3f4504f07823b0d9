package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Engine-level counters. Instruments are created lazily from whatever meter
// provider Init installed, so callers never need to check Enabled.
var (
	countersOnce sync.Once

	scansRun       metric.Int64Counter
	breachesFound  metric.Int64Counter
	breachesClaim  metric.Int64Counter
	notifsCreated  metric.Int64Counter
	actionsApplied metric.Int64Counter
)

func initCounters() {
	m := Meter("")
	scansRun, _ = m.Int64Counter("titleflow.scanner.runs",
		metric.WithDescription("Total breach scan passes"),
	)
	breachesFound, _ = m.Int64Counter("titleflow.scanner.candidates",
		metric.WithDescription("Breach candidates returned by scan queries"),
	)
	breachesClaim, _ = m.Int64Counter("titleflow.scanner.breaches",
		metric.WithDescription("SLA breaches claimed"),
	)
	notifsCreated, _ = m.Int64Counter("titleflow.notifications.created",
		metric.WithDescription("Notification rows persisted"),
	)
	actionsApplied, _ = m.Int64Counter("titleflow.workflow.actions",
		metric.WithDescription("Workflow actions applied"),
	)
}

// CountScan records the outcome of one breach scan pass.
func CountScan(ctx context.Context, found, processed int) {
	countersOnce.Do(initCounters)
	scansRun.Add(ctx, 1)
	breachesFound.Add(ctx, int64(found))
	breachesClaim.Add(ctx, int64(processed))
}

// CountNotifications records persisted notification rows.
func CountNotifications(ctx context.Context, n int, notificationType string) {
	countersOnce.Do(initCounters)
	notifsCreated.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("type", notificationType)))
}

// CountAction records one applied workflow action.
func CountAction(ctx context.Context, action string) {
	countersOnce.Do(initCounters)
	actionsApplied.Add(ctx, 1,
		metric.WithAttributes(attribute.String("action", action)))
}
