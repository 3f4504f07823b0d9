// Package audit appends immutable records of state mutations.
//
// Audit is a side observability channel, not a consistency-critical path: a
// failed audit write is logged and swallowed so the triggering business
// mutation still succeeds.
package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/hilops/titleflow/internal/types"
)

// Sink is the slice of storage the recorder needs.
type Sink interface {
	RecordAuditEvent(ctx context.Context, e *types.AuditEvent) error
}

// Recorder writes audit events best-effort.
type Recorder struct {
	sink Sink
	log  zerolog.Logger
}

// NewRecorder creates a Recorder writing to sink.
func NewRecorder(sink Sink, log zerolog.Logger) *Recorder {
	return &Recorder{sink: sink, log: log.With().Str("component", "audit").Logger()}
}

// Record appends one audit event. Errors are logged, never returned.
func (r *Recorder) Record(ctx context.Context, actor, action, resourceType, resourceID string, before, after *string, metadata string) {
	e := &types.AuditEvent{
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValue:     before,
		NewValue:     after,
		Metadata:     metadata,
	}
	if err := r.sink.RecordAuditEvent(ctx, e); err != nil {
		r.log.Warn().Err(err).
			Str("action", action).
			Str("resource", resourceType+"/"+resourceID).
			Msg("audit write failed")
	}
}

// RecordTransition is a convenience for status mutations.
func (r *Recorder) RecordTransition(ctx context.Context, actor, action, resourceType, resourceID, before, after string) {
	r.Record(ctx, actor, action, resourceType, resourceID, &before, &after, "")
}
