package eventbus

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

const (
	// StreamLifecycleEvents is the JetStream stream for lifecycle events.
	StreamLifecycleEvents = "LIFECYCLE_EVENTS"

	// SubjectLifecyclePrefix is the subject prefix for all lifecycle events.
	SubjectLifecyclePrefix = "lifecycle."
)

// SubjectForEvent returns the NATS subject for a given event type.
// Format: lifecycle.<event_type> (e.g., lifecycle.workflow.updated).
func SubjectForEvent(eventType EventType) string {
	return SubjectLifecyclePrefix + string(eventType)
}

// EnsureStreams creates the required JetStream streams if they don't already
// exist. Called during server startup when NATS is enabled.
func EnsureStreams(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(StreamLifecycleEvents)
	if err == nil {
		return nil // Stream already exists.
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamLifecycleEvents,
		Subjects: []string{SubjectLifecyclePrefix + ">"},
		Storage:  nats.FileStorage,
		// Retain last 10000 messages or 100MB, whichever comes first.
		MaxMsgs:  10000,
		MaxBytes: 100 << 20,
	})
	if err != nil {
		return fmt.Errorf("create %s stream: %w", StreamLifecycleEvents, err)
	}

	return nil
}
