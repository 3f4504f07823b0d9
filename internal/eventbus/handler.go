package eventbus

import "context"

// Handler reacts to lifecycle events. The bus invokes every handler whose
// Handles set contains the event's type, lowest Priority value first.
type Handler interface {
	// ID names the handler in logs.
	ID() string

	// Handles lists the event types this handler wants.
	Handles() []EventType

	// Priority orders invocation. Lower values run earlier.
	Priority() int

	// Handle reacts to one event. Handlers record their work on the shared
	// Result (notification handlers bump Notified as they create rows); the
	// bus counts the call in Handled only when Handle returns nil. A non-nil
	// error is logged and the remaining handlers still run.
	Handle(ctx context.Context, event *Event, result *Result) error
}
