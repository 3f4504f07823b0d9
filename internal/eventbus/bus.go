package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Bus dispatches lifecycle events to registered handlers in-process. When a
// JetStream context is attached, every dispatched event is also published to
// NATS for external consumers.
type Bus struct {
	handlers []Handler
	mu       sync.RWMutex
	js       nats.JetStreamContext
	log      zerolog.Logger
}

// New creates an empty bus.
func New(log zerolog.Logger) *Bus {
	return &Bus{log: log.With().Str("component", "eventbus").Logger()}
}

// SetJetStream attaches or detaches the distributed publish path.
func (b *Bus) SetJetStream(js nats.JetStreamContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.js = js
}

// JetStreamEnabled reports whether events are mirrored to NATS.
func (b *Bus) JetStreamEnabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.js != nil
}

// Register adds a handler to the bus. Handlers are sorted by priority on
// each Dispatch call, so registration order does not matter.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Dispatch sends an event to all registered handlers that handle its type.
// Handlers run sequentially in priority order, lowest first. A handler error
// is logged and the chain continues.
func (b *Bus) Dispatch(ctx context.Context, event *Event) (*Result, error) {
	if event == nil {
		return nil, fmt.Errorf("eventbus: nil event")
	}

	b.mu.RLock()
	matching := b.matchingHandlers(event.Type)
	js := b.js
	b.mu.RUnlock()

	// Mirror to NATS first so external consumers see the event even when a
	// local handler fails. Publish errors never fail the dispatch.
	if js != nil {
		b.publishToStream(js, event)
	}

	result := &Result{}

	for _, h := range matching {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("eventbus: context cancelled: %w", err)
		}

		if err := h.Handle(ctx, event, result); err != nil {
			b.log.Warn().
				Str("handler", h.ID()).
				Str("event_type", string(event.Type)).
				Err(err).
				Msg("handler error")
			continue
		}
		result.Handled++
	}

	return result, nil
}

// publishToStream marshals the event and publishes it to its subject.
func (b *Bus) publishToStream(js nats.JetStreamContext, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		b.log.Warn().Err(err).Str("event_type", string(event.Type)).Msg("event marshal failed")
		return
	}
	if _, err := js.Publish(SubjectForEvent(event.Type), data); err != nil {
		b.log.Warn().Err(err).Str("event_type", string(event.Type)).Msg("jetstream publish failed")
	}
}

// Handlers returns all registered handlers.
func (b *Bus) Handlers() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, len(b.handlers))
	copy(out, b.handlers)
	return out
}

// matchingHandlers returns handlers for the given event type sorted by
// priority, lowest first. Caller must hold at least a read lock.
func (b *Bus) matchingHandlers(eventType EventType) []Handler {
	var matched []Handler
	for _, h := range b.handlers {
		for _, t := range h.Handles() {
			if t == eventType {
				matched = append(matched, h)
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Priority() < matched[j].Priority()
	})
	return matched
}
