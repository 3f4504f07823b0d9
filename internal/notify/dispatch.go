// Package notify converts lifecycle and breach events into stored
// notifications and hands them to the real-time delivery channel.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hilops/titleflow/internal/storage"
	"github.com/hilops/titleflow/internal/telemetry"
	"github.com/hilops/titleflow/internal/types"
)

// DefaultRole is the audience used when an event does not name one.
const DefaultRole = "hil-operator"

// Directory resolves notification audiences. External collaborator.
type Directory interface {
	ListUsersByRole(ctx context.Context, role string) ([]string, error)
}

// Publisher delivers a notification to a user's real-time channel.
// At-least-once, fire-and-forget from this subsystem's perspective.
type Publisher interface {
	Publish(ctx context.Context, userID string, payload Payload) error
}

// Payload is the frame pushed to the real-time channel. Popup reflects the
// user's delivery preferences; the stored row exists either way.
type Payload struct {
	Notification *types.Notification `json:"notification"`
	Popup        bool                `json:"popup"`
}

// Event is a dispatchable occurrence: a breach, an interrupt, a lifecycle
// change. Role selects the audience; empty means DefaultRole.
type Event struct {
	Type      types.NotificationType
	Priority  types.Priority
	Title     string
	Message   string
	ActionURL string
	Metadata  map[string]string
	Role      string
}

// Config tunes the dispatcher.
type Config struct {
	// PublishTimeout bounds each per-user real-time publish so one slow
	// user cannot stall the batch.
	PublishTimeout time.Duration
	// Defaults is the preference matrix applied when a user has none stored.
	Defaults Preferences
	// Role is the audience for events that do not name one. Empty selects
	// DefaultRole.
	Role string
}

// Dispatcher fans an event out to its audience.
type Dispatcher struct {
	store     storage.Storage
	directory Directory
	publisher Publisher
	cfg       Config
	log       zerolog.Logger
}

// NewDispatcher creates a Dispatcher. publisher may be nil (no real-time
// channel configured); rows are still persisted.
func NewDispatcher(store storage.Storage, directory Directory, publisher Publisher, cfg Config, log zerolog.Logger) *Dispatcher {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	if cfg.Defaults.Popup == nil {
		cfg.Defaults = DefaultPreferences()
	}
	return &Dispatcher{
		store:     store,
		directory: directory,
		publisher: publisher,
		cfg:       cfg,
		log:       log.With().Str("component", "notify").Logger(),
	}
}

// Dispatch resolves the event's audience and creates one notification per
// user. Per-user failures are isolated: a failed insert or publish for one
// user never blocks the others. The returned slice holds the notifications
// that were successfully persisted.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) ([]*types.Notification, error) {
	if !event.Type.IsValid() {
		return nil, fmt.Errorf("invalid notification type: %s", event.Type)
	}
	role := event.Role
	if role == "" {
		role = d.cfg.Role
	}
	if role == "" {
		role = DefaultRole
	}

	users, err := d.directory.ListUsersByRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audience %q: %w", role, err)
	}
	if len(users) == 0 {
		d.log.Debug().Str("role", role).Str("type", string(event.Type)).Msg("event has no audience")
		return nil, nil
	}

	// Notification creation for distinct users is independent; fan out with
	// no ordering guarantee between users.
	results := make([]*types.Notification, len(users))
	var g errgroup.Group
	for i, userID := range users {
		g.Go(func() error {
			n, err := d.dispatchOne(ctx, userID, event)
			if err != nil {
				// Isolate the failure: log and keep the batch going.
				d.log.Error().Err(err).
					Str("user", userID).
					Str("type", string(event.Type)).
					Msg("notification dispatch failed")
				return nil
			}
			results[i] = n
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; they log instead

	out := results[:0]
	for _, n := range results {
		if n != nil {
			out = append(out, n)
		}
	}
	telemetry.CountNotifications(ctx, len(out), string(event.Type))
	return out, nil
}

// dispatchOne persists a single user's notification and pushes it to the
// real-time channel. The publish is best-effort and separately timed out.
func (d *Dispatcher) dispatchOne(ctx context.Context, userID string, event Event) (*types.Notification, error) {
	n := &types.Notification{
		UserID:    userID,
		Type:      event.Type,
		Priority:  event.Priority,
		Title:     event.Title,
		Message:   event.Message,
		ActionURL: event.ActionURL,
		Metadata:  event.Metadata,
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	if d.publisher != nil {
		prefs := loadPreferences(ctx, d.store, userID, d.cfg.Defaults)
		payload := Payload{Notification: n, Popup: prefs.ShouldPopup(n)}

		pubCtx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
		defer cancel()
		if err := d.publisher.Publish(pubCtx, userID, payload); err != nil {
			// The row is already persisted; delivery failure is logged only.
			d.log.Warn().Err(err).Str("user", userID).Msg("realtime publish failed")
		}
	}
	return n, nil
}
