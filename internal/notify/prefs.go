package notify

import (
	"context"
	"encoding/json"

	"github.com/hilops/titleflow/internal/types"
)

// Preferences is a user's delivery-preference matrix. It gates only the
// interruptive popup; the notification row is persisted regardless.
type Preferences struct {
	// Popup maps priority -> show an interruptive popup.
	Popup map[types.Priority]bool `json:"popup"`
	// Types maps notification type -> enabled for popup delivery.
	Types map[types.NotificationType]bool `json:"types"`
}

// DefaultPreferences returns the out-of-the-box matrix: urgent/high popups
// on, normal/low off; interrupts, failures and SLA warnings on, completions off.
func DefaultPreferences() Preferences {
	return Preferences{
		Popup: map[types.Priority]bool{
			types.PriorityUrgent: true,
			types.PriorityHigh:   true,
			types.PriorityNormal: false,
			types.PriorityLow:    false,
		},
		Types: map[types.NotificationType]bool{
			types.NotifyTaskInterrupt:  true,
			types.NotifyAgentFailure:   true,
			types.NotifySLAWarning:     true,
			types.NotifyWorkflowUpdate: true,
			types.NotifyTaskCompletion: false,
		},
	}
}

// ShouldPopup decides whether a notification may interrupt the user.
// Mentions always surface, regardless of the matrix.
func (p Preferences) ShouldPopup(n *types.Notification) bool {
	if n.Type == types.NotifyMention {
		return true
	}
	enabled, ok := p.Types[n.Type]
	if !ok {
		// Unknown types follow the priority matrix alone
		enabled = true
	}
	return enabled && p.Popup[n.Priority]
}

// merge overlays stored user preferences on the defaults so a partial
// preference document does not silently disable everything unset.
func (p Preferences) merge(defaults Preferences) Preferences {
	out := Preferences{
		Popup: make(map[types.Priority]bool, len(defaults.Popup)),
		Types: make(map[types.NotificationType]bool, len(defaults.Types)),
	}
	for k, v := range defaults.Popup {
		out.Popup[k] = v
	}
	for k, v := range defaults.Types {
		out.Types[k] = v
	}
	for k, v := range p.Popup {
		out.Popup[k] = v
	}
	for k, v := range p.Types {
		out.Types[k] = v
	}
	return out
}

// PreferenceStore reads stored per-user preference documents.
type PreferenceStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
}

// prefsKey is the config-table key for a user's preference document.
func prefsKey(userID string) string {
	return "notify.prefs." + userID
}

// loadPreferences fetches a user's preferences, overlaying them on the
// defaults. Missing or malformed documents fall back to the defaults.
func loadPreferences(ctx context.Context, store PreferenceStore, userID string, defaults Preferences) Preferences {
	raw, err := store.GetConfig(ctx, prefsKey(userID))
	if err != nil || raw == "" {
		return defaults
	}
	var p Preferences
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return defaults
	}
	return p.merge(defaults)
}

// SavePreferences stores a user's preference document.
func SavePreferences(ctx context.Context, store interface {
	SetConfig(ctx context.Context, key, value string) error
}, userID string, p Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return store.SetConfig(ctx, prefsKey(userID), string(data))
}
