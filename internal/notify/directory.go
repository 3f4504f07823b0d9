package notify

import (
	"context"
	"fmt"
	"strings"
)

// audienceKeyPrefix namespaces role membership in the config table.
const audienceKeyPrefix = "notify.audience."

// ConfigReader is the slice of storage the directory needs.
type ConfigReader interface {
	GetConfig(ctx context.Context, key string) (string, error)
}

// StoreDirectory resolves role audiences from the config table. Membership
// is a comma-separated user list under notify.audience.<role>, maintained by
// the operator tooling.
type StoreDirectory struct {
	store ConfigReader
}

// NewStoreDirectory creates a directory backed by the config table.
func NewStoreDirectory(store ConfigReader) *StoreDirectory {
	return &StoreDirectory{store: store}
}

var _ Directory = (*StoreDirectory)(nil)

func (d *StoreDirectory) ListUsersByRole(ctx context.Context, role string) ([]string, error) {
	raw, err := d.store.GetConfig(ctx, audienceKeyPrefix+role)
	if err != nil {
		return nil, fmt.Errorf("failed to load audience for role %q: %w", role, err)
	}
	var users []string
	for _, u := range strings.Split(raw, ",") {
		if u = strings.TrimSpace(u); u != "" {
			users = append(users, u)
		}
	}
	return users, nil
}

// AudienceKey returns the config key holding a role's membership. The CLI
// uses it to edit audiences.
func AudienceKey(role string) string {
	return audienceKeyPrefix + role
}

// StaticDirectory is a fixed-membership directory for tests and single-user
// setups.
type StaticDirectory map[string][]string

var _ Directory = (StaticDirectory)(nil)

func (d StaticDirectory) ListUsersByRole(ctx context.Context, role string) ([]string, error) {
	return d[role], nil
}
