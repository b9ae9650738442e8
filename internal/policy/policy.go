// Package policy implements the Strategy pattern for built-in essential apps.
// Each essential role (dialer, messaging, ...) has its own policy naming the
// packages that fill it and the session types it is allowed in.
package policy

import (
	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// EssentialPolicy defines the strategy interface for a system-essential role.
type EssentialPolicy interface {
	// ID returns unique identifier (e.g., "dialer", "messaging").
	ID() string

	// Name returns human-readable name for display.
	Name() string

	// Packages returns the package names that fill this role.
	Packages() []string

	// SessionTypes returns the session types the role is essential in.
	// Empty means every type.
	SessionTypes() []domain.SessionType
}

// ToEssentialApps expands a policy into seeded, non-removable essential apps.
func ToEssentialApps(p EssentialPolicy) []domain.EssentialApp {
	apps := make([]domain.EssentialApp, 0, len(p.Packages()))
	for _, pkg := range p.Packages() {
		apps = append(apps, domain.EssentialApp{
			Package:             pkg,
			Name:                p.Name(),
			IsSystemEssential:   true,
			AllowedSessionTypes: p.SessionTypes(),
		})
	}
	return apps
}
