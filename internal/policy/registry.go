package policy

import (
	"context"
	"sort"
	"strings"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// Registry holds all essential-app policies.
type Registry struct {
	policies map[string]EssentialPolicy
}

// NewRegistry creates a registry with all default policies.
func NewRegistry() *Registry {
	return NewRegistryWithPolicies(
		NewDialerPolicy(),
		NewMessagingPolicy(),
		NewEmergencyPolicy(),
		NewClockPolicy(),
		NewSettingsPolicy(),
	)
}

// NewRegistryWithPolicies creates a registry with custom policies (for testing).
func NewRegistryWithPolicies(policies ...EssentialPolicy) *Registry {
	r := &Registry{
		policies: make(map[string]EssentialPolicy),
	}
	for _, p := range policies {
		r.Register(p)
	}
	return r
}

// Register adds a policy to the registry.
func (r *Registry) Register(p EssentialPolicy) {
	r.policies[p.ID()] = p
}

// Get returns a policy by ID.
func (r *Registry) Get(id string) (EssentialPolicy, bool) {
	p, ok := r.policies[id]
	return p, ok
}

// List returns all policy IDs, sorted.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.policies))
	for id := range r.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Seeds returns the essential apps every store starts with.
func (r *Registry) Seeds() []domain.EssentialApp {
	var apps []domain.EssentialApp
	for _, id := range r.List() {
		apps = append(apps, ToEssentialApps(r.policies[id])...)
	}
	return apps
}

// DefaultSystemRoles are packages that fill dynamic system roles: system UI,
// launcher plumbing and input methods on the phone, the shell and terminals
// on a desktop.
func DefaultSystemRoles() []string {
	return []string{
		"com.android.systemui",
		"com.google.android.inputmethod.latin",
		"com.samsung.android.honeyboard",
		"com.android.phone",
		"com.android.server.telecom",

		"finder", "dock", "systemuiserver", "loginwindow", "windowserver",
		"controlcenter", "notificationcenter", "terminal", "iterm2",
		"gnome-shell", "gnome-terminal-server", "nautilus", "plasmashell",
		"konsole", "dolphin", "xorg", "xwayland", "kitty", "alacritty", "wezterm-gui",
	}
}

// StaticRoleProvider implements domain.SystemRoleProvider over a fixed set.
type StaticRoleProvider struct {
	roles map[string]struct{}
}

// NewStaticRoleProvider builds a provider; an empty list uses DefaultSystemRoles.
func NewStaticRoleProvider(pkgs []string) *StaticRoleProvider {
	if len(pkgs) == 0 {
		pkgs = DefaultSystemRoles()
	}
	roles := make(map[string]struct{}, len(pkgs))
	for _, p := range pkgs {
		roles[strings.ToLower(p)] = struct{}{}
	}
	return &StaticRoleProvider{roles: roles}
}

// IsSystemRole reports whether pkg fills a system role.
func (p *StaticRoleProvider) IsSystemRole(_ context.Context, pkg string) bool {
	_, ok := p.roles[strings.ToLower(pkg)]
	return ok
}

var _ domain.SystemRoleProvider = (*StaticRoleProvider)(nil)
