package daemon

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/config"
	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
	"github.com/eliteGoblin/focusd/brick_mon/internal/policy"
	"github.com/eliteGoblin/focusd/brick_mon/internal/usecase"
)

// Host bundles the platform adapters the enforcement core drives.
// Prober, Usage and Apps may be nil.
type Host struct {
	Renderer  domain.OverlayRenderer
	Presenter domain.ChallengePresenter
	Notifier  domain.NotificationSink
	Probe     domain.PermissionProbe
	Prober    domain.ActiveWindowProber
	Usage     domain.UsageSampler
	Apps      domain.AppLister
	Roles     domain.SystemRoleProvider
}

// Runtime is the wired enforcement core of one watcher process.
type Runtime struct {
	Sessions   *usecase.SessionManager
	Essentials *usecase.EssentialAppCache
	Resolver   *usecase.ForegroundResolver
	Overlay    *usecase.OverlayStateMachine
	Challenges *usecase.ChallengeEngine
	Registry   *usecase.BlockRegistry
	Enforcer   *usecase.Enforcer
	Trigger    *usecase.ScheduleTrigger
}

// NewRuntime builds every enforcement component from cfg.
func NewRuntime(cfg *config.Config, store domain.Store, host Host, clock domain.Clock, logger *zap.Logger) *Runtime {
	roles := host.Roles
	if roles == nil {
		pkgs := cfg.SystemRoles
		if len(pkgs) == 0 {
			pkgs = policy.DefaultSystemRoles()
		}
		roles = policy.NewStaticRoleProvider(pkgs)
	}

	rt := &Runtime{}
	rt.Sessions = usecase.NewSessionManager(usecase.SessionConfig{
		MonitorInterval: cfg.Session.MonitorInterval.D(),
	}, store, clock, logger.Named("session"))

	rt.Essentials = usecase.NewEssentialAppCache(store, clock,
		cfg.Essentials.TTL.D(), cfg.Essentials.LookupTimeout.D(), logger.Named("essentials"))

	rt.Resolver = usecase.NewForegroundResolver(usecase.ForegroundConfig{
		Freshness:   cfg.Foreground.Freshness.D(),
		UsageWindow: cfg.Foreground.UsageWindow.D(),
	}, host.Prober, host.Usage, clock, logger.Named("foreground"))

	rt.Overlay = usecase.NewOverlayStateMachine(usecase.OverlayConfig{
		LaunchTimeout:    cfg.Overlay.LaunchTimeout.D(),
		LaunchPoll:       cfg.Overlay.LaunchPoll.D(),
		TrailingGrace:    cfg.Overlay.TrailingGrace.D(),
		SessionPoll:      cfg.Overlay.SessionPoll.D(),
		EmergencyEnabled: cfg.Overlay.EmergencyEnabled,
		EmergencyTaps:    cfg.Overlay.EmergencyTaps,
	}, host.Renderer, rt.Sessions, rt.Essentials, rt.Resolver, clock, logger.Named("overlay"))

	rt.Challenges = usecase.NewChallengeEngine(usecase.ChallengeConfig{
		TemporaryUnlock: cfg.Challenge.TemporaryUnlock.D(),
		BypassTaps:      cfg.Challenge.BypassTaps,
	}, store, clock, logger.Named("challenge"))

	rt.Registry = usecase.NewBlockRegistry(store, clock, logger.Named("registry"))

	rt.Enforcer = usecase.NewEnforcer(usecase.EnforcerConfig{
		OwnPackage:      cfg.OwnPackage,
		SafetyTick:      cfg.Enforcement.SafetyTick.D(),
		AppCooldown:     cfg.Enforcement.AppCooldown.D(),
		WebsiteCooldown: cfg.Enforcement.WebsiteCooldown.D(),
		PermissionCheck: cfg.Enforcement.PermissionCheck.D(),
	}, usecase.EnforcerDeps{
		Registry:   rt.Registry,
		Sessions:   rt.Sessions,
		Essentials: rt.Essentials,
		Resolver:   rt.Resolver,
		Overlay:    rt.Overlay,
		Challenges: rt.Challenges,
		Roles:      roles,
		Presenter:  host.Presenter,
		Notifier:   host.Notifier,
		Probe:      host.Probe,
		Apps:       host.Apps,
		Clock:      clock,
	}, logger.Named("enforcer"))

	rt.Trigger = usecase.NewScheduleTrigger(cfg.Schedule.PollInterval.D(), store, rt.Sessions, clock, logger.Named("schedule"))
	return rt
}

// Start warms the essentials cache and resumes a session left running.
func (rt *Runtime) Start(ctx context.Context) error {
	if err := rt.Essentials.Warm(ctx); err != nil {
		return err
	}
	return rt.Sessions.Init(ctx)
}

// Close stops background goroutines.
func (rt *Runtime) Close() {
	rt.Overlay.Close()
	rt.Sessions.Close()
}
