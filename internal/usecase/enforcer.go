// Package usecase contains application business logic.
package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

const eventBuffer = 64

// EnforcerConfig holds enforcement loop configuration.
type EnforcerConfig struct {
	OwnPackage      string
	SafetyTick      time.Duration // re-evaluate the foreground even without events
	AppCooldown     time.Duration // min gap between challenges for the same app
	WebsiteCooldown time.Duration // min gap between challenges for the same site
	PermissionCheck time.Duration // how often overlay/sensing permissions are probed
}

// DefaultEnforcerConfig returns default enforcement configuration.
func DefaultEnforcerConfig() EnforcerConfig {
	return EnforcerConfig{
		OwnPackage:      "brickmon",
		SafetyTick:      2 * time.Second,
		AppCooldown:     5 * time.Second,
		WebsiteCooldown: 2 * time.Second,
		PermissionCheck: 30 * time.Second,
	}
}

// EnforcerDeps are the collaborators of the enforcement loop.
type EnforcerDeps struct {
	Registry   *BlockRegistry
	Sessions   *SessionManager
	Essentials *EssentialAppCache
	Resolver   *ForegroundResolver
	Overlay    *OverlayStateMachine
	Challenges *ChallengeEngine
	Roles      domain.SystemRoleProvider
	Presenter  domain.ChallengePresenter
	Notifier   domain.NotificationSink
	Probe      domain.PermissionProbe
	Clock      domain.Clock

	// Apps is swept on every safety tick during a session. Optional.
	Apps domain.AppLister
}

// Outcome is the result of one foreground evaluation.
type Outcome int

const (
	OutcomeAllowed Outcome = iota
	OutcomeSessionBlocked
	OutcomeChallenge
	OutcomeSuppressed // blocked but inside the cooldown window
	OutcomeUnknown    // foreground could not be determined
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeSessionBlocked:
		return "session_blocked"
	case OutcomeChallenge:
		return "challenge"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeUnknown:
		return "unknown"
	}
	return "invalid"
}

// Evaluation explains one decision.
type Evaluation struct {
	Outcome    Outcome
	Identifier string
	Reason     string
	Decision   *domain.BlockDecision
}

// Foreground is what is in front: a package and, for browsers, a URL.
type Foreground struct {
	Package string
	URL     string
}

// EnforcerStatus is reported by the status command.
type EnforcerStatus struct {
	Degraded bool
	Reasons  []string
	Bricked  bool
	Overlay  domain.OverlayState
}

// Enforcer is the enforcement loop. It runs on foreground events and on a
// safety tick, and decides between session blocking and ad-hoc challenges.
type Enforcer struct {
	config EnforcerConfig
	deps   EnforcerDeps
	logger *zap.Logger

	events chan domain.ForegroundEvent

	cdMu      sync.Mutex
	cooldowns map[string]time.Time

	stMu          sync.Mutex
	degraded      []string
	lastPermCheck time.Time
}

// NewEnforcer creates the enforcement loop and subscribes it to session events.
func NewEnforcer(config EnforcerConfig, deps EnforcerDeps, logger *zap.Logger) *Enforcer {
	e := &Enforcer{
		config:    config,
		deps:      deps,
		logger:    logger,
		events:    make(chan domain.ForegroundEvent, eventBuffer),
		cooldowns: make(map[string]time.Time),
	}
	deps.Sessions.Subscribe(e.onSessionEvent)
	return e
}

// OnForegroundEvent is the sensing stream entry point. It never blocks.
func (e *Enforcer) OnForegroundEvent(ev domain.ForegroundEvent) {
	e.deps.Resolver.Push(ev)
	select {
	case e.events <- ev:
	default:
		e.logger.Warn("foreground event dropped, loop busy", zap.String("package", ev.Package))
	}
}

// Run processes events and safety ticks until ctx is done.
func (e *Enforcer) Run(ctx context.Context) error {
	e.logger.Info("enforcement loop started",
		zap.Duration("safety_tick", e.config.SafetyTick))
	e.checkPermissions(ctx, true)

	ticker := time.NewTicker(e.config.SafetyTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("enforcement loop stopped")
			return nil
		case ev := <-e.events:
			e.guard(func() {
				e.Evaluate(ctx, Foreground{Package: ev.Package, URL: ev.URL}, ev.WindowActivated)
			})
		case <-ticker.C:
			e.guard(func() { e.SafetyTick(ctx) })
		}
	}
}

// guard keeps one failing evaluation from stopping the loop.
func (e *Enforcer) guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("enforcement tick panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

// SafetyTick re-evaluates the current foreground, probes permissions and
// refreshes the status notification.
func (e *Enforcer) SafetyTick(ctx context.Context) Evaluation {
	e.checkPermissions(ctx, false)
	e.refreshNotification(ctx)
	defer e.sweepRunningApps(ctx)

	pkg, ok := e.deps.Resolver.Current(ctx)
	if !ok {
		return e.evaluateUnknown(ctx)
	}
	fg := Foreground{Package: pkg}
	if last, ok := e.deps.Resolver.Last(); ok && last.Package == pkg {
		fg.URL = last.URL
	}
	return e.Evaluate(ctx, fg, false)
}

// Evaluate decides what to do about fg. force bypasses the cooldown, as a
// window activation does.
func (e *Enforcer) Evaluate(ctx context.Context, fg Foreground, force bool) Evaluation {
	if fg.Package == "" {
		return e.evaluateUnknown(ctx)
	}
	if strings.EqualFold(fg.Package, e.config.OwnPackage) {
		return Evaluation{Outcome: OutcomeAllowed, Identifier: fg.Package, Reason: "own app"}
	}
	if e.deps.Sessions.IsPhoneBricked() {
		return e.evaluateSession(ctx, fg.Package, force)
	}
	return e.evaluateBlocks(ctx, fg, force)
}

func (e *Enforcer) evaluateSession(ctx context.Context, pkg string, force bool) Evaluation {
	cur, ok := e.deps.Sessions.Current()
	if !ok {
		return Evaluation{Outcome: OutcomeAllowed, Identifier: pkg, Reason: "session ended"}
	}
	if reason := e.sessionAllows(ctx, pkg, cur); reason != "" {
		if reason == reasonAllowlist || reason == reasonEssential {
			e.deps.Sessions.RecordEssentialAccess(ctx, pkg)
		}
		return Evaluation{Outcome: OutcomeAllowed, Identifier: pkg, Reason: reason}
	}

	if err := e.deps.Overlay.Show(ctx, pkg); err != nil {
		e.logger.Warn("failed to show overlay", zap.String("package", pkg), zap.Error(err))
	}
	if e.cooldownPassed(pkg, e.config.AppCooldown, force) {
		e.deps.Sessions.RecordBypassAttempt(ctx, pkg)
	}
	return Evaluation{Outcome: OutcomeSessionBlocked, Identifier: pkg, Reason: "session: " + cur.Session.Name}
}

const (
	reasonAllowlist = "session allowlist"
	reasonEssential = "essential app"
)

// sessionAllows returns why pkg may run during cur, or "" if it may not.
func (e *Enforcer) sessionAllows(ctx context.Context, pkg string, cur ActiveSession) string {
	switch {
	case strings.EqualFold(pkg, e.config.OwnPackage):
		return "own app"
	case e.deps.Overlay.InGrace(pkg):
		return "launch grace"
	case e.deps.Roles != nil && e.deps.Roles.IsSystemRole(ctx, pkg):
		return "system role"
	case cur.Session.Allows(pkg):
		return reasonAllowlist
	case e.deps.Essentials.IsEssential(ctx, pkg, cur.Session.Type):
		return reasonEssential
	}
	return ""
}

// sweepRunningApps blocks every running app the session does not permit,
// including apps already open when it started.
func (e *Enforcer) sweepRunningApps(ctx context.Context) {
	if e.deps.Apps == nil || !e.deps.Sessions.IsPhoneBricked() {
		return
	}
	cur, ok := e.deps.Sessions.Current()
	if !ok {
		return
	}
	apps, err := e.deps.Apps.RunningApps(ctx)
	if err != nil {
		e.logger.Warn("failed to list running apps", zap.Error(err))
		return
	}
	for _, pkg := range apps {
		if e.sessionAllows(ctx, pkg, cur) != "" {
			continue
		}
		e.logger.Debug("running app not permitted by session", zap.String("package", pkg))
		if err := e.deps.Overlay.Show(ctx, pkg); err != nil {
			e.logger.Warn("failed to show overlay", zap.String("package", pkg), zap.Error(err))
		}
	}
}

func (e *Enforcer) evaluateBlocks(ctx context.Context, fg Foreground, force bool) Evaluation {
	var decision *domain.BlockDecision
	observed := fg.Package
	window := e.config.AppCooldown

	if fg.URL != "" {
		if host := domain.HostFromURL(fg.URL); host != "" {
			if decision = e.deps.Registry.Resolve(ctx, host, domain.KindWebsite); decision != nil {
				observed = host
				window = e.config.WebsiteCooldown
			}
		}
	}
	if decision == nil {
		decision = e.deps.Registry.Resolve(ctx, fg.Package, domain.KindApp)
	}
	if decision == nil {
		return Evaluation{Outcome: OutcomeAllowed, Identifier: fg.Package, Reason: "not blocked"}
	}

	if !e.cooldownPassed(observed, window, force) {
		return Evaluation{Outcome: OutcomeSuppressed, Identifier: observed, Decision: decision, Reason: "cooldown"}
	}

	req := domain.ChallengeRequest{Decision: *decision, Observed: observed}
	switch decision.Challenge.Kind {
	case domain.ChallengeWait:
		remaining, running, err := e.deps.Challenges.WaitStatus(ctx, decision.Identifier)
		if err != nil {
			e.logger.Debug("wait status unavailable", zap.Error(err))
		}
		req.WaitRemaining, req.WaitStarted = remaining, running
	case domain.ChallengeTap:
		req.TapTarget = decision.Challenge.TapCount
	}
	if err := e.deps.Presenter.Present(ctx, req); err != nil {
		e.logger.Warn("failed to present challenge", zap.String("identifier", observed), zap.Error(err))
	}
	e.logger.Info("blocked item in foreground",
		zap.String("identifier", observed),
		zap.String("source", string(decision.Source)),
		zap.String("challenge", decision.Challenge.String()))
	return Evaluation{Outcome: OutcomeChallenge, Identifier: observed, Decision: decision, Reason: string(decision.Source)}
}

// evaluateUnknown fails toward blocking while a session is running.
func (e *Enforcer) evaluateUnknown(ctx context.Context) Evaluation {
	if e.deps.Sessions.IsPhoneBricked() && !e.deps.Overlay.GraceActive() {
		if err := e.deps.Overlay.Show(ctx, ""); err != nil {
			e.logger.Warn("failed to show overlay", zap.Error(err))
		}
	}
	return Evaluation{Outcome: OutcomeUnknown, Reason: "foreground unknown"}
}

func (e *Enforcer) cooldownPassed(key string, window time.Duration, force bool) bool {
	now := e.deps.Clock.Now()
	e.cdMu.Lock()
	defer e.cdMu.Unlock()

	if last, ok := e.cooldowns[key]; ok && !force && now.Sub(last) < window {
		return false
	}
	e.cooldowns[key] = now
	if len(e.cooldowns) > 256 {
		for k, t := range e.cooldowns {
			if now.Sub(t) > time.Minute {
				delete(e.cooldowns, k)
			}
		}
	}
	return true
}

func (e *Enforcer) onSessionEvent(ev SessionEvent) {
	ctx := context.Background()
	e.cdMu.Lock()
	e.cooldowns = make(map[string]time.Time)
	e.cdMu.Unlock()

	switch ev.Kind {
	case SessionStarted:
		e.refreshNotification(ctx)
	case SessionEnded:
		if e.postsNotification() {
			if err := e.deps.Notifier.Clear(ctx); err != nil {
				e.logger.Debug("failed to clear notification", zap.Error(err))
			}
		}
	}
}

func (e *Enforcer) postsNotification() bool {
	return e.deps.Notifier != nil && !e.deps.Overlay.Capabilities().PostsNotification
}

func (e *Enforcer) refreshNotification(ctx context.Context) {
	if !e.postsNotification() {
		return
	}
	cur, ok := e.deps.Sessions.Current()
	if !ok {
		return
	}
	if err := e.deps.Notifier.ShowSession(ctx, cur.Session.Name, e.deps.Sessions.Remaining()); err != nil {
		e.logger.Debug("failed to post session notification", zap.Error(err))
	}
}

// checkPermissions probes overlay and sensing permissions, at most once per
// PermissionCheck unless force is set.
func (e *Enforcer) checkPermissions(ctx context.Context, force bool) {
	if e.deps.Probe == nil {
		return
	}
	now := e.deps.Clock.Now()
	e.stMu.Lock()
	if !force && now.Sub(e.lastPermCheck) < e.config.PermissionCheck {
		e.stMu.Unlock()
		return
	}
	e.lastPermCheck = now
	wasDegraded := len(e.degraded) > 0
	e.stMu.Unlock()

	reasons := DegradedReasons(ctx, e.deps.Probe)

	e.stMu.Lock()
	e.degraded = reasons
	e.stMu.Unlock()

	if len(reasons) > 0 {
		e.logger.Error("enforcement degraded", zap.Strings("reasons", reasons))
		if e.deps.Notifier != nil {
			msg := "Blocking is degraded: " + strings.Join(reasons, ", ")
			if err := e.deps.Notifier.ShowWarning(ctx, msg); err != nil {
				e.logger.Debug("failed to post warning", zap.Error(err))
			}
		}
		return
	}
	if wasDegraded {
		e.logger.Info("enforcement recovered")
		e.refreshNotification(ctx)
	}
}

// DegradedReasons lists the enforcement paths probe reports as unavailable.
func DegradedReasons(ctx context.Context, probe domain.PermissionProbe) []string {
	var reasons []string
	if !probe.CanDrawOverlay(ctx) {
		reasons = append(reasons, "overlay permission missing")
	}
	if !probe.SensingEnabled(ctx) {
		reasons = append(reasons, "foreground sensing disabled")
	}
	return reasons
}

// Status reports degraded state, session and overlay state.
func (e *Enforcer) Status() EnforcerStatus {
	e.stMu.Lock()
	reasons := append([]string(nil), e.degraded...)
	e.stMu.Unlock()
	return EnforcerStatus{
		Degraded: len(reasons) > 0,
		Reasons:  reasons,
		Bricked:  e.deps.Sessions.IsPhoneBricked(),
		Overlay:  e.deps.Overlay.State(),
	}
}
